// Package rollup groups transactions into top-level category buckets and
// produces chart-ready series, with a single level of drill-down.
package rollup

import (
	"errors"

	"github.com/shopspring/decimal"

	"finix/internal/core"
)

// DefaultPalette is the colour cycle used for chart entries.
var DefaultPalette = []string{
	"#381E72", "#6A721E", "#721E5E", "#E74C3C", "#2ECC71",
	"#F39C12", "#9B59B6", "#3498DB", "#1ABC9C", "#D35400",
}

var (
	ErrAlreadyDrilled = errors.New("already drilled into a bucket")
	ErrEmptyBucket    = errors.New("bucket name is empty")
)

type Entry struct {
	Name       string          `json:"name"`
	Amount     decimal.Decimal `json:"amount"`
	ColorIndex int             `json:"colorIndex"`
	Color      string          `json:"color"`
}

type Subtotal struct {
	Name   string
	Amount decimal.Decimal
}

// Bucket is a top-level group. Subcategories only lists raw categories that
// differ from the bucket name, in order of first occurrence.
type Bucket struct {
	Name          string
	Total         decimal.Decimal
	Subcategories []Subtotal
}

type bucketAcc struct {
	name  string
	total decimal.Decimal
	subs  []Subtotal
	subIx map[string]int
}

// Buckets partitions txs by the hierarchy. Bucket order is the order in which
// each bucket first appears in txs. Amounts are rounded to two decimals.
func Buckets(h *core.CategoryHierarchy, txs []core.Transaction) []Bucket {
	var accs []*bucketAcc
	index := make(map[string]int)

	for _, tx := range txs {
		name := h.Bucket(tx.Category)
		i, ok := index[name]
		if !ok {
			i = len(accs)
			index[name] = i
			accs = append(accs, &bucketAcc{name: name, subIx: make(map[string]int)})
		}
		acc := accs[i]
		acc.total = acc.total.Add(tx.Amount)

		if tx.Category == name {
			continue
		}
		j, ok := acc.subIx[tx.Category]
		if !ok {
			j = len(acc.subs)
			acc.subIx[tx.Category] = j
			acc.subs = append(acc.subs, Subtotal{Name: tx.Category})
		}
		acc.subs[j].Amount = acc.subs[j].Amount.Add(tx.Amount)
	}

	out := make([]Bucket, len(accs))
	for i, acc := range accs {
		subs := make([]Subtotal, len(acc.subs))
		for j, s := range acc.subs {
			subs[j] = Subtotal{Name: s.Name, Amount: core.RoundAmount(s.Amount)}
		}
		out[i] = Bucket{Name: acc.name, Total: core.RoundAmount(acc.total), Subcategories: subs}
	}
	return out
}

// Engine renders rollup series and tracks the drill-down state: either the
// top level, or drilled into exactly one bucket.
type Engine struct {
	hierarchy *core.CategoryHierarchy
	palette   []string
	bucket    string
	drilled   bool
}

func NewEngine(h *core.CategoryHierarchy, palette []string) *Engine {
	if len(palette) == 0 {
		palette = DefaultPalette
	}
	return &Engine{hierarchy: h, palette: palette}
}

// Select drills into bucket. It is only valid from the top level.
func (e *Engine) Select(bucket string) error {
	if bucket == "" {
		return ErrEmptyBucket
	}
	if e.drilled {
		return ErrAlreadyDrilled
	}
	e.bucket, e.drilled = bucket, true
	return nil
}

// Back returns to the top level. It is a no-op at the top level.
func (e *Engine) Back() {
	e.bucket, e.drilled = "", false
}

// Drilled returns the selected bucket, if any.
func (e *Engine) Drilled() (string, bool) {
	return e.bucket, e.drilled
}

// Series renders the current view.
func (e *Engine) Series(txs []core.Transaction) []Entry {
	if e.drilled {
		return e.DrillDown(txs, e.bucket)
	}
	return e.TopLevel(txs)
}

func (e *Engine) TopLevel(txs []core.Transaction) []Entry {
	buckets := Buckets(e.hierarchy, txs)
	out := make([]Entry, len(buckets))
	for i, b := range buckets {
		out[i] = e.entry(i, b.Name, b.Total)
	}
	return out
}

// DrillDown lists the subcategories recorded for bucket. An unknown bucket,
// or one only ever used directly, yields an empty series.
func (e *Engine) DrillDown(txs []core.Transaction, bucket string) []Entry {
	for _, b := range Buckets(e.hierarchy, txs) {
		if b.Name != bucket {
			continue
		}
		out := make([]Entry, len(b.Subcategories))
		for i, s := range b.Subcategories {
			out[i] = e.entry(i, s.Name, s.Amount)
		}
		return out
	}
	return []Entry{}
}

func (e *Engine) entry(i int, name string, amount decimal.Decimal) Entry {
	ci := i % len(e.palette)
	return Entry{Name: name, Amount: amount, ColorIndex: ci, Color: e.palette[ci]}
}
