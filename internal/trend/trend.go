// Package trend buckets spending by calendar month.
package trend

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"finix/internal/core"
)

type Point struct {
	Year   int             `json:"year"`
	Month  time.Month      `json:"month"`
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
}

type monthKey struct {
	year  int
	month time.Month
}

func (k monthKey) before(o monthKey) bool {
	if k.year != o.year {
		return k.year < o.year
	}
	return k.month < o.month
}

// Build returns one point per month that has transactions, in calendar order.
// Labels are short month names; amounts are rounded to two decimals.
func Build(txs []core.Transaction) []Point {
	sums := make(map[monthKey]decimal.Decimal)
	for _, tx := range txs {
		k := monthKey{year: tx.Date.Year(), month: time.Month(tx.Date.Month())}
		sums[k] = sums[k].Add(tx.Amount)
	}

	keys := make([]monthKey, 0, len(sums))
	for k := range sums {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].before(keys[j]) })

	points := make([]Point, len(keys))
	for i, k := range keys {
		points[i] = Point{
			Year:   k.year,
			Month:  k.month,
			Label:  k.month.String()[:3],
			Amount: core.RoundAmount(sums[k]),
		}
	}
	return points
}
