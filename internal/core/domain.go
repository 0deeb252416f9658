package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// OtherCategory is the category a user picks when the transaction belongs to
// none of the known categories; the custom name is then used instead.
const OtherCategory = "Other"

type (
	// Date is a calendar date without time-of-day semantics.
	Date struct {
		time.Time
	}

	Transaction struct {
		ID       string          `json:"id,omitempty"`
		Date     Date            `json:"date"`
		Category string          `json:"category"`
		Amount   decimal.Decimal `json:"amount"`
	}

	// Draft is a transaction as submitted by the user, before validation.
	Draft struct {
		Date           Date
		Category       string
		CustomCategory string
		Amount         string
	}

	Goal struct {
		Description  string          `json:"description"`
		TargetAmount decimal.Decimal `json:"targetAmount"`
		SavedAmount  decimal.Decimal `json:"savedAmount"`
	}

	// CategoryAmounts maps a category name to an amount. It backs both the
	// configured spending limits and the per-category spending cache.
	CategoryAmounts map[string]decimal.Decimal
)

// ErrValidation is wrapped by every input validation failure.
var ErrValidation = errors.New("validation failed")

var (
	ErrMissingAmount   = fmt.Errorf("%w: missing amount", ErrValidation)
	ErrInvalidAmount   = fmt.Errorf("%w: invalid amount", ErrValidation)
	ErrMissingCategory = fmt.Errorf("%w: missing category", ErrValidation)
	ErrInvalidDate     = fmt.Errorf("%w: invalid date", ErrValidation)
	ErrMissingID       = fmt.Errorf("%w: missing transaction id", ErrValidation)
	ErrInvalidTarget   = fmt.Errorf("%w: invalid goal target", ErrValidation)
	ErrInvalidLimit    = fmt.Errorf("%w: limit must be positive", ErrValidation)
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar date of t as seen in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate accepts YYYY-MM-DD, or a full timestamp whose date part is used as written.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if len(s) > len(dateLayout) {
		s = s[:len(dateLayout)]
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// AddDays returns the date n days later (or earlier when n is negative).
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// Within reports whether d lies in [from, to], both ends inclusive.
func (d Date) Within(from, to Date) bool {
	return !d.Before(from.Time) && !d.After(to.Time)
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decode date: %w", err)
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrMissingCategory
	}
	if t.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}

// Transaction validates the draft and converts it. A zero date falls back to today.
func (d Draft) Transaction(today Date) (Transaction, error) {
	category := strings.TrimSpace(d.Category)
	if category == OtherCategory {
		category = strings.TrimSpace(d.CustomCategory)
	}
	if category == "" {
		return Transaction{}, ErrMissingCategory
	}
	amount, err := ParseAmount(d.Amount)
	if err != nil {
		return Transaction{}, err
	}
	date := d.Date
	if date.IsZero() {
		date = today
	}
	tx := Transaction{Date: date, Category: category, Amount: amount}
	return tx, tx.Validate()
}

func (g Goal) Validate() error {
	if g.TargetAmount.IsNegative() {
		return ErrInvalidTarget
	}
	if g.SavedAmount.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}

// Achieved reports whether the saved amount reached a positive target.
func (g Goal) Achieved() bool {
	return g.TargetAmount.IsPositive() && g.SavedAmount.GreaterThanOrEqual(g.TargetAmount)
}

// Progress is saved/target, or zero without a positive target. It is not
// clamped: values above one mean the goal was overshot.
func (g Goal) Progress() decimal.Decimal {
	if !g.TargetAmount.IsPositive() {
		return decimal.Zero
	}
	return g.SavedAmount.Div(g.TargetAmount)
}

func (g Goal) IsZero() bool {
	return g.Description == "" && g.TargetAmount.IsZero() && g.SavedAmount.IsZero()
}

func (g Goal) Equal(other Goal) bool {
	return g.Description == other.Description &&
		g.TargetAmount.Equal(other.TargetAmount) &&
		g.SavedAmount.Equal(other.SavedAmount)
}

// Get returns the amount for category, zero when absent.
func (a CategoryAmounts) Get(category string) decimal.Decimal {
	if v, ok := a[category]; ok {
		return v
	}
	return decimal.Zero
}

func (a CategoryAmounts) Clone() CategoryAmounts {
	out := make(CategoryAmounts, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}
