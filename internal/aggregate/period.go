// Package aggregate computes spending totals over calendar windows relative
// to a reference instant.
//
// Each period has its own window strategy. Windows are independent: a
// transaction can count towards Yearly without counting towards Weekly.
package aggregate

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"finix/internal/core"
)

type Period string

const (
	Weekly  Period = "weekly"
	Monthly Period = "monthly"
	Yearly  Period = "yearly"
)

// Periods returns the supported periods, shortest first.
func Periods() []Period {
	return []Period{Weekly, Monthly, Yearly}
}

// Window is an inclusive range of calendar dates.
type Window struct {
	From core.Date
	To   core.Date
}

func (w Window) Contains(d core.Date) bool {
	return d.Within(w.From, w.To)
}

// WindowStrategy derives the window of a period from the reference instant.
// The calendar of now's own location decides which day "today" is.
type WindowStrategy interface {
	Window(now time.Time) Window
}

// ISOWeek is Monday through Sunday of the week containing now.
type ISOWeek struct{}

func (ISOWeek) Window(now time.Time) Window {
	today := core.DateOf(now)
	offset := (int(now.Weekday()) + 6) % 7 // days since Monday
	monday := today.AddDays(-offset)
	return Window{From: monday, To: monday.AddDays(6)}
}

// MonthToDate runs from the 1st of now's month through today.
type MonthToDate struct{}

func (MonthToDate) Window(now time.Time) Window {
	today := core.DateOf(now)
	return Window{From: core.NewDate(today.Year(), today.Month(), 1), To: today}
}

// YearToDate runs from January 1st of now's year through today.
type YearToDate struct{}

func (YearToDate) Window(now time.Time) Window {
	today := core.DateOf(now)
	return Window{From: core.NewDate(today.Year(), 1, 1), To: today}
}

var windowStrategies = map[Period]WindowStrategy{
	Weekly:  ISOWeek{},
	Monthly: MonthToDate{},
	Yearly:  YearToDate{},
}

// WindowFor returns the window of period p around now.
func WindowFor(p Period, now time.Time) (Window, error) {
	s, ok := windowStrategies[p]
	if !ok {
		return Window{}, fmt.Errorf("unknown period: %s", p)
	}
	return s.Window(now), nil
}

// Totals holds the rounded spending of each period.
type Totals struct {
	Weekly  decimal.Decimal `json:"weekly"`
	Monthly decimal.Decimal `json:"monthly"`
	Yearly  decimal.Decimal `json:"yearly"`
}

func (t Totals) For(p Period) decimal.Decimal {
	switch p {
	case Weekly:
		return t.Weekly
	case Monthly:
		return t.Monthly
	case Yearly:
		return t.Yearly
	}
	return decimal.Zero
}

// Compute sums the transactions falling in each period's window.
func Compute(txs []core.Transaction, now time.Time) Totals {
	return Totals{
		Weekly:  Sum(txs, ISOWeek{}.Window(now)),
		Monthly: Sum(txs, MonthToDate{}.Window(now)),
		Yearly:  Sum(txs, YearToDate{}.Window(now)),
	}
}

// Sum totals the amounts dated inside w, rounded to two decimals.
func Sum(txs []core.Transaction, w Window) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		if w.Contains(tx.Date) {
			total = total.Add(tx.Amount)
		}
	}
	return core.RoundAmount(total)
}
