package aggregate

import "github.com/shopspring/decimal"

type band struct {
	low, high int64
	messages  [3]string
}

var summaryBands = map[Period]band{
	Weekly: {300, 1000, [3]string{
		"You're managing your weekly budget well.",
		"Watch your expenses this week.",
		"Careful, you're spending a lot this week.",
	}},
	Monthly: {1500, 5000, [3]string{
		"You're on track with your monthly spending.",
		"Your expenses are moderate, keep tracking.",
		"You're nearing your monthly limit, be mindful.",
	}},
	Yearly: {12000, 30000, [3]string{
		"Your yearly spending is balanced.",
		"You're spending consistently, keep tracking.",
		"Your expenses are high this year, consider adjusting.",
	}},
}

// Summary returns a short advice line for the amount spent in period p.
func Summary(p Period, amount decimal.Decimal) string {
	b, ok := summaryBands[p]
	if !ok {
		return ""
	}
	switch {
	case amount.LessThan(decimal.NewFromInt(b.low)):
		return b.messages[0]
	case amount.LessThan(decimal.NewFromInt(b.high)):
		return b.messages[1]
	default:
		return b.messages[2]
	}
}

// Summaries returns the advice line of every period for t.
func Summaries(t Totals) map[Period]string {
	out := make(map[Period]string, len(summaryBands))
	for _, p := range Periods() {
		out[p] = Summary(p, t.For(p))
	}
	return out
}
