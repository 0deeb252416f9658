package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"finix/internal/aggregate"
	"finix/internal/core"
	"finix/internal/insights"
	"finix/internal/limits"
	"finix/internal/rollup"
	"finix/internal/services"
)

var periodLabels = map[aggregate.Period]string{
	aggregate.Weekly:  "This week",
	aggregate.Monthly: "This month",
	aggregate.Yearly:  "This year",
}

func newTable(out io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
}

func renderDashboard(out io.Writer, currency string, snap services.Snapshot) {
	fmt.Fprintf(out, "Spending as of %s (%d transactions)\n\n", snap.Now.Format("2006-01-02"), snap.TransactionCount)

	w := newTable(out)
	for _, p := range aggregate.Periods() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", periodLabels[p], core.FormatAmount(currency, snap.Totals.For(p)), snap.Summaries[p])
	}
	w.Flush()

	fmt.Fprintln(out, "\nBy category")
	renderEntries(out, currency, snap.Rollup)
	if snap.Bucket != "" {
		fmt.Fprintf(out, "\n%s\n", snap.Bucket)
		renderEntries(out, currency, snap.DrillDown)
	}

	if len(snap.Trend) > 0 {
		fmt.Fprintln(out, "\nMonthly trend")
		w = newTable(out)
		for _, p := range snap.Trend {
			fmt.Fprintf(w, "%s\t%s\n", p.Label, core.FormatAmount(currency, p.Amount))
		}
		w.Flush()
	}

	if len(snap.Limits) > 0 {
		fmt.Fprintln(out, "\nLimits")
		renderLimits(out, currency, snap.Limits)
	}
	if !snap.Goal.IsZero() {
		fmt.Fprintln(out)
		renderGoal(out, currency, snap)
	}

	state := "off"
	if snap.NotificationsEnabled {
		state = "on"
	}
	fmt.Fprintf(out, "\nNotifications: %s\n", state)
}

func renderEntries(out io.Writer, currency string, entries []rollup.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(out, "  (none)")
		return
	}
	w := newTable(out)
	for _, e := range entries {
		fmt.Fprintf(w, "  %s\t%s\t%s\n", e.Name, core.FormatAmount(currency, e.Amount), e.Color)
	}
	w.Flush()
}

func renderTransactions(out io.Writer, currency string, txs []core.Transaction) {
	w := newTable(out)
	fmt.Fprintln(w, "ID\tDATE\tCATEGORY\tAMOUNT")
	for _, tx := range txs {
		id := tx.ID
		if id == "" {
			id = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", id, tx.Date, tx.Category, core.FormatAmount(currency, tx.Amount))
	}
	w.Flush()
}

func renderLimits(out io.Writer, currency string, statuses []limits.Status) {
	w := newTable(out)
	fmt.Fprintln(w, "CATEGORY\tLIMIT\tSPENT\tREMAINING\t")
	for _, s := range statuses {
		flag := ""
		if s.Exceeded {
			flag = "exceeded"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.Category,
			core.FormatAmount(currency, s.Limit),
			core.FormatAmount(currency, s.Spent),
			core.FormatAmount(currency, s.Remaining),
			flag)
	}
	w.Flush()
}

func renderGoal(out io.Writer, currency string, snap services.Snapshot) {
	g := snap.Goal
	fmt.Fprintf(out, "Goal: %s\n", g.Description)
	fmt.Fprintf(out, "  %s of %s (%s%%)\n",
		core.FormatAmount(currency, g.SavedAmount),
		core.FormatAmount(currency, g.TargetAmount),
		snap.GoalProgress.Shift(2).StringFixed(0))
	if snap.GoalAchieved {
		fmt.Fprintln(out, "  Achieved")
	}
}

func renderInsights(out io.Writer, currency string, in insights.Insights) {
	fmt.Fprintf(out, "Highest spending category: %s\n", in.HighestSpendingCategory)
	if in.Advice != "" {
		fmt.Fprintf(out, "Advice: %s\n", in.Advice)
	}
	fmt.Fprintln(out, "\nPredicted spending")
	w := newTable(out)
	for _, r := range in.Ranges() {
		fmt.Fprintf(w, "  %s\t%s\n", r.Label, core.FormatAmount(currency, r.Amount))
	}
	fmt.Fprintf(w, "  Total\t%s\n", core.FormatAmount(currency, in.PredictedTotal()))
	w.Flush()
}
