package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"finix/internal/core"
)

var errUsage = errors.New("usage")

type command struct {
	usage string
	run   func(ctx context.Context, a *app, args []string, out io.Writer) error
}

// commands is filled in init since the handlers refer back to it for usage text.
var commands map[string]command

func init() {
	commands = map[string]command{
		"dashboard":     {"dashboard [-drill BUCKET]", runDashboard},
		"list":          {"list [-category NAME]", runList},
		"add":           {"add -amount N -category NAME [-custom NAME] [-date YYYY-MM-DD]", runAdd},
		"edit":          {"edit -id ID [-amount N] [-category NAME] [-date YYYY-MM-DD]", runEdit},
		"delete":        {"delete -id ID", runDelete},
		"reload":        {"reload", runReload},
		"limit":         {"limit set CATEGORY AMOUNT | limit delete CATEGORY | limit list", runLimit},
		"goal":          {"goal set -description TEXT -target N [-saved N] | goal saved N | goal delete", runGoal},
		"notifications": {"notifications on|off", runNotifications},
		"insights":      {"insights", runInsights},
		"categories":    {"categories", runCategories},
	}
}

func usage(w io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(w, "usage: finix <command> [flags]")
	fmt.Fprintln(w)
	for _, name := range names {
		fmt.Fprintln(w, "  "+commands[name].usage)
	}
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %s: %v", errUsage, fs.Name(), err)
	}
	return nil
}

func usageError(name string) error {
	return fmt.Errorf("%w: %s", errUsage, commands[name].usage)
}

func runDashboard(_ context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("dashboard")
	drill := fs.String("drill", "", "drill into a parent category bucket")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *drill != "" {
		if err := a.session.SelectBucket(*drill); err != nil {
			return err
		}
	}
	renderDashboard(out, a.currency, a.session.Dashboard(time.Now()))
	return nil
}

func runList(_ context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("list")
	category := fs.String("category", "", "category, parent bucket, All or Other")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	renderTransactions(out, a.currency, a.session.Filter(*category))
	return nil
}

func runAdd(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("add")
	amount := fs.String("amount", "", "amount, dot or comma decimal separator")
	category := fs.String("category", "", "category name, or Other with -custom")
	custom := fs.String("custom", "", "custom category name when -category is Other")
	date := fs.String("date", "", "transaction date, defaults to today")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	d := core.Draft{Category: *category, CustomCategory: *custom, Amount: *amount}
	if *date != "" {
		parsed, err := core.ParseDate(*date)
		if err != nil {
			return err
		}
		d.Date = parsed
	}

	tx, err := a.session.Submit(ctx, d)
	if err != nil && tx.Category == "" {
		return err
	}
	fmt.Fprintf(out, "Added %s %s on %s", tx.Category, core.FormatAmount(a.currency, tx.Amount), tx.Date)
	if tx.ID != "" {
		fmt.Fprintf(out, " (id %s)", tx.ID)
	}
	fmt.Fprintln(out)
	return err
}

func runEdit(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("edit")
	id := fs.String("id", "", "transaction id")
	amount := fs.String("amount", "", "new amount")
	category := fs.String("category", "", "new category")
	date := fs.String("date", "", "new date")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *id == "" {
		return usageError("edit")
	}

	tx, ok := findTransaction(a, *id)
	if !ok {
		return fmt.Errorf("no transaction with id %s", *id)
	}
	if *amount != "" {
		v, err := core.ParseAmount(*amount)
		if err != nil {
			return err
		}
		tx.Amount = v
	}
	if *category != "" {
		tx.Category = *category
	}
	if *date != "" {
		v, err := core.ParseDate(*date)
		if err != nil {
			return err
		}
		tx.Date = v
	}

	updated, err := a.session.Edit(ctx, tx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Updated %s: %s %s on %s\n", updated.ID, updated.Category,
		core.FormatAmount(a.currency, updated.Amount), updated.Date)
	return nil
}

func runDelete(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("delete")
	id := fs.String("id", "", "transaction id")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *id == "" {
		return usageError("delete")
	}
	if err := a.session.Delete(ctx, *id); err != nil {
		return err
	}
	fmt.Fprintf(out, "Deleted %s\n", *id)
	return nil
}

func runReload(ctx context.Context, a *app, _ []string, out io.Writer) error {
	if err := a.session.Reload(ctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "Reloaded %d transactions\n", len(a.session.Transactions()))
	return nil
}

func runLimit(ctx context.Context, a *app, args []string, out io.Writer) error {
	if len(args) == 0 {
		return usageError("limit")
	}
	switch args[0] {
	case "set":
		if len(args) != 3 {
			return usageError("limit")
		}
		v, err := core.ParseAmount(args[2])
		if err != nil {
			return err
		}
		if err := a.session.SetLimit(ctx, args[1], v); err != nil {
			return err
		}
		fmt.Fprintf(out, "Limit for %s set to %s\n", args[1], core.FormatAmount(a.currency, v))
	case "delete":
		if len(args) != 2 {
			return usageError("limit")
		}
		if err := a.session.DeleteLimit(ctx, args[1]); err != nil {
			return err
		}
		fmt.Fprintf(out, "Limit for %s deleted\n", args[1])
	case "list":
		renderLimits(out, a.currency, a.session.Dashboard(time.Now()).Limits)
	default:
		return usageError("limit")
	}
	return nil
}

func runGoal(ctx context.Context, a *app, args []string, out io.Writer) error {
	if len(args) == 0 {
		return usageError("goal")
	}
	switch args[0] {
	case "set":
		fs := newFlagSet("goal set")
		description := fs.String("description", "", "what the goal is for")
		target := fs.String("target", "", "target amount")
		saved := fs.String("saved", "0", "amount saved so far")
		if err := parseFlags(fs, args[1:]); err != nil {
			return err
		}
		t, err := core.ParseAmount(*target)
		if err != nil {
			return err
		}
		s, err := core.ParseAmount(*saved)
		if err != nil {
			return err
		}
		g := core.Goal{Description: strings.TrimSpace(*description), TargetAmount: t, SavedAmount: s}
		if err := a.session.SetGoal(ctx, g); err != nil {
			return err
		}
	case "saved":
		if len(args) != 2 {
			return usageError("goal")
		}
		v, err := core.ParseAmount(args[1])
		if err != nil {
			return err
		}
		if err := a.session.UpdateSaved(ctx, v); err != nil {
			return err
		}
	case "delete":
		if err := a.session.DeleteGoal(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "Goal deleted")
		return nil
	default:
		return usageError("goal")
	}
	renderGoal(out, a.currency, a.session.Dashboard(time.Now()))
	return nil
}

func runNotifications(ctx context.Context, a *app, args []string, out io.Writer) error {
	if len(args) != 1 {
		return usageError("notifications")
	}
	var enabled bool
	switch args[0] {
	case "on":
		enabled = true
	case "off":
	default:
		return usageError("notifications")
	}
	if err := a.session.SetNotificationsEnabled(ctx, enabled); err != nil {
		return err
	}
	fmt.Fprintf(out, "Notifications %s\n", args[0])
	return nil
}

func runInsights(ctx context.Context, a *app, _ []string, out io.Writer) error {
	in, err := a.session.Insights(ctx)
	if err != nil {
		return err
	}
	renderInsights(out, a.currency, in)
	return nil
}

func runCategories(_ context.Context, a *app, _ []string, out io.Writer) error {
	for _, g := range a.session.Hierarchy().Groups() {
		fmt.Fprintf(out, "%s: %s\n", g.Name, strings.Join(g.Children, ", "))
	}
	fmt.Fprintf(out, "%s: any other name via -custom\n", core.OtherCategory)
	return nil
}

func findTransaction(a *app, id string) (core.Transaction, bool) {
	for _, tx := range a.session.Transactions() {
		if tx.ID == id {
			return tx, true
		}
	}
	return core.Transaction{}, false
}
