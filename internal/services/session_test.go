package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"finix/internal/aggregate"
	"finix/internal/core"
	"finix/internal/events"
	"finix/internal/insights"
	"finix/internal/notify"
	"finix/internal/remote"
	"finix/internal/storage"
	"finix/internal/storage/memory"
)

const account = "ana@example.com"

// Wednesday; the ISO week starts on 2025-03-10.
var now = time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store    *memory.Store
	source   *remote.Memory
	recorder *events.Recorder
	sent     *sentPayloads
	session  *Session
}

// titles returns what the sinks received once pending deliveries are done.
func (f *fixture) titles(t *testing.T) []string {
	t.Helper()
	if err := f.session.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	return f.sent.titles()
}

type sentPayloads struct {
	mu       sync.Mutex
	payloads []notify.Payload
}

func (s *sentPayloads) Send(_ context.Context, p notify.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, p)
	return nil
}

func (s *sentPayloads) titles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.payloads))
	for i, p := range s.payloads {
		out[i] = p.Title
	}
	return out
}

func newFixture(t *testing.T, store *memory.Store, source *remote.Memory) *fixture {
	t.Helper()
	if store == nil {
		store = memory.New()
	}
	if source == nil {
		source = remote.NewMemory()
	}
	f := &fixture{store: store, source: source, recorder: &events.Recorder{}, sent: &sentPayloads{}}
	dispatcher := notify.NewDispatcher(notify.Renderer{Currency: "$"}, store, true, nil, f.sent)
	t.Cleanup(func() { dispatcher.Close() })
	f.session = NewSession(Config{
		Account:    account,
		Store:      store,
		Source:     source,
		Dispatcher: dispatcher,
		Observers:  []events.Emitter{f.recorder},
		Now:        func() time.Time { return now },
	})
	if err := f.session.Hydrate(context.Background()); err != nil {
		t.Fatalf("Hydrate: %v", err)
	}
	return f
}

func draft(date core.Date, category, amount string) core.Draft {
	return core.Draft{Date: date, Category: category, Amount: amount}
}

func limitAlerts(evs []events.Event) []events.LimitExceeded {
	var out []events.LimitExceeded
	for _, ev := range evs {
		if le, ok := ev.(events.LimitExceeded); ok {
			out = append(out, le)
		}
	}
	return out
}

func TestSubmitValidation(t *testing.T) {
	tests := []struct {
		name  string
		draft core.Draft
		want  error
	}{
		{"missing amount", draft(core.NewDate(2025, 3, 10), "Taxi", ""), core.ErrMissingAmount},
		{"missing category", draft(core.NewDate(2025, 3, 10), "", "5"), core.ErrMissingCategory},
		{"other without custom name", draft(core.NewDate(2025, 3, 10), core.OtherCategory, "5"), core.ErrMissingCategory},
		{"negative amount", draft(core.NewDate(2025, 3, 10), "Taxi", "-5"), core.ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil, nil)
			_, err := f.session.Submit(context.Background(), tt.draft)
			if !errors.Is(err, tt.want) || !errors.Is(err, core.ErrValidation) {
				t.Fatalf("Submit error = %v, want %v", err, tt.want)
			}
			if n := len(f.session.Transactions()); n != 0 {
				t.Errorf("validation failure must not mutate state, got %d transactions", n)
			}
		})
	}
}

func TestSubmitAssignsIDAndDefaultsDate(t *testing.T) {
	f := newFixture(t, nil, nil)
	tx, err := f.session.Submit(context.Background(), core.Draft{Category: core.OtherCategory, CustomCategory: "Gifts", Amount: "12,345"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if tx.ID == "" || tx.Category != "Gifts" || tx.Date.String() != "2025-03-12" {
		t.Fatalf("unexpected transaction %+v", tx)
	}
	if !tx.Amount.Equal(decimal.RequireFromString("12.35")) {
		t.Errorf("amount should be rounded to 12.35, got %s", tx.Amount)
	}

	remoteList, _ := f.source.List(context.Background(), account)
	if len(remoteList) != 1 || remoteList[0].ID != tx.ID {
		t.Errorf("remote should hold the created record, got %+v", remoteList)
	}
	var persisted []core.Transaction
	if ok, err := storage.GetJSON(context.Background(), f.store, storage.KeyTransactions, &persisted); !ok || err != nil {
		t.Fatalf("transactions not persisted: ok=%v err=%v", ok, err)
	}
	if len(persisted) != 1 || persisted[0].ID != tx.ID {
		t.Errorf("persisted list should carry the assigned id, got %+v", persisted)
	}
}

func TestSubmitRaisesOneAlertPerCommit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	if err := f.session.SetLimit(ctx, "Groceries", decimal.NewFromInt(50)); err != nil {
		t.Fatal(err)
	}
	f.recorder.Drain()

	if _, err := f.session.Submit(ctx, draft(core.NewDate(2025, 3, 10), "Groceries", "45")); err != nil {
		t.Fatal(err)
	}
	if got := limitAlerts(f.recorder.Drain()); len(got) != 0 {
		t.Fatalf("no alert expected under the limit, got %+v", got)
	}

	if _, err := f.session.Submit(ctx, draft(core.NewDate(2025, 3, 11), "Groceries", "10")); err != nil {
		t.Fatal(err)
	}
	got := limitAlerts(f.recorder.Drain())
	if len(got) != 1 {
		t.Fatalf("expected exactly one alert, got %+v", got)
	}
	if got[0].Category != "Groceries" || !got[0].Limit.Equal(decimal.NewFromInt(50)) || !got[0].Spent.Equal(decimal.NewFromInt(55)) {
		t.Errorf("unexpected alert %+v", got[0])
	}
	if titles := f.titles(t); len(titles) != 1 || titles[0] != "Spending Limit Exceeded" {
		t.Errorf("sink should receive one alert, got %v", titles)
	}
}

func TestSubmitRealertsOtherCategoriesStillOverLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	for category, limit := range map[string]int64{"Groceries": 50, "Taxi": 10} {
		if err := f.session.SetLimit(ctx, category, decimal.NewFromInt(limit)); err != nil {
			t.Fatal(err)
		}
	}
	f.recorder.Drain()

	if _, err := f.session.Submit(ctx, draft(core.NewDate(2025, 3, 10), "Taxi", "15")); err != nil {
		t.Fatal(err)
	}
	if got := limitAlerts(f.recorder.Drain()); len(got) != 1 || got[0].Category != "Taxi" {
		t.Fatalf("crossing commit should alert once for Taxi, got %+v", got)
	}

	// A commit in an unrelated category reconciles every limit, so Taxi,
	// still over its ceiling, is reported again.
	if _, err := f.session.Submit(ctx, draft(core.NewDate(2025, 3, 11), "Groceries", "5")); err != nil {
		t.Fatal(err)
	}
	got := limitAlerts(f.recorder.Drain())
	if len(got) != 1 || got[0].Category != "Taxi" || !got[0].Spent.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("expected Taxi to be re-alerted after the Groceries commit, got %+v", got)
	}
}

func TestSubmitDoesNotWaitForNotificationDelivery(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	release := make(chan struct{})
	sent := &sentPayloads{}
	slow := notify.SinkFunc(func(ctx context.Context, p notify.Payload) error {
		<-release
		return sent.Send(ctx, p)
	})
	dispatcher := notify.NewDispatcher(notify.Renderer{Currency: "$"}, store, true, nil, slow)
	defer dispatcher.Close()

	session := NewSession(Config{
		Account:    account,
		Store:      store,
		Source:     remote.NewMemory(),
		Dispatcher: dispatcher,
		Now:        func() time.Time { return now },
	})
	if err := session.Hydrate(ctx); err != nil {
		t.Fatal(err)
	}
	if err := session.SetLimit(ctx, "Taxi", decimal.NewFromInt(10)); err != nil {
		t.Fatal(err)
	}
	if err := session.SetGoal(ctx, core.Goal{Description: "Trip", TargetAmount: decimal.NewFromInt(100)}); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	if _, err := session.Submit(ctx, draft(core.NewDate(2025, 3, 10), "Taxi", "15")); err != nil {
		t.Fatal(err)
	}
	if err := session.UpdateSaved(ctx, decimal.NewFromInt(20)); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Submit and UpdateSaved took %v while the sink was blocked", elapsed)
	}

	close(release)
	if err := session.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	got := sent.titles()
	if len(got) != 3 || got[1] != "Spending Limit Exceeded" || got[2] != "Goal Saved" {
		t.Fatalf("queued notifications should all be delivered in order, got %v", got)
	}
}

func TestSubmitRemoteFailureKeepsLocalRecord(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.source.Fail = errors.New("connection refused")

	tx, err := f.session.Submit(context.Background(), draft(core.NewDate(2025, 3, 10), "Taxi", "8"))
	if !errors.Is(err, ErrRemoteFailure) {
		t.Fatalf("expected ErrRemoteFailure, got %v", err)
	}
	if tx.ID != "" {
		t.Errorf("failed create must not assign an id, got %q", tx.ID)
	}
	list := f.session.Transactions()
	if len(list) != 1 || list[0].Category != "Taxi" || list[0].ID != "" {
		t.Fatalf("local record should be kept without id, got %+v", list)
	}
	if spent := f.session.Spending().Get("Taxi"); !spent.Equal(decimal.NewFromInt(8)) {
		t.Errorf("spending should include the local record, got %s", spent)
	}
}

func TestEditAndDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	tx, err := f.session.Submit(ctx, draft(core.NewDate(2025, 3, 10), "Taxi", "8"))
	if err != nil {
		t.Fatal(err)
	}

	t.Run("edit remote failure leaves local state", func(t *testing.T) {
		f.source.Fail = errors.New("timeout")
		defer func() { f.source.Fail = nil }()
		changed := tx
		changed.Amount = decimal.NewFromInt(99)
		if _, err := f.session.Edit(ctx, changed); !errors.Is(err, ErrRemoteFailure) {
			t.Fatalf("expected ErrRemoteFailure, got %v", err)
		}
		if got := f.session.Transactions()[0].Amount; !got.Equal(decimal.NewFromInt(8)) {
			t.Errorf("local amount changed to %s", got)
		}
	})

	t.Run("edit replaces in place and reconciles", func(t *testing.T) {
		changed := tx
		changed.Category = "Fuel"
		changed.Amount = decimal.RequireFromString("20.005")
		updated, err := f.session.Edit(ctx, changed)
		if err != nil {
			t.Fatalf("Edit: %v", err)
		}
		if updated.ID != tx.ID || !updated.Amount.Equal(decimal.RequireFromString("20.01")) {
			t.Errorf("unexpected updated %+v", updated)
		}
		spending := f.session.Spending()
		if !spending.Get("Taxi").IsZero() || !spending.Get("Fuel").Equal(decimal.RequireFromString("20.01")) {
			t.Errorf("spending not reconciled: %v", spending)
		}
	})

	t.Run("edit requires a known id", func(t *testing.T) {
		if _, err := f.session.Edit(ctx, core.Transaction{Date: tx.Date, Category: "Fuel", Amount: decimal.NewFromInt(1)}); !errors.Is(err, core.ErrMissingID) {
			t.Errorf("expected ErrMissingID, got %v", err)
		}
		missing := tx
		missing.ID = "nope"
		if _, err := f.session.Edit(ctx, missing); !errors.Is(err, ErrUnknownTransaction) {
			t.Errorf("expected ErrUnknownTransaction, got %v", err)
		}
	})

	t.Run("delete remote failure keeps the record", func(t *testing.T) {
		f.source.Fail = errors.New("503")
		defer func() { f.source.Fail = nil }()
		if err := f.session.Delete(ctx, tx.ID); !errors.Is(err, ErrRemoteFailure) {
			t.Fatalf("expected ErrRemoteFailure, got %v", err)
		}
		if len(f.session.Transactions()) != 1 {
			t.Errorf("record should remain after failed delete")
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := f.session.Delete(ctx, tx.ID); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if len(f.session.Transactions()) != 0 {
			t.Errorf("record should be gone")
		}
		if !f.session.Spending().Get("Fuel").IsZero() {
			t.Errorf("spending should be reconciled after delete")
		}
	})
}

func TestReload(t *testing.T) {
	ctx := context.Background()
	source := remote.NewMemory()
	source.Seed(account,
		core.Transaction{Date: core.NewDate(2025, 3, 10), Category: "Groceries", Amount: decimal.NewFromInt(60)},
		core.Transaction{Date: core.NewDate(2025, 2, 1), Category: "Movies", Amount: decimal.NewFromInt(12)},
	)
	source.Seed("someone-else", core.Transaction{Date: core.NewDate(2025, 3, 10), Category: "Taxi", Amount: decimal.NewFromInt(1)})
	f := newFixture(t, nil, source)

	// A local-only record is dropped by the wholesale replace.
	f.session.txs.Add(ctx, core.Transaction{Date: core.NewDate(2025, 3, 10), Category: "Local", Amount: decimal.NewFromInt(1)})
	if err := f.session.SetLimit(ctx, "Groceries", decimal.NewFromInt(50)); err != nil {
		t.Fatal(err)
	}
	f.recorder.Drain()

	if err := f.session.Reload(ctx); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	list := f.session.Transactions()
	if len(list) != 2 {
		t.Fatalf("expected the 2 remote records, got %+v", list)
	}
	alerts := limitAlerts(f.recorder.Drain())
	if len(alerts) != 1 || alerts[0].Category != "Groceries" || !alerts[0].Spent.Equal(decimal.NewFromInt(60)) {
		t.Errorf("reconcile after reload should alert once for Groceries, got %+v", alerts)
	}

	source.Fail = errors.New("offline")
	if err := f.session.Reload(ctx); !errors.Is(err, ErrRemoteFailure) {
		t.Fatalf("expected ErrRemoteFailure, got %v", err)
	}
	if len(f.session.Transactions()) != 2 {
		t.Errorf("failed reload must keep the previous list")
	}
}

func TestHydrateRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	source := remote.NewMemory()
	f := newFixture(t, store, source)

	for _, d := range []core.Draft{
		draft(core.NewDate(2025, 3, 10), "Groceries", "20"),
		draft(core.NewDate(2025, 3, 11), "Fuel", "30"),
	} {
		if _, err := f.session.Submit(ctx, d); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.session.SetLimit(ctx, "Fuel", decimal.NewFromInt(100)); err != nil {
		t.Fatal(err)
	}
	goal := core.Goal{Description: "Bike", TargetAmount: decimal.NewFromInt(500), SavedAmount: decimal.NewFromInt(125)}
	if err := f.session.SetGoal(ctx, goal); err != nil {
		t.Fatal(err)
	}
	if err := f.session.SetNotificationsEnabled(ctx, false); err != nil {
		t.Fatal(err)
	}

	reopened := newFixture(t, store, source)
	got := reopened.session.Transactions()
	if len(got) != 2 || got[0].ID != f.session.Transactions()[0].ID {
		t.Fatalf("transactions did not survive: %+v", got)
	}
	snap := reopened.session.Dashboard(now)
	if !snap.Goal.Equal(goal) {
		t.Errorf("goal = %+v, want %+v", snap.Goal, goal)
	}
	if len(snap.Limits) != 1 || snap.Limits[0].Category != "Fuel" || !snap.Limits[0].Spent.Equal(decimal.NewFromInt(30)) {
		t.Errorf("limits = %+v", snap.Limits)
	}
	if snap.NotificationsEnabled {
		t.Error("notification toggle should survive a restart")
	}
	if alerts := limitAlerts(reopened.recorder.Events()); len(alerts) != 0 {
		t.Errorf("hydration must not alert, got %+v", alerts)
	}
}

func TestNotificationsToggle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	if err := f.session.SetNotificationsEnabled(ctx, false); err != nil {
		t.Fatal(err)
	}
	if err := f.session.SetGoal(ctx, core.Goal{Description: "Trip", TargetAmount: decimal.NewFromInt(100), SavedAmount: decimal.NewFromInt(100)}); err != nil {
		t.Fatal(err)
	}
	if got := f.titles(t); len(got) != 0 {
		t.Errorf("disabled notifications should not reach sinks, got %v", got)
	}

	evs := f.recorder.Drain()
	if len(evs) != 1 || evs[0].Kind() != events.KindGoalAchieved {
		t.Fatalf("observers still see domain events, got %+v", evs)
	}

	if err := f.session.SetNotificationsEnabled(ctx, true); err != nil {
		t.Fatal(err)
	}
	if err := f.session.UpdateSaved(ctx, decimal.NewFromInt(40)); err != nil {
		t.Fatal(err)
	}
	if got := f.titles(t); len(got) != 1 || got[0] != "Goal Saved" {
		t.Errorf("expected a progress notification, got %v", got)
	}

	if err := f.session.DeleteGoal(ctx); err != nil {
		t.Fatal(err)
	}
	if !f.session.Dashboard(now).Goal.IsZero() {
		t.Error("goal should be cleared")
	}
	if n := len(f.titles(t)); n != 1 {
		t.Errorf("deleting the goal must not notify, got %d notifications", n)
	}
}

func TestDashboard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	for _, d := range []core.Draft{
		draft(core.NewDate(2025, 3, 10), "Groceries", "20"),
		draft(core.NewDate(2025, 3, 10), "Fuel", "30"),
		draft(core.NewDate(2024, 10, 5), "Groceries", "5"),
	} {
		if _, err := f.session.Submit(ctx, d); err != nil {
			t.Fatal(err)
		}
	}

	snap := f.session.Dashboard(now)
	if !snap.Totals.Weekly.Equal(decimal.NewFromInt(50)) || !snap.Totals.Yearly.Equal(decimal.NewFromInt(50)) {
		t.Errorf("unexpected totals %+v", snap.Totals)
	}
	if snap.Summaries[aggregate.Weekly] == "" {
		t.Error("expected a weekly summary")
	}
	if len(snap.Rollup) != 2 || snap.Rollup[0].Name != "Food" || !snap.Rollup[0].Amount.Equal(decimal.NewFromInt(25)) || snap.Rollup[1].Name != "Transport" {
		t.Errorf("unexpected rollup %+v", snap.Rollup)
	}
	if len(snap.Trend) != 2 || snap.Trend[0].Year != 2024 || snap.Trend[1].Month != time.March {
		t.Errorf("unexpected trend %+v", snap.Trend)
	}
	if snap.DrillDown != nil || snap.Bucket != "" {
		t.Errorf("top level should not carry a drill-down")
	}

	if err := f.session.SelectBucket("Food"); err != nil {
		t.Fatal(err)
	}
	snap = f.session.Dashboard(now)
	if snap.Bucket != "Food" || len(snap.DrillDown) != 1 || snap.DrillDown[0].Name != "Groceries" {
		t.Errorf("unexpected drill-down %+v", snap.DrillDown)
	}
	if err := f.session.SelectBucket("Transport"); err == nil {
		t.Error("selecting while drilled should fail")
	}
	f.session.Back()
	if _, drilled := f.session.rollup.Drilled(); drilled {
		t.Error("Back should return to the top level")
	}

	if got := f.session.Filter("Food"); len(got) != 2 {
		t.Errorf("Filter(Food) = %d records, want 2", len(got))
	}
}

type stubInsights struct {
	in  insights.Insights
	err error
}

func (s stubInsights) Fetch(context.Context) (insights.Insights, error) { return s.in, s.err }

func TestInsights(t *testing.T) {
	f := newFixture(t, nil, nil)
	if _, err := f.session.Insights(context.Background()); !errors.Is(err, ErrInsightsUnavailable) {
		t.Errorf("expected ErrInsightsUnavailable, got %v", err)
	}

	f.session.insights = stubInsights{err: errors.New("502")}
	if _, err := f.session.Insights(context.Background()); !errors.Is(err, ErrRemoteFailure) {
		t.Errorf("expected ErrRemoteFailure, got %v", err)
	}

	f.session.insights = stubInsights{in: insights.Insights{Advice: "Cook more"}}
	got, err := f.session.Insights(context.Background())
	if err != nil || got.Advice != "Cook more" {
		t.Errorf("Insights() = %+v, %v", got, err)
	}
}
