package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"finix/internal/events"
	"finix/internal/storage/memory"
)

func TestRender(t *testing.T) {
	fixed := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	r := Renderer{Currency: "£", Now: func() time.Time { return fixed }}

	tests := []struct {
		name     string
		ev       events.Event
		severity Severity
		title    string
		body     string
	}{
		{
			name:     "limit exceeded",
			ev:       events.LimitExceeded{Category: "Food", Limit: decimal.NewFromInt(50), Spent: decimal.NewFromInt(55)},
			severity: SeverityWarning,
			title:    "Spending Limit Exceeded",
			body:     "You spent £55.00 in Food (limit: £50.00)",
		},
		{
			name:     "goal achieved",
			ev:       events.GoalAchieved{Description: "Bike"},
			severity: SeveritySuccess,
			title:    "Goal Achieved",
			body:     "You've reached your goal: Bike",
		},
		{
			name:     "goal progress",
			ev:       events.GoalProgress{TargetAmount: decimal.NewFromInt(1000), SavedAmount: decimal.RequireFromString("500.5")},
			severity: SeverityInfo,
			title:    "Goal Saved",
			body:     "Target: £1000.00, Saved: £500.50",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := r.Render(tt.ev)
			if !ok {
				t.Fatalf("expected a payload")
			}
			if p.Severity != tt.severity || p.Title != tt.title || p.Body != tt.body {
				t.Errorf("Render() = %+v", p)
			}
			if p.ID == "" || !p.OccurredAt.Equal(fixed) || p.Kind != tt.ev.Kind() {
				t.Errorf("missing envelope fields: %+v", p)
			}
		})
	}

	if _, ok := r.Render(events.LimitSet{Category: "Food"}); ok {
		t.Errorf("LimitSet should not notify")
	}
}

func TestPayloadJSON(t *testing.T) {
	p := Payload{ID: "x", Kind: events.KindGoalAchieved, Severity: SeveritySuccess, Title: "Goal Achieved", Body: "b"}
	data, err := p.ToJSON()
	if err != nil {
		t.Fatal(err)
	}
	back, err := PayloadFromJSON(data)
	if err != nil || back.Title != p.Title || back.Kind != p.Kind {
		t.Fatalf("unexpected decode %+v err=%v", back, err)
	}
	if _, err := PayloadFromJSON([]byte("{")); err == nil {
		t.Fatalf("expected error for bad JSON")
	}
}

func TestDispatcher(t *testing.T) {
	ctx := context.Background()
	var delivered []Payload
	good := SinkFunc(func(_ context.Context, p Payload) error {
		delivered = append(delivered, p)
		return nil
	})
	bad := SinkFunc(func(context.Context, Payload) error { return errors.New("broker down") })

	d := NewDispatcher(Renderer{Currency: "$"}, memory.New(), true, nil, bad, good)
	d.Emit(ctx, events.GoalAchieved{Description: "Car"})
	d.Emit(ctx, events.LimitDeleted{Category: "Food"})
	if err := d.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(delivered) != 1 || delivered[0].Title != "Goal Achieved" {
		t.Fatalf("expected one delivery despite failing sink, got %+v", delivered)
	}

	if err := d.SetEnabled(ctx, false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	d.Emit(ctx, events.GoalAchieved{Description: "Car"})
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(delivered) != 1 {
		t.Fatalf("expected no delivery while disabled")
	}
}

func TestDispatcherEmitDoesNotWaitForSinks(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	var delivered []Payload
	slow := SinkFunc(func(_ context.Context, p Payload) error {
		<-release
		delivered = append(delivered, p)
		return nil
	})
	d := NewDispatcher(Renderer{}, nil, true, nil, slow)

	start := time.Now()
	d.Emit(ctx, events.GoalAchieved{Description: "Car"})
	d.Emit(ctx, events.GoalProgress{TargetAmount: decimal.NewFromInt(10), SavedAmount: decimal.NewFromInt(5)})
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Emit waited %v on a blocked sink", elapsed)
	}

	close(release)
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(delivered) != 2 || delivered[0].Title != "Goal Achieved" || delivered[1].Title != "Goal Saved" {
		t.Fatalf("Close should drain the queue in order, got %+v", delivered)
	}

	d.Emit(ctx, events.GoalAchieved{Description: "Bike"})
	if err := d.Flush(ctx); err != nil {
		t.Fatalf("Flush after Close: %v", err)
	}
	if len(delivered) != 2 {
		t.Fatalf("events after Close must be dropped, got %d deliveries", len(delivered))
	}
}

func TestDispatcherFlushHonoursContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	d := NewDispatcher(Renderer{}, nil, true, nil, SinkFunc(func(context.Context, Payload) error {
		<-release
		return nil
	}))
	d.Emit(context.Background(), events.GoalAchieved{Description: "Car"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := d.Flush(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Flush error = %v, want deadline exceeded", err)
	}
}

func TestDispatcherLoadsToggle(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	fresh := NewDispatcher(Renderer{}, store, true, nil)
	if err := fresh.Load(ctx); err != nil || !fresh.Enabled() {
		t.Fatalf("absent setting should keep the default, enabled=%v err=%v", fresh.Enabled(), err)
	}

	if err := fresh.SetEnabled(ctx, false); err != nil {
		t.Fatal(err)
	}
	reloaded := NewDispatcher(Renderer{}, store, true, nil)
	if err := reloaded.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if reloaded.Enabled() {
		t.Fatalf("expected persisted false to win over default")
	}
}
