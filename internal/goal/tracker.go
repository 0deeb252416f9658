// Package goal tracks the single savings goal.
package goal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"finix/internal/core"
	"finix/internal/events"
	"finix/internal/storage"
)

type Tracker struct {
	mu     sync.Mutex
	goal   core.Goal
	store  storage.Store
	emit   events.Emitter
	logger *slog.Logger
}

func NewTracker(store storage.Store, emit events.Emitter, logger *slog.Logger) *Tracker {
	if emit == nil {
		emit = events.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{store: store, emit: emit, logger: logger}
}

// Load hydrates the goal from the store; an absent record means no goal.
func (t *Tracker) Load(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	var g core.Goal
	if _, err := storage.GetJSON(ctx, t.store, storage.KeyGoal, &g); err != nil {
		return fmt.Errorf("load goal: %w", err)
	}
	t.mu.Lock()
	t.goal = g
	t.mu.Unlock()
	return nil
}

// SetGoal replaces the goal, persists it and reports completion or progress.
func (t *Tracker) SetGoal(ctx context.Context, g core.Goal) error {
	if err := g.Validate(); err != nil {
		return err
	}
	g.TargetAmount = core.RoundAmount(g.TargetAmount)
	g.SavedAmount = core.RoundAmount(g.SavedAmount)
	t.commit(ctx, g)
	return nil
}

// UpdateSaved sets the saved amount of the current goal.
func (t *Tracker) UpdateSaved(ctx context.Context, saved decimal.Decimal) error {
	if saved.IsNegative() {
		return core.ErrInvalidAmount
	}
	t.mu.Lock()
	g := t.goal
	t.mu.Unlock()
	g.SavedAmount = core.RoundAmount(saved)
	t.commit(ctx, g)
	return nil
}

// DeleteGoal clears the goal. No event is raised.
func (t *Tracker) DeleteGoal(ctx context.Context) error {
	t.mu.Lock()
	t.goal = core.Goal{}
	t.mu.Unlock()
	if t.store != nil {
		if err := t.store.Remove(ctx, storage.KeyGoal); err != nil {
			t.logger.ErrorContext(ctx, "Failed to remove goal", "error", err)
		}
	}
	return nil
}

func (t *Tracker) Goal() core.Goal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.goal
}

// Progress is saved/target, unclamped; zero without a positive target.
func (t *Tracker) Progress() decimal.Decimal {
	return t.Goal().Progress()
}

func (t *Tracker) commit(ctx context.Context, g core.Goal) {
	t.mu.Lock()
	t.goal = g
	t.mu.Unlock()

	if t.store != nil {
		if err := storage.SetJSON(ctx, t.store, storage.KeyGoal, g); err != nil {
			t.logger.ErrorContext(ctx, "Failed to persist goal", "error", err)
		}
	}

	if g.Achieved() {
		t.logger.InfoContext(ctx, "Goal achieved", "description", g.Description)
		t.emit.Emit(ctx, events.GoalAchieved{Description: g.Description})
		return
	}
	t.emit.Emit(ctx, events.GoalProgress{TargetAmount: g.TargetAmount, SavedAmount: g.SavedAmount})
}
