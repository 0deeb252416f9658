// Package events defines the domain events raised by the budgeting engine and
// the Emitter contract the engine publishes them through.
package events

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindLimitExceeded Kind = "limit_exceeded"
	KindLimitSet      Kind = "limit_set"
	KindLimitDeleted  Kind = "limit_deleted"
	KindGoalAchieved  Kind = "goal_achieved"
	KindGoalProgress  Kind = "goal_progress"
)

type Event interface {
	Kind() Kind
}

type (
	LimitExceeded struct {
		Category string          `json:"category"`
		Limit    decimal.Decimal `json:"limit"`
		Spent    decimal.Decimal `json:"spent"`
	}

	LimitSet struct {
		Category string          `json:"category"`
		Limit    decimal.Decimal `json:"limit"`
	}

	LimitDeleted struct {
		Category string `json:"category"`
	}

	GoalAchieved struct {
		Description string `json:"description"`
	}

	GoalProgress struct {
		TargetAmount decimal.Decimal `json:"targetAmount"`
		SavedAmount  decimal.Decimal `json:"savedAmount"`
	}
)

func (LimitExceeded) Kind() Kind { return KindLimitExceeded }
func (LimitSet) Kind() Kind      { return KindLimitSet }
func (LimitDeleted) Kind() Kind  { return KindLimitDeleted }
func (GoalAchieved) Kind() Kind  { return KindGoalAchieved }
func (GoalProgress) Kind() Kind  { return KindGoalProgress }

// Emitter receives events. Emit must not block on delivery and never fails
// the action that raised the event.
type Emitter interface {
	Emit(ctx context.Context, ev Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, ev Event)

func (f EmitterFunc) Emit(ctx context.Context, ev Event) { f(ctx, ev) }

// Discard drops every event.
var Discard Emitter = EmitterFunc(func(context.Context, Event) {})

// Recorder keeps emitted events in order.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Drain returns the recorded events and clears the recorder.
func (r *Recorder) Drain() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	return out
}

// Multi fans an event out to several emitters in order.
func Multi(emitters ...Emitter) Emitter {
	return EmitterFunc(func(ctx context.Context, ev Event) {
		for _, e := range emitters {
			if e != nil {
				e.Emit(ctx, ev)
			}
		}
	})
}
