// Package notify turns domain events into user-facing alert payloads and
// delivers them to one or more sinks.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"finix/internal/core"
	"finix/internal/events"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
)

// Payload is the alert handed to sinks.
type Payload struct {
	ID         string      `json:"id"`
	Kind       events.Kind `json:"kind"`
	Severity   Severity    `json:"severity"`
	Title      string      `json:"title"`
	Body       string      `json:"body"`
	OccurredAt time.Time   `json:"occurredAt"`
}

func (p Payload) ToJSON() ([]byte, error) {
	return json.Marshal(p)
}

func PayloadFromJSON(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, err
	}
	return p, nil
}

// Sink delivers payloads. Delivery is best effort.
type Sink interface {
	Send(ctx context.Context, p Payload) error
}

// Renderer formats events for people.
type Renderer struct {
	Currency string
	Now      func() time.Time
}

// Render returns the payload for ev, or false for events nobody is told about.
func (r Renderer) Render(ev events.Event) (Payload, bool) {
	p := Payload{Kind: ev.Kind()}
	switch e := ev.(type) {
	case events.LimitExceeded:
		p.Severity = SeverityWarning
		p.Title = "Spending Limit Exceeded"
		p.Body = fmt.Sprintf("You spent %s in %s (limit: %s)",
			core.FormatAmount(r.Currency, e.Spent), e.Category, core.FormatAmount(r.Currency, e.Limit))
	case events.GoalAchieved:
		p.Severity = SeveritySuccess
		p.Title = "Goal Achieved"
		p.Body = fmt.Sprintf("You've reached your goal: %s", e.Description)
	case events.GoalProgress:
		p.Severity = SeverityInfo
		p.Title = "Goal Saved"
		p.Body = fmt.Sprintf("Target: %s, Saved: %s",
			core.FormatAmount(r.Currency, e.TargetAmount), core.FormatAmount(r.Currency, e.SavedAmount))
	default:
		return Payload{}, false
	}
	p.ID = uuid.NewString()
	p.OccurredAt = r.now()
	return p, true
}

func (r Renderer) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}
