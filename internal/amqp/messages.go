package amqp

import (
	"encoding/json"
	"time"

	"finix/internal/events"
	"finix/internal/notify"
)

// NotificationMessage is an alert queued for delivery to one account.
type NotificationMessage struct {
	ID        string          `json:"id"`
	Account   string          `json:"account,omitempty"`
	Kind      events.Kind     `json:"kind"`
	Severity  notify.Severity `json:"severity"`
	Title     string          `json:"title"`
	Body      string          `json:"body"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewNotificationMessage wraps a rendered payload for account.
func NewNotificationMessage(account string, p notify.Payload) *NotificationMessage {
	ts := p.OccurredAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return &NotificationMessage{
		ID:        p.ID,
		Account:   account,
		Kind:      p.Kind,
		Severity:  p.Severity,
		Title:     p.Title,
		Body:      p.Body,
		Timestamp: ts,
	}
}

// Payload converts the message back into a notification payload.
func (m *NotificationMessage) Payload() notify.Payload {
	return notify.Payload{
		ID:         m.ID,
		Kind:       m.Kind,
		Severity:   m.Severity,
		Title:      m.Title,
		Body:       m.Body,
		OccurredAt: m.Timestamp,
	}
}

// ToJSON converts the message to JSON bytes
func (m *NotificationMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// NotificationMessageFromJSON creates a message from JSON bytes
func NotificationMessageFromJSON(data []byte) (*NotificationMessage, error) {
	var msg NotificationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
