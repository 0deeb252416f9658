package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"

	"finix/internal/events"
	"finix/internal/notify"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestPublisherSend(t *testing.T) {
	w := &fakeWriter{}
	p := NewPublisherWithWriter(w)

	payload := notify.Payload{ID: "n1", Kind: events.KindLimitExceeded, Severity: notify.SeverityWarning, Title: "Spending Limit Exceeded"}
	if err := p.Send(context.Background(), payload); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != string(events.KindLimitExceeded) {
		t.Errorf("unexpected key %q", msg.Key)
	}
	back, err := notify.PayloadFromJSON(msg.Value)
	if err != nil || back.ID != "n1" || back.Title != payload.Title {
		t.Errorf("unexpected value %s (err=%v)", msg.Value, err)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != "warning" {
		t.Errorf("unexpected headers %+v", msg.Headers)
	}

	if err := p.Close(); err != nil || !w.closed {
		t.Errorf("Close should close the writer")
	}
}

func TestPublisherSendError(t *testing.T) {
	p := NewPublisherWithWriter(&fakeWriter{err: errors.New("leader not available")})
	if err := p.Send(context.Background(), notify.Payload{Kind: events.KindGoalAchieved}); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewPublisherConfiguresWriter(t *testing.T) {
	p := NewPublisher([]string{"localhost:9092"}, "finix.notifications")
	w, ok := p.writer.(*kafka.Writer)
	if !ok {
		t.Fatalf("expected *kafka.Writer, got %T", p.writer)
	}
	if w.Topic != "finix.notifications" || w.Addr.String() != "localhost:9092" {
		t.Errorf("unexpected writer config topic=%q addr=%q", w.Topic, w.Addr.String())
	}
}
