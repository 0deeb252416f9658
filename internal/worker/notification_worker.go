package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"finix/internal/amqp"
	"finix/internal/cache"
	"finix/internal/notify"
)

// NotificationWorker delivers queued notifications to its sinks. A message
// id already delivered within the dedupe window is acknowledged and skipped,
// since the broker redelivers after a failed acknowledgement.
type NotificationWorker struct {
	sinks  []notify.Sink
	seen   cache.Cache[time.Time]
	logger *slog.Logger

	delivered atomic.Int64
	skipped   atomic.Int64
}

// Stats counts what the worker has processed since start.
type Stats struct {
	Delivered int64
	Skipped   int64
}

func NewNotificationWorker(seen cache.Cache[time.Time], logger *slog.Logger, sinks ...notify.Sink) *NotificationWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationWorker{sinks: sinks, seen: seen, logger: logger}
}

// HandleNotification is the AMQP consumer callback. Any sink failure fails
// the message so that it is requeued.
func (w *NotificationWorker) HandleNotification(ctx context.Context, msg *amqp.NotificationMessage) error {
	if msg.ID == "" {
		return errors.New("notification message without id")
	}
	if w.seen != nil {
		if _, dup := w.seen.Get(msg.ID); dup {
			w.skipped.Add(1)
			w.logger.DebugContext(ctx, "Skipping duplicate notification", "id", msg.ID)
			return nil
		}
	}

	w.logger.InfoContext(ctx, "Processing notification message",
		"id", msg.ID,
		"account", msg.Account,
		"kind", msg.Kind)

	p := msg.Payload()
	var errs []error
	for _, s := range w.sinks {
		if err := s.Send(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("deliver notification %s: %w", msg.ID, err)
	}

	if w.seen != nil {
		w.seen.Set(msg.ID, time.Now())
	}
	w.delivered.Add(1)
	return nil
}

func (w *NotificationWorker) Stats() Stats {
	return Stats{Delivered: w.delivered.Load(), Skipped: w.skipped.Load()}
}
