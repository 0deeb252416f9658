package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"finix/internal/events"
	"finix/internal/storage"
)

// QueueSize bounds the payloads waiting for delivery. Emit drops a payload
// rather than wait when the queue is full.
const QueueSize = 256

// delivery is one queued payload, or a flush marker when done is set.
type delivery struct {
	payload Payload
	sinks   []Sink
	done    chan struct{}
}

// Dispatcher renders events and fans them out to sinks while notifications
// are enabled. It implements events.Emitter. Emit only queues: a background
// goroutine sends to the sinks, and sink failures are only logged.
type Dispatcher struct {
	renderer Renderer
	store    storage.Store
	logger   *slog.Logger

	mu      sync.RWMutex
	sinks   []Sink
	enabled bool
	closed  bool

	queue chan delivery
	done  chan struct{}
	once  sync.Once
}

var _ events.Emitter = (*Dispatcher)(nil)

func NewDispatcher(r Renderer, store storage.Store, enabled bool, logger *slog.Logger, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		renderer: r,
		store:    store,
		logger:   logger,
		sinks:    sinks,
		enabled:  enabled,
		queue:    make(chan delivery, QueueSize),
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

// AddSink registers another sink.
func (d *Dispatcher) AddSink(s Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks = append(d.sinks, s)
}

// Load restores the persisted toggle, keeping the configured default when absent.
func (d *Dispatcher) Load(ctx context.Context) error {
	if d.store == nil {
		return nil
	}
	var enabled bool
	ok, err := storage.GetJSON(ctx, d.store, storage.KeyNotificationsEnabled, &enabled)
	if err != nil {
		return fmt.Errorf("load notification setting: %w", err)
	}
	if ok {
		d.mu.Lock()
		d.enabled = enabled
		d.mu.Unlock()
	}
	return nil
}

func (d *Dispatcher) Enabled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.enabled
}

// SetEnabled switches delivery on or off and persists the choice.
func (d *Dispatcher) SetEnabled(ctx context.Context, enabled bool) error {
	d.mu.Lock()
	d.enabled = enabled
	d.mu.Unlock()
	if d.store == nil {
		return nil
	}
	return storage.SetJSON(ctx, d.store, storage.KeyNotificationsEnabled, enabled)
}

// Emit renders ev and queues it for delivery. It never waits on a sink.
func (d *Dispatcher) Emit(ctx context.Context, ev events.Event) {
	p, ok := d.renderer.Render(ev)
	if !ok {
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.enabled {
		d.logger.DebugContext(ctx, "Notifications disabled, dropping alert", "kind", p.Kind, "title", p.Title)
		return
	}
	if d.closed {
		d.logger.WarnContext(ctx, "Dispatcher closed, dropping alert", "kind", p.Kind, "title", p.Title)
		return
	}
	select {
	case d.queue <- delivery{payload: p, sinks: append([]Sink(nil), d.sinks...)}:
	default:
		d.logger.WarnContext(ctx, "Notification queue full, dropping alert", "kind", p.Kind, "title", p.Title)
	}
}

// Flush blocks until every payload queued before the call has been handed
// to the sinks.
func (d *Dispatcher) Flush(ctx context.Context) error {
	marker := delivery{done: make(chan struct{})}

	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		<-d.done
		return nil
	}
	select {
	case d.queue <- marker:
		d.mu.RUnlock()
	case <-ctx.Done():
		d.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case <-marker.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close delivers what is queued and stops the background sender. Later
// events are dropped. The sinks themselves are left open.
func (d *Dispatcher) Close() error {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
	})
	<-d.done
	return nil
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for item := range d.queue {
		if item.done != nil {
			close(item.done)
			continue
		}
		d.deliver(item)
	}
}

func (d *Dispatcher) deliver(item delivery) {
	ctx := context.Background()
	for _, s := range item.sinks {
		if err := s.Send(ctx, item.payload); err != nil {
			d.logger.WarnContext(ctx, "Failed to deliver notification",
				"kind", item.payload.Kind,
				"sink", fmt.Sprintf("%T", s),
				"error", err)
		}
	}
}

// LogSink writes payloads to a logger.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Send(ctx context.Context, p Payload) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	if p.Severity == SeverityWarning {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, p.Title, "body", p.Body, "kind", p.Kind, "id", p.ID)
	return nil
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, p Payload) error

func (f SinkFunc) Send(ctx context.Context, p Payload) error { return f(ctx, p) }
