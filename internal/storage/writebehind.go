package storage

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type pendingOp struct {
	value  []byte
	remove bool
}

// WriteBehind makes writes to the wrapped Store asynchronous. Set and Remove
// return as soon as the write is queued; the latest queued value per key is
// what reaches the store. Reads see queued writes. Failed writes are logged.
type WriteBehind struct {
	next    Store
	logger  *slog.Logger
	timeout time.Duration

	mu       sync.Mutex
	closed   bool
	pending  map[string]pendingOp
	inflight map[string]pendingOp

	wake     chan struct{}
	flushReq chan chan struct{}
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once
}

var _ Store = (*WriteBehind)(nil)

func NewWriteBehind(next Store, logger *slog.Logger) *WriteBehind {
	if logger == nil {
		logger = slog.Default()
	}
	w := &WriteBehind{
		next:     next,
		logger:   logger,
		timeout:  10 * time.Second,
		pending:  make(map[string]pendingOp),
		wake:     make(chan struct{}, 1),
		flushReq: make(chan chan struct{}),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *WriteBehind) Get(ctx context.Context, key string) ([]byte, bool, error) {
	w.mu.Lock()
	op, ok := w.pending[key]
	if !ok {
		op, ok = w.inflight[key]
	}
	w.mu.Unlock()
	if ok {
		if op.remove {
			return nil, false, nil
		}
		return append([]byte(nil), op.value...), true, nil
	}
	return w.next.Get(ctx, key)
}

func (w *WriteBehind) Set(_ context.Context, key string, value []byte) error {
	return w.enqueue(key, pendingOp{value: append([]byte(nil), value...)})
}

func (w *WriteBehind) Remove(_ context.Context, key string) error {
	return w.enqueue(key, pendingOp{remove: true})
}

func (w *WriteBehind) enqueue(key string, op pendingOp) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	w.pending[key] = op
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return nil
}

// Flush blocks until every write queued before the call has been applied.
func (w *WriteBehind) Flush(ctx context.Context) error {
	reply := make(chan struct{})
	select {
	case w.flushReq <- reply:
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close applies outstanding writes and stops the background writer. The
// wrapped store is left open.
func (w *WriteBehind) Close() error {
	w.once.Do(func() {
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()
		close(w.stop)
	})
	<-w.done
	return nil
}

func (w *WriteBehind) run() {
	defer close(w.done)
	for {
		select {
		case <-w.wake:
			w.drain()
		case reply := <-w.flushReq:
			w.drain()
			close(reply)
		case <-w.stop:
			w.drain()
			return
		}
	}
}

func (w *WriteBehind) drain() {
	w.mu.Lock()
	batch := w.pending
	w.pending = make(map[string]pendingOp)
	w.inflight = batch
	w.mu.Unlock()

	for key, op := range batch {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		var err error
		if op.remove {
			err = w.next.Remove(ctx, key)
		} else {
			err = w.next.Set(ctx, key, op.value)
		}
		cancel()
		if err != nil {
			w.logger.Error("Write-behind persist failed", "key", key, "remove", op.remove, "error", err)
		}
	}

	w.mu.Lock()
	w.inflight = nil
	w.mu.Unlock()
}
