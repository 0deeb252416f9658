// Package trace tags outbound HTTP calls with a request id and logs their outcome.
package trace

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// HeaderRequestID carries the request id to the remote service.
const HeaderRequestID = "X-Request-ID"

// Metrics counts outbound calls made through a Transport.
type Metrics struct {
	TotalRequests  int64
	FailedRequests int64
	// LastDuration is the duration of the most recent call in microseconds.
	LastDuration int64
}

// Transport is an http.RoundTripper that stamps every request with a request
// id, reusing one already present in the context.
type Transport struct {
	next   http.RoundTripper
	logger *slog.Logger

	total  atomic.Int64
	failed atomic.Int64
	last   atomic.Int64
}

func NewTransport(next http.RoundTripper, logger *slog.Logger) *Transport {
	if next == nil {
		next = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{next: next, logger: logger}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	id := RequestID(ctx)
	if id == "" {
		id = NewRequestID()
		ctx = WithRequestID(ctx, id)
	}
	req = req.Clone(ctx)
	req.Header.Set(HeaderRequestID, id)

	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	duration := time.Since(start)

	t.total.Add(1)
	t.last.Store(duration.Microseconds())

	attrs := []any{
		"request_id", id,
		"method", req.Method,
		"host", req.URL.Host,
		"path", req.URL.Path,
		"duration_ms", duration.Milliseconds(),
	}
	if err != nil {
		t.failed.Add(1)
		t.logger.WarnContext(ctx, "HTTP request failed", append(attrs, "error", err)...)
		return nil, err
	}

	level := slog.LevelDebug
	switch {
	case resp.StatusCode >= 500:
		level = slog.LevelError
		t.failed.Add(1)
	case resp.StatusCode >= 400:
		level = slog.LevelWarn
		t.failed.Add(1)
	}
	t.logger.Log(ctx, level, "HTTP request completed", append(attrs, "status_code", resp.StatusCode)...)
	return resp, nil
}

func (t *Transport) Metrics() Metrics {
	return Metrics{
		TotalRequests:  t.total.Load(),
		FailedRequests: t.failed.Load(),
		LastDuration:   t.last.Load(),
	}
}

// NewRequestID returns a fresh request id.
func NewRequestID() string {
	return "req_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID extracts the request id from ctx, or "".
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}
