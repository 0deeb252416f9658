// Package remote talks to the remote transaction collection an account's
// transactions are fetched from and written to.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/shopspring/decimal"

	"finix/internal/core"
	"finix/internal/trace"
)

// Source is the remote transaction collection.
type Source interface {
	List(ctx context.Context, account string) ([]core.Transaction, error)
	Create(ctx context.Context, account string, tx core.Transaction) (core.Transaction, error)
	Update(ctx context.Context, id string, tx core.Transaction) (core.Transaction, error)
	Delete(ctx context.Context, id string) error
}

// StatusError is a non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Config holds the HTTP client settings.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	Attempts   uint
	RetryDelay time.Duration
}

// Client implements Source over HTTP+JSON.
type Client struct {
	baseURL    string
	http       *http.Client
	attempts   uint
	retryDelay time.Duration
	logger     *slog.Logger
}

var _ Source = (*Client)(nil)

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		http:       &http.Client{Timeout: cfg.Timeout, Transport: trace.NewTransport(nil, logger)},
		attempts:   cfg.Attempts,
		retryDelay: cfg.RetryDelay,
		logger:     logger,
	}
}

// wireID is an opaque id that some collections send as a number.
type wireID string

func (id *wireID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = wireID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("transaction id must be a string or number: %s", data)
	}
	*id = wireID(n.String())
	return nil
}

// wireTransaction keeps amounts numeric on the wire.
type wireTransaction struct {
	ID        wireID      `json:"id,omitempty"`
	UserEmail string      `json:"user_email,omitempty"`
	Date      core.Date   `json:"date"`
	Category  string      `json:"category"`
	Amount    json.Number `json:"amount"`
}

func toWire(tx core.Transaction, account string) wireTransaction {
	return wireTransaction{
		ID:        wireID(tx.ID),
		UserEmail: account,
		Date:      tx.Date,
		Category:  tx.Category,
		Amount:    json.Number(tx.Amount.String()),
	}
}

func (w wireTransaction) transaction() (core.Transaction, error) {
	amount, err := decimal.NewFromString(w.Amount.String())
	if err != nil {
		return core.Transaction{}, fmt.Errorf("decode amount %q: %w", w.Amount, err)
	}
	return core.Transaction{ID: string(w.ID), Date: w.Date, Category: w.Category, Amount: amount}, nil
}

func (c *Client) List(ctx context.Context, account string) ([]core.Transaction, error) {
	path := "/transactions?email=" + url.QueryEscape(account)
	var wire []wireTransaction
	err := c.retry(ctx, func() error {
		wire = nil
		return c.do(ctx, http.MethodGet, path, nil, &wire)
	})
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	txs := make([]core.Transaction, 0, len(wire))
	for _, w := range wire {
		tx, err := w.transaction()
		if err != nil {
			return nil, fmt.Errorf("list transactions: %w", err)
		}
		txs = append(txs, tx)
	}
	c.logger.DebugContext(ctx, "Fetched remote transactions", "count", len(txs))
	return txs, nil
}

// Create is not retried: a lost response would otherwise duplicate the record.
func (c *Client) Create(ctx context.Context, account string, tx core.Transaction) (core.Transaction, error) {
	var out wireTransaction
	if err := c.do(ctx, http.MethodPost, "/add_transaction", toWire(tx, account), &out); err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	created, err := out.transaction()
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	return created, nil
}

func (c *Client) Update(ctx context.Context, id string, tx core.Transaction) (core.Transaction, error) {
	var out wireTransaction
	path := "/update_transaction/" + url.PathEscape(id)
	err := c.retry(ctx, func() error {
		return c.do(ctx, http.MethodPut, path, toWire(tx, ""), &out)
	})
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	if out.ID == "" {
		// Some deployments answer with a status body only.
		return tx, nil
	}
	updated, err := out.transaction()
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	return updated, nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	path := "/delete_transaction/" + url.PathEscape(id)
	err := c.retry(ctx, func() error {
		return c.do(ctx, http.MethodDelete, path, nil, nil)
	})
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return nil
}

func (c *Client) retry(ctx context.Context, fn func() error) error {
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.RetryIf(retryable),
		retry.Attempts(c.attempts),
		retry.Delay(c.retryDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.WarnContext(ctx, "Retrying transaction source call", "attempt", n+1, "error", err)
		}),
	)
}

// retryable reports whether err is worth another attempt: transport errors
// and 5xx responses are, everything else is not.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= http.StatusInternalServerError
	}
	var de *decodeError
	return !errors.As(err, &de)
}

type decodeError struct{ err error }

func (e *decodeError) Error() string { return "decode response: " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if out == nil {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &decodeError{err: err}
	}
	return nil
}
