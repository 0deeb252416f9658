// Package insights fetches predictive spending insights from the external
// insights service. Nothing here is computed locally.
package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"finix/internal/cache"
	"finix/internal/core"
	"finix/internal/trace"
)

type Insights struct {
	HighestSpendingCategory string                     `json:"highest_spending_category"`
	Advice                  string                     `json:"advice"`
	PredictedTotalSpending  map[string]decimal.Decimal `json:"predicted_total_spending"`
}

// PredictedTotal sums every predicted range.
func (i Insights) PredictedTotal() decimal.Decimal {
	total := decimal.Zero
	for _, v := range i.PredictedTotalSpending {
		total = total.Add(v)
	}
	return core.RoundAmount(total)
}

// Range is one predicted date range. From and To are zero when the label
// could not be parsed.
type Range struct {
	Label  string
	From   core.Date
	To     core.Date
	Amount decimal.Decimal
}

const rangeSeparator = " to "

// Ranges returns the predictions ordered by start date, with labels that are
// not "YYYY-MM-DD to YYYY-MM-DD" last in label order.
func (i Insights) Ranges() []Range {
	var parsed, other []Range
	for label, amount := range i.PredictedTotalSpending {
		r := Range{Label: label, Amount: amount}
		from, to, ok := parseRange(label)
		if !ok {
			other = append(other, r)
			continue
		}
		r.From, r.To = from, to
		parsed = append(parsed, r)
	}

	sort.Slice(parsed, func(a, b int) bool {
		if !parsed[a].From.Equal(parsed[b].From.Time) {
			return parsed[a].From.Before(parsed[b].From.Time)
		}
		return parsed[a].Label < parsed[b].Label
	})
	sort.Slice(other, func(a, b int) bool { return other[a].Label < other[b].Label })

	return append(append(make([]Range, 0, len(parsed)+len(other)), parsed...), other...)
}

func parseRange(label string) (core.Date, core.Date, bool) {
	left, right, ok := strings.Cut(label, rangeSeparator)
	if !ok {
		return core.Date{}, core.Date{}, false
	}
	from, err := core.ParseDate(left)
	if err != nil || len(strings.TrimSpace(left)) != 10 {
		return core.Date{}, core.Date{}, false
	}
	to, err := core.ParseDate(right)
	if err != nil || len(strings.TrimSpace(right)) != 10 {
		return core.Date{}, core.Date{}, false
	}
	return from, to, true
}

// Source is the insights service.
type Source interface {
	Fetch(ctx context.Context) (Insights, error)
}

const cacheKey = "insights"

// Client fetches insights over HTTP and keeps the last answer for the TTL.
type Client struct {
	baseURL string
	http    *http.Client
	cache   cache.Cache[Insights]
	logger  *slog.Logger
}

var _ Source = (*Client)(nil)

func NewClient(baseURL string, timeout time.Duration, c cache.Cache[Insights], logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout, Transport: trace.NewTransport(nil, logger)},
		cache:   c,
		logger:  logger,
	}
}

func (c *Client) Fetch(ctx context.Context) (Insights, error) {
	if c.cache != nil {
		if cached, ok := c.cache.Get(cacheKey); ok {
			return cached, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ai/insights", nil)
	if err != nil {
		return Insights{}, fmt.Errorf("build insights request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Insights{}, fmt.Errorf("fetch insights: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Insights{}, fmt.Errorf("fetch insights: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out Insights
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Insights{}, fmt.Errorf("decode insights: %w", err)
	}
	if out.PredictedTotalSpending == nil {
		out.PredictedTotalSpending = map[string]decimal.Decimal{}
	}

	if c.cache != nil {
		c.cache.Set(cacheKey, out)
	}
	c.logger.DebugContext(ctx, "Fetched insights", "ranges", len(out.PredictedTotalSpending))
	return out, nil
}
