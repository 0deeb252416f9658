// Package limits tracks per-category spending against configured ceilings.
//
// Spending is held as a cache. Record updates it incrementally on every
// committed transaction and raises an alert as soon as a ceiling is crossed.
// Reconcile rebuilds it from the full transaction list and is the source of
// truth; the two may disagree until Reconcile runs.
package limits

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"finix/internal/core"
	"finix/internal/events"
	"finix/internal/storage"
)

// Status is a read-only view of one configured limit.
type Status struct {
	Category  string          `json:"category"`
	Limit     decimal.Decimal `json:"limit"`
	Spent     decimal.Decimal `json:"spent"`
	Remaining decimal.Decimal `json:"remaining"`
	Exceeded  bool            `json:"exceeded"`
}

type Monitor struct {
	mu       sync.Mutex
	limits   core.CategoryAmounts
	spending core.CategoryAmounts

	store  storage.Store
	emit   events.Emitter
	logger *slog.Logger
}

func NewMonitor(store storage.Store, emit events.Emitter, logger *slog.Logger) *Monitor {
	if emit == nil {
		emit = events.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		limits:   make(core.CategoryAmounts),
		spending: make(core.CategoryAmounts),
		store:    store,
		emit:     emit,
		logger:   logger,
	}
}

// Load hydrates limits and the spending cache from the store.
func (m *Monitor) Load(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	limits := make(core.CategoryAmounts)
	if _, err := storage.GetJSON(ctx, m.store, storage.KeySpendingLimits, &limits); err != nil {
		return fmt.Errorf("load limits: %w", err)
	}
	spending := make(core.CategoryAmounts)
	if _, err := storage.GetJSON(ctx, m.store, storage.KeyCategorySpending, &spending); err != nil {
		return fmt.Errorf("load category spending: %w", err)
	}

	m.mu.Lock()
	m.limits, m.spending = limits, spending
	m.mu.Unlock()
	return nil
}

// Record adds a committed transaction to the spending cache and raises
// LimitExceeded when the category goes over its limit. It reports whether
// an alert was raised.
func (m *Monitor) Record(ctx context.Context, tx core.Transaction) bool {
	m.mu.Lock()
	updated := m.spending.Get(tx.Category).Add(tx.Amount)
	m.spending[tx.Category] = updated
	limit, hasLimit := m.limits[tx.Category]
	snapshot := m.spending.Clone()
	m.mu.Unlock()

	m.persist(ctx, storage.KeyCategorySpending, snapshot)

	if !hasLimit || !updated.GreaterThan(limit) {
		return false
	}
	m.logger.InfoContext(ctx, "Spending limit exceeded",
		"category", tx.Category,
		"limit", limit.StringFixed(2),
		"spent", updated.StringFixed(2))
	m.emit.Emit(ctx, events.LimitExceeded{Category: tx.Category, Limit: limit, Spent: updated})
	return true
}

// SetLimit configures a ceiling for category and restarts its spending from
// zero. Prior spend is not re-derived here; the next Reconcile restores it.
func (m *Monitor) SetLimit(ctx context.Context, category string, limit decimal.Decimal) error {
	if category == "" {
		return core.ErrMissingCategory
	}
	if !limit.IsPositive() {
		return core.ErrInvalidLimit
	}
	m.apply(ctx, events.LimitSet{Category: category, Limit: core.RoundAmount(limit)})
	return nil
}

// DeleteLimit removes the ceiling of category. Its spending is kept.
func (m *Monitor) DeleteLimit(ctx context.Context, category string) error {
	if category == "" {
		return core.ErrMissingCategory
	}
	m.apply(ctx, events.LimitDeleted{Category: category})
	return nil
}

// apply is the single place configuration events change state and are written through.
func (m *Monitor) apply(ctx context.Context, ev events.Event) {
	m.mu.Lock()
	switch e := ev.(type) {
	case events.LimitSet:
		m.limits[e.Category] = e.Limit
		m.spending[e.Category] = decimal.Zero
	case events.LimitDeleted:
		delete(m.limits, e.Category)
	}
	limits, spending := m.limits.Clone(), m.spending.Clone()
	m.mu.Unlock()

	m.persist(ctx, storage.KeySpendingLimits, limits)
	if ev.Kind() == events.KindLimitSet {
		m.persist(ctx, storage.KeyCategorySpending, spending)
	}
	m.emit.Emit(ctx, ev)
}

// ReconcileOption tunes a single Reconcile call.
type ReconcileOption func(*reconcileOptions)

type reconcileOptions struct {
	quiet map[string]bool
}

// SuppressAlerts keeps Reconcile from alerting on categories the caller has
// already alerted on for the same action.
func SuppressAlerts(categories ...string) ReconcileOption {
	return func(o *reconcileOptions) {
		for _, c := range categories {
			o.quiet[c] = true
		}
	}
}

// Reconcile recomputes spending from txs, replaces the cache, and raises
// LimitExceeded for every category currently over its limit. The returned
// alerts include suppressed ones.
func (m *Monitor) Reconcile(ctx context.Context, txs []core.Transaction, opts ...ReconcileOption) []events.LimitExceeded {
	o := reconcileOptions{quiet: make(map[string]bool)}
	for _, opt := range opts {
		opt(&o)
	}

	fresh := make(core.CategoryAmounts)
	for _, tx := range txs {
		fresh[tx.Category] = fresh.Get(tx.Category).Add(tx.Amount)
	}

	m.mu.Lock()
	for category, cached := range m.spending {
		if !cached.Equal(fresh.Get(category)) {
			m.logger.DebugContext(ctx, "Spending cache diverged, using reconciled value",
				"category", category,
				"cached", cached.String(),
				"reconciled", fresh.Get(category).String())
		}
	}
	m.spending = fresh
	var alerts []events.LimitExceeded
	for _, category := range sortedKeys(m.limits) {
		limit := m.limits[category]
		if spent := fresh.Get(category); spent.GreaterThan(limit) {
			alerts = append(alerts, events.LimitExceeded{Category: category, Limit: limit, Spent: spent})
		}
	}
	snapshot := fresh.Clone()
	m.mu.Unlock()

	m.persist(ctx, storage.KeyCategorySpending, snapshot)

	for _, a := range alerts {
		if o.quiet[a.Category] {
			continue
		}
		m.emit.Emit(ctx, a)
	}
	return alerts
}

// Limits returns a copy of the configured limits.
func (m *Monitor) Limits() core.CategoryAmounts {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.limits.Clone()
}

// Spending returns a copy of the spending cache.
func (m *Monitor) Spending() core.CategoryAmounts {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.spending.Clone()
}

// Statuses describes every configured limit, sorted by category.
func (m *Monitor) Statuses() []Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Status, 0, len(m.limits))
	for _, category := range sortedKeys(m.limits) {
		limit := m.limits[category]
		spent := core.RoundAmount(m.spending.Get(category))
		out = append(out, Status{
			Category:  category,
			Limit:     limit,
			Spent:     spent,
			Remaining: limit.Sub(spent),
			Exceeded:  spent.GreaterThan(limit),
		})
	}
	return out
}

func (m *Monitor) persist(ctx context.Context, key string, v core.CategoryAmounts) {
	if m.store == nil {
		return
	}
	if err := storage.SetJSON(ctx, m.store, key, v); err != nil {
		m.logger.ErrorContext(ctx, "Failed to persist limit state", "key", key, "error", err)
	}
}

func sortedKeys(a core.CategoryAmounts) []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
