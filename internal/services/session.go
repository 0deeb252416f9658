package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"finix/internal/aggregate"
	"finix/internal/core"
	"finix/internal/events"
	"finix/internal/goal"
	"finix/internal/insights"
	"finix/internal/limits"
	"finix/internal/notify"
	"finix/internal/remote"
	"finix/internal/rollup"
	"finix/internal/storage"
	"finix/internal/transactions"
	"finix/internal/trend"
)

var (
	// ErrRemoteFailure wraps every failed call to the transaction or insights source.
	ErrRemoteFailure = errors.New("remote failure")

	ErrUnknownTransaction  = errors.New("unknown transaction")
	ErrInsightsUnavailable = errors.New("insights source not configured")
)

// Config wires a Session. Store, Source and Dispatcher are required.
type Config struct {
	Account    string
	Hierarchy  *core.CategoryHierarchy
	Store      storage.Store
	Source     remote.Source
	Insights   insights.Source
	Dispatcher *notify.Dispatcher

	// Observers receive every domain event, whether or not notifications are enabled.
	Observers []events.Emitter
	Palette   []string
	Logger    *slog.Logger
	Now       func() time.Time
}

// Session owns the derived state of one signed-in account: the transaction
// list, limit monitor, goal tracker, rollup drill-down and notification
// toggle. Mutating operations run one at a time.
type Session struct {
	mu sync.Mutex

	account   string
	hierarchy *core.CategoryHierarchy
	txs       *transactions.Store
	limits    *limits.Monitor
	goal      *goal.Tracker
	notifier  *notify.Dispatcher
	rollup    *rollup.Engine
	source    remote.Source
	insights  insights.Source
	logger    *slog.Logger
	now       func() time.Time
}

func NewSession(cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	hierarchy := cfg.Hierarchy
	if hierarchy == nil {
		hierarchy = core.DefaultCategoryHierarchy()
	}
	dispatcher := cfg.Dispatcher
	if dispatcher == nil {
		dispatcher = notify.NewDispatcher(notify.Renderer{}, cfg.Store, true, logger)
	}

	emit := events.Multi(append([]events.Emitter{dispatcher}, cfg.Observers...)...)
	return &Session{
		account:   cfg.Account,
		hierarchy: hierarchy,
		txs:       transactions.New(cfg.Store, logger),
		limits:    limits.NewMonitor(cfg.Store, emit, logger),
		goal:      goal.NewTracker(cfg.Store, emit, logger),
		notifier:  dispatcher,
		rollup:    rollup.NewEngine(hierarchy, cfg.Palette),
		source:    cfg.Source,
		insights:  cfg.Insights,
		logger:    logger,
		now:       now,
	}
}

// Hydrate restores persisted state on cold start. The independent keys are
// read concurrently, then spending is reconciled without alerting: categories
// already over their limit are not reported again on load, unlike the
// reconciliations that follow a change to the list.
func (s *Session) Hydrate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.txs.Load(gctx) })
	g.Go(func() error { return s.limits.Load(gctx) })
	g.Go(func() error { return s.goal.Load(gctx) })
	g.Go(func() error { return s.notifier.Load(gctx) })
	if err := g.Wait(); err != nil {
		return fmt.Errorf("hydrate session: %w", err)
	}

	s.limits.Reconcile(ctx, s.txs.All(), limits.SuppressAlerts(keys(s.limits.Limits())...))
	s.logger.InfoContext(ctx, "Session hydrated",
		"account", s.account,
		"transactions", s.txs.Len(),
		"limits", len(s.limits.Limits()))
	return nil
}

// Reload replaces the local list with the remote one and reconciles. On
// failure the previous list is kept.
func (s *Session) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	txs, err := s.source.List(ctx, s.account)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to reload transactions", "account", s.account, "error", err)
		return fmt.Errorf("%w: %w", ErrRemoteFailure, err)
	}
	for i := range txs {
		txs[i].Amount = core.RoundAmount(txs[i].Amount)
	}
	s.txs.ReplaceAll(ctx, txs)
	s.limits.Reconcile(ctx, s.txs.All())
	s.logger.InfoContext(ctx, "Transactions reloaded", "count", len(txs))
	return nil
}

// Submit commits a new transaction. The record is kept locally even when the
// remote create fails; the error then wraps ErrRemoteFailure and the returned
// transaction has no id.
func (s *Session) Submit(ctx context.Context, d core.Draft) (core.Transaction, error) {
	tx, err := d.Transaction(core.DateOf(s.now()))
	if err != nil {
		return core.Transaction{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.txs.Add(ctx, tx)
	var quiet []string
	if s.limits.Record(ctx, tx) {
		quiet = append(quiet, tx.Category)
	}

	var remoteErr error
	created, err := s.source.Create(ctx, s.account, tx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to create remote transaction, keeping local copy",
			"category", tx.Category,
			"amount", tx.Amount.StringFixed(2),
			"error", err)
		remoteErr = fmt.Errorf("%w: %w", ErrRemoteFailure, err)
	} else if assigned, ok := s.txs.AssignID(ctx, h, created.ID); ok {
		tx = assigned
	}

	s.limits.Reconcile(ctx, s.txs.All(), limits.SuppressAlerts(quiet...))
	return tx, remoteErr
}

// Edit replaces the transaction with tx.ID after the remote accepts it.
func (s *Session) Edit(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	if tx.ID == "" {
		return core.Transaction{}, core.ErrMissingID
	}
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	tx.Amount = core.RoundAmount(tx.Amount)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.txs.Find(tx.ID); !ok {
		return core.Transaction{}, fmt.Errorf("%w: %s", ErrUnknownTransaction, tx.ID)
	}
	updated, err := s.source.Update(ctx, tx.ID, tx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to update remote transaction", "transaction_id", tx.ID, "error", err)
		return core.Transaction{}, fmt.Errorf("%w: %w", ErrRemoteFailure, err)
	}
	updated.ID = tx.ID
	updated.Amount = core.RoundAmount(updated.Amount)

	s.txs.Replace(ctx, updated)
	s.limits.Reconcile(ctx, s.txs.All())
	return updated, nil
}

// Delete removes the transaction after the remote confirms.
func (s *Session) Delete(ctx context.Context, id string) error {
	if id == "" {
		return core.ErrMissingID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.txs.Find(id); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTransaction, id)
	}
	if err := s.source.Delete(ctx, id); err != nil {
		s.logger.ErrorContext(ctx, "Failed to delete remote transaction", "transaction_id", id, "error", err)
		return fmt.Errorf("%w: %w", ErrRemoteFailure, err)
	}

	s.txs.Delete(ctx, id)
	s.limits.Reconcile(ctx, s.txs.All())
	return nil
}

// SetLimit sets a ceiling. Spending for the category restarts from zero
// until the next reconciliation.
func (s *Session) SetLimit(ctx context.Context, category string, limit decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limits.SetLimit(ctx, category, limit)
}

func (s *Session) DeleteLimit(ctx context.Context, category string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limits.DeleteLimit(ctx, category)
}

func (s *Session) SetGoal(ctx context.Context, g core.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.goal.SetGoal(ctx, g)
}

func (s *Session) UpdateSaved(ctx context.Context, saved decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.goal.UpdateSaved(ctx, saved)
}

func (s *Session) DeleteGoal(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.goal.DeleteGoal(ctx)
}

func (s *Session) SetNotificationsEnabled(ctx context.Context, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.notifier.SetEnabled(ctx, enabled); err != nil {
		return fmt.Errorf("save notification setting: %w", err)
	}
	return nil
}

// Flush waits until queued notifications have been handed to the sinks.
func (s *Session) Flush(ctx context.Context) error {
	return s.notifier.Flush(ctx)
}

// SelectBucket drills the rollup into bucket.
func (s *Session) SelectBucket(bucket string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rollup.Select(bucket)
}

// Back returns the rollup to the top level.
func (s *Session) Back() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollup.Back()
}

// Snapshot is a read-only view of everything derived from the session state.
type Snapshot struct {
	Now                  time.Time
	Totals               aggregate.Totals
	Summaries            map[aggregate.Period]string
	Rollup               []rollup.Entry
	Bucket               string
	DrillDown            []rollup.Entry
	Trend                []trend.Point
	Goal                 core.Goal
	GoalProgress         decimal.Decimal
	GoalAchieved         bool
	Limits               []limits.Status
	NotificationsEnabled bool
	TransactionCount     int
}

// Dashboard computes a fresh snapshot from the current transaction list.
func (s *Session) Dashboard(now time.Time) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	txs := s.txs.All()
	totals := aggregate.Compute(txs, now)
	g := s.goal.Goal()

	snap := Snapshot{
		Now:                  now,
		Totals:               totals,
		Summaries:            aggregate.Summaries(totals),
		Rollup:               s.rollup.TopLevel(txs),
		Trend:                trend.Build(txs),
		Goal:                 g,
		GoalProgress:         g.Progress(),
		GoalAchieved:         g.Achieved(),
		Limits:               s.limits.Statuses(),
		NotificationsEnabled: s.notifier.Enabled(),
		TransactionCount:     len(txs),
	}
	if bucket, ok := s.rollup.Drilled(); ok {
		snap.Bucket = bucket
		snap.DrillDown = s.rollup.DrillDown(txs, bucket)
	}
	return snap
}

// Insights fetches the external insights.
func (s *Session) Insights(ctx context.Context) (insights.Insights, error) {
	if s.insights == nil {
		return insights.Insights{}, ErrInsightsUnavailable
	}
	in, err := s.insights.Fetch(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to fetch insights", "error", err)
		return insights.Insights{}, fmt.Errorf("%w: %w", ErrRemoteFailure, err)
	}
	return in, nil
}

// Filter lists transactions by category; see transactions.Store.Filter.
func (s *Session) Filter(category string) []core.Transaction {
	return s.txs.Filter(category, s.hierarchy)
}

func (s *Session) Transactions() []core.Transaction {
	return s.txs.All()
}

func (s *Session) Hierarchy() *core.CategoryHierarchy {
	return s.hierarchy
}

func (s *Session) Spending() core.CategoryAmounts {
	return s.limits.Spending()
}

func keys(a core.CategoryAmounts) []string {
	out := make([]string, 0, len(a))
	for k := range a {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
