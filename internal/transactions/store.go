// Package transactions owns the canonical in-memory transaction list and
// mirrors it to the key-value store on every mutation.
package transactions

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"finix/internal/core"
	"finix/internal/storage"
)

// FilterAll selects every transaction.
const FilterAll = "All"

// Handle identifies a locally added transaction until it has an id.
type Handle uint64

type entry struct {
	handle Handle
	tx     core.Transaction
}

type Store struct {
	mu     sync.Mutex
	items  []entry
	next   Handle
	store  storage.Store
	logger *slog.Logger
}

func New(store storage.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{store: store, logger: logger}
}

// Load hydrates the list from the store. An absent key is an empty list.
func (s *Store) Load(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	var txs []core.Transaction
	if _, err := storage.GetJSON(ctx, s.store, storage.KeyTransactions, &txs); err != nil {
		return fmt.Errorf("load transactions: %w", err)
	}
	s.mu.Lock()
	s.reset(txs)
	s.mu.Unlock()
	return nil
}

// All returns a copy of the list in insertion order.
func (s *Store) All() []core.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Find returns the transaction with id.
func (s *Store) Find(id string) (core.Transaction, bool) {
	if id == "" {
		return core.Transaction{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOfID(id); i >= 0 {
		return s.items[i].tx, true
	}
	return core.Transaction{}, false
}

// Add appends tx, which may not have an id yet.
func (s *Store) Add(ctx context.Context, tx core.Transaction) Handle {
	s.mu.Lock()
	s.next++
	h := s.next
	s.items = append(s.items, entry{handle: h, tx: tx})
	snap := s.snapshot()
	s.mu.Unlock()

	s.persist(ctx, snap)
	return h
}

// AssignID records the id the remote source gave to a locally added transaction.
func (s *Store) AssignID(ctx context.Context, h Handle, id string) (core.Transaction, bool) {
	s.mu.Lock()
	i := s.indexOfHandle(h)
	if i < 0 {
		s.mu.Unlock()
		return core.Transaction{}, false
	}
	s.items[i].tx.ID = id
	tx := s.items[i].tx
	snap := s.snapshot()
	s.mu.Unlock()

	s.persist(ctx, snap)
	return tx, true
}

// Replace swaps the transaction with the same id in place.
func (s *Store) Replace(ctx context.Context, tx core.Transaction) bool {
	if tx.ID == "" {
		return false
	}
	s.mu.Lock()
	i := s.indexOfID(tx.ID)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.items[i].tx = tx
	snap := s.snapshot()
	s.mu.Unlock()

	s.persist(ctx, snap)
	return true
}

// Delete removes the transaction with id.
func (s *Store) Delete(ctx context.Context, id string) bool {
	if id == "" {
		return false
	}
	s.mu.Lock()
	i := s.indexOfID(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	snap := s.snapshot()
	s.mu.Unlock()

	s.persist(ctx, snap)
	return true
}

// ReplaceAll discards the local list in favour of txs.
func (s *Store) ReplaceAll(ctx context.Context, txs []core.Transaction) {
	s.mu.Lock()
	s.reset(txs)
	snap := s.snapshot()
	s.mu.Unlock()

	s.persist(ctx, snap)
}

// Filter selects by category. "" and All select everything; Other selects
// categories the hierarchy does not know; a parent selects itself and its
// children; anything else is an exact match.
func (s *Store) Filter(category string, h *core.CategoryHierarchy) []core.Transaction {
	all := s.All()
	if category == "" || category == FilterAll {
		return all
	}
	out := make([]core.Transaction, 0, len(all))
	for _, tx := range all {
		if matches(tx.Category, category, h) {
			out = append(out, tx)
		}
	}
	return out
}

func matches(txCategory, filter string, h *core.CategoryHierarchy) bool {
	switch {
	case filter == core.OtherCategory:
		return !h.Known(txCategory)
	case h.IsParent(filter):
		return h.Bucket(txCategory) == filter
	default:
		return txCategory == filter
	}
}

func (s *Store) reset(txs []core.Transaction) {
	s.items = make([]entry, len(txs))
	for i, tx := range txs {
		s.next++
		s.items[i] = entry{handle: s.next, tx: tx}
	}
}

func (s *Store) snapshot() []core.Transaction {
	out := make([]core.Transaction, len(s.items))
	for i, e := range s.items {
		out[i] = e.tx
	}
	return out
}

func (s *Store) indexOfHandle(h Handle) int {
	for i, e := range s.items {
		if e.handle == h {
			return i
		}
	}
	return -1
}

func (s *Store) indexOfID(id string) int {
	for i, e := range s.items {
		if e.tx.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) persist(ctx context.Context, txs []core.Transaction) {
	if s.store == nil {
		return
	}
	if err := storage.SetJSON(ctx, s.store, storage.KeyTransactions, txs); err != nil {
		s.logger.ErrorContext(ctx, "Failed to persist transactions", "count", len(txs), "error", err)
	}
}
