package remote

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"finix/internal/core"
)

var ErrNotFound = errors.New("transaction not found")

// Memory is an in-process Source, used offline and in tests.
type Memory struct {
	mu    sync.Mutex
	items map[string][]core.Transaction // by account
	owner map[string]string             // id -> account

	// Fail, when set, is returned by every call.
	Fail error
}

var _ Source = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{items: make(map[string][]core.Transaction), owner: make(map[string]string)}
}

func (m *Memory) List(_ context.Context, account string) ([]core.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	return append([]core.Transaction{}, m.items[account]...), nil
}

func (m *Memory) Create(_ context.Context, account string, tx core.Transaction) (core.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return core.Transaction{}, m.Fail
	}
	tx.ID = uuid.NewString()
	m.items[account] = append(m.items[account], tx)
	m.owner[tx.ID] = account
	return tx, nil
}

func (m *Memory) Update(_ context.Context, id string, tx core.Transaction) (core.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return core.Transaction{}, m.Fail
	}
	account, ok := m.owner[id]
	if !ok {
		return core.Transaction{}, ErrNotFound
	}
	tx.ID = id
	for i, existing := range m.items[account] {
		if existing.ID == id {
			m.items[account][i] = tx
		}
	}
	return tx, nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	account, ok := m.owner[id]
	if !ok {
		return ErrNotFound
	}
	kept := m.items[account][:0]
	for _, existing := range m.items[account] {
		if existing.ID != id {
			kept = append(kept, existing)
		}
	}
	m.items[account] = kept
	delete(m.owner, id)
	return nil
}

// Seed stores txs for account as if they had been created remotely.
func (m *Memory) Seed(account string, txs ...core.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range txs {
		if tx.ID == "" {
			tx.ID = uuid.NewString()
		}
		m.items[account] = append(m.items[account], tx)
		m.owner[tx.ID] = account
	}
}
