// Package storage holds the durable key-value Persistence the engine mirrors
// its state into, plus the SQLite implementation of it.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Keys written by the engine.
const (
	KeyTransactions         = "transactions"
	KeySpendingLimits       = "spendingLimits"
	KeyCategorySpending     = "categorySpending"
	KeyGoal                 = "userGoal"
	KeyNotificationsEnabled = "notificationsEnabled"
)

// Keys lists every key in a stable order.
func Keys() []string {
	return []string{KeyTransactions, KeySpendingLimits, KeyCategorySpending, KeyGoal, KeyNotificationsEnabled}
}

var ErrClosed = errors.New("store closed")

// Store is a durable key-value store. Get reports false for an absent key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

// GetJSON decodes the value stored under key into v.
func GetJSON(ctx context.Context, s Store, key string, v any) (bool, error) {
	data, ok, err := s.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.Set(ctx, key, data); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}
