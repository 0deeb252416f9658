// Package memory is an in-process Store, optionally seeded from JSON files.
package memory

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"finix/internal/storage"
)

type Store struct {
	mu     sync.Mutex
	values map[string][]byte
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{values: make(map[string][]byte)}
}

// NewFromDir seeds the store with <key>.json files found in base.
// Missing files are skipped.
func NewFromDir(base string) *Store {
	s := New()
	for _, key := range storage.Keys() {
		data, err := os.ReadFile(filepath.Join(base, key+".json"))
		if err != nil || len(data) == 0 {
			continue
		}
		s.values[key] = data
	}
	return s
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = append([]byte(nil), value...)
	return nil
}

func (s *Store) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// Len reports how many keys are stored.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values)
}
