// internal/store/memory.go
//
// In-memory implementation of the Store interface.
// Used in tests and when the server runs with --store=memory.
//
// Characteristics:
//   - Stores payloads keyed by record name in a map.
//   - Concurrency-safe via RWMutex (concurrent reads allowed, writes exclusive).
//   - Payloads are copied on the way in and out.
//   - State is lost when the process restarts.

package store

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned by Get when no record has the given name.
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface for named records.
// Each record is overwritten wholesale; there are no partial updates.
type Store interface {
	// Get returns the payload stored under name, or ErrNotFound.
	Get(ctx context.Context, name string) ([]byte, error)

	// Put replaces the payload stored under name.
	Put(ctx context.Context, name string, payload []byte) error
}

// memory is an in-memory map-based Store implementation.
type memory struct {
	mu      sync.RWMutex      // guards records map
	records map[string][]byte // keyed by record name
}

// NewMemoryStore constructs a new in-memory Store.
func NewMemoryStore() Store {
	return &memory{records: make(map[string][]byte)}
}

// Put stores a copy of payload.
func (m *memory) Put(ctx context.Context, name string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[name] = append([]byte(nil), payload...)
	return nil
}

// Get returns a copy of the stored payload or ErrNotFound.
func (m *memory) Get(ctx context.Context, name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.records[name]; ok {
		return append([]byte(nil), p...), nil
	}
	return nil, ErrNotFound
}
