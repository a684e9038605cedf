package cache

import (
	"context"
	"sync"
)

// Memory is an in-process Cache. A non-positive limit means unbounded;
// otherwise the whole map is dropped when the limit is reached.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
	limit   int
}

// NewMemory creates an in-memory cache holding at most limit entries.
func NewMemory(limit int) *Memory {
	return &Memory{
		entries: make(map[string]Entry),
		limit:   limit,
	}
}

// Get returns the entry for key or ErrMiss.
func (m *Memory) Get(_ context.Context, key string) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok {
		return Entry{}, ErrMiss
	}
	return e, nil
}

// Set stores an entry.
func (m *Memory) Set(_ context.Context, key string, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[key]; !exists && m.limit > 0 && len(m.entries) >= m.limit {
		m.entries = make(map[string]Entry)
	}
	m.entries[key] = e
	return nil
}

// Len returns the number of cached entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

var _ Cache = (*Memory)(nil)
