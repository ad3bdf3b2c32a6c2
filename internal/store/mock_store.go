// ABOUTME: Mock Backend implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject write failures

package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MockStore is an in-memory Backend implementation for testing.
type MockStore struct {
	mu     sync.RWMutex
	values map[string]string
	puts   int

	// FailPut, when set, is returned by every Put.
	FailPut error
	// FailPutPrefix narrows FailPut to keys with this prefix.
	FailPutPrefix string
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{values: make(map[string]string)}
}

// Get returns the value stored under key.
func (m *MockStore) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Put stores value under key.
func (m *MockStore) Put(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailPut != nil && strings.HasPrefix(key, m.FailPutPrefix) {
		return m.FailPut
	}
	m.values[key] = value
	m.puts++
	return nil
}

// Delete removes key.
func (m *MockStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, key)
	return nil
}

// Keys lists keys that start with prefix.
func (m *MockStore) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for k := range m.values {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Close is a no-op.
func (m *MockStore) Close() error { return nil }

// Puts reports how many successful writes the store has seen.
func (m *MockStore) Puts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.puts
}
