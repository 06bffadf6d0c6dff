package store

import (
	"context"
	"strings"
	"sync"
)

// Memory is an in-process Store. All state is lost on restart, which matches
// the ephemeral-by-design lifecycle of rooms and throttle windows.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = stored
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *Memory) ForEach(_ context.Context, prefix string, fn func(key string, value []byte) error) error {
	// Snapshot under the read lock so fn may call back into the store.
	m.mu.RLock()
	snapshot := make(map[string][]byte, len(m.data))
	for key, value := range m.data {
		if strings.HasPrefix(key, prefix) {
			snapshot[key] = value
		}
	}
	m.mu.RUnlock()

	for key, value := range snapshot {
		if err := fn(key, value); err != nil {
			return err
		}
	}
	return nil
}
