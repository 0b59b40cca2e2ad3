package localstore

import (
	"context"
	"sync"
)

// Memory is an in-process Store
type Memory struct {
	mu     sync.RWMutex
	values map[string]string

	// FailWrites makes Set and Remove return the error, for exercising
	// storage failures in tests
	FailWrites error
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

var _ Store = (*Memory)(nil)

func (m *Memory) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *Memory) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	m.values[key] = value
	return nil
}

func (m *Memory) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	delete(m.values, key)
	return nil
}

func (m *Memory) Close() error {
	return nil
}
