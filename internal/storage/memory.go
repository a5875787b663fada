package storage

import (
	"context"
	"sync"
)

// Memory is an in-process Backend. It is the default for development and
// the backend used by package tests.
type Memory struct {
	mu     sync.RWMutex
	state  map[string][]byte
	closed bool
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{state: make(map[string][]byte)}
}

// Get implements Backend.
func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	value, ok := m.state[key]
	if !ok {
		return nil, nil
	}
	return cloneBytes(value), nil
}

// Apply implements Backend.
func (m *Memory) Apply(ctx context.Context, batch *Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	for _, op := range batch.Ops() {
		if _, exists := m.state[op.Key]; op.Create && exists {
			return ErrKeyExists
		}
	}
	for _, op := range batch.Ops() {
		m.state[op.Key] = cloneBytes(op.Value)
	}
	return nil
}

// Len returns the number of stored keys.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.state)
}

// Close implements Backend.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
