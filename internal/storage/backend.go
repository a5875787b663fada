// Package storage holds the key/value state backends the record store
// persists to. Every backend applies a Batch atomically: either all of its
// operations become visible to readers or none do.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrKeyExists is returned by Apply when a create-only operation targets
	// a key that is already present. Nothing in the batch is written.
	ErrKeyExists = errors.New("storage: key already exists")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("storage: backend closed")
)

// Backend is a key/value state store with atomic batch writes.
type Backend interface {
	// Get returns the value stored under key, or nil if the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	// Apply writes every operation in the batch atomically.
	Apply(ctx context.Context, batch *Batch) error
	// Close releases the backend.
	Close() error
}

// Op is a single write in a Batch.
type Op struct {
	Key   string
	Value []byte
	// Create makes the write fail with ErrKeyExists if Key is present.
	Create bool
}

// Batch collects writes to apply atomically.
type Batch struct {
	ops []Op
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{}
}

// Put adds an upsert of key.
func (b *Batch) Put(key string, value []byte) *Batch {
	b.ops = append(b.ops, Op{Key: key, Value: value})
	return b
}

// Create adds a create-only write of key.
func (b *Batch) Create(key string, value []byte) *Batch {
	b.ops = append(b.ops, Op{Key: key, Value: value, Create: true})
	return b
}

// Ops returns the operations in insertion order.
func (b *Batch) Ops() []Op {
	return b.ops
}

// Len returns the number of operations.
func (b *Batch) Len() int {
	return len(b.ops)
}
