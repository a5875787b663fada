package storage

import "context"

// ValueCipher seals and opens values stored under a key.
type ValueCipher interface {
	Seal(key string, plaintext []byte) ([]byte, error)
	Open(key string, ciphertext []byte) ([]byte, error)
}

// Encrypted wraps a Backend so values are sealed at rest. Keys are stored
// in the clear.
type Encrypted struct {
	Backend
	cipher ValueCipher
}

// NewEncrypted wraps inner with cipher.
func NewEncrypted(inner Backend, cipher ValueCipher) *Encrypted {
	return &Encrypted{Backend: inner, cipher: cipher}
}

// Get implements Backend.
func (e *Encrypted) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := e.Backend.Get(ctx, key)
	if err != nil || len(value) == 0 {
		return value, err
	}
	return e.cipher.Open(key, value)
}

// Apply implements Backend.
func (e *Encrypted) Apply(ctx context.Context, batch *Batch) error {
	sealed := NewBatch()
	for _, op := range batch.Ops() {
		value, err := e.cipher.Seal(op.Key, op.Value)
		if err != nil {
			return err
		}
		sealed.ops = append(sealed.ops, Op{Key: op.Key, Value: value, Create: op.Create})
	}
	return e.Backend.Apply(ctx, sealed)
}

// Ping forwards to the wrapped backend when it can be probed.
func (e *Encrypted) Ping(ctx context.Context) error {
	if p, ok := e.Backend.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}
