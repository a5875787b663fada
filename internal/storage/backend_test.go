package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runBackendSuite exercises the Backend contract shared by every implementation.
func runBackendSuite(t *testing.T, newBackend func(t *testing.T) Backend) {
	ctx := context.Background()

	t.Run("missing key reads as nil", func(t *testing.T) {
		b := newBackend(t)
		value, err := b.Get(ctx, "absent")
		require.NoError(t, err)
		assert.Nil(t, value)
	})

	t.Run("put then get", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.Apply(ctx, NewBatch().Put("k", []byte("v1"))))

		value, err := b.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), value)

		require.NoError(t, b.Apply(ctx, NewBatch().Put("k", []byte("v2"))))
		value, err = b.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), value)
	})

	t.Run("create on existing key fails", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.Apply(ctx, NewBatch().Create("owner", []byte("alice"))))

		err := b.Apply(ctx, NewBatch().Create("owner", []byte("mallory")))
		assert.ErrorIs(t, err, ErrKeyExists)

		value, err := b.Get(ctx, "owner")
		require.NoError(t, err)
		assert.Equal(t, []byte("alice"), value)
	})

	t.Run("failed batch writes nothing", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.Apply(ctx, NewBatch().Put("record/1", []byte("first"))))

		batch := NewBatch().
			Put("head", []byte("2")).
			Create("record/1", []byte("second"))
		assert.ErrorIs(t, b.Apply(ctx, batch), ErrKeyExists)

		head, err := b.Get(ctx, "head")
		require.NoError(t, err)
		assert.Nil(t, head)

		record, err := b.Get(ctx, "record/1")
		require.NoError(t, err)
		assert.Equal(t, []byte("first"), record)
	})

	t.Run("multi key batch", func(t *testing.T) {
		b := newBackend(t)
		batch := NewBatch().
			Create("ledger/7/record/00000000000000000001", []byte(`{"record_id":1}`)).
			Put("ledger/7/head", []byte(`{"last_id":1}`))
		require.Equal(t, 2, batch.Len())
		require.NoError(t, b.Apply(ctx, batch))

		for _, op := range batch.Ops() {
			value, err := b.Get(ctx, op.Key)
			require.NoError(t, err)
			assert.Equal(t, op.Value, value)
		}
	})
}
