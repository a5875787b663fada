package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medrex/healthcare-records/pkg/encryption"
)

func newTestCipher(t *testing.T) *encryption.AESCipher {
	t.Helper()
	c, err := encryption.NewAESCipher("storage-test-secret")
	require.NoError(t, err)
	return c
}

func TestEncrypted_Backend(t *testing.T) {
	runBackendSuite(t, func(t *testing.T) Backend {
		return NewEncrypted(NewMemory(), newTestCipher(t))
	})
}

func TestEncrypted_ValuesSealedAtRest(t *testing.T) {
	ctx := context.Background()
	inner := NewMemory()
	b := NewEncrypted(inner, newTestCipher(t))

	require.NoError(t, b.Apply(ctx, NewBatch().Put("ledger/1/record/1", []byte(`{"diagnosis":"Flu"}`))))

	raw, err := inner.Get(ctx, "ledger/1/record/1")
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(raw), "Flu"))

	value, err := b.Get(ctx, "ledger/1/record/1")
	require.NoError(t, err)
	assert.Equal(t, `{"diagnosis":"Flu"}`, string(value))
}

func TestEncrypted_EmptyValueStaysPresent(t *testing.T) {
	ctx := context.Background()
	b := NewEncrypted(NewMemory(), newTestCipher(t))

	require.NoError(t, b.Apply(ctx, NewBatch().Put("marker", []byte{})))
	value, err := b.Get(ctx, "marker")
	require.NoError(t, err)
	assert.NotNil(t, value)
	assert.Empty(t, value)
}

func TestEncrypted_TamperedValue(t *testing.T) {
	ctx := context.Background()
	inner := NewMemory()
	b := NewEncrypted(inner, newTestCipher(t))

	require.NoError(t, b.Apply(ctx, NewBatch().Put("a", []byte("alpha"))))
	raw, err := inner.Get(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, inner.Apply(ctx, NewBatch().Put("b", raw)))

	_, err = b.Get(ctx, "b")
	assert.Error(t, err)
}
