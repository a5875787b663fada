package encryption

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAESCipher_SealOpen(t *testing.T) {
	c, err := NewAESCipher("test-secret")
	require.NoError(t, err)

	sealed, err := c.Seal("ledger/1/record/1", []byte(`{"diagnosis":"Flu"}`))
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "Flu")

	opened, err := c.Open("ledger/1/record/1", sealed)
	require.NoError(t, err)
	assert.Equal(t, `{"diagnosis":"Flu"}`, string(opened))
}

func TestAESCipher_NonceIsFresh(t *testing.T) {
	c, err := NewAESCipher("test-secret")
	require.NoError(t, err)

	a, err := c.Seal("k", []byte("same"))
	require.NoError(t, err)
	b, err := c.Seal("k", []byte("same"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestAESCipher_Rejects(t *testing.T) {
	c, err := NewAESCipher("test-secret")
	require.NoError(t, err)
	sealed, err := c.Seal("ledger/1/record/1", []byte("payload"))
	require.NoError(t, err)

	_, err = c.Open("ledger/1/record/2", sealed)
	assert.Error(t, err, "value moved to another key")

	other, err := NewAESCipher("other-secret")
	require.NoError(t, err)
	_, err = other.Open("ledger/1/record/1", sealed)
	assert.Error(t, err, "wrong secret")

	_, err = c.Open("k", []byte{1, 2})
	assert.ErrorIs(t, err, ErrCiphertextTooShort)

	_, err = NewAESCipher("")
	assert.Error(t, err)
}

func TestGenerateSecret(t *testing.T) {
	a, err := GenerateSecret()
	require.NoError(t, err)
	b, err := GenerateSecret()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 44)
}
