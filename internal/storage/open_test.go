package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medrex/healthcare-records/pkg/config"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		b, err := Open(ctx, &config.Config{Storage: config.StorageConfig{Backend: config.BackendMemory}})
		require.NoError(t, err)
		defer b.Close()
		assert.IsType(t, &Memory{}, b)
	})

	t.Run("leveldb with encryption", func(t *testing.T) {
		b, err := Open(ctx, &config.Config{Storage: config.StorageConfig{
			Backend:       config.BackendLevelDB,
			LevelDBPath:   filepath.Join(t.TempDir(), "state"),
			EncryptionKey: "at-rest-secret",
		}})
		require.NoError(t, err)
		defer b.Close()

		encrypted, ok := b.(*Encrypted)
		require.True(t, ok)
		assert.IsType(t, &LevelDB{}, encrypted.Backend)
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := Open(ctx, &config.Config{Storage: config.StorageConfig{Backend: "tape"}})
		assert.Error(t, err)
	})
}
