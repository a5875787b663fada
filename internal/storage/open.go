package storage

import (
	"context"
	"fmt"

	"github.com/medrex/healthcare-records/pkg/config"
	"github.com/medrex/healthcare-records/pkg/encryption"
)

// Open creates the backend selected by cfg.Storage.Backend. Values are
// sealed at rest when cfg.Storage.EncryptionKey is set.
func Open(ctx context.Context, cfg *config.Config) (Backend, error) {
	var (
		backend Backend
		err     error
	)
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		backend = NewMemory()
	case config.BackendLevelDB:
		backend, err = OpenLevelDB(cfg.Storage.LevelDBPath)
	case config.BackendPostgres:
		backend, err = OpenPostgres(ctx, &cfg.Database)
	default:
		return nil, fmt.Errorf("unknown storage backend: %q", cfg.Storage.Backend)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Storage.EncryptionKey == "" {
		return backend, nil
	}
	cipher, err := encryption.NewAESCipher(cfg.Storage.EncryptionKey)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return NewEncrypted(backend, cipher), nil
}
