package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
)

// LevelDB is a Backend over an embedded goleveldb database. Batches run in
// a leveldb transaction, which gives create-only checks and writes a single
// atomic commit.
type LevelDB struct {
	db *leveldb.DB
}

// OpenLevelDB opens (or creates) a database at path.
func OpenLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb at %s: %w", path, err)
	}
	return &LevelDB{db: db}, nil
}

// NewLevelDB wraps an already opened database.
func NewLevelDB(db *leveldb.DB) *LevelDB {
	return &LevelDB{db: db}
}

// Get implements Backend.
func (l *LevelDB) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	value, err := l.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	}
	if errors.Is(err, leveldb.ErrClosed) {
		return nil, ErrClosed
	}
	if err != nil {
		return nil, fmt.Errorf("leveldb get %s: %w", key, err)
	}
	return value, nil
}

// Apply implements Backend.
func (l *LevelDB) Apply(ctx context.Context, batch *Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tr, err := l.db.OpenTransaction()
	if errors.Is(err, leveldb.ErrClosed) {
		return ErrClosed
	}
	if err != nil {
		return fmt.Errorf("leveldb open transaction: %w", err)
	}

	for _, op := range batch.Ops() {
		if !op.Create {
			continue
		}
		exists, err := tr.Has([]byte(op.Key), nil)
		if err != nil {
			tr.Discard()
			return fmt.Errorf("leveldb has %s: %w", op.Key, err)
		}
		if exists {
			tr.Discard()
			return ErrKeyExists
		}
	}

	for _, op := range batch.Ops() {
		if err := tr.Put([]byte(op.Key), op.Value, nil); err != nil {
			tr.Discard()
			return fmt.Errorf("leveldb put %s: %w", op.Key, err)
		}
	}

	if err := tr.Commit(); err != nil {
		tr.Discard()
		return fmt.Errorf("leveldb commit: %w", err)
	}
	return nil
}

// Close implements Backend.
func (l *LevelDB) Close() error {
	return l.db.Close()
}
