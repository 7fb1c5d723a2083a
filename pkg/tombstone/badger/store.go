// Package badger persists tombstones in BadgerDB so that stale identities
// keep failing with Deleted across service restarts.
package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"path"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/marmos91/dittostorage/pkg/tombstone"
)

// Key layout:
//
//	"t:" + <identity>  ->  deletion time (unix nanoseconds, big endian)
//
// Identities are absolute paths, so every descendant of "/r/a" lives under
// the prefix "t:/r/a/" and can be found with a single prefix scan.
const keyPrefix = "t:"

func keyTombstone(id string) []byte {
	return []byte(keyPrefix + id)
}

// Config configures the badger tombstone store.
type Config struct {
	// DBPath is the directory holding the database files.
	DBPath string `mapstructure:"path" validate:"required"`

	// InMemory runs badger without touching disk. Used by tests.
	InMemory bool `mapstructure:"-"`
}

// Store implements tombstone.Store on BadgerDB.
type Store struct {
	db *badger.DB
}

var _ tombstone.Store = (*Store)(nil)

// New opens (or creates) the database at cfg.DBPath.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(cfg.DBPath)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	// Tombstones are tiny and rarely read in bulk.
	opts = opts.WithLoggingLevel(badger.WARNING).
		WithCompression(options.None).
		WithBlockCacheSize(16 << 20).
		WithIndexCacheSize(8 << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open tombstone database at %s: %w", cfg.DBPath, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Mark(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	val := make([]byte, 8)
	binary.BigEndian.PutUint64(val, uint64(time.Now().UnixNano()))

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(keyTombstone(path.Clean(id)), val)
	})
}

func (s *Store) IsDeleted(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	deleted := false
	err := s.db.View(func(txn *badger.Txn) error {
		for _, candidate := range tombstone.Lineage(id) {
			_, err := txn.Get(keyTombstone(candidate))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			deleted = true
			return nil
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("tombstone lookup %s: %w", id, err)
	}
	return deleted, nil
}

func (s *Store) Clear(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id = path.Clean(id)

	// Collect first: badger iterators must not outlive their transaction
	// and deletes are applied through a write batch.
	keys := [][]byte{keyTombstone(id)}
	prefix := keyTombstone(id)
	if id != "/" {
		prefix = append(prefix, '/')
	}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("tombstone scan %s: %w", id, err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return fmt.Errorf("tombstone clear %s: %w", id, err)
		}
	}
	return wb.Flush()
}

func (s *Store) Close() error {
	return s.db.Close()
}
