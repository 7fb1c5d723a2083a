package config

import (
	"context"
	"fmt"
	"os"

	"github.com/marmos91/dittostorage/internal/logger"
	"github.com/marmos91/dittostorage/pkg/provider/local"
	"github.com/marmos91/dittostorage/pkg/tombstone"
	badgerstore "github.com/marmos91/dittostorage/pkg/tombstone/badger"
	"github.com/marmos91/dittostorage/pkg/workerpool"
	"github.com/mitchellh/mapstructure"
)

// CreateTombstoneStore creates the tombstone store selected by cfg.Type.
//
// Supported types:
//   - "memory": markers are lost on restart
//   - "badger": markers persist in a BadgerDB at badger.path
func CreateTombstoneStore(ctx context.Context, cfg *TombstoneConfig) (tombstone.Store, error) {
	switch cfg.Type {
	case "memory":
		return tombstone.NewMemoryStore(), nil
	case "badger":
		return createBadgerTombstoneStore(ctx, cfg.Badger)
	default:
		return nil, fmt.Errorf("unknown tombstone store type: %q", cfg.Type)
	}
}

func createBadgerTombstoneStore(ctx context.Context, options map[string]any) (tombstone.Store, error) {
	var storeCfg badgerstore.Config
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode badger tombstone config: %w", err)
	}
	if storeCfg.DBPath == "" {
		return nil, fmt.Errorf("badger tombstone store: path is required")
	}

	if err := os.MkdirAll(storeCfg.DBPath, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create tombstone directory: %w", err)
	}

	store, err := badgerstore.New(ctx, storeCfg)
	if err != nil {
		return nil, err
	}
	logger.Debug("Tombstones stored in %s", storeCfg.DBPath)
	return store, nil
}

// CreateWorkerPool sizes the filesystem worker pool from the server section.
func CreateWorkerPool(cfg *ServerConfig) *workerpool.Pool {
	return workerpool.New(workerpool.Config{
		WorkerCount: cfg.Workers,
		QueueSize:   cfg.QueueSize,
	})
}

// CreateProvider creates the local provider, creating missing root
// directories first.
func CreateProvider(cfg *StorageConfig, pool *workerpool.Pool, tombstones tombstone.Store) (*local.Provider, error) {
	for _, root := range cfg.Roots {
		if err := os.MkdirAll(root.Path, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create root %s: %w", root.Path, err)
		}
	}
	return local.New(local.Config{Roots: cfg.Roots}, pool, tombstones)
}
