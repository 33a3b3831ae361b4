// Package storage opens the embedded key-value store backing both the
// default Repository and the Action Cache's shared tier.
package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/awehrman/peas/internal/common"
	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
)

// BadgerDB owns one badgerhold.Store, shared (namespaced by key prefix)
// between the repository and the cache's shared tier so a single process
// holds a single lock on the data directory.
type BadgerDB struct {
	store  *badgerhold.Store
	logger arbor.ILogger
}

// Open creates the data directory if absent and opens the store.
func Open(logger arbor.ILogger, config common.BadgerConfig) (*BadgerDB, error) {
	if config.ResetOnStartup {
		if _, err := os.Stat(config.Path); err == nil {
			if logger != nil {
				logger.Debug().Str("path", config.Path).Msg("Deleting existing database (reset_on_startup=true)")
			}
			if err := os.RemoveAll(config.Path); err != nil && logger != nil {
				logger.Warn().Err(err).Str("path", config.Path).Msg("Failed to delete database directory")
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(config.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	opts := badgerhold.DefaultOptions
	opts.Dir = config.Path
	opts.ValueDir = config.Path
	opts.Logger = nil

	store, err := badgerhold.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	if logger != nil {
		logger.Debug().Str("path", config.Path).Msg("Badger database initialized")
	}
	return &BadgerDB{store: store, logger: logger}, nil
}

// Store returns the underlying badgerhold store.
func (b *BadgerDB) Store() *badgerhold.Store {
	return b.store
}

// Badger returns the store's underlying low-level badger.DB, used by the
// cache's shared tier for byte-level, TTL-backed entries that badgerhold's
// struct encoding doesn't fit.
func (b *BadgerDB) Badger() *badger.DB {
	return b.store.Badger()
}

// Close closes the database connection.
func (b *BadgerDB) Close() error {
	if b.store == nil {
		return nil
	}
	return b.store.Close()
}
