// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memvault Contributors

package sqlite

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/memvault-dev/memvault/internal/config"
	"github.com/memvault-dev/memvault/internal/store"
	mverr "github.com/memvault-dev/memvault/pkg/errors"
)

// Compile-time interface check.
var _ store.Backend = (*Backend)(nil)

// Backend governs one SQLite database file through a Pool of tuned
// connections.
type Backend struct {
	path   string
	tuning config.Tuning
	logger *slog.Logger
	pool   *Pool
}

// New validates cfg.Path and returns a Backend. Nothing is opened until the
// first Connect. A path naming a directory is rejected here.
func New(cfg store.Config) (*Backend, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, mverr.New(mverr.CodeStoreInvalidInput, "database path is required")
	}
	if info, err := os.Stat(cfg.Path); err == nil && info.IsDir() {
		return nil, mverr.New(mverr.CodeStorePathDirectory,
			"path points to a directory, expected a database file", mverr.FieldPath(cfg.Path))
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	b := &Backend{
		path:   cfg.Path,
		tuning: cfg.Tuning,
		logger: logger,
	}
	b.pool = NewPool(cfg.Tuning.PoolSize, b.open, logger)
	return b, nil
}

func (b *Backend) open(ctx context.Context, mode store.Mode) (*physConn, error) {
	return openConn(ctx, b.path, mode, b.tuning, b.logger)
}

// Connect checks a handle out of the pool. write=false yields an immutable
// read-only handle.
func (b *Backend) Connect(ctx context.Context, write bool) (store.Handle, error) {
	h, err := b.Acquire(ctx, store.ModeFor(write))
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Acquire is Connect with the concrete handle type.
func (b *Backend) Acquire(ctx context.Context, mode store.Mode) (*Handle, error) {
	return b.pool.Acquire(ctx, mode)
}

// Path returns the database file path.
func (b *Backend) Path() string { return b.path }

// Tuning returns the resolved tuning applied to writable connections.
func (b *Backend) Tuning() config.Tuning { return b.tuning }

// PoolStats returns the current pool snapshot.
func (b *Backend) PoolStats() PoolStats { return b.pool.Stats() }

// Close drains the pool.
func (b *Backend) Close() error {
	b.pool.CloseAll()
	return nil
}
