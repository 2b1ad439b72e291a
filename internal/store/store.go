// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memvault Contributors

package store

import (
	"context"
	"database/sql"
)

// Mode tags a handle as writable or immutable read-only.
type Mode int

const (
	ModeReadOnly Mode = iota
	ModeWrite
)

// ModeFor maps the write flag used at call sites to a Mode.
func ModeFor(write bool) Mode {
	if write {
		return ModeWrite
	}
	return ModeReadOnly
}

func (m Mode) String() string {
	if m == ModeWrite {
		return "write"
	}
	return "read"
}

// Handle is a database session held exclusively by one caller between
// Connect and Close. Close returns the session to its pool, or closes it
// physically when pooling is disabled or the pool is full. Calling Close more
// than once is a no-op.
type Handle interface {
	Mode() Mode
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	Close() error
}

// Backend governs exactly one database file. A handle obtained with
// write=false physically refuses mutation.
type Backend interface {
	Connect(ctx context.Context, write bool) (Handle, error)
	Health(ctx context.Context) map[string]any
	Path() string
	// Close drains idle pooled handles. Handles still held by callers are
	// closed when they are released.
	Close() error
}

// WithTx runs fn inside a transaction on a freshly acquired writable handle,
// committing on success and rolling back on error.
func WithTx(ctx context.Context, b Backend, fn func(tx *sql.Tx) error) error {
	h, err := b.Connect(ctx, true)
	if err != nil {
		return err
	}
	defer h.Close() //nolint:errcheck

	tx, err := h.BeginTx(ctx, nil)
	if err != nil {
		return MapError(err, "beginning transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return MapError(err, "committing transaction")
	}
	return nil
}
