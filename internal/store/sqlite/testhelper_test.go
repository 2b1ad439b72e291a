// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memvault Contributors

package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/memvault-dev/memvault/internal/config"
	"github.com/memvault-dev/memvault/internal/store"
	"github.com/memvault-dev/memvault/internal/store/sqlite"
	"github.com/stretchr/testify/require"
)

// testDBPath returns a database path inside a per-test temp directory.
func testDBPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), name+".db")
}

// newTestBackend returns a backend on a fresh path with the given pool size.
func newTestBackend(t *testing.T, poolSize int) *sqlite.Backend {
	t.Helper()
	tuning := config.DefaultTuning()
	tuning.PoolSize = poolSize
	return newTestBackendWith(t, testDBPath(t, "memory"), tuning)
}

func newTestBackendWith(t *testing.T, path string, tuning config.Tuning) *sqlite.Backend {
	t.Helper()
	b, err := sqlite.New(store.Config{Path: path, Tuning: tuning})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

// initDB creates the database file with the full schema applied.
func initDB(t *testing.T, b *sqlite.Backend) {
	t.Helper()
	require.NoError(t, sqlite.ApplySchema(context.Background(), b))
}
