// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memvault Contributors

package sqlite_test

import (
	"context"
	"os"
	"testing"

	"github.com/memvault-dev/memvault/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealth_FreshWritableTarget(t *testing.T) {
	b := newTestBackend(t, 0)
	ctx := context.Background()

	h, err := b.Connect(ctx, true)
	require.NoError(t, err)
	_, err = h.ExecContext(ctx, "CREATE TABLE notes (id INTEGER)")
	require.NoError(t, err)
	require.NoError(t, h.Close())

	hc := b.Health(ctx)
	assert.Equal(t, true, hc["ok"])
	assert.Equal(t, b.Path(), hc["path"])
	assert.Equal(t, "wal", hc["journal_mode"])
	assert.Equal(t, int64(1), hc["foreign_keys"])
	for _, k := range []string{"synchronous", "cache_size", "mmap_size", "wal_autocheckpoint"} {
		assert.Contains(t, hc, k)
	}
	assert.NotContains(t, hc, "pool_hits", "pool keys only appear when pooling is enabled")
}

func TestHealth_PoolKeys(t *testing.T) {
	b := newTestBackend(t, 2)
	ctx := context.Background()

	h, err := b.Connect(ctx, true)
	require.NoError(t, err)
	require.NoError(t, h.Close())

	hc := b.Health(ctx)
	require.Equal(t, true, hc["ok"])
	assert.Equal(t, 2, hc["pool_size_configured"])
	assert.Equal(t, 1, hc["pool_available_write"])
	assert.Equal(t, 0, hc["pool_available_read"], "the health handle itself is checked out")
	assert.Equal(t, int64(0), hc["pool_hits"])
	assert.Equal(t, int64(2), hc["pool_misses"])

	// The read handle went back to the pool after the health call.
	assert.Equal(t, 1, b.PoolStats().AvailableRead)
}

func TestHealth_MissingDatabase(t *testing.T) {
	b := newTestBackendWith(t, testDBPath(t, "missing"), config.DefaultTuning())

	hc := b.Health(context.Background())
	assert.Equal(t, false, hc["ok"])
	assert.Contains(t, hc["error"], "immutable read requested")
}

func TestHealth_ReportsWALWhileWriterHoldsLog(t *testing.T) {
	b := newTestBackend(t, 1)
	ctx := context.Background()

	h, err := b.Connect(ctx, true)
	require.NoError(t, err)
	_, err = h.ExecContext(ctx, "CREATE TABLE notes (id INTEGER)")
	require.NoError(t, err)
	// Returned to the pool, so the WAL stays open and uncheckpointed.
	require.NoError(t, h.Close())

	hc := b.Health(ctx)
	require.Equal(t, true, hc["ok"])
	assert.Equal(t, "wal", hc["journal_mode"])
}

func TestHealth_EmptyFileIsNotWAL(t *testing.T) {
	path := testDBPath(t, "empty")
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	b := newTestBackendWith(t, path, config.DefaultTuning())

	hc := b.Health(context.Background())
	require.Equal(t, true, hc["ok"])
	assert.NotEqual(t, "wal", hc["journal_mode"])
}
