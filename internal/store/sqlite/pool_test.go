// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memvault Contributors

package sqlite_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/memvault-dev/memvault/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_ReusesReleasedHandle(t *testing.T) {
	b := newTestBackend(t, 2)
	ctx := context.Background()

	h1, err := b.Acquire(ctx, store.ModeWrite)
	require.NoError(t, err)
	id1 := h1.ID()
	require.NoError(t, h1.Close())

	h2, err := b.Acquire(ctx, store.ModeWrite)
	require.NoError(t, err)
	assert.Equal(t, id1, h2.ID(), "released handle should be reused")
	require.NoError(t, h2.Close())

	stats := b.PoolStats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.AvailableWrite)
	assert.Equal(t, 0, stats.AvailableRead)
}

func TestPool_DisabledNeverReuses(t *testing.T) {
	b := newTestBackend(t, 0)
	ctx := context.Background()

	h1, err := b.Acquire(ctx, store.ModeWrite)
	require.NoError(t, err)
	id1 := h1.ID()
	require.NoError(t, h1.Close())

	h2, err := b.Acquire(ctx, store.ModeWrite)
	require.NoError(t, err)
	assert.NotEqual(t, id1, h2.ID())
	require.NoError(t, h2.Close())

	stats := b.PoolStats()
	assert.Zero(t, stats.Hits)
	assert.Zero(t, stats.Misses, "misses are only counted when pooling is enabled")
	assert.Zero(t, stats.AvailableWrite)
}

func TestPool_ModesAreSeparate(t *testing.T) {
	b := newTestBackend(t, 1)
	ctx := context.Background()

	w, err := b.Acquire(ctx, store.ModeWrite)
	require.NoError(t, err)
	wid := w.ID()
	require.NoError(t, w.Close())

	r, err := b.Acquire(ctx, store.ModeReadOnly)
	require.NoError(t, err)
	assert.NotEqual(t, wid, r.ID())
	assert.Equal(t, store.ModeReadOnly, r.Mode())
	require.NoError(t, r.Close())

	stats := b.PoolStats()
	assert.Equal(t, 1, stats.AvailableRead)
	assert.Equal(t, 1, stats.AvailableWrite)
}

func TestPool_FullPoolClosesExtraHandles(t *testing.T) {
	b := newTestBackend(t, 1)
	ctx := context.Background()

	h1, err := b.Acquire(ctx, store.ModeWrite)
	require.NoError(t, err)
	h2, err := b.Acquire(ctx, store.ModeWrite)
	require.NoError(t, err)
	assert.NotEqual(t, h1.ID(), h2.ID(), "a held handle is never handed out twice")

	require.NoError(t, h1.Close())
	require.NoError(t, h2.Close())

	assert.Equal(t, 1, b.PoolStats().AvailableWrite)
}

func TestHandle_DoubleCloseIsNoop(t *testing.T) {
	b := newTestBackend(t, 2)
	ctx := context.Background()

	h, err := b.Acquire(ctx, store.ModeWrite)
	require.NoError(t, err)
	require.NoError(t, h.Close())
	require.NoError(t, h.Close())

	assert.Equal(t, 1, b.PoolStats().AvailableWrite, "second close must not push the handle again")

	_, err = h.ExecContext(ctx, "SELECT 1")
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestHandle_QueryRowAfterCloseDoesNotTouchReusedConnection(t *testing.T) {
	b := newTestBackend(t, 1)
	ctx := context.Background()

	stale, err := b.Acquire(ctx, store.ModeWrite)
	require.NoError(t, err)
	require.NoError(t, stale.Close())

	current, err := b.Acquire(ctx, store.ModeWrite)
	require.NoError(t, err)
	defer current.Close() //nolint:errcheck
	require.Equal(t, stale.ID(), current.ID(), "pool of one hands the same connection back")

	var n int
	err = stale.QueryRowContext(ctx, "SELECT 1").Scan(&n)
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.Zero(t, n)

	_, err = stale.QueryContext(ctx, "SELECT 1")
	assert.ErrorIs(t, err, sql.ErrConnDone)
	_, err = stale.BeginTx(ctx, nil)
	assert.ErrorIs(t, err, sql.ErrConnDone)

	require.NoError(t, current.QueryRowContext(ctx, "SELECT 1").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestPool_CloseAllDrains(t *testing.T) {
	b := newTestBackend(t, 3)
	ctx := context.Background()

	var held []interface{ Close() error }
	for i := 0; i < 3; i++ {
		w, err := b.Acquire(ctx, store.ModeWrite)
		require.NoError(t, err)
		held = append(held, w)
	}
	for _, h := range held {
		require.NoError(t, h.Close())
	}
	r, err := b.Acquire(ctx, store.ModeReadOnly)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	stats := b.PoolStats()
	assert.Equal(t, 3, stats.AvailableWrite)
	assert.Equal(t, 1, stats.AvailableRead)

	require.NoError(t, b.Close())
	stats = b.PoolStats()
	assert.Zero(t, stats.AvailableWrite)
	assert.Zero(t, stats.AvailableRead)

	// Safe on an empty pool.
	require.NoError(t, b.Close())
}

func TestPool_ConcurrentAcquireRelease(t *testing.T) {
	b := newTestBackend(t, 4)
	ctx := context.Background()

	// Create the file first so read-only handles can open.
	w, err := b.Acquire(ctx, store.ModeWrite)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	var mu sync.Mutex
	inUse := map[uint64]bool{}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				h, err := b.Acquire(ctx, store.ModeReadOnly)
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				assert.False(t, inUse[h.ID()], "handle handed out while held")
				inUse[h.ID()] = true
				mu.Unlock()

				var one int
				assert.NoError(t, h.QueryRowContext(ctx, "SELECT 1").Scan(&one))

				mu.Lock()
				delete(inUse, h.ID())
				mu.Unlock()
				assert.NoError(t, h.Close())
			}
		}()
	}
	wg.Wait()

	stats := b.PoolStats()
	assert.LessOrEqual(t, stats.AvailableRead, 4)
	assert.Equal(t, int64(16*20), stats.Hits+stats.Misses-1)
}
