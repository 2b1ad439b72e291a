// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memvault Contributors

package sqlite_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/memvault-dev/memvault/internal/config"
	"github.com/memvault-dev/memvault/internal/store"
	"github.com/memvault-dev/memvault/internal/store/sqlite"
	mverr "github.com/memvault-dev/memvault/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DirectoryMisuse(t *testing.T) {
	_, err := sqlite.New(store.Config{Path: t.TempDir(), Tuning: config.DefaultTuning()})
	require.Error(t, err)
	assert.True(t, mverr.IsDirectoryMisuse(err))
}

func TestNew_EmptyPath(t *testing.T) {
	_, err := sqlite.New(store.Config{Path: "  "})
	require.Error(t, err)
	assert.True(t, mverr.IsInvalidInput(err))
}

func TestConnect_ReadOnlyMissingFile(t *testing.T) {
	path := testDBPath(t, "absent")
	b := newTestBackendWith(t, path, config.DefaultTuning())

	_, err := b.Connect(context.Background(), false)
	require.Error(t, err)
	assert.True(t, mverr.IsNotFound(err))
	assert.True(t, errors.Is(err, store.ErrNotFound))
	assert.Contains(t, err.Error(), "immutable read requested")

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "read-only open must not create the file")
}

func TestConnect_WritableAppliesTuning(t *testing.T) {
	tuning := config.DefaultTuning()
	tuning.CacheSizeKiB = 2048
	tuning.MmapSizeBytes = 8 << 20
	tuning.WALAutocheckpoint = 250
	b := newTestBackendWith(t, testDBPath(t, "tuned"), tuning)

	ctx := context.Background()
	h, err := b.Connect(ctx, true)
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, store.ModeWrite, h.Mode())

	pragmas := map[string]int64{
		"cache_size":         -2048,
		"wal_autocheckpoint": 250,
		"synchronous":        1,
		"trusted_schema":     0,
		"foreign_keys":       1,
		"busy_timeout":       sqlite.BusyTimeoutMS,
	}
	for name, want := range pragmas {
		var got int64
		require.NoError(t, h.QueryRowContext(ctx, "PRAGMA "+name).Scan(&got), name)
		assert.Equal(t, want, got, name)
	}

	var mmap int64
	require.NoError(t, h.QueryRowContext(ctx, "PRAGMA mmap_size").Scan(&mmap))
	assert.LessOrEqual(t, mmap, int64(8<<20))

	var journal string
	require.NoError(t, h.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journal))
	assert.Equal(t, "wal", journal)
}

func TestConnect_ReadOnlyRefusesMutation(t *testing.T) {
	b := newTestBackend(t, 0)
	ctx := context.Background()

	w, err := b.Connect(ctx, true)
	require.NoError(t, err)
	_, err = w.ExecContext(ctx, "CREATE TABLE t (id INTEGER PRIMARY KEY, data TEXT)")
	require.NoError(t, err)
	_, err = w.ExecContext(ctx, "INSERT INTO t (data) VALUES ('initial')")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := b.Connect(ctx, false)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, store.ModeReadOnly, r.Mode())

	var n int
	require.NoError(t, r.QueryRowContext(ctx, "SELECT COUNT(*) FROM t").Scan(&n))
	assert.Equal(t, 1, n)

	_, err = r.ExecContext(ctx, "INSERT INTO t (data) VALUES ('blocked')")
	require.Error(t, err)
}

func TestConnect_VerifyOnConnectHealthyDatabase(t *testing.T) {
	var buf bytes.Buffer
	tuning := config.DefaultTuning()
	tuning.VerifyOnConnect = true

	b, err := sqlite.New(store.Config{
		Path:   testDBPath(t, "verify"),
		Tuning: tuning,
		Logger: slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	h, err := b.Connect(context.Background(), true)
	require.NoError(t, err)
	require.NoError(t, h.Close())

	assert.NotContains(t, buf.String(), "integrity_check_failed")
	assert.NotContains(t, buf.String(), "pragma_failed")
}
