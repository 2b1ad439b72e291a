// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memvault Contributors

package sqlite

import (
	"context"
	"io"
	"os"

	"github.com/memvault-dev/memvault/internal/store"
)

// Offsets of the file format version bytes in the database header. Both
// read 2 once the database has been switched to WAL.
const (
	headerWriteVersion = 18
	headerReadVersion  = 19
	headerWALVersion   = 2
)

// Health reports core pragma values from a read-only handle. It never fails:
// an open error yields {"ok": false, "error": ...}.
func (b *Backend) Health(ctx context.Context) map[string]any {
	h, err := b.Acquire(ctx, store.ModeReadOnly)
	if err != nil {
		return map[string]any{"ok": false, "path": b.path, "error": err.Error()}
	}
	defer h.Close() //nolint:errcheck

	out := map[string]any{"ok": true, "path": b.path}

	intPragmas := []string{"foreign_keys", "synchronous", "cache_size", "mmap_size", "wal_autocheckpoint"}
	for _, name := range intPragmas {
		var v int64
		if err := h.QueryRowContext(ctx, "PRAGMA "+name).Scan(&v); err != nil {
			return map[string]any{"ok": false, "path": b.path, "error": err.Error()}
		}
		out[name] = v
	}

	var journalMode string
	if err := h.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journalMode); err != nil {
		return map[string]any{"ok": false, "path": b.path, "error": err.Error()}
	}
	// Immutable handles never open the WAL, so the pragma reports the
	// rollback mode there. The header carries the persistent mode.
	if persistentWAL(b.path) {
		journalMode = "wal"
	}
	out["journal_mode"] = journalMode

	if b.pool.Enabled() {
		// The handle above is checked out, so it is not counted as available.
		stats := b.pool.Stats()
		out["pool_size_configured"] = stats.Capacity
		out["pool_available_read"] = stats.AvailableRead
		out["pool_available_write"] = stats.AvailableWrite
		out["pool_hits"] = stats.Hits
		out["pool_misses"] = stats.Misses
	}

	return out
}

// persistentWAL reports whether the database header at path marks the file
// as WAL. Unreadable or short headers report false.
func persistentWAL(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close() //nolint:errcheck

	var header [headerReadVersion + 1]byte
	if _, err := io.ReadFull(f, header[:]); err != nil {
		return false
	}
	return header[headerWriteVersion] == headerWALVersion && header[headerReadVersion] == headerWALVersion
}
