// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memvault Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3"

	"github.com/memvault-dev/memvault/internal/config"
	"github.com/memvault-dev/memvault/internal/metrics"
	"github.com/memvault-dev/memvault/internal/store"
	mverr "github.com/memvault-dev/memvault/pkg/errors"
)

// BusyTimeoutMS bounds every lock wait; after it the engine reports busy.
const BusyTimeoutMS = 30000

var connSeq atomic.Uint64

// physConn is one physical SQLite connection. The *sql.DB is capped at a
// single connection and pinned through conn so per-connection pragmas stay
// in effect for the lifetime of the handle.
type physConn struct {
	id   uint64
	mode store.Mode
	db   *sql.DB
	conn *sql.Conn
}

func (p *physConn) close() error {
	return errors.Join(p.conn.Close(), p.db.Close())
}

func writableDSN(path string) string {
	return fmt.Sprintf("%s?_foreign_keys=on&_busy_timeout=%d", path, BusyTimeoutMS)
}

func readOnlyDSN(path string) string {
	return fmt.Sprintf("file:%s?mode=ro&immutable=1&_foreign_keys=on&_busy_timeout=%d", path, BusyTimeoutMS)
}

// openConn opens a new physical connection in mode and applies tuning.
// Pragma failures are logged individually and never abort the open.
func openConn(ctx context.Context, path string, mode store.Mode, tuning config.Tuning, logger *slog.Logger) (*physConn, error) {
	if mode == store.ModeReadOnly {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return nil, mverr.Wrap(errors.Join(store.ErrNotFound, err), mverr.CodeStoreOpenNotFound,
				"database not found and immutable read requested", mverr.FieldPath(path))
		}
	}

	dsn := writableDSN(path)
	if mode == store.ModeReadOnly {
		dsn = readOnlyDSN(path)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, store.MapError(err, "opening database", mverr.FieldPath(path))
	}
	db.SetMaxOpenConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		msg := "connecting to database"
		if mode == store.ModeReadOnly {
			msg = "connecting to database (database not found and immutable read requested)"
		}
		return nil, store.MapError(err, msg, mverr.FieldPath(path))
	}

	pc := &physConn{id: connSeq.Add(1), mode: mode, db: db, conn: conn}
	metrics.ConnectionsOpenedTotal.WithLabelValues(mode.String()).Inc()

	if mode == store.ModeWrite {
		applyWritePragmas(ctx, pc, path, tuning, logger)
		if tuning.VerifyOnConnect {
			verifyIntegrity(ctx, pc, path, logger)
		}
	} else if _, err := conn.ExecContext(ctx, "PRAGMA query_only=ON"); err != nil {
		logger.Debug("pragma_query_only_failed", "mode", "immutable_ro", "path", path, "error", err)
	}

	return pc, nil
}

func applyWritePragmas(ctx context.Context, pc *physConn, path string, tuning config.Tuning, logger *slog.Logger) {
	var journalMode string
	if err := pc.conn.QueryRowContext(ctx, "PRAGMA journal_mode=WAL").Scan(&journalMode); err != nil {
		pragmaFailed(logger, "journal_mode=WAL", "journal_mode", path, err)
	} else if journalMode != "wal" {
		logger.Warn("journal_mode_unexpected", "got", journalMode, "path", path)
	}

	pragmas := []struct{ stmt, tag string }{
		{fmt.Sprintf("cache_size=-%d", tuning.CacheSizeKiB), "cache_size"},
		{fmt.Sprintf("mmap_size=%d", tuning.MmapSizeBytes), "mmap_size"},
		{fmt.Sprintf("wal_autocheckpoint=%d", tuning.WALAutocheckpoint), "wal_autocheckpoint"},
		{"synchronous=NORMAL", "synchronous"},
		{"trusted_schema=OFF", "trusted_schema"},
	}
	for _, p := range pragmas {
		if _, err := pc.conn.ExecContext(ctx, "PRAGMA "+p.stmt); err != nil {
			pragmaFailed(logger, p.stmt, p.tag, path, err)
		}
	}
}

func pragmaFailed(logger *slog.Logger, pragma, tag, path string, err error) {
	metrics.PragmaFailuresTotal.WithLabelValues(tag).Inc()
	logger.Warn("pragma_failed", "pragma", pragma, "tag", tag, "mode", "write", "path", path, "error", err)
}

// verifyIntegrity reports corruption as a warning; the handle stays usable.
func verifyIntegrity(ctx context.Context, pc *physConn, path string, logger *slog.Logger) {
	var result string
	if err := pc.conn.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		logger.Warn("integrity_check_error", "path", path, "error", err)
		return
	}
	if result != "ok" {
		metrics.IntegrityCheckFailuresTotal.Inc()
		logger.Warn("integrity_check_failed", "path", path, "result", result)
	}
}
