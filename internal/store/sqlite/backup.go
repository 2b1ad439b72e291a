// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memvault Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/memvault-dev/memvault/internal/store"
	mverr "github.com/memvault-dev/memvault/pkg/errors"
)

// Backup methods.
const (
	BackupVacuumInto = "vacuum_into"
	BackupOnline     = "online_backup"
)

// BackupResult describes a completed backup.
type BackupResult struct {
	Path      string        `json:"path" yaml:"path"`
	Method    string        `json:"method" yaml:"method"`
	SizeBytes int64         `json:"size_bytes" yaml:"size_bytes"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
}

// Backup writes a consistent copy of the database to dst, which must not
// exist. With writes allowed it checkpoints the WAL and uses VACUUM INTO for a
// compact copy; otherwise it copies page by page with the online backup API
// from an immutable read-only handle.
func (b *Backend) Backup(ctx context.Context, dst string, writesAllowed bool) (BackupResult, error) {
	if _, err := os.Stat(b.path); errors.Is(err, os.ErrNotExist) {
		return BackupResult{}, mverr.Wrap(errors.Join(store.ErrNotFound, err), mverr.CodeStoreOpenNotFound,
			"backup source missing", mverr.FieldPath(b.path))
	}
	if _, err := os.Stat(dst); err == nil {
		return BackupResult{}, mverr.New(mverr.CodeStoreConflict, "backup destination already exists",
			mverr.FieldPath(dst))
	}

	start := time.Now()
	method := BackupOnline
	var err error
	if writesAllowed {
		method = BackupVacuumInto
		err = b.vacuumInto(ctx, dst)
	} else {
		err = b.onlineBackup(ctx, dst)
	}
	if err != nil {
		return BackupResult{}, err
	}

	res := BackupResult{Path: dst, Method: method, Duration: time.Since(start)}
	if info, statErr := os.Stat(dst); statErr == nil {
		res.SizeBytes = info.Size()
	}
	b.logger.Info("backup_created", "path", dst, "method", method, "ms", res.Duration.Milliseconds())
	return res, nil
}

func (b *Backend) vacuumInto(ctx context.Context, dst string) error {
	h, err := b.Acquire(ctx, store.ModeWrite)
	if err != nil {
		return err
	}
	defer h.Close() //nolint:errcheck

	if _, err := h.ExecContext(ctx, "PRAGMA wal_checkpoint(FULL)"); err != nil {
		b.logger.Debug("wal checkpoint before backup failed", "path", b.path, "error", err)
	}
	if _, err := h.ExecContext(ctx, "VACUUM INTO ?", dst); err != nil {
		return mverr.Wrap(err, mverr.CodeStoreBackupFailure, "vacuum into backup", mverr.FieldPath(dst))
	}
	return nil
}

func (b *Backend) onlineBackup(ctx context.Context, dst string) error {
	src, err := b.Acquire(ctx, store.ModeReadOnly)
	if err != nil {
		return err
	}
	defer src.Close() //nolint:errcheck

	destDB, err := sql.Open("sqlite3", dst)
	if err != nil {
		return mverr.Wrap(err, mverr.CodeStoreBackupFailure, "opening backup destination", mverr.FieldPath(dst))
	}
	defer destDB.Close() //nolint:errcheck

	destConn, err := destDB.Conn(ctx)
	if err != nil {
		return mverr.Wrap(err, mverr.CodeStoreBackupFailure, "connecting to backup destination", mverr.FieldPath(dst))
	}
	defer destConn.Close() //nolint:errcheck

	err = destConn.Raw(func(destRaw any) error {
		dest, ok := destRaw.(*sqlite3.SQLiteConn)
		if !ok {
			return fmt.Errorf("unexpected destination driver connection %T", destRaw)
		}
		return src.Raw(func(srcRaw any) error {
			source, ok := srcRaw.(*sqlite3.SQLiteConn)
			if !ok {
				return fmt.Errorf("unexpected source driver connection %T", srcRaw)
			}
			bk, err := dest.Backup("main", source, "main")
			if err != nil {
				return err
			}
			if _, err := bk.Step(-1); err != nil {
				_ = bk.Finish()
				return err
			}
			return bk.Finish()
		})
	})
	if err != nil {
		return mverr.Wrap(err, mverr.CodeStoreBackupFailure, "online backup", mverr.FieldPath(dst))
	}
	return nil
}
