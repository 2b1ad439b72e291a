// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memvault Contributors

package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/memvault-dev/memvault/internal/store"
	mverr "github.com/memvault-dev/memvault/pkg/errors"
)

// SchemaVersion is the version recorded in settings.schema_version.
const SchemaVersion = "2.6"

//go:embed schema.sql
var schemaSQL string

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migration is one embedded SQL file. Version is the file name without the
// .sql extension; migrations apply in lexical order.
type Migration struct {
	Version string
	SQL     string
}

// MigrationInfo describes an applied migration.
type MigrationInfo struct {
	Version   string `json:"version" yaml:"version"`
	AppliedAt string `json:"applied_at" yaml:"applied_at"`
}

// Migrations returns the embedded migrations in apply order.
func Migrations() ([]Migration, error) {
	entries, err := fs.ReadDir(migrationFiles, "migrations")
	if err != nil {
		return nil, mverr.Wrap(err, mverr.CodeStoreMigrationFailure, "listing embedded migrations")
	}

	var out []Migration
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".sql" {
			continue
		}
		body, err := migrationFiles.ReadFile(path.Join("migrations", e.Name()))
		if err != nil {
			return nil, mverr.Wrap(err, mverr.CodeStoreMigrationFailure, "reading embedded migration",
				mverr.Field("migration", e.Name()))
		}
		out = append(out, Migration{Version: strings.TrimSuffix(e.Name(), ".sql"), SQL: string(body)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// ApplySchema creates every table, trigger and seeded setting that does not
// exist yet. It is idempotent.
func ApplySchema(ctx context.Context, b store.Backend) error {
	return store.WithTx(ctx, b, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			return mverr.Wrap(err, mverr.CodeStoreMigrationFailure, "applying schema", mverr.FieldPath(b.Path()))
		}
		return nil
	})
}

// Migrate applies every embedded migration not yet recorded in
// schema_migrations, each in its own transaction, and returns the versions
// it applied. It stops at the first failure.
func Migrate(ctx context.Context, b store.Backend) ([]string, error) {
	migrations, err := Migrations()
	if err != nil {
		return nil, err
	}

	applied, err := appliedVersions(ctx, b)
	if err != nil {
		return nil, err
	}

	var done []string
	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		err := store.WithTx(ctx, b, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO schema_migrations (version, description) VALUES (?, NULL)`, m.Version)
			return err
		})
		if err != nil {
			return done, mverr.Wrap(err, mverr.CodeStoreMigrationFailure, "applying migration",
				mverr.Field("migration", m.Version))
		}
		done = append(done, m.Version)
	}
	return done, nil
}

// AppliedMigrations lists recorded migrations in version order.
func AppliedMigrations(ctx context.Context, b store.Backend) ([]MigrationInfo, error) {
	h, err := b.Connect(ctx, true)
	if err != nil {
		return nil, err
	}
	defer h.Close() //nolint:errcheck

	if err := ensureMigrationsTable(ctx, h); err != nil {
		return nil, err
	}

	rows, err := h.QueryContext(ctx, `SELECT version, applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, store.MapError(err, "listing migrations")
	}
	defer rows.Close()

	var out []MigrationInfo
	for rows.Next() {
		var info MigrationInfo
		if err := rows.Scan(&info.Version, &info.AppliedAt); err != nil {
			return nil, store.MapError(err, "scanning migration")
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

func appliedVersions(ctx context.Context, b store.Backend) (map[string]bool, error) {
	infos, err := AppliedMigrations(ctx, b)
	if err != nil {
		return nil, err
	}
	applied := make(map[string]bool, len(infos))
	for _, info := range infos {
		applied[info.Version] = true
	}
	return applied, nil
}

func ensureMigrationsTable(ctx context.Context, h store.Handle) error {
	const ddl = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version     TEXT PRIMARY KEY,
	applied_at  TEXT NOT NULL DEFAULT (datetime('now')),
	description TEXT
)`
	if _, err := h.ExecContext(ctx, ddl); err != nil {
		return store.MapError(err, "creating schema_migrations")
	}
	return nil
}
