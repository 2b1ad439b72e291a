// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memvault Contributors

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/memvault-dev/memvault/internal/config"
	"github.com/memvault-dev/memvault/internal/store/sqlite"
	mverr "github.com/memvault-dev/memvault/pkg/errors"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init [db]",
		Short: "Create or upgrade a database",
		Long:  "Apply the schema and all pending migrations. Safe to run repeatedly; existing settings are preserved.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := a.databasePath(args)
			if err != nil {
				return err
			}
			if dir := filepath.Dir(path); dir != "" {
				if err := os.MkdirAll(dir, 0o700); err != nil {
					return mverr.Wrap(err, mverr.CodeCLISetupFailure, "creating database directory", mverr.FieldPath(dir))
				}
			}

			b, err := a.openBackend(path)
			if err != nil {
				return err
			}
			defer b.Close() //nolint:errcheck

			ctx := cmd.Context()
			if err := sqlite.ApplySchema(ctx, b); err != nil {
				return err
			}
			applied, err := sqlite.Migrate(ctx, b)
			if err != nil {
				return err
			}
			if err := os.Chmod(path, 0o600); err != nil {
				a.logger.Debug("could not restrict database permissions", "path", path, "error", err)
			}
			config.WarnInsecurePermissions(path)

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "initialized %s (schema %s, %d migration(s) applied)\n",
				path, sqlite.SchemaVersion, len(applied))
			return err
		},
	}
}

func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate [db]",
		Short: "Apply pending migrations",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := a.databasePath(args)
			if err != nil {
				return err
			}
			if err := requireFile(path); err != nil {
				return err
			}

			b, err := a.openBackend(path)
			if err != nil {
				return err
			}
			defer b.Close() //nolint:errcheck

			w := cmd.OutOrStdout()
			if list, _ := cmd.Flags().GetBool("list"); list {
				infos, err := sqlite.AppliedMigrations(cmd.Context(), b)
				if err != nil {
					return err
				}
				table := tablewriter.NewWriter(w)
				table.Header("Version", "Applied At")
				for _, m := range infos {
					if err := table.Append([]string{m.Version, m.AppliedAt}); err != nil {
						return mverr.Wrap(err, mverr.CodeCLISetupFailure, "rendering migrations")
					}
				}
				if err := table.Render(); err != nil {
					return mverr.Wrap(err, mverr.CodeCLISetupFailure, "rendering migrations")
				}
				return nil
			}

			applied, err := sqlite.Migrate(cmd.Context(), b)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				_, err = fmt.Fprintln(w, "up to date")
				return err
			}
			for _, v := range applied {
				if _, err := fmt.Fprintf(w, "applied %s\n", v); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().Bool("list", false, "list applied migrations instead of applying")
	return cmd
}

func newBackupCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "backup <db> <dst>",
		Short: "Write a consistent copy of a database",
		Long: "With writes allowed the WAL is checkpointed and VACUUM INTO writes a compact copy. " +
			"Otherwise the online backup API copies pages from an immutable read-only handle.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.openBackend(args[0])
			if err != nil {
				return err
			}
			defer b.Close() //nolint:errcheck

			sb, ok := b.(*sqlite.Backend)
			if !ok {
				return mverr.New(mverr.CodeStoreBackendUnsupported, "backup requires the sqlite backend")
			}

			res, err := sb.Backup(cmd.Context(), args[1], a.writeSwitch().WritesEnabled())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "backup_created path=%s method=%s size=%s ms=%d\n",
				res.Path, res.Method, humanize.IBytes(uint64(res.SizeBytes)), res.Duration.Milliseconds())
			return err
		},
	}
}

// requireFile fails with a NotFound coded error when path does not exist.
func requireFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return mverr.Wrap(err, mverr.CodeStoreOpenNotFound, "database not found", mverr.FieldPath(path))
	}
	if info.IsDir() {
		return mverr.New(mverr.CodeStorePathDirectory, "path points to a directory, expected a database file",
			mverr.FieldPath(path))
	}
	return nil
}
