// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memvault Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/memvault-dev/memvault/internal/config"
	"github.com/memvault-dev/memvault/internal/memory"
	"github.com/memvault-dev/memvault/internal/policy"
	"github.com/memvault-dev/memvault/internal/store"
	"github.com/memvault-dev/memvault/internal/store/sqlite"
	mverr "github.com/memvault-dev/memvault/pkg/errors"
)

type configReport struct {
	Database      string            `json:"database" yaml:"database"`
	Backend       string            `json:"backend" yaml:"backend"`
	WritesEnabled bool              `json:"writes_enabled" yaml:"writes_enabled"`
	Tuning        config.Tuning     `json:"tuning" yaml:"tuning"`
	Human         map[string]string `json:"human" yaml:"human"`
	Warnings      []string          `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Health        map[string]any    `json:"health" yaml:"health"`
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config [db]",
		Short: "Show resolved tuning and database health",
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

			t := a.cfg.Tuning
			report := configReport{
				Database:      path,
				Backend:       a.cfg.Database.Backend,
				WritesEnabled: a.writeSwitch().WritesEnabled(),
				Tuning:        t,
				Human: map[string]string{
					"cache_size": humanize.IBytes(uint64(t.CacheSizeKiB) * 1024),
					"mmap_size":  humanize.IBytes(uint64(t.MmapSizeBytes)),
				},
				Health: b.Health(cmd.Context()),
			}
			for _, w := range a.cfg.Warnings {
				report.Warnings = append(report.Warnings, describeWarning(w))
			}

			format, _ := cmd.Flags().GetString("format")
			return writeOutput(cmd.OutOrStdout(), format, report)
		},
	}
	cmd.Flags().StringP("format", "o", "json", "output format: json or yaml")
	return cmd
}

func describeWarning(w config.Warning) string {
	if w.Event == config.EventClamped {
		return fmt.Sprintf("%s: original=%v clamped=%v", w.Event, w.Original, w.Clamped)
	}
	return fmt.Sprintf("%s: %s=%q, using %v", w.Event, w.Key, w.Value, w.Default)
}

func writeOutput(w io.Writer, format string, v any) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return mverr.Wrap(err, mverr.CodeCLISetupFailure, "encoding yaml")
		}
		return enc.Close()
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return mverr.Errorf(mverr.CodeCLIInputInvalid, "unknown output format %q (want json or yaml)", format)
	}
}

// smokeResult mirrors the one-line JSON verdict printed by smoke.
type smokeResult struct {
	Success  bool     `json:"success"`
	Failures []string `json:"failures,omitempty"`
}

var (
	requiredTriggers = []string{"memory_access_tracker", "memory_auto_archive"}
	requiredSettings = []string{
		"performance_monitoring_retention_days",
		"tier_hot_threshold", "tier_warm_threshold", "tier_cold_threshold",
	}
	requiredHealthKeys = []string{"ok", "foreign_keys", "journal_mode", "cache_size", "mmap_size"}
)

func newSmokeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "smoke [db]",
		Short: "Check core invariants of a database",
		Long: "Verify the schema version, triggers and settings; that writes are refused while disabled; " +
			"optionally that enabling writes takes effect without a restart, and that health reports the expected keys.",
		Args: cobra.MaximumNArgs(1),
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

			toggle, _ := cmd.Flags().GetBool("toggle")
			health, _ := cmd.Flags().GetBool("health")
			failures := runSmoke(cmd.Context(), b, a.writeSwitch().WritesEnabled(), toggle, health)

			res := smokeResult{Success: len(failures) == 0, Failures: failures}
			if err := json.NewEncoder(cmd.OutOrStdout()).Encode(res); err != nil {
				return err
			}
			if !res.Success {
				return mverr.New(mverr.CodeCLISmokeFailure, fmt.Sprintf("smoke test failed: %d check(s)", len(failures)))
			}
			return nil
		},
	}
	cmd.Flags().Bool("toggle", false, "verify that enabling writes takes effect immediately")
	cmd.Flags().Bool("health", false, "verify the health report keys")
	return cmd
}

func runSmoke(ctx context.Context, b store.Backend, writesEnabled, toggle, health bool) []string {
	var failures []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			failures = append(failures, fmt.Sprintf(format, args...))
		}
	}

	flag := policy.NewFlag(writesEnabled)
	svc := memory.New(b, policy.NewGate(flag, nil), memory.Options{})

	version, err := svc.Setting(ctx, "schema_version")
	check(err == nil && version == sqlite.SchemaVersion, "schema_version mismatch: got %q want %q", version, sqlite.SchemaVersion)

	triggers, err := triggerNames(ctx, b)
	check(err == nil, "listing triggers: %v", err)
	for _, t := range requiredTriggers {
		check(slices.Contains(triggers, t), "missing trigger: %s", t)
	}

	settings, err := svc.Settings(ctx)
	check(err == nil, "reading settings: %v", err)
	for _, k := range requiredSettings {
		_, ok := settings[k]
		check(ok, "missing setting: %s", k)
	}

	if !writesEnabled {
		err := svc.CreateAgentTable(ctx, 999, "__write_test", "CREATE TABLE __write_test(id INTEGER)", "smoke", "")
		check(mverr.IsUnauthorized(err), "toolkit write unexpectedly allowed in read-only mode: %v", err)

		check(readOnlyRefusesWrite(ctx, b), "read-only handle accepted a write")
	}

	if toggle && !writesEnabled {
		flag.Set(true)
		check(flag.WritesEnabled(), "write switch did not flip")
		if err := toggleWrite(ctx, b); err != nil {
			check(false, "write failed after enabling writes: %v", err)
		}
		flag.Set(false)
	}

	if health {
		report := b.Health(ctx)
		for _, k := range requiredHealthKeys {
			_, ok := report[k]
			check(ok, "health missing key: %s", k)
		}
	}

	return failures
}

func triggerNames(ctx context.Context, b store.Backend) ([]string, error) {
	h, err := b.Connect(ctx, false)
	if err != nil {
		return nil, err
	}
	defer h.Close() //nolint:errcheck

	rows, err := h.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'trigger'`)
	if err != nil {
		return nil, store.MapError(err, "listing triggers")
	}
	defer rows.Close() //nolint:errcheck

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, store.MapError(err, "scanning trigger")
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func readOnlyRefusesWrite(ctx context.Context, b store.Backend) bool {
	h, err := b.Connect(ctx, false)
	if err != nil {
		return false
	}
	defer h.Close() //nolint:errcheck
	_, err = h.ExecContext(ctx, `CREATE TABLE __write_test(id INTEGER)`)
	return err != nil
}

// toggleWrite proves a writable handle works, leaving no trace behind.
func toggleWrite(ctx context.Context, b store.Backend) error {
	h, err := b.Connect(ctx, true)
	if err != nil {
		return err
	}
	defer h.Close() //nolint:errcheck

	tx, err := h.BeginTx(ctx, nil)
	if err != nil {
		return store.MapError(err, "beginning toggle transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS __toggle_test(id INTEGER PRIMARY KEY)`); err != nil {
		return store.MapError(err, "creating toggle table")
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO __toggle_test(id) VALUES (1)`); err != nil {
		return store.MapError(err, "writing toggle row")
	}
	return nil
}
