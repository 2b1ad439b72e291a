// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memvault Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	mverr "github.com/memvault-dev/memvault/pkg/errors"
)

// testEnv isolates HOME and the write switch, and returns a config file
// path that keeps logs quiet.
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("MEMVAULT_WRITES_ALLOW", "")

	cfg := filepath.Join(dir, "memvault.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("log:\n  level: error\n"), 0o600))
	return cfg
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	out := new(bytes.Buffer)
	root.SetOut(out)
	root.SetErr(new(bytes.Buffer))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func initDB(t *testing.T, cfg string) string {
	t.Helper()
	db := filepath.Join(t.TempDir(), "data", "memory.db")
	out, err := execute(t, "--config", cfg, "init", db)
	require.NoError(t, err)
	require.Contains(t, out, "initialized")
	return db
}

func TestRootCommand_Help(t *testing.T) {
	testEnv(t)
	out, err := execute(t, "--help")
	require.NoError(t, err)

	for _, cmd := range []string{"init", "migrate", "config", "backup", "smoke", "maintain", "serve", "doctor", "version"} {
		assert.Contains(t, out, cmd, "root help should list %q subcommand", cmd)
	}
}

func TestVersionCommand(t *testing.T) {
	testEnv(t)
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "memvault dev")
}

func TestRootCommand_MissingConfigFile(t *testing.T) {
	testEnv(t)
	_, err := execute(t, "--config", "/nonexistent/memvault.yaml", "version")
	require.Error(t, err)
	assert.True(t, mverr.HasCode(err, mverr.CodeConfigLoadReadFailure))
}

func TestInit_Idempotent(t *testing.T) {
	cfg := testEnv(t)
	db := initDB(t, cfg)

	info, err := os.Stat(db)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	out, err := execute(t, "--config", cfg, "init", db)
	require.NoError(t, err)
	assert.Contains(t, out, "0 migration(s) applied")
}

func TestMigrate(t *testing.T) {
	cfg := testEnv(t)
	db := initDB(t, cfg)

	out, err := execute(t, "--config", cfg, "migrate", db)
	require.NoError(t, err)
	assert.Equal(t, "up to date\n", out)

	out, err = execute(t, "--config", cfg, "migrate", "--list", db)
	require.NoError(t, err)
	assert.Contains(t, out, "0001")
	assert.Contains(t, strings.ToUpper(out), "APPLIED AT")
}

func TestCommands_RejectBadPaths(t *testing.T) {
	cfg := testEnv(t)
	dir := t.TempDir()

	for _, cmd := range []string{"migrate", "config", "smoke", "maintain"} {
		t.Run(cmd+" directory", func(t *testing.T) {
			_, err := execute(t, "--config", cfg, cmd, dir)
			require.Error(t, err)
			assert.True(t, mverr.IsDirectoryMisuse(err))
		})
		t.Run(cmd+" missing", func(t *testing.T) {
			_, err := execute(t, "--config", cfg, cmd, filepath.Join(dir, "absent.db"))
			require.Error(t, err)
			assert.True(t, mverr.IsNotFound(err))
		})
	}
}

func TestCommands_RequireDatabasePath(t *testing.T) {
	cfg := testEnv(t)
	_, err := execute(t, "--config", cfg, "migrate")
	require.Error(t, err)
	assert.True(t, mverr.HasCode(err, mverr.CodeCLIInputInvalid))
}

func TestConfig_JSON(t *testing.T) {
	cfg := testEnv(t)
	db := initDB(t, cfg)
	t.Setenv("MEMVAULT_TUNING_CACHE_SIZE_KIB", "8")

	out, err := execute(t, "--config", cfg, "config", db)
	require.NoError(t, err)

	var report configReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, db, report.Database)
	assert.False(t, report.WritesEnabled)
	assert.Equal(t, int64(16), report.Tuning.CacheSizeKiB)
	assert.Equal(t, "16 KiB", report.Human["cache_size"])
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "backend_config_clamped")
	assert.Equal(t, true, report.Health["ok"])
}

func TestConfig_YAML(t *testing.T) {
	cfg := testEnv(t)
	db := initDB(t, cfg)

	out, err := execute(t, "--config", cfg, "--writes", "config", "-o", "yaml", db)
	require.NoError(t, err)

	var report map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &report))
	assert.Equal(t, true, report["writes_enabled"])
	assert.Contains(t, report, "tuning")
}

func TestConfig_UnknownFormat(t *testing.T) {
	cfg := testEnv(t)
	db := initDB(t, cfg)

	_, err := execute(t, "--config", cfg, "config", "-o", "toml", db)
	require.Error(t, err)
	assert.True(t, mverr.HasCode(err, mverr.CodeCLIInputInvalid))
}

func TestBackup(t *testing.T) {
	cfg := testEnv(t)
	db := initDB(t, cfg)

	tests := []struct {
		name   string
		args   []string
		method string
	}{
		{name: "read-only", args: nil, method: "online_backup"},
		{name: "writable", args: []string{"--writes"}, method: "vacuum_into"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := filepath.Join(t.TempDir(), "copy.db")
			args := append([]string{"--config", cfg}, tt.args...)
			out, err := execute(t, append(args, "backup", db, dst)...)
			require.NoError(t, err)
			assert.Contains(t, out, "backup_created")
			assert.Contains(t, out, "method="+tt.method)
			assert.FileExists(t, dst)

			_, err = execute(t, append(args, "backup", db, dst)...)
			require.Error(t, err)
			assert.True(t, mverr.IsConflict(err))
		})
	}
}

func TestSmoke(t *testing.T) {
	cfg := testEnv(t)
	db := initDB(t, cfg)

	out, err := execute(t, "--config", cfg, "smoke", "--toggle", "--health", db)
	require.NoError(t, err)

	var res smokeResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Success, "failures: %v", res.Failures)
	assert.Empty(t, res.Failures)
}

func TestSmoke_FailsOnUninitializedDatabase(t *testing.T) {
	cfg := testEnv(t)
	db := filepath.Join(t.TempDir(), "empty.db")
	require.NoError(t, os.WriteFile(db, nil, 0o600))

	out, err := execute(t, "--config", cfg, "smoke", db)
	require.Error(t, err)
	assert.True(t, mverr.HasCode(err, mverr.CodeCLISmokeFailure))

	var res smokeResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Failures)
}

func TestMaintain(t *testing.T) {
	cfg := testEnv(t)
	db := initDB(t, cfg)

	_, err := execute(t, "--config", cfg, "maintain", db)
	require.Error(t, err)
	assert.True(t, mverr.IsUnauthorized(err))

	out, err := execute(t, "--config", cfg, "--writes", "maintain", db)
	require.NoError(t, err)
	for _, action := range []string{"optimize", "retention", "decay", "recompute_tiers"} {
		assert.Contains(t, out, "ran "+action)
	}
}

func TestMaintain_EnvSwitch(t *testing.T) {
	cfg := testEnv(t)
	db := initDB(t, cfg)
	t.Setenv("MEMVAULT_WRITES_ALLOW", "true")

	out, err := execute(t, "--config", cfg, "maintain", db)
	require.NoError(t, err)
	assert.Contains(t, out, "ran optimize")
}

func TestServe_StopsOnCancel(t *testing.T) {
	cfg := testEnv(t)
	db := initDB(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	root := NewRootCmd()
	root.SetOut(new(bytes.Buffer))
	root.SetErr(new(bytes.Buffer))
	root.SetArgs([]string{"--config", cfg, "serve", "--listen", "127.0.0.1:0", db})

	done := make(chan error, 1)
	go func() { done <- root.ExecuteContext(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
}
