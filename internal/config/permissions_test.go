// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memvault Contributors

//go:build !windows

package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureDefaultLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := slog.Default()
	t.Cleanup(func() { slog.SetDefault(old) })
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	return &buf
}

func TestWarnInsecurePermissions(t *testing.T) {
	tests := []struct {
		name       string
		perm       os.FileMode
		expectWarn bool
	}{
		{"secure 0600", 0o600, false},
		{"secure 0400", 0o400, false},
		{"group readable 0640", 0o640, true},
		{"other readable 0604", 0o604, true},
		{"world readable 0644", 0o644, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dbPath := filepath.Join(t.TempDir(), "memory.db")
			require.NoError(t, os.WriteFile(dbPath, []byte{}, 0o600))
			require.NoError(t, os.Chmod(dbPath, tt.perm))

			buf := captureDefaultLog(t)
			WarnInsecurePermissions(dbPath)

			if tt.expectWarn {
				assert.Contains(t, buf.String(), "insecure permissions")
				assert.Contains(t, buf.String(), dbPath)
				assert.Contains(t, buf.String(), "0600")
			} else {
				assert.NotContains(t, buf.String(), "insecure permissions")
			}
		})
	}
}

func TestWarnInsecurePermissions_EmptyPath(t *testing.T) {
	buf := captureDefaultLog(t)
	WarnInsecurePermissions("")
	assert.Empty(t, buf.String())
}

func TestWarnInsecurePermissions_MissingFile(t *testing.T) {
	buf := captureDefaultLog(t)
	WarnInsecurePermissions("/nonexistent/path/memory.db")
	assert.NotContains(t, buf.String(), "insecure permissions")
}
