// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memvault Contributors

//go:build !windows

package config

import (
	"io/fs"
	"log/slog"
	"os"
)

// WarnInsecurePermissions logs a warning when the file at path (a database or
// config file) is readable by group or others. It never fails.
func WarnInsecurePermissions(path string) {
	if path == "" {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		slog.Debug("could not stat file for permission check", "path", path, "error", err)
		return
	}

	const groupRead fs.FileMode = 0o040
	const otherRead fs.FileMode = 0o004

	mode := info.Mode()
	if mode.Perm()&(groupRead|otherRead) != 0 {
		slog.Warn(
			"file has insecure permissions; agent memories may be readable by other users",
			"path", path,
			"mode", mode,
			"recommended", "0600",
		)
	}
}
