// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memvault Contributors

package config

import (
	_ "embed"
	"log/slog"
	"os"
	"path/filepath"

	mverr "github.com/memvault-dev/memvault/pkg/errors"
)

//go:embed memvault.yaml.default
var DefaultConfigYAML []byte

// DefaultConfigPath returns ~/.config/memvault/memvault.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", mverr.Errorf(mverr.CodeConfigLoadReadFailure, "resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "memvault", "memvault.yaml"), nil
}

// BootstrapConfig writes the default commented config to path unless a file
// already exists there. It returns the path written, or "" when nothing was
// written; failures are logged at debug level and skipped.
func BootstrapConfig(cfgPath string) string {
	if _, err := os.Stat(cfgPath); err == nil {
		return ""
	}

	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		slog.Debug("skipping config bootstrap: cannot create directory", "path", dir, "error", err)
		return ""
	}

	if err := os.WriteFile(cfgPath, DefaultConfigYAML, 0o600); err != nil {
		slog.Debug("skipping config bootstrap: cannot write config", "path", cfgPath, "error", err)
		return ""
	}

	slog.Info("created default config", "path", cfgPath)
	return cfgPath
}
