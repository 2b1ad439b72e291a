// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memvault Contributors

package store

import (
	"log/slog"

	"github.com/memvault-dev/memvault/internal/config"
)

// DefaultBackend is used when Config.Backend is empty.
const DefaultBackend = "sqlite"

// Config selects a backend and the database file it governs.
type Config struct {
	Backend string
	Path    string
	Tuning  config.Tuning
	Logger  *slog.Logger
}
