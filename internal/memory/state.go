// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memvault Contributors

package memory

import (
	"context"
	"database/sql"
	"time"

	"github.com/memvault-dev/memvault/internal/maintenance"
	"github.com/memvault-dev/memvault/internal/store"
)

// LoadState reads the maintenance timestamps from settings. Missing or
// unparseable values read as never.
func (s *Service) LoadState(ctx context.Context) (maintenance.State, error) {
	h, err := s.reader(ctx)
	if err != nil {
		return maintenance.State{}, err
	}
	defer h.Close() //nolint:errcheck

	rows, err := h.QueryContext(ctx, `SELECT key, value FROM settings WHERE key IN (?, ?, ?)`,
		maintenance.KeyLastOptimize, maintenance.KeyLastRetention, maintenance.KeyLastDecay)
	if err != nil {
		return maintenance.State{}, store.MapError(err, "loading maintenance state")
	}
	defer rows.Close() //nolint:errcheck

	var st maintenance.State
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return maintenance.State{}, store.MapError(err, "scanning maintenance state")
		}
		t, err := time.Parse(time.RFC3339Nano, value)
		if err != nil {
			s.logger.Debug("ignoring malformed maintenance timestamp", "key", key, "value", value)
			continue
		}
		switch key {
		case maintenance.KeyLastOptimize:
			st.LastOptimize = t
		case maintenance.KeyLastRetention:
			st.LastRetention = t
		case maintenance.KeyLastDecay:
			st.LastDecay = t
		}
	}
	return st, store.MapError(rows.Err(), "loading maintenance state")
}

// SaveState stamps now on the actions in ran in one transaction.
func (s *Service) SaveState(ctx context.Context, ran []maintenance.Action, now time.Time) error {
	stamp := now.UTC().Format(time.RFC3339Nano)
	return store.WithTx(ctx, s.backend, func(tx *sql.Tx) error {
		for _, a := range ran {
			key := stateKey(a)
			if key == "" {
				continue
			}
			if err := putSetting(ctx, tx, key, stamp); err != nil {
				return err
			}
		}
		return nil
	})
}

func stateKey(a maintenance.Action) string {
	switch a {
	case maintenance.ActionOptimize:
		return maintenance.KeyLastOptimize
	case maintenance.ActionRetention:
		return maintenance.KeyLastRetention
	case maintenance.ActionDecay:
		return maintenance.KeyLastDecay
	default:
		return ""
	}
}
