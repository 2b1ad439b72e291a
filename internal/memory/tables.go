// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memvault Contributors

package memory

import (
	"context"
	"database/sql"
	"errors"

	"github.com/memvault-dev/memvault/internal/store"
	mverr "github.com/memvault-dev/memvault/pkg/errors"
)

// CreateAgentTable creates a custom table owned by agentID and registers it
// in agent_tables. The DDL and the registration commit together. Each agent
// may own at most max_agent_tables_per_agent tables.
func (s *Service) CreateAgentTable(ctx context.Context, agentID int64, name, schemaSQL, purpose, tableType string) error {
	if tableType == "" {
		tableType = "custom"
	}
	t := store.AgentTable{
		Name:      name,
		AgentID:   nullOwner(agentID),
		Purpose:   purpose,
		SchemaSQL: schemaSQL,
		TableType: tableType,
	}
	if err := t.Validate(); err != nil {
		return err
	}
	if err := s.gate.CheckWriteTable(agentID, name, t.AgentID); err != nil {
		return err
	}

	err := store.WithTx(ctx, s.backend, func(tx *sql.Tx) error {
		quota, err := intSetting(ctx, tx, settingMaxAgentTables, DefaultMaxAgentTables)
		if err != nil {
			return err
		}
		var count int64
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM agent_tables WHERE agent_id = ?`, agentID).Scan(&count); err != nil {
			return store.MapError(err, "counting agent tables", mverr.FieldAgentID(agentID))
		}
		if count >= quota {
			return mverr.New(mverr.CodeStoreQuotaExceeded, "agent table quota exceeded",
				mverr.FieldAgentID(agentID), mverr.Field("quota", quota))
		}

		var exists int
		err = tx.QueryRowContext(ctx, `SELECT 1 FROM sqlite_master WHERE name = ? COLLATE NOCASE`, name).Scan(&exists)
		if err == nil {
			return mverr.Wrap(store.ErrConflict, mverr.CodeStoreConflict, "table already exists", mverr.FieldTable(name))
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return store.MapError(err, "checking table name", mverr.FieldTable(name))
		}

		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			return store.MapError(err, "creating agent table", mverr.FieldTable(name))
		}

		const q = `INSERT INTO agent_tables (table_name, agent_id, purpose, schema_sql, table_type) VALUES (?, ?, ?, ?, ?)`
		if _, err := tx.ExecContext(ctx, q, name, agentID, purpose, schemaSQL, tableType); err != nil {
			return store.MapError(err, "registering agent table", mverr.FieldTable(name))
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("agent table created", "agent_id", agentID, "table", name, "type", tableType)
	s.maybeMaintain(ctx)
	return nil
}

// AgentTables lists the tables registered by agentID.
func (s *Service) AgentTables(ctx context.Context, agentID int64) ([]store.AgentTable, error) {
	const q = `SELECT table_name, agent_id, purpose, schema_sql, table_type, created_at
FROM agent_tables WHERE agent_id = ? ORDER BY table_name`

	h, err := s.reader(ctx)
	if err != nil {
		return nil, err
	}
	defer h.Close() //nolint:errcheck

	rows, err := h.QueryContext(ctx, q, agentID)
	if err != nil {
		return nil, store.MapError(err, "listing agent tables", mverr.FieldAgentID(agentID))
	}
	defer rows.Close() //nolint:errcheck

	var out []store.AgentTable
	for rows.Next() {
		var (
			t         store.AgentTable
			createdAt string
		)
		if err := rows.Scan(&t.Name, &t.AgentID, &t.Purpose, &t.SchemaSQL, &t.TableType, &createdAt); err != nil {
			return nil, store.MapError(err, "scanning agent table")
		}
		t.CreatedAt = parseTime(createdAt)
		out = append(out, t)
	}
	return out, store.MapError(rows.Err(), "listing agent tables")
}
