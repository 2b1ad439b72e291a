// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memvault Contributors

package memory

import (
	"context"
	"database/sql"
	"strings"

	"github.com/memvault-dev/memvault/internal/store"
	mverr "github.com/memvault-dev/memvault/pkg/errors"
)

const memoryColumns = `id, agent_id, project_id, kind, title, body, access_count, last_accessed, memory_tier, created_at, updated_at`

// RegisterAgent returns the id of the agent called name, creating it if
// needed. Registration is a system write and needs writes enabled.
func (s *Service) RegisterAgent(ctx context.Context, name, kind string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, mverr.New(mverr.CodeStoreInvalidInput, "agent name is required")
	}
	if kind == "" {
		kind = "agent"
	}
	if err := s.gate.CheckWrite(SystemAgentID, "agents"); err != nil {
		return 0, err
	}

	var id int64
	err := store.WithTx(ctx, s.backend, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO agents (name, kind) VALUES (?, ?)`, name, kind); err != nil {
			return store.MapError(err, "registering agent", mverr.Field("name", name))
		}
		err := tx.QueryRowContext(ctx, `SELECT id FROM agents WHERE name = ?`, name).Scan(&id)
		return store.MapError(err, "looking up agent", mverr.Field("name", name))
	})
	return id, err
}

// CreateMemory inserts m on behalf of agentID and returns its id. m.AgentID
// is the owner; leave it null for a shared memory.
func (s *Service) CreateMemory(ctx context.Context, agentID int64, m store.Memory) (int64, error) {
	if err := m.Validate(); err != nil {
		return 0, err
	}
	if m.Tier == "" {
		m.Tier = store.TierWarm
	}
	if err := s.gate.CheckWriteRow(agentID, store.TableMemory, m.AgentID); err != nil {
		return 0, err
	}

	const q = `INSERT INTO memory (agent_id, project_id, kind, title, body, memory_tier)
VALUES (?, ?, ?, ?, ?, ?)`

	var id int64
	err := store.WithTx(ctx, s.backend, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, q, m.AgentID, m.ProjectID, m.Kind, m.Title, m.Body, string(m.Tier))
		if err != nil {
			return store.MapError(err, "creating memory", mverr.FieldAgentID(agentID))
		}
		id, err = res.LastInsertId()
		return store.MapError(err, "creating memory")
	})
	if err != nil {
		return 0, err
	}

	s.maybeMaintain(ctx)
	return id, nil
}

// GetMemory reads one memory. Reads are never gated.
func (s *Service) GetMemory(ctx context.Context, agentID, id int64) (store.Memory, error) {
	h, err := s.reader(ctx)
	if err != nil {
		return store.Memory{}, err
	}
	defer h.Close() //nolint:errcheck

	row := h.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM memory WHERE id = ?`, id)
	m, err := scanMemory(row)
	if err != nil {
		return store.Memory{}, store.MapError(err, "getting memory", mverr.FieldMemoryID(id), mverr.FieldAgentID(agentID))
	}
	return m, nil
}

// ListMemories returns memories matching filter ordered by id.
func (s *Service) ListMemories(ctx context.Context, agentID int64, filter store.MemoryFilter) ([]store.Memory, error) {
	var (
		where []string
		args  []any
	)
	if filter.AgentID.Valid {
		where = append(where, "agent_id = ?")
		args = append(args, filter.AgentID.Int64)
	}
	if filter.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, filter.Kind)
	}
	if filter.Tier != "" {
		where = append(where, "memory_tier = ?")
		args = append(args, string(filter.Tier))
	}

	q := `SELECT ` + memoryColumns + ` FROM memory`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	q += ` ORDER BY id LIMIT ? OFFSET ?`
	args = append(args, limit, max(filter.Offset, 0))

	h, err := s.reader(ctx)
	if err != nil {
		return nil, err
	}
	defer h.Close() //nolint:errcheck

	rows, err := h.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, store.MapError(err, "listing memories", mverr.FieldAgentID(agentID))
	}
	defer rows.Close() //nolint:errcheck

	var out []store.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, store.MapError(err, "scanning memory")
		}
		out = append(out, m)
	}
	return out, store.MapError(rows.Err(), "listing memories")
}

// TrackAccess records one read of memoryID: the access count goes up and
// last_accessed moves to now. Archived memories drop back to cold.
func (s *Service) TrackAccess(ctx context.Context, agentID, memoryID int64) error {
	owner, err := s.memoryOwner(ctx, memoryID)
	if err != nil {
		return err
	}
	if err := s.gate.CheckWriteRow(agentID, store.TableMemory, owner); err != nil {
		return mverr.With(err, mverr.FieldMemoryID(memoryID))
	}

	const q = `UPDATE memory SET access_count = access_count + 1, last_accessed = datetime('now') WHERE id = ?`
	err = store.WithTx(ctx, s.backend, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, q, memoryID)
		if err != nil {
			return store.MapError(err, "tracking access", mverr.FieldMemoryID(memoryID))
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return mverr.Wrap(store.ErrNotFound, mverr.CodeStoreEntityNotFound, "memory not found", mverr.FieldMemoryID(memoryID))
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.maybeMaintain(ctx)
	return nil
}

// ArchiveOld archives memories not accessed for days whose access count is
// below accessThreshold, among those agentID may write. It returns the ids
// archived.
func (s *Service) ArchiveOld(ctx context.Context, agentID int64, days, accessThreshold int) ([]int64, error) {
	if days < 0 || accessThreshold < 0 {
		return nil, mverr.New(mverr.CodeStoreInvalidInput, "days and access threshold must not be negative")
	}
	if err := s.gate.CheckWriteRow(agentID, store.TableMemory, nullOwner(agentID)); err != nil {
		return nil, err
	}

	const selectQ = `SELECT id FROM memory
WHERE datetime(last_accessed, '+' || ? || ' days') < datetime('now')
  AND memory_tier != 'archived'
  AND access_count < ?
  AND (agent_id IS NULL OR agent_id = ?)
ORDER BY id`

	var ids []int64
	err := store.WithTx(ctx, s.backend, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, selectQ, days, accessThreshold, agentID)
		if err != nil {
			return store.MapError(err, "finding archive candidates")
		}
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close() //nolint:errcheck
				return store.MapError(err, "scanning archive candidate")
			}
			ids = append(ids, id)
		}
		if err := rows.Close(); err != nil {
			return store.MapError(err, "finding archive candidates")
		}

		for _, id := range ids {
			_, err := tx.ExecContext(ctx,
				`UPDATE memory SET memory_tier = 'archived', updated_at = datetime('now') WHERE id = ?`, id)
			if err != nil {
				return store.MapError(err, "archiving memory", mverr.FieldMemoryID(id))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("memories archived", "agent_id", agentID, "count", len(ids))
	return ids, nil
}

// memoryOwner looks up the owner of memoryID.
func (s *Service) memoryOwner(ctx context.Context, memoryID int64) (sql.NullInt64, error) {
	h, err := s.reader(ctx)
	if err != nil {
		return sql.NullInt64{}, err
	}
	defer h.Close() //nolint:errcheck

	var owner sql.NullInt64
	err = h.QueryRowContext(ctx, `SELECT agent_id FROM memory WHERE id = ?`, memoryID).Scan(&owner)
	if err != nil {
		return sql.NullInt64{}, store.MapError(err, "memory not found", mverr.FieldMemoryID(memoryID))
	}
	return owner, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMemory(sc scanner) (store.Memory, error) {
	var (
		m                                  store.Memory
		tier                               string
		lastAccessed, createdAt, updatedAt string
	)
	err := sc.Scan(&m.ID, &m.AgentID, &m.ProjectID, &m.Kind, &m.Title, &m.Body,
		&m.AccessCount, &lastAccessed, &tier, &createdAt, &updatedAt)
	if err != nil {
		return store.Memory{}, err
	}
	m.Tier = store.Tier(tier)
	m.LastAccessed = parseTime(lastAccessed)
	m.CreatedAt = parseTime(createdAt)
	m.UpdatedAt = parseTime(updatedAt)
	return m, nil
}
