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

// CreateRelationship links two memories. Both endpoints must exist and,
// when both are owned, belong to the same agent. A duplicate edge, or an
// edge naming a missing memory, is a conflict.
func (s *Service) CreateRelationship(ctx context.Context, agentID, from, to int64,
	relType store.RelationshipType, confidence float64, weight int,
) (int64, error) {
	rel := store.Relationship{FromID: from, ToID: to, Type: relType, Confidence: confidence, Weight: weight}
	if err := rel.Validate(); err != nil {
		return 0, err
	}

	fromOwner, err := s.endpointOwner(ctx, from)
	if err != nil {
		return 0, err
	}
	toOwner, err := s.endpointOwner(ctx, to)
	if err != nil {
		return 0, err
	}
	if err := s.gate.CheckCreateRelationship(agentID, fromOwner, toOwner); err != nil {
		return 0, err
	}

	const q = `INSERT INTO memory_graph (from_memory_id, to_memory_id, relationship_type, confidence_score, weight)
VALUES (?, ?, ?, ?, ?)`

	var id int64
	err = store.WithTx(ctx, s.backend, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, q, from, to, string(relType), confidence, weight)
		if err != nil {
			return store.MapError(err, "relationship already exists or memory IDs invalid",
				mverr.Field("from_memory_id", from), mverr.Field("to_memory_id", to))
		}
		id, err = res.LastInsertId()
		return store.MapError(err, "creating relationship")
	})
	if err != nil {
		return 0, err
	}

	s.maybeMaintain(ctx)
	return id, nil
}

// Relationships returns the edges leaving or entering memoryID.
func (s *Service) Relationships(ctx context.Context, memoryID int64) ([]store.Relationship, error) {
	const q = `SELECT id, from_memory_id, to_memory_id, relationship_type, confidence_score, weight, created_at
FROM memory_graph WHERE from_memory_id = ? OR to_memory_id = ? ORDER BY id`

	h, err := s.reader(ctx)
	if err != nil {
		return nil, err
	}
	defer h.Close() //nolint:errcheck

	rows, err := h.QueryContext(ctx, q, memoryID, memoryID)
	if err != nil {
		return nil, store.MapError(err, "listing relationships", mverr.FieldMemoryID(memoryID))
	}
	defer rows.Close() //nolint:errcheck

	var out []store.Relationship
	for rows.Next() {
		var (
			r         store.Relationship
			relType   string
			createdAt string
		)
		if err := rows.Scan(&r.ID, &r.FromID, &r.ToID, &relType, &r.Confidence, &r.Weight, &createdAt); err != nil {
			return nil, store.MapError(err, "scanning relationship")
		}
		r.Type = store.RelationshipType(relType)
		r.CreatedAt = parseTime(createdAt)
		out = append(out, r)
	}
	return out, store.MapError(rows.Err(), "listing relationships")
}

// endpointOwner is memoryOwner with a missing memory reported as a conflict.
func (s *Service) endpointOwner(ctx context.Context, memoryID int64) (sql.NullInt64, error) {
	owner, err := s.memoryOwner(ctx, memoryID)
	if err != nil && errors.Is(err, store.ErrNotFound) {
		return sql.NullInt64{}, mverr.Wrap(errors.Join(store.ErrConflict, err), mverr.CodeStoreConflict,
			"relationship already exists or memory IDs invalid", mverr.FieldMemoryID(memoryID))
	}
	return owner, err
}
