// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memvault Contributors

// Package policy decides whether an agent may read or write a resource.
package policy

import (
	"database/sql"
	"log/slog"

	"github.com/memvault-dev/memvault/internal/metrics"
	"github.com/memvault-dev/memvault/internal/store"
	mverr "github.com/memvault-dev/memvault/pkg/errors"
)

// Denial reasons carried on PermissionDenied errors.
const (
	ReasonWritesDisabled = "writes disabled"
	ReasonPolicy         = "policy"
)

// AgentContext is the caller identity plus a permission snapshot for one
// decision. Build it with Gate.Context; never cache it across calls.
type AgentContext struct {
	AgentID      int64
	WriteEnabled bool
}

// Gate is the write-gate. It holds no decision state of its own; the write
// flag is re-read from its Switch every time Context is called.
type Gate struct {
	sw     Switch
	logger *slog.Logger
}

// NewGate returns a Gate reading the write flag from sw. A nil sw keeps
// writes disabled.
func NewGate(sw Switch, logger *slog.Logger) *Gate {
	if sw == nil {
		sw = NewFlag(false)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{sw: sw, logger: logger}
}

// WritesEnabled reports the live value of the write switch.
func (g *Gate) WritesEnabled() bool { return g.sw.WritesEnabled() }

// Context snapshots the live write flag for agentID.
func (g *Gate) Context(agentID int64) AgentContext {
	return AgentContext{AgentID: agentID, WriteEnabled: g.sw.WritesEnabled()}
}

// CanRead always permits reads.
func CanRead(_ AgentContext, _ string) bool {
	return true
}

// CanWriteRow decides a row-level write. On memory rows the owner must be
// the caller or null; on agent_tables rows it must be exactly the caller.
// Rows of other tables carry no ownership.
func CanWriteRow(ctx AgentContext, table string, owner sql.NullInt64) bool {
	if !ctx.WriteEnabled {
		return false
	}
	switch table {
	case store.TableMemory:
		return !owner.Valid || owner.Int64 == ctx.AgentID
	case store.TableAgentTables:
		return owner.Valid && owner.Int64 == ctx.AgentID
	default:
		return true
	}
}

// CanWriteTable decides a table registration. The owner must be exactly the
// caller; unlike row writes there is no null-owner exception.
func CanWriteTable(ctx AgentContext, _ string, owner sql.NullInt64) bool {
	if !ctx.WriteEnabled {
		return false
	}
	return owner.Valid && owner.Int64 == ctx.AgentID
}

// CanCreateRelationship denies only edges whose endpoints are both owned by
// different agents.
func CanCreateRelationship(ctx AgentContext, from, to sql.NullInt64) bool {
	if !ctx.WriteEnabled {
		return false
	}
	if from.Valid && to.Valid && from.Int64 != to.Int64 {
		return false
	}
	return true
}

// CheckWriteRow is CanWriteRow for agentID against the live switch, returning
// a PermissionDenied error instead of false.
func (g *Gate) CheckWriteRow(agentID int64, table string, owner sql.NullInt64) error {
	ctx := g.Context(agentID)
	return g.decide("write_row", ctx, CanWriteRow(ctx, table, owner),
		mverr.FieldTable(table), ownerField("owner_agent_id", owner))
}

// CheckWriteTable is CanWriteTable against the live switch.
func (g *Gate) CheckWriteTable(agentID int64, table string, owner sql.NullInt64) error {
	ctx := g.Context(agentID)
	return g.decide("write_table", ctx, CanWriteTable(ctx, table, owner),
		mverr.FieldTable(table), ownerField("owner_agent_id", owner))
}

// CheckCreateRelationship is CanCreateRelationship against the live switch.
func (g *Gate) CheckCreateRelationship(agentID int64, from, to sql.NullInt64) error {
	ctx := g.Context(agentID)
	return g.decide("create_relationship", ctx, CanCreateRelationship(ctx, from, to),
		mverr.FieldTable(store.TableMemoryGraph), ownerField("from_agent_id", from), ownerField("to_agent_id", to))
}

// CheckWrite requires only that writes are enabled, for operations with no
// ownership, such as maintenance.
func (g *Gate) CheckWrite(agentID int64, table string) error {
	ctx := g.Context(agentID)
	return g.decide("write", ctx, ctx.WriteEnabled, mverr.FieldTable(table))
}

func (g *Gate) decide(check string, ctx AgentContext, allowed bool, fields ...mverr.Attr) error {
	if allowed {
		metrics.PolicyDecisionsTotal.WithLabelValues(check, metrics.ResultAllowed).Inc()
		return nil
	}
	metrics.PolicyDecisionsTotal.WithLabelValues(check, metrics.ResultDenied).Inc()

	reason := ReasonPolicy
	if !ctx.WriteEnabled {
		reason = ReasonWritesDisabled
	}

	fields = append(fields, mverr.FieldAgentID(ctx.AgentID), mverr.Field("reason", reason))
	g.logger.Debug("write denied", "check", check, "agent_id", ctx.AgentID, "reason", reason)
	return mverr.New(mverr.CodePolicyWriteDenied, "permission denied: "+reason, fields...)
}

func ownerField(key string, owner sql.NullInt64) mverr.Attr {
	if !owner.Valid {
		return mverr.Field(key, nil)
	}
	return mverr.Field(key, owner.Int64)
}
