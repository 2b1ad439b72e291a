// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memvault Contributors

package store

import (
	"database/sql"
	"time"
)

// Tables with ownership rules.
const (
	TableMemory      = "memory"
	TableMemoryGraph = "memory_graph"
	TableAgentTables = "agent_tables"
	TableSettings    = "settings"
)

// --- Memory types ---

// Tier is the access-frequency bucket of a memory.
type Tier string

const (
	TierHot      Tier = "hot"
	TierWarm     Tier = "warm"
	TierCold     Tier = "cold"
	TierArchived Tier = "archived"
)

// Memory is one stored memory row. AgentID is null for shared memories.
type Memory struct {
	ID           int64
	AgentID      sql.NullInt64
	ProjectID    sql.NullInt64
	Kind         string
	Title        string
	Body         string
	AccessCount  int64
	LastAccessed time.Time
	Tier         Tier
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MemoryFilter narrows ListMemories. Zero values mean "any".
type MemoryFilter struct {
	AgentID sql.NullInt64
	Kind    string
	Tier    Tier
	Limit   int
	Offset  int
}

// --- Relationship types ---

// RelationshipType names an edge in the memory graph.
type RelationshipType string

const (
	RelBuildsOn    RelationshipType = "builds_on"
	RelContradicts RelationshipType = "contradicts"
	RelSupports    RelationshipType = "supports"
	RelObsoletes   RelationshipType = "obsoletes"
	RelExtends     RelationshipType = "extends"
	RelReferences  RelationshipType = "references"
)

// RelationshipTypes lists every accepted relationship type.
var RelationshipTypes = []RelationshipType{
	RelBuildsOn, RelContradicts, RelSupports, RelObsoletes, RelExtends, RelReferences,
}

// Relationship is a directed edge between two memories.
type Relationship struct {
	ID         int64
	FromID     int64
	ToID       int64
	Type       RelationshipType
	Confidence float64
	Weight     int
	CreatedAt  time.Time
}

// --- Agent table types ---

// AgentTable is a custom table registered by an agent.
type AgentTable struct {
	Name      string
	AgentID   sql.NullInt64
	Purpose   string
	SchemaSQL string
	TableType string
	CreatedAt time.Time
}

// --- Maintenance types ---

// TierThresholds are the access_count percentiles used to assign tiers.
type TierThresholds struct {
	P30 int64 `json:"p30"`
	P60 int64 `json:"p60"`
	P90 int64 `json:"p90"`
}

// OptimizeResult reports what an optimize pass did.
type OptimizeResult struct {
	RunID          string `json:"run_id"`
	AnalyzeMS      int64  `json:"analyze_ms"`
	VacuumMS       int64  `json:"vacuum_ms,omitempty"`
	ReclaimedPages int64  `json:"reclaimed_pages,omitempty"`
}

// QueryMetric is one row of query_metrics.
type QueryMetric struct {
	AgentID      sql.NullInt64
	QueryHash    string
	QueryType    string
	Elapsed      time.Duration
	RowsAffected int64
	CacheHit     bool
}

// ListOpts controls pagination for list operations.
type ListOpts struct {
	Limit  int
	Offset int
}
