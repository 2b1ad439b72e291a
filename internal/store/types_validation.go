// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memvault Contributors

package store

import (
	"regexp"
	"strings"

	mverr "github.com/memvault-dev/memvault/pkg/errors"
)

// Relationship bounds.
const (
	MinConfidence = 0.0
	MaxConfidence = 1.0
	MinWeight     = 1
	MaxWeight     = 10
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Valid reports whether the tier is a known bucket.
func (t Tier) Valid() bool {
	switch t {
	case TierHot, TierWarm, TierCold, TierArchived:
		return true
	default:
		return false
	}
}

// Valid reports whether the relationship type is accepted.
func (r RelationshipType) Valid() bool {
	for _, known := range RelationshipTypes {
		if r == known {
			return true
		}
	}
	return false
}

// Validate checks that the Memory has the fields required for insertion.
func (m Memory) Validate() error {
	if strings.TrimSpace(m.Kind) == "" {
		return mverr.New(mverr.CodeStoreInvalidInput, "memory: Kind is required")
	}
	if strings.TrimSpace(m.Title) == "" {
		return mverr.New(mverr.CodeStoreInvalidInput, "memory: Title is required")
	}
	if m.Tier != "" && !m.Tier.Valid() {
		return mverr.Errorf(mverr.CodeStoreInvalidInput, "memory: invalid tier %q", m.Tier)
	}
	return nil
}

// Validate checks the relationship type, confidence and weight bounds.
func (r Relationship) Validate() error {
	if !r.Type.Valid() {
		return mverr.Errorf(mverr.CodeStoreInvalidInput,
			"relationship: invalid type %q, must be one of %v", r.Type, RelationshipTypes)
	}
	if r.Confidence < MinConfidence || r.Confidence > MaxConfidence {
		return mverr.Errorf(mverr.CodeStoreInvalidInput,
			"relationship: confidence must be between 0.0 and 1.0, got %g", r.Confidence)
	}
	if r.Weight < MinWeight || r.Weight > MaxWeight {
		return mverr.Errorf(mverr.CodeStoreInvalidInput,
			"relationship: weight must be between 1 and 10, got %d", r.Weight)
	}
	return nil
}

// Validate performs the superficial DDL check: the name must be a plain
// identifier and SchemaSQL a single CREATE TABLE statement for that name.
// DDL semantics are left to the engine.
func (a AgentTable) Validate() error {
	if !tableNamePattern.MatchString(a.Name) {
		return mverr.Errorf(mverr.CodeStoreInvalidInput, "agent table: invalid table name %q", a.Name)
	}
	if strings.HasPrefix(strings.ToLower(a.Name), "sqlite_") {
		return mverr.Errorf(mverr.CodeStoreInvalidInput, "agent table: reserved table name %q", a.Name)
	}

	stmt := strings.TrimSpace(a.SchemaSQL)
	stmt = strings.TrimSuffix(stmt, ";")
	if strings.Contains(stmt, ";") {
		return mverr.New(mverr.CodeStoreInvalidInput, "agent table: schema must be a single statement",
			mverr.FieldTable(a.Name))
	}

	fields := strings.Fields(stmt)
	if len(fields) < 3 || !strings.EqualFold(fields[0], "CREATE") || !strings.EqualFold(fields[1], "TABLE") {
		return mverr.New(mverr.CodeStoreInvalidInput, "agent table: schema must be a CREATE TABLE statement",
			mverr.FieldTable(a.Name))
	}

	rest := fields[2:]
	if len(rest) > 3 && strings.EqualFold(rest[0], "IF") && strings.EqualFold(rest[1], "NOT") && strings.EqualFold(rest[2], "EXISTS") {
		rest = rest[3:]
	}
	name := rest[0]
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = name[:i]
	}
	if !strings.EqualFold(strings.Trim(name, "\"`[]"), a.Name) {
		return mverr.Errorf(mverr.CodeStoreInvalidInput,
			"agent table: schema creates %q, expected %q", name, a.Name)
	}
	return nil
}
