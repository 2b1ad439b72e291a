// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memvault Contributors

// Package memory implements the agent memory toolkit on top of a store
// backend: memories, the memory graph, per-agent tables and the maintenance
// jobs that keep them healthy. Every mutation passes through the policy gate.
package memory

import (
	"context"
	"database/sql"
	"log/slog"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/memvault-dev/memvault/internal/maintenance"
	"github.com/memvault-dev/memvault/internal/policy"
	"github.com/memvault-dev/memvault/internal/store"
	mverr "github.com/memvault-dev/memvault/pkg/errors"
)

// SystemAgentID is the caller identity used for maintenance and other work
// not done on behalf of a registered agent.
const SystemAgentID int64 = 0

// Defaults for settings that may be missing or malformed.
const (
	DefaultSlowQuery          = 250 * time.Millisecond
	DefaultMaxAgentTables     = 10
	DefaultRetentionDays      = 30
	DefaultListLimit          = 100
	fingerprintCacheSize      = 1024
	vacuumFreelistThreshold   = 100
	settingMaxAgentTables     = "max_agent_tables_per_agent"
	settingRetentionDays      = "performance_monitoring_retention_days"
	settingTierHotThreshold   = "tier_hot_threshold"
	settingTierWarmThreshold  = "tier_warm_threshold"
	settingTierColdThreshold  = "tier_cold_threshold"
	optimizationTriggeredBy   = "memvault"
	optimizationTypeOptimize  = "OPTIMIZE"
	optimizationTypeRetention = "RETENTION"
)

var (
	_ maintenance.Jobs       = (*Service)(nil)
	_ maintenance.StateStore = (*Service)(nil)
)

// Options configures a Service.
type Options struct {
	// SlowQuery is the threshold at which LogQueryMetrics also logs a
	// warning. Zero means DefaultSlowQuery.
	SlowQuery time.Duration
	Logger    *slog.Logger
	// Now is the clock handed to the maintenance scheduler.
	Now func() time.Time
}

// Service is the memory toolkit.
type Service struct {
	backend   store.Backend
	gate      *policy.Gate
	scheduler *maintenance.Scheduler
	slowQuery time.Duration
	logger    *slog.Logger
	now       func() time.Time

	// fingerprints maps query text to its queryFingerprint.
	fingerprints *lru.Cache
}

// New creates a Service over b. All writes are checked against gate.
func New(b store.Backend, gate *policy.Gate, opts Options) *Service {
	if opts.SlowQuery <= 0 {
		opts.SlowQuery = DefaultSlowQuery
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	fingerprints, err := lru.New(fingerprintCacheSize)
	if err != nil {
		panic(err.Error()) // Only errors on size <= 0.
	}
	return &Service{
		backend:      b,
		gate:         gate,
		slowQuery:    opts.SlowQuery,
		logger:       opts.Logger,
		now:          opts.Now,
		fingerprints: fingerprints,
	}
}

// SetScheduler attaches the scheduler invoked opportunistically after
// mutations. A nil scheduler disables opportunistic maintenance.
func (s *Service) SetScheduler(sched *maintenance.Scheduler) {
	s.scheduler = sched
}

// Health reports backend health.
func (s *Service) Health(ctx context.Context) map[string]any {
	return s.backend.Health(ctx)
}

// Setting returns one value from the settings table.
func (s *Service) Setting(ctx context.Context, key string) (string, error) {
	h, err := s.reader(ctx)
	if err != nil {
		return "", err
	}
	defer h.Close() //nolint:errcheck

	var value string
	err = h.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		return "", store.MapError(err, "reading setting", mverr.Field("key", key))
	}
	return value, nil
}

// Settings returns the whole settings table.
func (s *Service) Settings(ctx context.Context) (map[string]string, error) {
	h, err := s.reader(ctx)
	if err != nil {
		return nil, err
	}
	defer h.Close() //nolint:errcheck

	rows, err := h.QueryContext(ctx, `SELECT key, value FROM settings ORDER BY key`)
	if err != nil {
		return nil, store.MapError(err, "listing settings")
	}
	defer rows.Close() //nolint:errcheck

	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, store.MapError(err, "scanning setting")
		}
		out[k] = v
	}
	return out, store.MapError(rows.Err(), "listing settings")
}

// reader opens a handle for reads. While writes are enabled it is a writable
// handle so that reads observe WAL content committed by pooled writers; an
// immutable read-only handle would not.
func (s *Service) reader(ctx context.Context) (store.Handle, error) {
	return s.backend.Connect(ctx, s.gate.WritesEnabled())
}

// maybeMaintain hands control to the scheduler after a mutation. Scheduler
// failures never fail the mutation.
func (s *Service) maybeMaintain(ctx context.Context) {
	if s.scheduler == nil {
		return
	}
	ran, err := s.scheduler.MaybeRun(ctx, s.now())
	if err != nil {
		s.logger.Warn("opportunistic maintenance failed", "error", err)
		return
	}
	if len(ran) > 0 {
		s.logger.Info("opportunistic maintenance", "actions", ran)
	}
}

// intSetting reads an integer setting inside tx, falling back to def when
// the row is missing or not a number.
func intSetting(ctx context.Context, q querier, key string, def int64) (int64, error) {
	var raw string
	err := q.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return def, nil
	}
	if err != nil {
		return 0, store.MapError(err, "reading setting", mverr.Field("key", key))
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def, nil
	}
	return n, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func putSetting(ctx context.Context, ex execer, key, value string) error {
	const q = `INSERT INTO settings (key, value, updated_at) VALUES (?, ?, datetime('now'))
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	if _, err := ex.ExecContext(ctx, q, key, value); err != nil {
		return store.MapError(err, "writing setting", mverr.Field("key", key))
	}
	return nil
}

// sqliteTimeLayout is the format produced by datetime('now').
const sqliteTimeLayout = "2006-01-02 15:04:05"

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(sqliteTimeLayout, s); err == nil {
		return t
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullOwner(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: true}
}
