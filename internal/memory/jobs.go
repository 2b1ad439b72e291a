// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memvault Contributors

package memory

import (
	"context"
	"crypto/md5" //nolint:gosec // fingerprint, not a security boundary
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/memvault-dev/memvault/internal/metrics"
	"github.com/memvault-dev/memvault/internal/store"
	mverr "github.com/memvault-dev/memvault/pkg/errors"
)

// Optimize refreshes planner statistics, vacuums when the freelist has grown
// past a threshold, and records the run in optimization_log.
func (s *Service) Optimize(ctx context.Context) (store.OptimizeResult, error) {
	if err := s.gate.CheckWrite(SystemAgentID, "optimization_log"); err != nil {
		return store.OptimizeResult{}, err
	}

	// VACUUM cannot run inside a transaction, so this works on a bare handle.
	h, err := s.backend.Connect(ctx, true)
	if err != nil {
		return store.OptimizeResult{}, err
	}
	defer h.Close() //nolint:errcheck

	res := store.OptimizeResult{RunID: uuid.NewString()}

	start := time.Now()
	if _, err := h.ExecContext(ctx, `ANALYZE`); err != nil {
		return res, store.MapError(err, "analyze")
	}
	res.AnalyzeMS = time.Since(start).Milliseconds()

	var freelist int64
	if err := h.QueryRowContext(ctx, `PRAGMA freelist_count`).Scan(&freelist); err != nil {
		return res, store.MapError(err, "reading freelist_count")
	}
	if freelist > vacuumFreelistThreshold {
		start = time.Now()
		if _, err := h.ExecContext(ctx, `VACUUM`); err != nil {
			return res, store.MapError(err, "vacuum")
		}
		res.VacuumMS = time.Since(start).Milliseconds()
		res.ReclaimedPages = freelist
	}

	if _, err := h.ExecContext(ctx, `PRAGMA optimize`); err != nil {
		return res, store.MapError(err, "pragma optimize")
	}

	if err := logOptimization(ctx, h, res.RunID, optimizationTypeOptimize, res.AnalyzeMS+res.VacuumMS, res); err != nil {
		return res, err
	}

	s.logger.Info("database optimized",
		"run_id", res.RunID,
		"analyze_ms", res.AnalyzeMS,
		"vacuum_ms", res.VacuumMS,
		"reclaimed_pages", res.ReclaimedPages,
	)
	return res, nil
}

// RetentionCleanup deletes optimization_log and query_metrics rows older
// than performance_monitoring_retention_days. It returns the rows deleted.
func (s *Service) RetentionCleanup(ctx context.Context) (int64, error) {
	if err := s.gate.CheckWrite(SystemAgentID, "query_metrics"); err != nil {
		return 0, err
	}

	var deleted int64
	start := time.Now()
	err := store.WithTx(ctx, s.backend, func(tx *sql.Tx) error {
		days, err := intSetting(ctx, tx, settingRetentionDays, DefaultRetentionDays)
		if err != nil {
			return err
		}
		// Zero keeps nothing older than now.
		if days < 0 {
			days = DefaultRetentionDays
		}
		modifier := "-" + strconv.FormatInt(days, 10) + " days"

		for _, q := range []string{
			`DELETE FROM optimization_log WHERE executed_at < datetime('now', ?)`,
			`DELETE FROM query_metrics WHERE created_at < datetime('now', ?)`,
		} {
			res, err := tx.ExecContext(ctx, q, modifier)
			if err != nil {
				return store.MapError(err, "retention cleanup")
			}
			n, _ := res.RowsAffected()
			deleted += n
		}

		return logOptimization(ctx, tx, uuid.NewString(), optimizationTypeRetention,
			time.Since(start).Milliseconds(), map[string]int64{"deleted": deleted, "retention_days": days})
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("retention cleanup", "deleted", deleted)
	return deleted, nil
}

// ApplyDecay scales every access count by factor, truncating toward zero.
func (s *Service) ApplyDecay(ctx context.Context, factor float64) (int64, error) {
	if factor <= 0 || factor > 1 || math.IsNaN(factor) {
		return 0, mverr.Errorf(mverr.CodeStoreInvalidInput, "decay factor must be in (0, 1], got %g", factor)
	}
	if err := s.gate.CheckWrite(SystemAgentID, store.TableMemory); err != nil {
		return 0, err
	}

	var n int64
	err := store.WithTx(ctx, s.backend, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE memory SET access_count = CAST(access_count * ? AS INTEGER) WHERE access_count > 0`, factor)
		if err != nil {
			return store.MapError(err, "applying decay")
		}
		n, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Debug("access decay applied", "factor", factor, "rows", n)
	return n, nil
}

// RecomputeTiers derives the 30th, 60th and 90th percentiles of access_count
// over non-archived memories, stores them in settings, and reassigns tiers:
// hot at or above p90, warm at or above p30, cold below. Archived memories
// keep their tier.
func (s *Service) RecomputeTiers(ctx context.Context) (store.TierThresholds, error) {
	if err := s.gate.CheckWrite(SystemAgentID, store.TableMemory); err != nil {
		return store.TierThresholds{}, err
	}

	var th store.TierThresholds
	err := store.WithTx(ctx, s.backend, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT access_count FROM memory WHERE memory_tier != 'archived' ORDER BY access_count`)
		if err != nil {
			return store.MapError(err, "reading access counts")
		}
		var counts []int64
		for rows.Next() {
			var c int64
			if err := rows.Scan(&c); err != nil {
				rows.Close() //nolint:errcheck
				return store.MapError(err, "scanning access count")
			}
			counts = append(counts, c)
		}
		if err := rows.Close(); err != nil {
			return store.MapError(err, "reading access counts")
		}

		th = store.TierThresholds{
			P30: percentile(counts, 0.30),
			P60: percentile(counts, 0.60),
			P90: percentile(counts, 0.90),
		}

		for key, v := range map[string]int64{
			settingTierColdThreshold: th.P30,
			settingTierWarmThreshold: th.P60,
			settingTierHotThreshold:  th.P90,
		} {
			if err := putSetting(ctx, tx, key, strconv.FormatInt(v, 10)); err != nil {
				return err
			}
		}

		if len(counts) == 0 {
			return nil
		}
		const q = `UPDATE memory SET memory_tier = CASE
	WHEN access_count >= ? THEN 'hot'
	WHEN access_count >= ? THEN 'warm'
	ELSE 'cold' END
WHERE memory_tier != 'archived'`
		if _, err := tx.ExecContext(ctx, q, th.P90, th.P30); err != nil {
			return store.MapError(err, "assigning tiers")
		}
		return nil
	})
	if err != nil {
		return store.TierThresholds{}, err
	}

	s.logger.Debug("tiers recomputed", "p30", th.P30, "p60", th.P60, "p90", th.P90)
	return th, nil
}

// LogQueryMetrics records one query execution. The query text is stored
// only as a 16 hex digit fingerprint. Executions at or above the slow query
// threshold are also logged as warnings. The row is skipped while writes are
// disabled; prometheus observations are not.
func (s *Service) LogQueryMetrics(ctx context.Context, agentID int64, query string, elapsed time.Duration, rowsAffected int64, cacheHit bool) error {
	fp := s.fingerprint(query)
	qm := store.QueryMetric{
		AgentID:      nullOwner(agentID),
		QueryHash:    fp.hash,
		QueryType:    fp.kind,
		Elapsed:      elapsed,
		RowsAffected: rowsAffected,
		CacheHit:     cacheHit,
	}

	metrics.QueryDurationSeconds.WithLabelValues(qm.QueryType).Observe(elapsed.Seconds())
	if elapsed >= s.slowQuery {
		metrics.SlowQueriesTotal.WithLabelValues(qm.QueryType).Inc()
		s.logger.Warn("slow query",
			"agent_id", agentID,
			"query_hash", qm.QueryHash,
			"query_type", qm.QueryType,
			"elapsed_ms", elapsed.Milliseconds(),
			"rows_affected", rowsAffected,
		)
	}

	if !s.gate.WritesEnabled() {
		s.logger.Debug("query metric not persisted; writes disabled", "query_hash", qm.QueryHash)
		return nil
	}

	const q = `INSERT INTO query_metrics (agent_id, query_hash, query_type, execution_time_ms, rows_affected, cache_hit)
VALUES (?, ?, ?, ?, ?, ?)`
	return store.WithTx(ctx, s.backend, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, q, qm.AgentID, qm.QueryHash, qm.QueryType,
			qm.Elapsed.Milliseconds(), qm.RowsAffected, qm.CacheHit)
		return store.MapError(err, "logging query metrics", mverr.FieldAgentID(agentID))
	})
}

type queryFingerprint struct {
	hash string
	kind string
}

// fingerprint returns the hash and type of query, memoized because agents
// repeat the same statements.
func (s *Service) fingerprint(query string) queryFingerprint {
	if v, ok := s.fingerprints.Get(query); ok {
		return v.(queryFingerprint)
	}
	fp := queryFingerprint{hash: QueryHash(query), kind: QueryType(query)}
	s.fingerprints.Add(query, fp)
	return fp
}

// QueryHash fingerprints query text.
func QueryHash(query string) string {
	sum := md5.Sum([]byte(query)) //nolint:gosec
	return hex.EncodeToString(sum[:])[:16]
}

// QueryType is the upper-cased leading keyword of query.
func QueryType(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return "UNKNOWN"
	}
	return strings.ToUpper(fields[0])
}

// percentile is the nearest-rank percentile of sorted values.
func percentile(sorted []int64, q float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(q * float64(len(sorted))))
	rank = min(max(rank, 1), len(sorted))
	return sorted[rank-1]
}

func logOptimization(ctx context.Context, ex execer, runID, kind string, durationMS int64, details any) error {
	raw, err := json.Marshal(details)
	if err != nil {
		raw = []byte("{}")
	}
	const q = `INSERT INTO optimization_log (run_id, optimization_type, duration_ms, triggered_by, details)
VALUES (?, ?, ?, ?, ?)`
	if _, err := ex.ExecContext(ctx, q, runID, kind, durationMS, optimizationTriggeredBy, string(raw)); err != nil {
		return store.MapError(err, "logging optimization", mverr.Field("run_id", runID))
	}
	return nil
}
