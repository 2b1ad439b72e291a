// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memvault Contributors

// Package metrics defines the prometheus collectors exported by memvault.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Key constants are exported primarily for documentation reasons.
const (
	PoolAcquireTotalKey         = "memvault_pool_acquire_total"
	ConnectionsOpenedTotalKey   = "memvault_connections_opened_total"
	ConnectionsClosedTotalKey   = "memvault_connections_closed_total"
	PragmaFailuresTotalKey      = "memvault_pragma_failures_total"
	IntegrityCheckFailuresKey   = "memvault_integrity_check_failures_total"
	PolicyDecisionsTotalKey     = "memvault_policy_decisions_total"
	MaintenanceRunsTotalKey     = "memvault_maintenance_runs_total"
	MaintenanceDurationKey      = "memvault_maintenance_duration_seconds"
	ConfigWarningsTotalKey      = "memvault_config_warnings_total"
	QueryDurationSecondsKey     = "memvault_query_duration_seconds"
	SlowQueriesTotalKey         = "memvault_slow_queries_total"
	MaintenanceTriggersTotalKey = "memvault_maintenance_triggers_total"
)

// Label values.
const (
	ResultHit     = "hit"
	ResultMiss    = "miss"
	ResultAllowed = "allowed"
	ResultDenied  = "denied"
	ResultOK      = "ok"
	ResultError   = "error"
)

// Collectors.
var (
	PoolAcquireTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: PoolAcquireTotalKey,
		Help: "Pool acquisitions by mode and result (hit or miss). Counted only when pooling is enabled.",
	}, []string{"mode", "result"})
	ConnectionsOpenedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: ConnectionsOpenedTotalKey,
		Help: "Physical database connections opened, by mode.",
	}, []string{"mode"})
	ConnectionsClosedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: ConnectionsClosedTotalKey,
		Help: "Physical database connections closed, by mode.",
	}, []string{"mode"})
	PragmaFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: PragmaFailuresTotalKey,
		Help: "Tuning pragmas that failed to apply, by pragma.",
	}, []string{"pragma"})
	IntegrityCheckFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: IntegrityCheckFailuresKey,
		Help: "Connect-time integrity checks that did not report ok.",
	})
	PolicyDecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: PolicyDecisionsTotalKey,
		Help: "Write-gate decisions by check and result.",
	}, []string{"check", "result"})
	MaintenanceTriggersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: MaintenanceTriggersTotalKey,
		Help: "Maintenance scheduler invocations by outcome (disabled, skipped, triggered).",
	}, []string{"outcome"})
	MaintenanceRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: MaintenanceRunsTotalKey,
		Help: "Maintenance actions run, by action and result.",
	}, []string{"action", "result"})
	MaintenanceDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: MaintenanceDurationKey,
		Help: "Duration of maintenance actions.",
	}, []string{"action"})
	ConfigWarningsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: ConfigWarningsTotalKey,
		Help: "Tuning configuration warnings by event.",
	}, []string{"event"})
	QueryDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: QueryDurationSecondsKey,
		Help: "Duration of logged queries by statement type.",
	}, []string{"type"})
	SlowQueriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: SlowQueriesTotalKey,
		Help: "Logged queries at or above the slow threshold, by statement type.",
	}, []string{"type"})
)

// Collectors returns every memvault collector.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		PoolAcquireTotal,
		ConnectionsOpenedTotal,
		ConnectionsClosedTotal,
		PragmaFailuresTotal,
		IntegrityCheckFailuresTotal,
		PolicyDecisionsTotal,
		MaintenanceTriggersTotal,
		MaintenanceRunsTotal,
		MaintenanceDurationSeconds,
		ConfigWarningsTotal,
		QueryDurationSeconds,
		SlowQueriesTotal,
	}
}

var registerOnce sync.Once

// Register adds Collectors to the default registry. Repeated calls are no-ops.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(Collectors()...)
	})
}
