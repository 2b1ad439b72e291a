// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memvault Contributors

package health

import "time"

// Status is a point-in-time snapshot of one background job, safe to
// serialize to JSON.
type Status struct {
	Runs          int64      `json:"runs"`
	FailureCount  int64      `json:"failure_count"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
}

// Record folds the outcome of one run at t into s.
func (s *Status) Record(t time.Time, err error) {
	s.Runs++
	if err != nil {
		s.FailureCount++
		s.LastFailureAt = &t
		s.LastError = err.Error()
		return
	}
	s.LastRunAt = &t
}

// Healthy reports whether the most recent run succeeded. A job that never
// ran is healthy.
func (s Status) Healthy() bool {
	if s.LastFailureAt == nil {
		return true
	}
	return s.LastRunAt != nil && s.LastRunAt.After(*s.LastFailureAt)
}
