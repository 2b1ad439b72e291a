// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memvault Contributors

package health_test

import (
	"errors"
	"testing"
	"time"

	"github.com/memvault-dev/memvault/pkg/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusRecord(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var s health.Status
	assert.True(t, s.Healthy())

	s.Record(t0, nil)
	require.NotNil(t, s.LastRunAt)
	assert.Equal(t, t0, *s.LastRunAt)
	assert.True(t, s.Healthy())

	s.Record(t0.Add(time.Minute), errors.New("disk I/O error"))
	assert.Equal(t, int64(2), s.Runs)
	assert.Equal(t, int64(1), s.FailureCount)
	assert.Equal(t, "disk I/O error", s.LastError)
	assert.False(t, s.Healthy())

	s.Record(t0.Add(2*time.Minute), nil)
	assert.True(t, s.Healthy())
	assert.Equal(t, int64(3), s.Runs)
}
