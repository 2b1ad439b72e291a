// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memvault Contributors

package metrics_test

import (
	"testing"

	"github.com/memvault-dev/memvault/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorsRegisterCleanly(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	for _, c := range metrics.Collectors() {
		require.NoError(t, reg.Register(c))
	}
}

func TestRegisterIsIdempotent(t *testing.T) {
	assert.NotPanics(t, metrics.Register)
	assert.NotPanics(t, metrics.Register)
}

func TestPoolAcquireTotalLabels(t *testing.T) {
	c := metrics.PoolAcquireTotal.WithLabelValues("read", metrics.ResultHit)
	before := testutil.ToFloat64(c)
	c.Inc()
	assert.InDelta(t, before+1, testutil.ToFloat64(c), 1e-9)
}

func TestConfigWarningsExposition(t *testing.T) {
	metrics.ConfigWarningsTotal.WithLabelValues("backend_config_clamped").Inc()

	assert.GreaterOrEqual(t, testutil.CollectAndCount(metrics.ConfigWarningsTotal, metrics.ConfigWarningsTotalKey), 1)
	assert.GreaterOrEqual(t, testutil.ToFloat64(metrics.ConfigWarningsTotal.WithLabelValues("backend_config_clamped")), 1.0)
}
