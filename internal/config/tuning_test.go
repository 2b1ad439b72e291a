// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memvault Contributors

package config_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/memvault-dev/memvault/internal/config"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveTuning_Defaults(t *testing.T) {
	tuning, warnings := config.ResolveTuning(config.MapSource{})
	assert.Equal(t, config.DefaultTuning(), tuning)
	assert.Empty(t, warnings)

	tuning, warnings = config.ResolveTuning(nil)
	assert.Equal(t, config.DefaultTuning(), tuning)
	assert.Empty(t, warnings)
}

func TestResolveTuning_InRangeValuesPassThrough(t *testing.T) {
	tuning, warnings := config.ResolveTuning(config.MapSource{
		config.KeyCacheSizeKiB:      "1024",
		config.KeyMmapSizeBytes:     "4194304",
		config.KeyWALAutocheckpoint: "500",
		config.KeyPoolSize:          "3",
		config.KeyVerifyOnConnect:   "true",
	})

	assert.Empty(t, warnings)
	assert.Equal(t, config.Tuning{
		CacheSizeKiB:      1024,
		MmapSizeBytes:     4 << 20,
		WALAutocheckpoint: 500,
		PoolSize:          3,
		VerifyOnConnect:   true,
	}, tuning)
}

func TestResolveTuning_ClampsToNearestBound(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		raw   string
		field string
		want  int64
		get   func(config.Tuning) int64
	}{
		{"cache below", config.KeyCacheSizeKiB, "1", "cache_kib", config.MinCacheKiB, func(c config.Tuning) int64 { return c.CacheSizeKiB }},
		{"cache above", config.KeyCacheSizeKiB, "99999999", "cache_kib", config.MaxCacheKiB, func(c config.Tuning) int64 { return c.CacheSizeKiB }},
		{"mmap below", config.KeyMmapSizeBytes, "0", "mmap_bytes", config.MinMmapBytes, func(c config.Tuning) int64 { return c.MmapSizeBytes }},
		{"mmap above", config.KeyMmapSizeBytes, "9999999999999", "mmap_bytes", config.MaxMmapBytes, func(c config.Tuning) int64 { return c.MmapSizeBytes }},
		{"wal below", config.KeyWALAutocheckpoint, "-4", "wal_autocheckpoint", config.MinWALAutocheckpoint, func(c config.Tuning) int64 { return c.WALAutocheckpoint }},
		{"wal above", config.KeyWALAutocheckpoint, "100001", "wal_autocheckpoint", config.MaxWALAutocheckpoint, func(c config.Tuning) int64 { return c.WALAutocheckpoint }},
		{"pool below", config.KeyPoolSize, "-2", "pool_size", 0, func(c config.Tuning) int64 { return int64(c.PoolSize) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tuning, warnings := config.ResolveTuning(config.MapSource{tt.key: tt.raw})
			assert.Equal(t, tt.want, tt.get(tuning))

			require.Len(t, warnings, 1)
			w := warnings[0]
			assert.Equal(t, config.EventClamped, w.Event)
			require.Contains(t, w.Original, tt.field)
			assert.Equal(t, tt.want, w.Clamped[tt.field])
			assert.NotEqual(t, tt.want, w.Original[tt.field])
		})
	}
}

func TestResolveTuning_PoolSizeHasNoUpperBound(t *testing.T) {
	tuning, warnings := config.ResolveTuning(config.MapSource{config.KeyPoolSize: "100000"})
	assert.Equal(t, 100000, tuning.PoolSize)
	assert.Empty(t, warnings)
}

func TestResolveTuning_SingleAggregateClampEvent(t *testing.T) {
	_, warnings := config.ResolveTuning(config.MapSource{
		config.KeyCacheSizeKiB:      "1",
		config.KeyMmapSizeBytes:     "1",
		config.KeyWALAutocheckpoint: "0",
		config.KeyPoolSize:          "-1",
	})

	require.Len(t, warnings, 1)
	assert.Equal(t, map[string]int64{
		"cache_kib":          1,
		"mmap_bytes":         1,
		"wal_autocheckpoint": 0,
		"pool_size":          -1,
	}, warnings[0].Original)
	assert.Equal(t, map[string]int64{
		"cache_kib":          config.MinCacheKiB,
		"mmap_bytes":         config.MinMmapBytes,
		"wal_autocheckpoint": config.MinWALAutocheckpoint,
		"pool_size":          0,
	}, warnings[0].Clamped)
}

func TestResolveTuning_MalformedFallsBackToDefault(t *testing.T) {
	tests := []struct {
		key string
		def int64
		get func(config.Tuning) int64
	}{
		{config.KeyCacheSizeKiB, config.DefaultCacheKiB, func(c config.Tuning) int64 { return c.CacheSizeKiB }},
		{config.KeyMmapSizeBytes, config.DefaultMmapBytes, func(c config.Tuning) int64 { return c.MmapSizeBytes }},
		{config.KeyWALAutocheckpoint, config.DefaultWALAutocheckpoint, func(c config.Tuning) int64 { return c.WALAutocheckpoint }},
		{config.KeyPoolSize, config.DefaultPoolSize, func(c config.Tuning) int64 { return int64(c.PoolSize) }},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			tuning, warnings := config.ResolveTuning(config.MapSource{tt.key: "12abc"})
			assert.Equal(t, tt.def, tt.get(tuning))

			require.Len(t, warnings, 1)
			assert.Equal(t, config.EventInvalidInt, warnings[0].Event)
			assert.Equal(t, tt.key, warnings[0].Key)
			assert.Equal(t, "12abc", warnings[0].Value)
			assert.Equal(t, tt.def, warnings[0].Default)
		})
	}
}

func TestResolveTuning_BlankIsUnset(t *testing.T) {
	tuning, warnings := config.ResolveTuning(config.MapSource{config.KeyCacheSizeKiB: "   "})
	assert.Equal(t, config.DefaultCacheKiB, tuning.CacheSizeKiB)
	assert.Empty(t, warnings)
}

func TestResolveTuning_VerifyOnConnect(t *testing.T) {
	for _, raw := range []string{"1", "true", "TRUE"} {
		tuning, warnings := config.ResolveTuning(config.MapSource{config.KeyVerifyOnConnect: raw})
		assert.True(t, tuning.VerifyOnConnect, raw)
		assert.Empty(t, warnings)
	}

	tuning, warnings := config.ResolveTuning(config.MapSource{config.KeyVerifyOnConnect: "maybe"})
	assert.False(t, tuning.VerifyOnConnect)
	require.Len(t, warnings, 1)
	assert.Equal(t, config.EventInvalidBool, warnings[0].Event)
}

func TestResolveTuning_Idempotent(t *testing.T) {
	src := config.MapSource{
		config.KeyCacheSizeKiB:      "bogus",
		config.KeyMmapSizeBytes:     "1",
		config.KeyWALAutocheckpoint: "777",
		config.KeyPoolSize:          "-9",
		config.KeyVerifyOnConnect:   "yes",
	}

	t1, w1 := config.ResolveTuning(src)
	t2, w2 := config.ResolveTuning(src)
	assert.Equal(t, t1, t2)
	assert.Equal(t, w1, w2)
}

func TestResolveTuning_FromViperEnv(t *testing.T) {
	t.Setenv("MEMVAULT_TUNING_CACHE_SIZE_KIB", "8")
	t.Setenv("MEMVAULT_TUNING_VERIFY_ON_CONNECT", "1")

	v := viper.New()
	config.SetupEnv(v)

	tuning, warnings := config.ResolveTuning(v)
	assert.Equal(t, config.MinCacheKiB, tuning.CacheSizeKiB)
	assert.True(t, tuning.VerifyOnConnect)
	require.Len(t, warnings, 1)
	assert.Equal(t, int64(8), warnings[0].Original["cache_kib"])
}

func TestLogWarnings(t *testing.T) {
	_, warnings := config.ResolveTuning(config.MapSource{
		config.KeyCacheSizeKiB: "x",
		config.KeyPoolSize:     "-1",
	})
	require.Len(t, warnings, 2)

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	config.LogWarnings(logger, warnings)

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, config.EventInvalidInt)
	assert.Contains(t, out, config.EventClamped)
	assert.Contains(t, out, config.KeyCacheSizeKiB)
}
