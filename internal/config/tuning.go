// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memvault Contributors

package config

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/memvault-dev/memvault/internal/metrics"
)

// Tuning keys as seen by viper. With the MEMVAULT env prefix these map to
// MEMVAULT_TUNING_CACHE_SIZE_KIB and friends.
const (
	KeyCacheSizeKiB      = "tuning.cache_size_kib"
	KeyMmapSizeBytes     = "tuning.mmap_size_bytes"
	KeyWALAutocheckpoint = "tuning.wal_autocheckpoint"
	KeyPoolSize          = "tuning.pool_size"
	KeyVerifyOnConnect   = "tuning.verify_on_connect"
)

// Legal ranges (inclusive) and defaults for the engine tuning knobs.
const (
	MinCacheKiB     int64 = 16
	MaxCacheKiB     int64 = 512 * 1024
	DefaultCacheKiB int64 = 64 * 1024

	MinMmapBytes     int64 = 1 << 20
	MaxMmapBytes     int64 = 2 << 30
	DefaultMmapBytes int64 = 256 << 20

	MinWALAutocheckpoint     int64 = 1
	MaxWALAutocheckpoint     int64 = 100_000
	DefaultWALAutocheckpoint int64 = 1000

	DefaultPoolSize int64 = 0
)

// Warning events emitted by ResolveTuning.
const (
	EventInvalidInt  = "invalid_env_int"
	EventInvalidBool = "invalid_env_bool"
	EventClamped     = "backend_config_clamped"
)

// Tuning holds the engine parameters applied to every writable connection,
// plus the pool capacity. It is immutable once resolved.
type Tuning struct {
	CacheSizeKiB      int64 `json:"cache_kib" yaml:"cache_kib"`
	MmapSizeBytes     int64 `json:"mmap_bytes" yaml:"mmap_bytes"`
	WALAutocheckpoint int64 `json:"wal_autocheckpoint" yaml:"wal_autocheckpoint"`
	PoolSize          int   `json:"pool_size" yaml:"pool_size"`
	VerifyOnConnect   bool  `json:"verify_on_connect" yaml:"verify_on_connect"`
}

// DefaultTuning returns the tuning used when no input is given.
func DefaultTuning() Tuning {
	return Tuning{
		CacheSizeKiB:      DefaultCacheKiB,
		MmapSizeBytes:     DefaultMmapBytes,
		WALAutocheckpoint: DefaultWALAutocheckpoint,
		PoolSize:          int(DefaultPoolSize),
	}
}

// Warning describes a tuning input that was replaced by a default or clamped
// into range. Warnings never fail resolution.
type Warning struct {
	Event string

	// Set for invalid_env_int / invalid_env_bool.
	Key     string
	Value   string
	Default any

	// Set for backend_config_clamped: offending inputs by field, and the
	// final value of every numeric field.
	Original map[string]int64
	Clamped  map[string]int64
}

// Source is the raw key/value input. *viper.Viper satisfies it.
type Source interface {
	GetString(key string) string
	IsSet(key string) bool
}

// MapSource adapts a plain map to Source.
type MapSource map[string]string

func (m MapSource) GetString(key string) string { return m[key] }

func (m MapSource) IsSet(key string) bool {
	_, ok := m[key]
	return ok
}

// ResolveTuning derives Tuning from src. Malformed integers fall back to
// their defaults and out-of-range values are clamped to the nearest bound.
// The result depends only on src.
func ResolveTuning(src Source) (Tuning, []Warning) {
	var warnings []Warning

	readInt := func(key string, def int64) int64 {
		raw, ok := lookup(src, key)
		if !ok {
			return def
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			warnings = append(warnings, Warning{Event: EventInvalidInt, Key: key, Value: raw, Default: def})
			return def
		}
		return n
	}

	cacheKiB := readInt(KeyCacheSizeKiB, DefaultCacheKiB)
	mmapBytes := readInt(KeyMmapSizeBytes, DefaultMmapBytes)
	walAC := readInt(KeyWALAutocheckpoint, DefaultWALAutocheckpoint)
	poolSize := readInt(KeyPoolSize, DefaultPoolSize)

	verify := false
	if raw, ok := lookup(src, KeyVerifyOnConnect); ok {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			warnings = append(warnings, Warning{Event: EventInvalidBool, Key: KeyVerifyOnConnect, Value: raw, Default: false})
		} else {
			verify = b
		}
	}

	original := map[string]int64{}
	cacheKiB = clamp(original, "cache_kib", cacheKiB, MinCacheKiB, MaxCacheKiB)
	mmapBytes = clamp(original, "mmap_bytes", mmapBytes, MinMmapBytes, MaxMmapBytes)
	walAC = clamp(original, "wal_autocheckpoint", walAC, MinWALAutocheckpoint, MaxWALAutocheckpoint)
	if poolSize < 0 {
		original["pool_size"] = poolSize
		poolSize = 0
	}

	if len(original) > 0 {
		warnings = append(warnings, Warning{
			Event:    EventClamped,
			Original: original,
			Clamped: map[string]int64{
				"cache_kib":          cacheKiB,
				"mmap_bytes":         mmapBytes,
				"wal_autocheckpoint": walAC,
				"pool_size":          poolSize,
			},
		})
	}

	return Tuning{
		CacheSizeKiB:      cacheKiB,
		MmapSizeBytes:     mmapBytes,
		WALAutocheckpoint: walAC,
		PoolSize:          int(poolSize),
		VerifyOnConnect:   verify,
	}, warnings
}

// LogWarnings emits each warning as a structured Warn event and counts it.
func LogWarnings(logger *slog.Logger, warnings []Warning) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, w := range warnings {
		metrics.ConfigWarningsTotal.WithLabelValues(w.Event).Inc()
		switch w.Event {
		case EventClamped:
			logger.Warn(w.Event, "original", w.Original, "clamped", w.Clamped)
		default:
			logger.Warn(w.Event, "key", w.Key, "value", w.Value, "default", w.Default)
		}
	}
}

func lookup(src Source, key string) (string, bool) {
	if src == nil || !src.IsSet(key) {
		return "", false
	}
	raw := strings.TrimSpace(src.GetString(key))
	if raw == "" {
		return "", false
	}
	return raw, true
}

func clamp(original map[string]int64, field string, v, lo, hi int64) int64 {
	if v >= lo && v <= hi {
		return v
	}
	original[field] = v
	return min(hi, max(lo, v))
}
