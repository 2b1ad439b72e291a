// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memvault Contributors

// Package maintenance schedules optimize, retention, decay and tier
// recomputation against a memory store.
package maintenance

import (
	"context"
	"time"

	"github.com/memvault-dev/memvault/internal/store"
)

// Action names one maintenance job.
type Action string

const (
	ActionOptimize       Action = "optimize"
	ActionRetention      Action = "retention"
	ActionDecay          Action = "decay"
	ActionRecomputeTiers Action = "recompute_tiers"
)

// Settings keys holding the last-run timestamps.
const (
	KeyLastOptimize  = "last_optimize_at"
	KeyLastRetention = "last_retention_at"
	KeyLastDecay     = "last_decay_at"
)

// Default cooldowns and parameters.
const (
	DefaultProbability       = 0.01
	DefaultOptimizeCooldown  = 4 * time.Hour
	DefaultRetentionCooldown = 6 * time.Hour
	DefaultDecayCooldown     = 2 * time.Hour
	DefaultDecayFactor       = 0.9
)

// State is the last time each cooldown-governed action ran. A zero time
// means never.
type State struct {
	LastOptimize  time.Time
	LastRetention time.Time
	LastDecay     time.Time
}

// Cooldowns is the minimum spacing between two runs of each action.
type Cooldowns struct {
	Optimize  time.Duration
	Retention time.Duration
	Decay     time.Duration
}

// DefaultCooldowns returns the standard 4h/6h/2h spacing.
func DefaultCooldowns() Cooldowns {
	return Cooldowns{
		Optimize:  DefaultOptimizeCooldown,
		Retention: DefaultRetentionCooldown,
		Decay:     DefaultDecayCooldown,
	}
}

// Due returns the actions whose cooldown has elapsed at now, in execution
// order. Decay is always followed by tier recomputation.
func Due(state State, now time.Time, c Cooldowns) []Action {
	var due []Action
	if elapsed(state.LastOptimize, now, c.Optimize) {
		due = append(due, ActionOptimize)
	}
	if elapsed(state.LastRetention, now, c.Retention) {
		due = append(due, ActionRetention)
	}
	if elapsed(state.LastDecay, now, c.Decay) {
		due = append(due, ActionDecay, ActionRecomputeTiers)
	}
	return due
}

func elapsed(last, now time.Time, cooldown time.Duration) bool {
	return last.IsZero() || now.Sub(last) >= cooldown
}

// Jobs performs the maintenance work.
type Jobs interface {
	Optimize(ctx context.Context) (store.OptimizeResult, error)
	RetentionCleanup(ctx context.Context) (int64, error)
	ApplyDecay(ctx context.Context, factor float64) (int64, error)
	RecomputeTiers(ctx context.Context) (store.TierThresholds, error)
}

// StateStore persists State.
type StateStore interface {
	LoadState(ctx context.Context) (State, error)
	// SaveState stamps now on every action in ran, leaving the others
	// untouched, in a single transaction.
	SaveState(ctx context.Context, ran []Action, now time.Time) error
}
