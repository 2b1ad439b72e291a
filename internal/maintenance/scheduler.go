// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memvault Contributors

package maintenance

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/memvault-dev/memvault/internal/metrics"
	"github.com/memvault-dev/memvault/internal/policy"
	"github.com/memvault-dev/memvault/internal/store"
	mverr "github.com/memvault-dev/memvault/pkg/errors"
	"github.com/memvault-dev/memvault/pkg/health"
)

// Options configures a Scheduler. Zero Cooldowns and DecayFactor take the
// defaults; a zero Probability never triggers opportunistic runs.
type Options struct {
	Probability float64
	Cooldowns   Cooldowns
	DecayFactor float64
	// Rand returns a sample in [0, 1). Defaults to math/rand/v2.
	Rand   func() float64
	Logger *slog.Logger
}

// Scheduler runs due maintenance actions. Concurrent schedulers against the
// same database may both run an action; cooldowns are advisory.
type Scheduler struct {
	jobs        Jobs
	state       StateStore
	sw          policy.Switch
	probability float64
	cooldowns   Cooldowns
	decayFactor float64
	rand        func() float64
	logger      *slog.Logger

	mu     sync.Mutex
	status map[Action]health.Status
}

// New creates a Scheduler. Maintenance only runs while sw reports writes
// enabled.
func New(jobs Jobs, state StateStore, sw policy.Switch, opts Options) *Scheduler {
	if opts.Cooldowns == (Cooldowns{}) {
		opts.Cooldowns = DefaultCooldowns()
	}
	if opts.DecayFactor <= 0 || opts.DecayFactor > 1 {
		opts.DecayFactor = DefaultDecayFactor
	}
	if opts.Rand == nil {
		opts.Rand = rand.Float64
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if sw == nil {
		sw = policy.NewFlag(false)
	}
	return &Scheduler{
		jobs:        jobs,
		state:       state,
		sw:          sw,
		probability: opts.Probability,
		cooldowns:   opts.Cooldowns,
		decayFactor: opts.DecayFactor,
		rand:        opts.Rand,
		logger:      opts.Logger,
		status:      make(map[Action]health.Status),
	}
}

// Status returns a snapshot of every action this scheduler has attempted.
func (s *Scheduler) Status() map[string]health.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]health.Status, len(s.status))
	for a, st := range s.status {
		out[string(a)] = st
	}
	return out
}

// MaybeRun is the opportunistic hook called after foreground mutations. It
// draws one sample and runs Tick only when the sample falls below the
// configured probability.
func (s *Scheduler) MaybeRun(ctx context.Context, now time.Time) ([]Action, error) {
	if !s.sw.WritesEnabled() {
		metrics.MaintenanceTriggersTotal.WithLabelValues("disabled").Inc()
		return nil, nil
	}
	if s.rand() >= s.probability {
		metrics.MaintenanceTriggersTotal.WithLabelValues("skipped").Inc()
		return nil, nil
	}
	metrics.MaintenanceTriggersTotal.WithLabelValues("triggered").Inc()
	return s.Tick(ctx, now)
}

// Tick runs every due action synchronously and records the ones that
// succeeded. Individual action failures are logged and counted; only
// failures to read or persist state are returned.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) ([]Action, error) {
	if !s.sw.WritesEnabled() {
		return nil, nil
	}

	state, err := s.state.LoadState(ctx)
	if err != nil {
		return nil, mverr.Wrap(err, mverr.CodeMaintenanceActionFailure, "loading maintenance state")
	}

	return s.runAll(ctx, Due(state, now, s.cooldowns), now)
}

// Force runs every action regardless of cooldowns. Unlike Tick it reports
// disabled writes as an error, since an operator asked for it explicitly.
func (s *Scheduler) Force(ctx context.Context, now time.Time) ([]Action, error) {
	if !s.sw.WritesEnabled() {
		return nil, mverr.New(mverr.CodePolicyWriteDenied, "maintenance requires writes enabled")
	}
	return s.runAll(ctx, Due(State{}, now, s.cooldowns), now)
}

func (s *Scheduler) runAll(ctx context.Context, due []Action, now time.Time) ([]Action, error) {
	if len(due) == 0 {
		return nil, nil
	}

	var ran []Action
	for _, action := range due {
		if err := s.run(ctx, action); err != nil {
			s.logger.Warn("maintenance action failed", "action", string(action), "error", err)
			continue
		}
		ran = append(ran, action)
	}

	if len(ran) == 0 {
		return nil, nil
	}
	persist := completedPairs(ran)
	if len(persist) == 0 {
		return ran, nil
	}
	if err := s.state.SaveState(ctx, persist, now); err != nil {
		return ran, mverr.Wrap(err, mverr.CodeMaintenanceActionFailure, "saving maintenance state")
	}
	return ran, nil
}

// completedPairs drops decay from ran unless recompute_tiers also succeeded,
// so a failed recompute leaves decay due on the next pass.
func completedPairs(ran []Action) []Action {
	if !slices.Contains(ran, ActionDecay) || slices.Contains(ran, ActionRecomputeTiers) {
		return ran
	}
	out := make([]Action, 0, len(ran)-1)
	for _, a := range ran {
		if a != ActionDecay {
			out = append(out, a)
		}
	}
	return out
}

// Run drives Tick every interval until ctx is cancelled. The probability
// gate does not apply; cooldowns still do.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return mverr.Errorf(mverr.CodeConfigValidateInvalidValue, "maintenance interval must be positive, got %s", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			ran, err := s.Tick(ctx, now.UTC())
			if err != nil {
				s.logger.Error("maintenance tick failed", "error", err)
				continue
			}
			if len(ran) > 0 {
				s.logger.Info("maintenance tick", "actions", ran)
			}
		}
	}
}

func (s *Scheduler) run(ctx context.Context, action Action) error {
	start := time.Now()
	var err error

	switch action {
	case ActionOptimize:
		var res store.OptimizeResult
		res, err = s.jobs.Optimize(ctx)
		if err == nil {
			s.logger.Debug("maintenance optimize", "result", res)
		}
	case ActionRetention:
		var n int64
		n, err = s.jobs.RetentionCleanup(ctx)
		if err == nil {
			s.logger.Debug("maintenance retention", "deleted", n)
		}
	case ActionDecay:
		var n int64
		n, err = s.jobs.ApplyDecay(ctx, s.decayFactor)
		if err == nil {
			s.logger.Debug("maintenance decay", "factor", s.decayFactor, "rows", n)
		}
	case ActionRecomputeTiers:
		var th store.TierThresholds
		th, err = s.jobs.RecomputeTiers(ctx)
		if err == nil {
			s.logger.Debug("maintenance tiers", "thresholds", th)
		}
	default:
		err = mverr.Errorf(mverr.CodeMaintenanceActionFailure, "unknown maintenance action %q", action)
	}

	result := metrics.ResultOK
	if err != nil {
		result = metrics.ResultError
	}
	metrics.MaintenanceRunsTotal.WithLabelValues(string(action), result).Inc()
	metrics.MaintenanceDurationSeconds.WithLabelValues(string(action)).Observe(time.Since(start).Seconds())

	s.mu.Lock()
	st := s.status[action]
	st.Record(start.UTC(), err)
	s.status[action] = st
	s.mu.Unlock()

	return err
}
