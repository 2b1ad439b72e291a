// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memvault Contributors

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/memvault-dev/memvault/internal/maintenance"
	"github.com/memvault-dev/memvault/internal/memory"
	"github.com/memvault-dev/memvault/internal/metrics"
	"github.com/memvault-dev/memvault/internal/policy"
	"github.com/memvault-dev/memvault/internal/server"
	"github.com/memvault-dev/memvault/internal/store"
)

// wire builds the memory service and its scheduler over b, both gated by
// the live write switch.
func (a *app) wire(b store.Backend, probability float64) (*memory.Service, *maintenance.Scheduler) {
	sw := a.writeSwitch()
	svc := memory.New(b, policy.NewGate(sw, a.logger), memory.Options{
		SlowQuery: time.Duration(a.cfg.Metrics.SlowQueryMS) * time.Millisecond,
		Logger:    a.logger,
	})
	sched := maintenance.New(svc, svc, sw, maintenance.Options{
		Probability: probability,
		Logger:      a.logger,
	})
	return svc, sched
}

func newMaintainCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "maintain [db]",
		Short: "Run every maintenance action now",
		Long:  "Force optimize, retention cleanup, decay and tier recomputation regardless of cooldowns. Requires writes to be enabled.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := a.databasePath(args)
			if err != nil {
				return err
			}
			if err := requireFile(path); err != nil {
				return err
			}
			b, err := a.openBackend(path)
			if err != nil {
				return err
			}
			defer b.Close() //nolint:errcheck

			_, sched := a.wire(b, 0)
			ran, err := sched.Force(cmd.Context(), time.Now().UTC())
			for _, action := range ran {
				if _, werr := fmt.Fprintf(cmd.OutOrStdout(), "ran %s\n", action); werr != nil {
					return werr
				}
			}
			return err
		},
	}
}

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [db]",
		Short: "Start the diagnostics server and background maintenance",
		Long:  "Serve health, configuration and metrics over HTTP while running maintenance on an interval until interrupted.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := a.databasePath(args)
			if err != nil {
				return err
			}
			if err := requireFile(path); err != nil {
				return err
			}
			listen := a.cfg.Server.Listen
			if l, _ := cmd.Flags().GetString("listen"); l != "" {
				listen = l
			}

			b, err := a.openBackend(path)
			if err != nil {
				return err
			}
			defer b.Close() //nolint:errcheck

			metrics.Register()
			svc, sched := a.wire(b, a.cfg.Maintenance.Probability)
			svc.SetScheduler(sched)

			srv, err := server.New(server.Config{
				ListenAddr:  listen,
				CORSOrigins: a.cfg.Server.CORSOrigins,
				Version:     version,
			}, server.Deps{
				Health:      svc,
				Tuning:      a.cfg.Tuning,
				Writes:      a.writeSwitch(),
				Maintenance: sched,
				Logger:      a.logger,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, srv, sched, a.cfg.Maintenance.Interval)
		},
	}
	cmd.Flags().String("listen", "", "override listen address (host:port)")
	return cmd
}

// serve runs the server and, when interval is positive, the maintenance
// loop until ctx is cancelled or either fails.
func serve(ctx context.Context, srv *server.Server, sched *maintenance.Scheduler, interval time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(ctx) })
	if interval > 0 {
		g.Go(func() error { return sched.Run(ctx, interval) })
	}
	return g.Wait()
}
