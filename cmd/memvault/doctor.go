// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memvault Contributors

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

// defaultHTTPClient probes a running diagnostics server. Overridden in tests.
var defaultHTTPClient = &http.Client{
	Timeout: 2 * time.Second,
}

func newDoctorCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostics",
		Long:  "Check the binary, configuration, database health, diagnostics server and free disk space.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr, _ := cmd.Flags().GetString("address")
			if addr == "" {
				addr = a.cfg.Server.Listen
			}
			return a.runDoctor(cmd, addr)
		},
	}

	cmd.Flags().String("address", "", "diagnostics server address to check (defaults to server.listen)")

	return cmd
}

func (a *app) runDoctor(cmd *cobra.Command, addr string) error {
	w := cmd.OutOrStdout()
	ctx := cmd.Context()
	dbPath := a.cfg.Database.Path

	checks := []struct {
		name string
		fn   func() string
	}{
		{"Binary", checkBinary},
		{"Platform", checkPlatform},
		{"Config", a.checkConfig},
		{"Database", func() string { return a.checkDatabase(ctx, dbPath) }},
		{"Server", func() string { return checkServer(ctx, addr) }},
		{"Disk Space", func() string { return checkDiskSpace(dbPath) }},
	}

	for _, c := range checks {
		if _, err := fmt.Fprintf(w, "%-20s %s\n", c.name+":", c.fn()); err != nil {
			return err
		}
	}

	return nil
}

func checkBinary() string {
	return fmt.Sprintf("memvault %s (%s/%s)", version, runtime.GOOS, runtime.GOARCH)
}

func checkPlatform() string {
	return fmt.Sprintf("%s/%s, Go %s", runtime.GOOS, runtime.GOARCH, runtime.Version())
}

func (a *app) checkConfig() string {
	if f := a.v.ConfigFileUsed(); f != "" {
		return fmt.Sprintf("loaded from %s", f)
	}
	return "using defaults (no config file found)"
}

func (a *app) checkDatabase(ctx context.Context, path string) string {
	if path == "" {
		return "not configured (set database.path)"
	}
	if err := requireFile(path); err != nil {
		return err.Error()
	}
	b, err := a.openBackend(path)
	if err != nil {
		return fmt.Sprintf("error: %s", err)
	}
	defer b.Close() //nolint:errcheck

	h := b.Health(ctx)
	if ok, _ := h["ok"].(bool); !ok {
		return fmt.Sprintf("unhealthy at %s: %v", path, h["error"])
	}
	return fmt.Sprintf("ok at %s (journal_mode=%v)", path, h["journal_mode"])
}

func checkServer(ctx context.Context, addr string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/debug/ready", nil)
	if err != nil {
		return fmt.Sprintf("error: %s", err)
	}
	resp, err := defaultHTTPClient.Do(req)
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "dial" {
			return fmt.Sprintf("not running at %s (run 'memvault serve')", addr)
		}
		return fmt.Sprintf("error: %s", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Sprintf("unexpected status %d at %s", resp.StatusCode, addr)
	}
	return fmt.Sprintf("ready at %s", addr)
}

func checkDiskSpace(dbPath string) string {
	path := filepath.Dir(dbPath)
	if _, err := os.Stat(path); dbPath == "" || err != nil {
		// Fall back to the home directory until a database exists.
		path, _ = os.UserHomeDir()
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return fmt.Sprintf("unable to check: %s", err)
	}

	return humanize.IBytes(stat.Bavail*uint64(stat.Bsize)) + " available"
}
