// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memvault Contributors

package main

import (
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/memvault-dev/memvault/internal/config"
	"github.com/memvault-dev/memvault/internal/policy"
	"github.com/memvault-dev/memvault/internal/store"
	_ "github.com/memvault-dev/memvault/internal/store/sqlite" // registers the sqlite backend
	mverr "github.com/memvault-dev/memvault/pkg/errors"
)

// app carries per-invocation state shared by subcommands. Each root command
// owns its own viper instance so commands built in tests do not leak
// configuration into each other.
type app struct {
	v      *viper.Viper
	cfg    *config.Config
	logger *slog.Logger
}

// NewRootCmd creates the root memvault command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "memvault",
		Short:         "Multi-agent memory store on SQLite",
		Long:          "memvault manages a SQLite-backed memory store shared by cooperating agents: schema, tuning, write gating, backups and maintenance.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	// Global flags, bound to viper keys in initViper.
	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().Bool("writes", false, "allow writes (overrides writes.allow)")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().String("log-format", "", "log format: json or text")

	// Register subcommands
	root.AddCommand(
		newInitCmd(a),
		newMigrateCmd(a),
		newConfigCmd(a),
		newBackupCmd(a),
		newSmokeCmd(a),
		newMaintainCmd(a),
		newServeCmd(a),
		newDoctorCmd(a),
		newVersionCmd(),
	)

	return root
}

func (a *app) init(cmd *cobra.Command) error {
	if err := initViper(cmd, a.v); err != nil {
		return err
	}

	cfg, err := config.FromViper(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	a.logger = newLogger(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(a.logger)

	config.LogWarnings(a.logger, cfg.Warnings)
	if used := a.v.ConfigFileUsed(); used != "" {
		config.WarnInsecurePermissions(used)
	}
	return nil
}

// initViper sets up v with defaults, env bindings, flag bindings, and
// optional config file so the standard precedence (flag > env > file >
// defaults) is handled uniformly.
func initViper(cmd *cobra.Command, v *viper.Viper) error {
	config.SetDefaults(v)
	config.SetupEnv(v)

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return mverr.Errorf(mverr.CodeConfigLoadReadFailure, "reading config file: %w", err)
		}
	} else {
		// Auto-discover memvault.yaml from standard locations.
		// SetConfigType is omitted so viper never matches the bare
		// ./memvault binary.
		v.SetConfigName("memvault")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/memvault")
		v.AddConfigPath("/etc/memvault")
		// No config file is fine; defaults and env vars still apply.
		// Parse or permission errors must surface.
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return mverr.Errorf(mverr.CodeConfigLoadReadFailure, "reading config: %w", err)
			}
			// No config found anywhere, so bootstrap a default to ~/.config/memvault/.
			if def, err := config.DefaultConfigPath(); err == nil {
				if path := config.BootstrapConfig(def); path != "" {
					v.SetConfigFile(path)
					if err := v.ReadInConfig(); err != nil {
						return mverr.Errorf(mverr.CodeConfigLoadReadFailure, "reading bootstrapped config: %w", err)
					}
				}
			}
		}
	}

	// Bind persistent flags to viper keys. Unset flags fall through to env,
	// file and defaults.
	flags := cmd.Root().PersistentFlags()
	for key, flag := range map[string]string{
		"writes.allow": "writes",
		"log.level":    "log-level",
		"log.format":   "log-format",
	} {
		f := flags.Lookup(flag)
		if f == nil || !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return mverr.Errorf(mverr.CodeCLISetupFailure, "binding %s flag: %w", flag, err)
		}
	}

	return nil
}

// writeSwitch re-reads writes.allow on every decision, so flipping
// MEMVAULT_WRITES_ALLOW in a long-running process takes effect immediately.
func (a *app) writeSwitch() policy.Switch {
	return policy.SwitchFunc(func() bool { return a.v.GetBool("writes.allow") })
}

// databasePath resolves the database from the first positional argument or
// database.path.
func (a *app) databasePath(args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	if p := a.cfg.Database.Path; p != "" {
		return p, nil
	}
	return "", mverr.New(mverr.CodeCLIInputInvalid, "database path required: pass it as an argument or set database.path")
}

func (a *app) openBackend(path string) (store.Backend, error) {
	return store.Open(store.Config{
		Backend: a.cfg.Database.Backend,
		Path:    path,
		Tuning:  a.cfg.Tuning,
		Logger:  a.logger,
	})
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
