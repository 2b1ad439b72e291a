// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memvault Contributors

package config

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	mverr "github.com/memvault-dev/memvault/pkg/errors"
	"github.com/spf13/viper"
)

// Config is the top-level memvault configuration.
type Config struct {
	Database    DatabaseConfig    `mapstructure:"database"`
	Writes      WritesConfig      `mapstructure:"writes"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`

	// Tuning is resolved separately from the raw tuning.* keys so malformed
	// and out-of-range input degrades to warnings instead of failing Load.
	Tuning   Tuning    `mapstructure:"-"`
	Warnings []Warning `mapstructure:"-"`
}

// DatabaseConfig locates the SQLite file and selects the backend.
type DatabaseConfig struct {
	Path    string `mapstructure:"path"`
	Backend string `mapstructure:"backend"`
}

// WritesConfig holds the startup value of the global write switch. The live
// value is re-read on every policy decision.
type WritesConfig struct {
	Allow bool `mapstructure:"allow"`
}

// MaintenanceConfig controls opportunistic and background maintenance.
type MaintenanceConfig struct {
	Probability float64       `mapstructure:"probability"`
	Interval    time.Duration `mapstructure:"interval"`
}

// MetricsConfig controls query metric logging.
type MetricsConfig struct {
	SlowQueryMS int `mapstructure:"slow_query_ms"`
}

// ServerConfig controls the diagnostics HTTP server.
type ServerConfig struct {
	Listen      string   `mapstructure:"listen"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SetDefaults registers default values on v. Tuning keys are deliberately
// absent: ResolveTuning owns their defaults.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "")
	v.SetDefault("database.backend", "sqlite")
	v.SetDefault("writes.allow", false)
	v.SetDefault("maintenance.probability", 0.01)
	v.SetDefault("maintenance.interval", 15*time.Minute)
	v.SetDefault("metrics.slow_query_ms", 250)
	v.SetDefault("server.listen", "127.0.0.1:18790")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// SetupEnv binds environment variables with the MEMVAULT_ prefix.
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix("MEMVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix MEMVAULT_).
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, mverr.Errorf(mverr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	return FromViper(v)
}

// FromViper decodes and validates configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, mverr.Errorf(mverr.CodeConfigValidateInvalidValue, "unmarshalling config: %w", err)
	}
	cfg.Tuning, cfg.Warnings = ResolveTuning(v)

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, mverr.Errorf(mverr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors.
// It returns a slice of all validation errors found, collecting all issues
// rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateDatabase()...)
	errs = append(errs, c.validateMaintenance()...)
	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateLog()...)

	return errs
}

func (c *Config) validateDatabase() []error {
	var errs []error

	validBackends := map[string]bool{"sqlite": true}
	if !validBackends[c.Database.Backend] {
		errs = append(errs, mverr.Errorf(mverr.CodeConfigValidateInvalidValue,
			"config: database.backend must be one of [sqlite], got %q",
			c.Database.Backend,
		))
	}

	return errs
}

func (c *Config) validateMaintenance() []error {
	var errs []error

	if c.Maintenance.Probability < 0 || c.Maintenance.Probability > 1 {
		errs = append(errs, mverr.Errorf(mverr.CodeConfigValidateInvalidValue,
			"config: maintenance.probability must be between 0 and 1, got %g",
			c.Maintenance.Probability,
		))
	}
	if c.Maintenance.Interval < 0 {
		errs = append(errs, mverr.Errorf(mverr.CodeConfigValidateInvalidValue,
			"config: maintenance.interval must not be negative, got %s",
			c.Maintenance.Interval,
		))
	}
	if c.Metrics.SlowQueryMS < 0 {
		errs = append(errs, mverr.Errorf(mverr.CodeConfigValidateInvalidValue,
			"config: metrics.slow_query_ms must not be negative, got %d",
			c.Metrics.SlowQueryMS,
		))
	}

	return errs
}

func (c *Config) validateServer() []error {
	var errs []error

	if c.Server.Listen == "" {
		errs = append(errs, mverr.Errorf(mverr.CodeConfigValidateInvalidValue, "config: server.listen must not be empty"))
		return errs
	}

	_, portStr, err := net.SplitHostPort(c.Server.Listen)
	if err != nil {
		errs = append(errs, mverr.Errorf(mverr.CodeConfigValidateInvalidValue,
			"config: server.listen must be a valid host:port address, got %q: %w",
			c.Server.Listen, err,
		))
		return errs
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		errs = append(errs, mverr.Errorf(mverr.CodeConfigValidateInvalidValue,
			"config: server.listen port must be a number, got %q",
			portStr,
		))
	} else if port < 0 || port > 65535 {
		errs = append(errs, mverr.Errorf(mverr.CodeConfigValidateInvalidValue,
			"config: server.listen port must be between 0 and 65535, got %d",
			port,
		))
	}

	return errs
}

func (c *Config) validateLog() []error {
	var errs []error

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, mverr.Errorf(mverr.CodeConfigValidateInvalidValue,
			"config: log.level must be one of [debug, info, warn, error], got %q",
			c.Log.Level,
		))
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, mverr.Errorf(mverr.CodeConfigValidateInvalidValue,
			"config: log.format must be one of [json, text], got %q",
			c.Log.Format,
		))
	}

	return errs
}
