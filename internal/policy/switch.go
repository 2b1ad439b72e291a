// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memvault Contributors

package policy

import (
	"os"
	"strconv"
	"strings"
	"sync/atomic"
)

// Switch is the live source of the global "writes allowed" flag. It is read
// on every policy decision without locking; a toggle racing with a decision
// may or may not be observed by it, but is always observed by the next one.
type Switch interface {
	WritesEnabled() bool
}

// Flag is an in-process Switch with explicit Set.
type Flag struct {
	v atomic.Bool
}

// NewFlag returns a Flag holding enabled.
func NewFlag(enabled bool) *Flag {
	f := &Flag{}
	f.v.Store(enabled)
	return f
}

func (f *Flag) WritesEnabled() bool { return f.v.Load() }

// Set changes the flag for every subsequent decision.
func (f *Flag) Set(enabled bool) { f.v.Store(enabled) }

// EnvSwitch re-reads an environment variable on every call. Values accepted
// by strconv.ParseBool count; anything else, including unset, is false.
type EnvSwitch string

// DefaultWriteEnv is the variable the CLI binds writes.allow to.
const DefaultWriteEnv EnvSwitch = "MEMVAULT_WRITES_ALLOW"

func (e EnvSwitch) WritesEnabled() bool {
	enabled, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(string(e))))
	return err == nil && enabled
}

// SwitchFunc adapts a function, such as a viper lookup, to Switch.
type SwitchFunc func() bool

func (f SwitchFunc) WritesEnabled() bool { return f() }
