// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memvault Contributors

package store

import (
	"sort"
	"sync"

	mverr "github.com/memvault-dev/memvault/pkg/errors"
)

// BackendFactory constructs a Backend for cfg.
type BackendFactory func(cfg Config) (Backend, error)

var (
	factories   = map[string]BackendFactory{}
	factoriesMu sync.RWMutex
)

// RegisterBackend registers a factory for a named storage backend.
// Backend packages call this from init(). This function is goroutine-safe.
func RegisterBackend(name string, f BackendFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// Backends lists the registered backend names in sorted order.
func Backends() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open constructs the backend named by cfg.Backend, defaulting to sqlite.
func Open(cfg Config) (Backend, error) {
	name := cfg.Backend
	if name == "" {
		name = DefaultBackend
	}

	factoriesMu.RLock()
	factory, ok := factories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, mverr.New(mverr.CodeStoreBackendUnsupported, "unsupported storage backend",
			mverr.Field("backend", name))
	}

	return factory(cfg)
}
