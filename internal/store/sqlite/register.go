// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memvault Contributors

package sqlite

import "github.com/memvault-dev/memvault/internal/store"

func init() {
	store.RegisterBackend("sqlite", newBackend)
}

func newBackend(cfg store.Config) (store.Backend, error) {
	b, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return b, nil
}
