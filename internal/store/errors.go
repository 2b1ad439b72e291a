// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memvault Contributors

package store

import (
	"database/sql"
	"errors"

	"github.com/mattn/go-sqlite3"

	mverr "github.com/memvault-dev/memvault/pkg/errors"
)

// Sentinel errors for store operations. Coded errors returned by this package
// and its backends wrap one of these, so both errors.Is and the mverr
// classifiers work.
var (
	// ErrNotFound indicates the requested entity or database file does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a uniqueness or foreign-key constraint was violated.
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput indicates the input parameters are invalid or malformed.
	ErrInvalidInput = errors.New("invalid input")

	// ErrBusy indicates the engine gave up waiting for a lock. The caller may
	// retry; nothing in this module does.
	ErrBusy = errors.New("database busy")

	// ErrDatabase is the catch-all for unexpected engine failures.
	ErrDatabase = errors.New("database error")
)

// MapError classifies an engine error. Lock contention becomes
// CodeStoreEngineBusy and constraint violations become CodeStoreConflict;
// anything else is CodeStoreDatabaseFailure. Errors that already carry a
// code are returned unchanged.
func MapError(err error, msg string, fields ...mverr.Attr) error {
	if err == nil {
		return nil
	}
	if mverr.CodeOf(err) != "" {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return mverr.Wrap(errors.Join(ErrNotFound, err), mverr.CodeStoreEntityNotFound, msg, fields...)
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return mverr.Wrap(errors.Join(ErrBusy, err), mverr.CodeStoreEngineBusy, msg, fields...)
		case sqlite3.ErrConstraint:
			return mverr.Wrap(errors.Join(ErrConflict, err), mverr.CodeStoreConflict, msg, fields...)
		}
	}

	return mverr.Wrap(errors.Join(ErrDatabase, err), mverr.CodeStoreDatabaseFailure, msg, fields...)
}
