// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memvault Contributors

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeStoreOpenNotFound       Code = "store.open.not_found"
	CodeStorePathDirectory      Code = "store.path.invalid_input"
	CodeStoreEntityNotFound     Code = "store.entity.get.not_found"
	CodeStoreDatabaseFailure    Code = "store.database.failure"
	CodeStoreEngineBusy         Code = "store.engine.busy"
	CodeStoreBackendUnsupported Code = "store.backend.unsupported"
	CodeStoreConflict           Code = "store.conflict"
	CodeStoreInvalidInput       Code = "store.invalid_input"
	CodeStoreQuotaExceeded      Code = "store.agent_table.quota.exceeded"
	CodeStoreMigrationFailure   Code = "store.migration.failure"
	CodeStoreBackupFailure      Code = "store.backup.failure"

	CodePolicyWriteDenied Code = "policy.write.denied"

	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"

	CodeMaintenanceActionFailure Code = "maintenance.action.failure"

	CodeServerConfigInvalid   Code = "server.config.invalid"
	CodeServerInternalFailure Code = "server.internal.failure"
	CodeServerUnavailable     Code = "server.health.unavailable"

	CodeCLISetupFailure Code = "cli.setup.failure"
	CodeCLIInputInvalid Code = "cli.input.invalid"
	CodeCLISmokeFailure Code = "cli.smoke.failure"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// FieldValue creates a structured error field.
func FieldValue(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

// Field is kept as the primary helper for terse callsites.
func Field(key string, value any) Attr {
	return FieldValue(key, value)
}

func FieldPath(value string) Attr {
	return Field("path", value)
}

func FieldAgentID(value int64) Attr {
	return Field("agent_id", value)
}

func FieldTable(value string) Attr {
	return Field("table", value)
}

func FieldMemoryID(value int64) Attr {
	return Field("memory_id", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	inherited, err := recode(err, code)
	return oops.Code(code).With(inherited...).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	inherited, err := recode(err, code)
	return oops.Code(code).With(inherited...).Wrapf(err, format, args...)
}

// recode hides an existing code from oops so the wrapping code is the one
// CodeOf reports. Context fields of the hidden chain are returned for the
// caller to carry forward.
func recode(err error, code Code) ([]any, error) {
	inner := CodeOf(err)
	if inner == "" || inner == code {
		return nil, err
	}

	fields := FieldsOf(err)
	pairs := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		pairs = append(pairs, k, v)
	}
	return pairs, maskedCode{err: err}
}

// maskedCode keeps errors.Is and errors.As working for everything in the
// chain except oops errors.
type maskedCode struct {
	err error
}

func (m maskedCode) Error() string { return m.err.Error() }

func (m maskedCode) Is(target error) bool {
	if _, ok := target.(oops.OopsError); ok {
		return false
	}
	return stderrors.Is(m.err, target)
}

func (m maskedCode) As(target any) bool {
	switch target.(type) {
	case *oops.OopsError, **oops.OopsError:
		return false
	}
	return stderrors.As(m.err, target)
}

// With adds structured fields to an existing error chain.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeServerInternalFailure
	}

	return oops.Code(code).With(flatten(fields)...).Wrap(err)
}

func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsConflict(err error) bool {
	return reason(CodeOf(err)) == "conflict"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_value" || r == "invalid_format"
}

// IsDirectoryMisuse reports whether err was raised because a database path
// names a directory.
func IsDirectoryMisuse(err error) bool {
	return HasCode(err, CodeStorePathDirectory)
}

func IsUnauthorized(err error) bool {
	r := reason(CodeOf(err))
	return r == "unauthorized" || r == "forbidden" || r == "denied"
}

func IsQuotaExceeded(err error) bool {
	return reason(CodeOf(err)) == "exceeded"
}

// IsTransient reports engine lock contention. Callers own any retry.
func IsTransient(err error) bool {
	return reason(CodeOf(err)) == "busy"
}

func HTTPStatus(err error) int {
	switch {
	case HasCode(err, CodeServerUnavailable):
		return http.StatusServiceUnavailable
	case IsNotFound(err):
		return http.StatusNotFound
	case IsConflict(err):
		return http.StatusConflict
	case IsInvalidInput(err):
		return http.StatusBadRequest
	case IsUnauthorized(err):
		return http.StatusForbidden
	case IsQuotaExceeded(err):
		return http.StatusTooManyRequests
	case IsTransient(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	return oops.Code(CodeServerInternalFailure).Wrap(stderrors.Join(errs...))
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
