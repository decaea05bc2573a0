// Package gccerr defines the error taxonomy shared by all gcc-mcp
// components. Each error kind maps to a stable machine-readable
// identifier that tool handlers put on the wire; diagnostic detail
// (raw git output, io errors) stays inside the error for logging and
// is not meant to be surfaced verbatim to untrusted callers.
package gccerr

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Stable machine-readable identifiers, one per error kind.
const (
	KindValidation     = "validation_error"
	KindBranchNotFound = "branch_not_found"
	KindRepository     = "repository_error"
	KindStorage        = "storage_error"
	KindLockTimeout    = "lock_timeout"
	KindInternal       = "internal_error"
)

// ValidationError reports bad or missing input. Validation always runs
// before any side effect, so a ValidationError guarantees no partial state.
type ValidationError struct {
	Field string
	Msg   string
	// Value is the offending input, truncated by the caller when long.
	// May be empty when the value itself is the sensitive part.
	Value string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Msg)
	}
	return e.Msg
}

// Validation builds a ValidationError for a named field.
func Validation(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Msg: msg}
}

// ValidationValue builds a ValidationError carrying the offending value,
// truncated so error payloads stay bounded.
func ValidationValue(field, msg, value string) *ValidationError {
	if len(value) > 100 {
		value = value[:100] + "..."
	}
	return &ValidationError{Field: field, Msg: msg, Value: value}
}

// BranchNotFound reports a reference to a branch that does not exist in
// the session. Available carries the sorted branch list at the time of
// the lookup so callers can self-correct.
type BranchNotFound struct {
	Branch    string
	Available []string
}

func (e *BranchNotFound) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("branch not found: %s (no branches exist)", e.Branch)
	}
	return fmt.Sprintf("branch not found: %s (available: %s)", e.Branch, strings.Join(e.Available, ", "))
}

// RepositoryError reports a failed history-backend invocation. Cmd is the
// attempted command line; Output is the captured diagnostic text.
type RepositoryError struct {
	Msg    string
	Cmd    string
	Path   string
	Output string
	Err    error
}

func (e *RepositoryError) Error() string {
	if e.Cmd != "" {
		return fmt.Sprintf("%s (%s)", e.Msg, e.Cmd)
	}
	return e.Msg
}

func (e *RepositoryError) Unwrap() error { return e.Err }

// StorageError reports a filesystem failure in the storage layer.
type StorageError struct {
	Msg  string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Msg, e.Path)
	}
	return e.Msg
}

func (e *StorageError) Unwrap() error { return e.Err }

// LockTimeout reports a session lock that could not be acquired within
// the configured budget.
type LockTimeout struct {
	Path    string
	Timeout time.Duration
}

func (e *LockTimeout) Error() string {
	return fmt.Sprintf("timed out waiting for lock after %s: %s", e.Timeout, e.Path)
}

// Kind returns the stable identifier for err, or KindInternal for
// anything outside the taxonomy.
func Kind(err error) string {
	var (
		ve *ValidationError
		bn *BranchNotFound
		re *RepositoryError
		se *StorageError
		lt *LockTimeout
	)
	switch {
	case errors.As(err, &ve):
		return KindValidation
	case errors.As(err, &bn):
		return KindBranchNotFound
	case errors.As(err, &re):
		return KindRepository
	case errors.As(err, &se):
		return KindStorage
	case errors.As(err, &lt):
		return KindLockTimeout
	default:
		return KindInternal
	}
}
