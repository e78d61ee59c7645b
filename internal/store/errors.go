package store

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// StorageError represents a classified storage-layer failure.
//
// Storage errors fall into four categories:
//   - Resource exhausted: no free handle within the acquire timeout
//   - Transient: lock contention or a connectivity blip, safe to retry
//   - Integrity violation: constraint failure, never retried
//   - Fatal init: the pool could not create its initial connections
type StorageError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// ConnID identifies the affected connection handle, if any.
	ConnID string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes storage errors.
type ErrorCode string

const (
	// CodeResourceExhausted indicates no free handle was available within
	// the acquire timeout. Logged as a probable leak.
	CodeResourceExhausted ErrorCode = "RESOURCE_EXHAUSTED"

	// CodeTransient indicates lock contention or a transient connectivity
	// failure. The retry wrapper handles these.
	CodeTransient ErrorCode = "TRANSIENT_STORAGE"

	// CodeIntegrityViolation indicates a constraint violation. Retrying
	// cannot fix it, so it propagates immediately.
	CodeIntegrityViolation ErrorCode = "INTEGRITY_VIOLATION"

	// CodeFatalInit indicates the pool could not create its initial
	// connections at startup.
	CodeFatalInit ErrorCode = "FATAL_INIT"
)

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.ConnID != "" {
		return fmt.Sprintf("%s: %s (conn=%s)", e.Code, e.Message, e.ConnID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewResourceExhausted creates a StorageError for an acquire timeout.
func NewResourceExhausted(timeout string) *StorageError {
	return &StorageError{
		Code:    CodeResourceExhausted,
		Message: fmt.Sprintf("no free connection within %s (probable handle leak)", timeout),
	}
}

// NewFatalInit creates a StorageError for a failed pool initialization.
func NewFatalInit(err error) *StorageError {
	return &StorageError{
		Code:    CodeFatalInit,
		Message: "cannot create initial connection pool",
		Err:     err,
	}
}

// IsResourceExhausted returns true if the error is an acquire timeout.
// Uses errors.As to handle wrapped errors.
func IsResourceExhausted(err error) bool {
	var se *StorageError
	return errors.As(err, &se) && se.Code == CodeResourceExhausted
}

// IsFatalInit returns true if the error is a fatal initialization failure.
func IsFatalInit(err error) bool {
	var se *StorageError
	return errors.As(err, &se) && se.Code == CodeFatalInit
}

// IsTransient returns true for errors the retry wrapper may retry:
// SQLite lock contention (SQLITE_BUSY, SQLITE_LOCKED), transient I/O
// failures, and StorageErrors already classified as transient.
func IsTransient(err error) bool {
	var se *StorageError
	if errors.As(err, &se) {
		return se.Code == CodeTransient
	}

	var sqerr sqlite3.Error
	if errors.As(err, &sqerr) {
		switch sqerr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrProtocol, sqlite3.ErrIoErr:
			return true
		}
	}

	return false
}

// IsIntegrityViolation returns true for constraint violations, which must
// never be retried.
func IsIntegrityViolation(err error) bool {
	var se *StorageError
	if errors.As(err, &se) {
		return se.Code == CodeIntegrityViolation
	}

	var sqerr sqlite3.Error
	if errors.As(err, &sqerr) {
		return sqerr.Code == sqlite3.ErrConstraint
	}

	return false
}
