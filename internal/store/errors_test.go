package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
)

func TestStorageError_Message(t *testing.T) {
	err := &StorageError{Code: CodeTransient, Message: "database is locked"}
	assert.Equal(t, "TRANSIENT_STORAGE: database is locked", err.Error())

	withConn := &StorageError{Code: CodeTransient, Message: "database is locked", ConnID: "abc"}
	assert.Equal(t, "TRANSIENT_STORAGE: database is locked (conn=abc)", withConn.Error())
}

func TestStorageError_Unwrap(t *testing.T) {
	cause := errors.New("disk I/O error")
	err := NewFatalInit(cause)
	assert.ErrorIs(t, err, cause)
}

func TestIsResourceExhausted(t *testing.T) {
	err := NewResourceExhausted("5s")
	assert.True(t, IsResourceExhausted(err))
	assert.True(t, IsResourceExhausted(fmt.Errorf("acquire: %w", err)))
	assert.False(t, IsResourceExhausted(errors.New("other")))
	assert.False(t, IsResourceExhausted(nil))
}

func TestIsFatalInit(t *testing.T) {
	err := NewFatalInit(errors.New("cannot open"))
	assert.True(t, IsFatalInit(err))
	assert.False(t, IsFatalInit(NewResourceExhausted("1s")))
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"classified transient", &StorageError{Code: CodeTransient}, true},
		{"sqlite busy", sqlite3.Error{Code: sqlite3.ErrBusy}, true},
		{"sqlite locked", sqlite3.Error{Code: sqlite3.ErrLocked}, true},
		{"sqlite io error", sqlite3.Error{Code: sqlite3.ErrIoErr}, true},
		{"wrapped sqlite busy", fmt.Errorf("write: %w", sqlite3.Error{Code: sqlite3.ErrBusy}), true},
		{"sqlite constraint", sqlite3.Error{Code: sqlite3.ErrConstraint}, false},
		{"integrity violation", &StorageError{Code: CodeIntegrityViolation}, false},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsIntegrityViolation(t *testing.T) {
	assert.True(t, IsIntegrityViolation(sqlite3.Error{Code: sqlite3.ErrConstraint}))
	assert.True(t, IsIntegrityViolation(&StorageError{Code: CodeIntegrityViolation}))
	assert.True(t, IsIntegrityViolation(fmt.Errorf("insert: %w", sqlite3.Error{Code: sqlite3.ErrConstraint})))
	assert.False(t, IsIntegrityViolation(sqlite3.Error{Code: sqlite3.ErrBusy}))
	assert.False(t, IsIntegrityViolation(errors.New("boom")))
}
