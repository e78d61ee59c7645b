package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitError_MessageAndUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := WrapExitError(ExitFailure, "write spreadsheet", cause)

	assert.Equal(t, "write spreadsheet: disk full", err.Error())
	assert.ErrorIs(t, err, cause)

	bare := &ExitError{Code: ExitCommandError, Message: "bad flag"}
	assert.Equal(t, "bad flag", bare.Error())
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(&ExitError{Code: ExitCommandError}))
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("outer: %w", &ExitError{Code: ExitCommandError})))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
}

func TestOutputFormatter_JSON(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &buf}

	err := f.Emit(map[string]int{"count": 3}, func(io.Writer) error {
		t.Fatal("text renderer must not run for json")
		return nil
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"count": 3}`, buf.String())
}

func TestOutputFormatter_Text(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "text", Writer: &buf}

	err := f.Emit(nil, func(w io.Writer) error {
		_, err := fmt.Fprintln(w, "rendered")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "rendered\n", buf.String())
}
