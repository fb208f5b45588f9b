package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dirsync/internal/model"
	"github.com/roach88/dirsync/internal/store"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success(map[string]string{"result": "success"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Error(ErrCodeCompile, "profile does not compile", map[string]string{"line": "42"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeCompile, resp.Error.Code)
	assert.Equal(t, "profile does not compile", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

type stringer struct{}

func (stringer) String() string { return "custom text" }

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success(stringer{}))
	assert.Equal(t, "custom text\n", buf.String())
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Error(ErrCodeNotFound, "item not found", "ignored unless verbose"))
	assert.Equal(t, "Error [E002]: item not found\n", buf.String())

	buf.Reset()
	formatter.Verbose = true
	require.NoError(t, formatter.Error(ErrCodeNotFound, "item not found", "id=x"))
	assert.Contains(t, buf.String(), "Details: id=x")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut}

	formatter.VerboseLog("hidden %d", 1)
	assert.Empty(t, errOut.String())

	formatter.Verbose = true
	formatter.VerboseLog("shown %d", 2)
	assert.Equal(t, "shown 2\n", errOut.String())
	assert.Empty(t, out.String())
}

func TestOutputFormatter_FailStore(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	err := formatter.FailStore(fmt.Errorf("read item x: %w", store.ErrNotFound))
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), ErrCodeNotFound)

	buf.Reset()
	err = formatter.FailStore(errors.New("disk on fire"))
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), ErrCodeDatabase)

	buf.Reset()
	err = formatter.FailStore(fmt.Errorf("shadow copy: %w", model.NewConfigurationError("item-0003", "no Directorio collection for %s", "Patent")))
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "Error [E006]")
	assert.Contains(t, buf.String(), "  item: item-0003\n")
}

func TestOutputFormatter_FailStoreJSONNamesItem(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	_ = formatter.FailStore(model.NewIllegalStateError("item-0002", "clone has no CV entity"))

	var resp struct {
		Error struct {
			Code    string  `json:"code"`
			Details ItemRef `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, ErrCodeIllegalState, resp.Error.Code)
	assert.Equal(t, "item-0002", resp.Error.Details.ItemID)
}

func TestErrorCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"not found", fmt.Errorf("get: %w", store.ErrNotFound), ErrCodeNotFound},
		{"conflict", fmt.Errorf("update: %w", store.ErrConflict), ErrCodeConflict},
		{"configuration", model.NewConfigurationError("i", "missing collection"), ErrCodeConfiguration},
		{"illegal state", model.NewIllegalStateError("i", "no clone"), ErrCodeIllegalState},
		{"not authorized", model.NewNotAuthorizedError("i", "stranger"), ErrCodeNotAuthorized},
		{"other", errors.New("disk on fire"), ErrCodeDatabase},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCodeOf(tt.err))
		})
	}
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad")))
	wrapped := fmt.Errorf("outer: %w", WrapExitError(ExitFailure, "inner", errors.New("cause")))
	assert.Equal(t, ExitFailure, GetExitCode(wrapped))
	assert.Equal(t, "outer: inner: cause", wrapped.Error())
}
