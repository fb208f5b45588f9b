package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/dirsync/internal/model"
	"github.com/roach88/dirsync/internal/store"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Scenario or validation failure
	ExitCommandError = 2 // Command error (bad flags, missing files, unreadable database)
)

// Error codes carried in CLIError.Code.
const (
	ErrCodeGeneric   = "E001"
	ErrCodeNotFound  = "E002" // item or workflow item does not exist
	ErrCodeCompile   = "E003" // profile does not compile
	ErrCodeDatabase  = "E004"
	ErrCodeScenarios = "E005"

	// Sync errors, one per model.ErrorCode.
	ErrCodeConfiguration = "E006" // missing collection or relationship type
	ErrCodeIllegalState  = "E007" // broken clone/shadow graph
	ErrCodeNotAuthorized = "E008"
	ErrCodeConflict      = "E009" // item changed concurrently
)

var syncErrorCodes = map[model.ErrorCode]string{
	model.ErrCodeConfiguration: ErrCodeConfiguration,
	model.ErrCodeIllegalState:  ErrCodeIllegalState,
	model.ErrCodeNotAuthorized: ErrCodeNotAuthorized,
}

// ErrorCodeOf maps a store or sync error to its CLI code. Anything
// unrecognized is a database error.
func ErrorCodeOf(err error) string {
	var se *model.SyncError
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrCodeNotFound
	case errors.Is(err, store.ErrConflict):
		return ErrCodeConflict
	case errors.As(err, &se):
		if code, ok := syncErrorCodes[se.Code]; ok {
			return code
		}
	}
	return ErrCodeDatabase
}

// ItemRef names the item an error is about.
type ItemRef struct {
	ItemID string `json:"item_id"`
}

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitSuccess for nil and ExitFailure for errors that are not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Success outputs a successful result in the configured format. Text
// output prints data with its String method when it has one.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if ref, ok := details.(ItemRef); ok {
		fmt.Fprintf(f.Writer, "  item: %s\n", ref.ItemID)
		return nil
	}
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err under code and returns an ExitError with exitCode.
func (f *OutputFormatter) Fail(exitCode int, code string, err error) error {
	_ = f.Error(code, err.Error(), nil)
	return WrapExitError(exitCode, code, err)
}

// FailStore reports an error from the catalog, the workflow or the store
// under the code ErrorCodeOf picks. Sync errors name their item.
func (f *OutputFormatter) FailStore(err error) error {
	code := ErrorCodeOf(err)
	var details any
	var se *model.SyncError
	if errors.As(err, &se) && se.ItemID != "" {
		details = ItemRef{ItemID: se.ItemID}
	}
	_ = f.Error(code, err.Error(), details)
	return WrapExitError(ExitCommandError, code, err)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set so JSON output on Writer stays intact.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
