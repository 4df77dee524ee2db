package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/basekit/internal/database"
	"github.com/roach88/basekit/internal/query"
	"github.com/roach88/basekit/internal/schema"
	"github.com/roach88/basekit/internal/store"
	"github.com/roach88/basekit/internal/value"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Operation failed (record not found, duplicate key, invalid data)
	ExitCommandError = 2 // Command error (bad arguments, unreachable store, etc.)
)

// Error codes reported in CLI responses.
const (
	ErrCodeGeneric      = "E001"
	ErrCodeInvalidInput = "E002"
	ErrCodeStore        = "E003"
	ErrCodeNotFound     = "E004"
	ErrCodeConflict     = "E005"
	ErrCodeValidation   = "E006"
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
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
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
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
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
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
	Code    string `json:"code"`              // "E001", "E002", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	// Human-readable text output
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	// Human-readable error
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// encode writes one response. HTML characters stay unescaped so records
// embedded as canonical JSON keep their bytes.
func (f *OutputFormatter) encode(resp CLIResponse) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetEscapeHTML(false)
	return enc.Encode(resp)
}

// canonical renders v as RFC 8785 JSON, semantic kinds shown as Marshal
// shows them.
func canonical(v value.Value) (json.RawMessage, error) {
	return value.MarshalCanonical(value.Display(v))
}

// Value writes v as a line of canonical JSON in text mode. JSON mode wraps
// it in a CLIResponse.
func (f *OutputFormatter) Value(v value.Value) error {
	data, err := canonical(v)
	if err != nil {
		return err
	}
	if f.Format == "json" {
		return f.Success(json.RawMessage(data))
	}
	_, err = fmt.Fprintf(f.Writer, "%s\n", data)
	return err
}

// Record writes one item.
func (f *OutputFormatter) Record(item value.Object) error {
	return f.Value(item)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// Fail reports err through the formatter and returns the matching
// ExitError. message says what the command was doing.
func (f *OutputFormatter) Fail(message string, err error) error {
	code, exit := classify(err)
	var details any
	var verr *schema.ValidationError
	var ferr *database.FieldError
	switch {
	case errors.As(err, &verr):
		details = map[string]string{"definition": verr.Definition, "path": verr.Path}
	case errors.As(err, &ferr):
		details = map[string]string{"key": ferr.Key, "path": ferr.Path}
	}
	_ = f.Error(code, fmt.Sprintf("%s: %v", message, err), details)
	return WrapExitError(exit, message, err)
}

// classify maps an error to a response code and an exit code.
func classify(err error) (string, int) {
	var qerr *query.Error
	var verr *schema.ValidationError
	var exitErr *ExitError
	switch {
	case errors.As(err, &exitErr):
		return ErrCodeGeneric, exitErr.Code
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrKeyNotFound),
		errors.Is(err, database.ErrFieldNotFound):
		return ErrCodeNotFound, ExitFailure
	case errors.Is(err, store.ErrDuplicateKey):
		return ErrCodeConflict, ExitFailure
	case errors.As(err, &verr):
		return ErrCodeValidation, ExitFailure
	case errors.As(err, &qerr), errors.Is(err, store.ErrMissingKey),
		errors.Is(err, store.ErrInvalidUpdate), errors.Is(err, store.ErrBatchTooLarge),
		errors.Is(err, errInvalidInput):
		return ErrCodeInvalidInput, ExitCommandError
	default:
		return ErrCodeStore, ExitCommandError
	}
}

// errInvalidInput marks malformed command arguments.
var errInvalidInput = errors.New("invalid input")

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errInvalidInput, fmt.Sprintf(format, args...))
}
