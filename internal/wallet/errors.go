// ABOUTME: Error types returned by wallet operations
// ABOUTME: Validation failures are local to one call; execution failures may carry a diagnostic id

package wallet

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("invalid arguments")
	// ErrUnknownCommand is returned for method names outside the command set.
	ErrUnknownCommand = errors.New("unknown command")
)

// ValidationError reports malformed or insufficient arguments.
type ValidationError struct {
	Method string
	// Field is a JSON pointer into the arguments, empty for the whole document.
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: invalid arguments: %s", e.Method, e.Reason)
	}
	return fmt.Sprintf("%s: invalid argument %s: %s", e.Method, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ExecutionError wraps a failure of the execution collaborator.
// DiagnosticID is set when a diagnostic bundle was exported for it.
type ExecutionError struct {
	Method       string
	Stage        string
	DiagnosticID string
	Err          error
}

func (e *ExecutionError) Error() string {
	msg := fmt.Sprintf("%s %s failed: %v", e.Method, e.Stage, e.Err)
	if e.DiagnosticID != "" {
		msg += fmt.Sprintf(" (diagnostic %s)", e.DiagnosticID)
	}
	return msg
}

func (e *ExecutionError) Unwrap() error { return e.Err }
