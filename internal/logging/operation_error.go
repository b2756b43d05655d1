package logging

import (
	"fmt"
	"strings"
)

// OperationError annotates an infrastructure error with the operation and
// capture session it happened in. Attempts is set when the operation was
// retried before giving up.
type OperationError struct {
	Operation string
	SessionID string
	Attempts  int
	Err       error
}

// Error implements the error interface.
func (e *OperationError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	var attrs []string
	if e.SessionID != "" {
		attrs = append(attrs, "session_id="+e.SessionID)
	}
	if e.Attempts > 1 {
		attrs = append(attrs, fmt.Sprintf("attempts=%d", e.Attempts))
	}
	if len(attrs) == 0 {
		return fmt.Sprintf("%s: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", e.Operation, strings.Join(attrs, " "), e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewOperationError wraps an error with structured context about where it occurred.
func NewOperationError(operation, sessionID string, err error) error {
	return NewRetriedError(operation, sessionID, 1, err)
}

// NewRetriedError is NewOperationError for an operation that ran attempts times.
func NewRetriedError(operation, sessionID string, attempts int, err error) error {
	if err == nil {
		return nil
	}
	return &OperationError{Operation: operation, SessionID: sessionID, Attempts: attempts, Err: err}
}
