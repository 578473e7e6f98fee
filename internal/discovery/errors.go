package discovery

import (
	"fmt"

	"github.com/muurk/dantescan/internal/provider"
)

// ErrorType represents the category of error that occurred
type ErrorType int

const (
	// ErrTypeNotInitialized indicates a query before the provider was initialised or connected
	ErrTypeNotInitialized ErrorType = iota
	// ErrTypeProvider indicates an opaque failure surfaced from the provider
	ErrTypeProvider
	// ErrTypeTimeout indicates a bounded wait expired
	ErrTypeTimeout
	// ErrTypeIndexOutOfRange indicates a record index outside [0, count)
	ErrTypeIndexOutOfRange
	// ErrTypeInvalidRecord indicates a record slot that is not populated
	ErrTypeInvalidRecord
	// ErrTypeAlreadyRunning indicates a scan start while a session is active.
	// Callers treat it as a benign no-op.
	ErrTypeAlreadyRunning
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeNotInitialized:
		return "Not Initialized"
	case ErrTypeProvider:
		return "Provider Error"
	case ErrTypeTimeout:
		return "Timeout"
	case ErrTypeIndexOutOfRange:
		return "Index Out Of Range"
	case ErrTypeInvalidRecord:
		return "Invalid Record"
	case ErrTypeAlreadyRunning:
		return "Already Running"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// Error is the error returned by discovery and host-facing operations.
type Error struct {
	Type    ErrorType // Category of error
	Message string    // Human-readable error message
	Code    int       // Provider code (ErrTypeProvider only)
	Err     error     // Underlying error (if any)
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Message
	if e.Type == ErrTypeProvider {
		msg = fmt.Sprintf("%s (code %d)", msg, e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, msg)
}

// Unwrap returns the underlying error for error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Type, so the exported sentinels work
// with errors.Is regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotInitialized  = &Error{Type: ErrTypeNotInitialized, Message: "not initialized"}
	ErrProvider        = &Error{Type: ErrTypeProvider, Message: "provider failure"}
	ErrTimeout         = &Error{Type: ErrTypeTimeout, Message: "timed out"}
	ErrIndexOutOfRange = &Error{Type: ErrTypeIndexOutOfRange, Message: "index out of range"}
	ErrInvalidRecord   = &Error{Type: ErrTypeInvalidRecord, Message: "record is not valid"}
	ErrAlreadyRunning  = &Error{Type: ErrTypeAlreadyRunning, Message: "scan already active"}
)

// NewProviderError wraps a provider failure for op, carrying its numeric code.
func NewProviderError(op string, err error) *Error {
	code, ok := provider.Code(err)
	if !ok {
		code = provider.CodeFailed
	}
	return &Error{
		Type:    ErrTypeProvider,
		Message: op,
		Code:    code,
		Err:     err,
	}
}

// NewIndexError reports an index outside [0, count).
func NewIndexError(index, count int) *Error {
	if count <= 0 {
		return &Error{
			Type:    ErrTypeIndexOutOfRange,
			Message: fmt.Sprintf("invalid device index: %d (no devices available)", index),
		}
	}
	return &Error{
		Type:    ErrTypeIndexOutOfRange,
		Message: fmt.Sprintf("invalid device index: %d (available: 0-%d)", index, count-1),
	}
}

// NewTimeoutError reports an expired bounded wait.
func NewTimeoutError(message string) *Error {
	return &Error{Type: ErrTypeTimeout, Message: message}
}

// NewNotInitializedError reports a call made before initialisation.
func NewNotInitializedError(message string) *Error {
	return &Error{Type: ErrTypeNotInitialized, Message: message}
}
