// internal/engine/errors.go
package engine

import (
	"errors"
	"fmt"
)

// Sentinel errors, one per error code. Match with errors.Is.
var (
	ErrSessionLaunch    = errors.New("browser session launch failed")
	ErrSearchTimeout    = errors.New("search results did not render")
	ErrItemExtraction   = errors.New("note extraction failed")
	ErrPersistenceWrite = errors.New("session state write failed")
	ErrValidation       = errors.New("invalid request")
)

// ErrorCode represents a specific error condition
type ErrorCode string

const (
	ErrCodeSessionLaunch    ErrorCode = "SESSION_LAUNCH"
	ErrCodeSearchTimeout    ErrorCode = "SEARCH_TIMEOUT"
	ErrCodeItemExtraction   ErrorCode = "ITEM_EXTRACTION"
	ErrCodePersistenceWrite ErrorCode = "PERSISTENCE_WRITE"
	ErrCodeValidation       ErrorCode = "VALIDATION"
)

var sentinels = map[ErrorCode]error{
	ErrCodeSessionLaunch:    ErrSessionLaunch,
	ErrCodeSearchTimeout:    ErrSearchTimeout,
	ErrCodeItemExtraction:   ErrItemExtraction,
	ErrCodePersistenceWrite: ErrPersistenceWrite,
	ErrCodeValidation:       ErrValidation,
}

// EngineError wraps errors with additional context
type EngineError struct {
	Code       ErrorCode
	Message    string
	Underlying error
	Retry      bool
	Details    map[string]interface{}
}

// Error implements the error interface
func (e *EngineError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Underlying)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *EngineError) Unwrap() error {
	return e.Underlying
}

// Is matches another EngineError with the same code, the sentinel for this
// code, or anything in the underlying chain.
func (e *EngineError) Is(target error) bool {
	if t, ok := target.(*EngineError); ok {
		return e.Code == t.Code
	}
	if s, ok := sentinels[e.Code]; ok && s == target {
		return true
	}
	return errors.Is(e.Underlying, target)
}

// NewEngineError creates a new EngineError
func NewEngineError(code ErrorCode, message string, err error) *EngineError {
	return &EngineError{
		Code:       code,
		Message:    message,
		Underlying: err,
		Details:    make(map[string]interface{}),
	}
}

// WithRetry marks the error as recoverable by a later call
func (e *EngineError) WithRetry() *EngineError {
	e.Retry = true
	return e
}

// WithDetail adds a detail to the error
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	e.Details[key] = value
	return e
}

// CodeOf returns the code of the first EngineError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}
