package core

import (
	"errors"
	"fmt"
)

// ExecutionError represents a structured error with category and details
type ExecutionError struct {
	Category ErrorCategory
	Code     string                 // Machine-readable code: element_not_found, timeout, etc.
	Message  string                 // Human-readable message
	Details  map[string]interface{} // Additional context
	Cause    error                  // Underlying error
}

// Error implements the error interface
func (e *ExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Is matches another ExecutionError with the same code, so copies made with
// the With* helpers still satisfy errors.Is against the predefined value.
func (e *ExecutionError) Is(target error) bool {
	t, ok := target.(*ExecutionError)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// WithCause returns a copy of the error with the given cause
func (e *ExecutionError) WithCause(cause error) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  e.Details,
		Cause:    cause,
	}
}

// WithMessage returns a copy of the error with a custom message
func (e *ExecutionError) WithMessage(msg string) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  msg,
		Details:  e.Details,
		Cause:    e.Cause,
	}
}

// WithDetails returns a copy of the error with additional details
func (e *ExecutionError) WithDetails(details map[string]interface{}) *ExecutionError {
	merged := make(map[string]interface{})
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  merged,
		Cause:    e.Cause,
	}
}

// Predefined errors
var (
	// Assertion errors
	ErrElementNotFound = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "element_not_found",
		Message:  "element not found",
	}
	ErrElementStillVisible = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "element_still_visible",
		Message:  "element is still visible",
	}

	// Image errors
	ErrScreenshotUnavailable = &ExecutionError{
		Category: ErrCategoryImage,
		Code:     "screenshot_unavailable",
		Message:  "screenshot unavailable",
	}
	ErrReferenceUnreadable = &ExecutionError{
		Category: ErrCategoryImage,
		Code:     "reference_unreadable",
		Message:  "reference image could not be read",
	}

	// Timeout errors
	ErrTimeout = &ExecutionError{
		Category: ErrCategoryTimeout,
		Code:     "timeout",
		Message:  "operation timed out",
	}
	ErrScreenNotSettled = &ExecutionError{
		Category: ErrCategoryTimeout,
		Code:     "screen_not_settled",
		Message:  "screen did not settle",
	}

	// Connection errors
	ErrDeviceDisconnected = &ExecutionError{
		Category: ErrCategoryConnection,
		Code:     "device_disconnected",
		Message:  "device connection lost",
	}
	ErrServerUnreachable = &ExecutionError{
		Category: ErrCategoryConnection,
		Code:     "server_unreachable",
		Message:  "could not connect to automation server",
	}

	// Config errors
	ErrInvalidConfig = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "invalid_config",
		Message:  "invalid configuration",
	}
	ErrInvalidSimilarity = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "invalid_similarity",
		Message:  "similarity must be between 0 and 1",
	}
)

// NewExecutionError creates a new ExecutionError with the given parameters
func NewExecutionError(category ErrorCategory, code, message string) *ExecutionError {
	return &ExecutionError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}

// CategoryOf returns the category of the first ExecutionError in err's chain.
func CategoryOf(err error) ErrorCategory {
	if err == nil {
		return ErrCategoryNone
	}
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr.Category
	}
	return ErrCategoryUnknown
}

// ValidateSimilarity checks that a similarity threshold lies in [0, 1].
func ValidateSimilarity(s float64) error {
	// NaN fails both comparisons
	if !(s >= 0 && s <= 1) {
		return ErrInvalidSimilarity.WithDetails(map[string]interface{}{"similarity": s})
	}
	return nil
}
