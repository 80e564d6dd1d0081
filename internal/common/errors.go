package common

import "errors"

// Error codes used across the pipeline. Run-level codes (config_invalid,
// auth_failed, persistence_failed) abort the run; request-level codes are
// recorded per tracking number and never abort the batch.
const (
	CodeConfigInvalid       = "config_invalid"
	CodeAuthFailed          = "auth_failed"
	CodeTransientRequest    = "transient_request"
	CodeNonRetryableRequest = "non_retryable_request"
	CodePersistenceFailed   = "persistence_failed"
)

// AppError represents an error with an attached classification code.
type AppError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code string) bool {
	var target *AppError
	if !errors.As(err, &target) {
		return false
	}
	return target.Code == code
}

// ErrCode extracts the classification code from err, or "" when the error
// is not an AppError.
func ErrCode(err error) string {
	var target *AppError
	if !errors.As(err, &target) {
		return ""
	}
	return target.Code
}
