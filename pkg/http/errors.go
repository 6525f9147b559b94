// Package http holds the HTTP building blocks shared across the oracle's
// outbound collector/scorer/signer clients and the inbound admin surface:
// a timeout-bounded client, a route-registration interface, and the
// AppError/response envelope the admin handler replies with.
package http

import (
	"fmt"
	"net/http"
)

// AppError is the error envelope the admin API returns: readiness checks
// and tx-log queries wrap their failures in one of these before handing
// them to AppErrorResponse.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new application error.
func NewAppError(code, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
	}
}

// WithError wraps an underlying error.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// InternalError creates a 500 error.
func InternalError(message string) *AppError {
	return NewAppError("ERR_INTERNAL", message, http.StatusInternalServerError)
}
