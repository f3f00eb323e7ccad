/*
Package errs provides custom error types and application-level error code constants.

A CustomError carries a business code, a client-facing message and, for REST handlers,
an HTTP status. The same messages travel inside WebSocket notice events.
*/
package errs

import (
	"errors"
	"fmt"
	"net/http"

	"duochat/internal/pkg/logx"
)

// CustomError is the custom error structure used throughout the application.
type CustomError struct {
	// Code is the business error code (see constants definition).
	Code int

	// Message is the user-facing error description.
	Message string

	// Status is the HTTP status code used when the error is returned by a REST handler.
	Status int
}

// Error implements the standard Go error interface.
func (e *CustomError) Error() string {
	return fmt.Sprintf("Error Code %d (HTTP %d): %s", e.Code, e.Status, e.Message)
}

// NewError returns a fresh *CustomError for a predefined code.
// Unknown codes are logged and fall back to ErrUnknown.
func NewError(code int) *CustomError {
	template, ok := errorMap[code]
	if !ok {
		logx.Warn("Unknown error code requested", "requested_code", code)
		template = errorMap[ErrUnknown]
	}

	customErr := template
	if customErr.Status == 0 {
		customErr.Status = http.StatusOK
	}

	return &customErr
}

// Is reports whether err is a CustomError carrying the given code.
func Is(err error, code int) bool {
	var customErr *CustomError
	if errors.As(err, &customErr) {
		return customErr.Code == code
	}
	return false
}
