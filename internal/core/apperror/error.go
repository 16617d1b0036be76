// Package apperror provides structured error handling for the sync engine.
// Every error crossing a component boundary must be an AppError so callers
// can classify it: retryable errors are eligible for queueing and replay,
// terminal errors must surface immediately and never be retried.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// Infrastructure errors (5xx)
	CodeInternal = "INTERNAL_ERROR"
	CodeTimeout  = "TIMEOUT_ERROR"

	// Network errors - transient, eligible for queueing and retry
	CodeNetwork = "NETWORK_ERROR"

	// Storage errors - local cache/queue failure, degrade to memory-only
	CodeStorage = "STORAGE_ERROR"

	// Validation errors (400)
	CodeValidation   = "VALIDATION_ERROR"
	CodeInvalidInput = "INVALID_INPUT"

	// Business rule violations (422) - enforced by the remote authority
	CodeBusinessRule      = "BUSINESS_RULE_VIOLATION"
	CodeInsufficientStock = "INSUFFICIENT_STOCK"
	CodeBillFinalized     = "BILL_FINALIZED"

	// Authorization errors (401, 403)
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Conflict (409)
	CodeConflict  = "CONFLICT"
	CodeDuplicate = "DUPLICATE_ENTRY"
)

// AppError is the standard error type for the engine.
// It implements error interface and provides structured details.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (field errors, quantities, etc.)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the status code the remote authority responded with
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions for common errors ---

// NewNetwork creates a transient network error. These are the only errors
// (besides timeouts) the engine is allowed to queue for replay.
func NewNetwork(err error) *AppError {
	return &AppError{
		Code:    CodeNetwork,
		Message: "Remote API unreachable",
		Err:     err,
	}
}

// NewTimeout creates a transient timeout error.
func NewTimeout(err error) *AppError {
	return &AppError{
		Code:    CodeTimeout,
		Message: "Remote call timed out",
		Err:     err,
	}
}

// NewStorage creates a local storage error. Callers must degrade to
// in-memory-only operation for the session, never abort the business action.
func NewStorage(err error) *AppError {
	return &AppError{
		Code:    CodeStorage,
		Message: "Local storage unavailable",
		Err:     err,
	}
}

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewBusinessRule creates a business rule violation error (422)
func NewBusinessRule(code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// NewInsufficientStock creates a stock shortage error
func NewInsufficientStock(productID string, requested, available float64) *AppError {
	return &AppError{
		Code:       CodeInsufficientStock,
		Message:    "Insufficient stock",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"product_id": productID,
			"requested":  requested,
			"available":  available,
		},
	}
}

// NewBillFinalized creates an error for mutation of a finalized bill
func NewBillFinalized(billID string) *AppError {
	return &AppError{
		Code:       CodeBillFinalized,
		Message:    "Bill is finalized and cannot be modified",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"bill_id": billID},
	}
}

// NewInternal creates an internal error (hides details from caller)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewUnauthorized creates an authentication error (401).
// Terminal: must prompt reauthentication, never automatic retry.
func NewUnauthorized(message string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// NewForbidden creates an authorization error (403)
func NewForbidden(message string) *AppError {
	return &AppError{
		Code:       CodeForbidden,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

// NewConflict creates a conflict error (409)
func NewConflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// NewDuplicate creates a duplicate entry error (409)
func NewDuplicate(entity, field, value string) *AppError {
	return &AppError{
		Code:       CodeDuplicate,
		Message:    fmt.Sprintf("%s with this %s already exists", entity, field),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "field": field, "value": value},
	}
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Code returns the error code or CodeInternal for unclassified errors.
func Code(err error) string {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return CodeInternal
}

// --- Classification ---

// IsRetryable reports whether the error is transient: queueing the failed
// mutation and replaying it later can succeed. Only network and timeout
// failures qualify; everything else is either terminal or a local concern.
func IsRetryable(err error) bool {
	switch Code(err) {
	case CodeNetwork, CodeTimeout:
		return true
	}
	return false
}

// IsTerminal reports whether retrying cannot change the outcome.
// Storage errors are neither: they are swallowed, not propagated as outcomes.
func IsTerminal(err error) bool {
	return !IsRetryable(err) && !IsStorage(err)
}

// IsStorage checks if error is a local storage failure
func IsStorage(err error) bool {
	return Code(err) == CodeStorage
}

// IsAuth checks if error is an authentication failure
func IsAuth(err error) bool {
	return Code(err) == CodeUnauthorized
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	return Code(err) == CodeNotFound
}

// IsConflict checks if error is a conflict or duplicate
func IsConflict(err error) bool {
	c := Code(err)
	return c == CodeConflict || c == CodeDuplicate
}
