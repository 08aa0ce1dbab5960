package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Standard error codes
const (
	CodeValidationError    = "VALIDATION_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeForbidden          = "FORBIDDEN"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeBadRequest         = "BAD_REQUEST"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// Production workflow error codes. These are part of the public API and
// must stay stable.
const (
	CodeUnknownBoxType      = "UNKNOWN_BOX_TYPE"
	CodeNotApplicable       = "NOT_APPLICABLE"
	CodeOutOfSequence       = "OUT_OF_SEQUENCE"
	CodeRequiresInspection  = "REQUIRES_INSPECTION"
	CodeDuplicateWIR        = "DUPLICATE_WIR"
	CodeIncompleteChecklist = "INCOMPLETE_CHECKLIST"
	CodeInvalidTransition   = "INVALID_TRANSITION"
	CodeInvalidCatalog      = "INVALID_CATALOG"
	CodeConcurrentUpdate    = "CONCURRENT_UPDATE"
	CodeBoxOnHold           = "BOX_ON_HOLD"
	CodeBoxDispatched       = "BOX_DISPATCHED"
	CodeNotDispatchReady    = "NOT_DISPATCH_READY"
)

// Idempotency-Key error codes
const (
	CodeIdempotencyKeyInvalid = "IDEMPOTENCY_KEY_INVALID"
	CodeIdempotencyKeyReused  = "IDEMPOTENCY_KEY_REUSED"
	CodeRequestInProgress     = "REQUEST_IN_PROGRESS"
)

// AppError represents an application error with HTTP status and error code
type AppError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	HTTPStatus int               `json:"-"`
	Err        error             `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a single detail to the error
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithList adds a detail holding a comma separated list. Empty lists are skipped.
func (e *AppError) WithList(key string, values []string) *AppError {
	if len(values) == 0 {
		return e
	}
	return e.WithDetail(key, strings.Join(values, ","))
}

// Wrap wraps an existing error
func (e *AppError) Wrap(err error) *AppError {
	e.Err = err
	return e
}

// Retryable reports whether the caller may retry the request unchanged.
func (e *AppError) Retryable() bool {
	return e.Code == CodeServiceUnavailable || e.Code == CodeConcurrentUpdate
}

// NewAppError creates a new AppError
func NewAppError(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// ErrValidation creates a validation error
func ErrValidation(message string) *AppError {
	return NewAppError(CodeValidationError, message, http.StatusBadRequest)
}

// ErrValidationWithFields creates a validation error with field details
func ErrValidationWithFields(message string, fields map[string]string) *AppError {
	err := ErrValidation(message)
	err.Details = fields
	return err
}

// ErrBadRequest creates a bad request error
func ErrBadRequest(message string) *AppError {
	return NewAppError(CodeBadRequest, message, http.StatusBadRequest)
}

// ErrNotFound creates a not found error
func ErrNotFound(resource string) *AppError {
	return NewAppError(CodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

// ErrNotFoundWithID creates a not found error with ID
func ErrNotFoundWithID(resource, id string) *AppError {
	return ErrNotFound(resource).WithDetail("id", id)
}

// ErrForbidden creates a forbidden error. The message never names the
// permission that was missing.
func ErrForbidden() *AppError {
	return NewAppError(CodeForbidden, "access denied", http.StatusForbidden)
}

// ErrInternal creates an internal error
func ErrInternal(message string) *AppError {
	if message == "" {
		message = "an internal error occurred"
	}
	return NewAppError(CodeInternalError, message, http.StatusInternalServerError)
}

// ErrServiceUnavailable creates a service unavailable error
func ErrServiceUnavailable(service string) *AppError {
	return NewAppError(CodeServiceUnavailable, fmt.Sprintf("%s is temporarily unavailable", service), http.StatusServiceUnavailable).
		WithDetail("retryable", "true")
}

// ErrUnknownBoxType is returned when a box type has no catalog mapping
func ErrUnknownBoxType(boxType string) *AppError {
	return NewAppError(CodeUnknownBoxType, fmt.Sprintf("box type %q is not defined in the catalog", boxType), http.StatusUnprocessableEntity).
		WithDetail("boxType", boxType)
}

// ErrNotApplicable is returned when an activity is not required for a box
func ErrNotApplicable(activityCode string) *AppError {
	return NewAppError(CodeNotApplicable, fmt.Sprintf("activity %s does not apply to this box", activityCode), http.StatusUnprocessableEntity).
		WithDetail("activityCode", activityCode)
}

// ErrOutOfSequence is returned when an activity is not next in order
func ErrOutOfSequence(activityCode string) *AppError {
	return NewAppError(CodeOutOfSequence, fmt.Sprintf("activity %s cannot change state yet: earlier activities are not complete", activityCode), http.StatusConflict).
		WithDetail("activityCode", activityCode)
}

// ErrRequiresInspection is returned when a checkpoint is completed without an approved WIR
func ErrRequiresInspection(activityCode string) *AppError {
	return NewAppError(CodeRequiresInspection, fmt.Sprintf("activity %s is an inspection checkpoint and completes only through WIR approval", activityCode), http.StatusConflict).
		WithDetail("activityCode", activityCode)
}

// ErrDuplicateWIR is returned when a checkpoint already has an inspection in flight or approved
func ErrDuplicateWIR(activityCode string) *AppError {
	return NewAppError(CodeDuplicateWIR, fmt.Sprintf("an inspection request for %s already exists", activityCode), http.StatusConflict).
		WithDetail("activityCode", activityCode)
}

// ErrIncompleteChecklist is returned when checklist responses do not cover the checklist
func ErrIncompleteChecklist(checklistCode string, missing, invalid []string) *AppError {
	return NewAppError(CodeIncompleteChecklist, fmt.Sprintf("checklist %s is incomplete", checklistCode), http.StatusUnprocessableEntity).
		WithDetail("checklistCode", checklistCode).
		WithList("missing", missing).
		WithList("invalid", invalid)
}

// ErrInvalidTransition is returned when a WIR cannot move to the requested state
func ErrInvalidTransition(message string) *AppError {
	return NewAppError(CodeInvalidTransition, message, http.StatusConflict)
}

// ErrConcurrentUpdate is returned when a record changed between load and save
func ErrConcurrentUpdate(resource string) *AppError {
	return NewAppError(CodeConcurrentUpdate, fmt.Sprintf("%s was modified concurrently", resource), http.StatusConflict).
		WithDetail("retryable", "true")
}

// ErrBoxOnHold is returned for work on a box that is on hold
func ErrBoxOnHold(boxID string) *AppError {
	return NewAppError(CodeBoxOnHold, fmt.Sprintf("box %s is on hold", boxID), http.StatusConflict).
		WithDetail("boxId", boxID)
}

// ErrBoxDispatched is returned for any change to a dispatched box
func ErrBoxDispatched(boxID string) *AppError {
	return NewAppError(CodeBoxDispatched, fmt.Sprintf("box %s has been dispatched and is read-only", boxID), http.StatusConflict).
		WithDetail("boxId", boxID)
}

// ErrNotDispatchReady is returned when a box with open work is dispatched
func ErrNotDispatchReady(boxID string) *AppError {
	return NewAppError(CodeNotDispatchReady, fmt.Sprintf("box %s has incomplete activities or unapproved inspections", boxID), http.StatusConflict).
		WithDetail("boxId", boxID)
}

// ErrInvalidCatalog is returned when the catalog fails validation
func ErrInvalidCatalog(violations []string) *AppError {
	return NewAppError(CodeInvalidCatalog, fmt.Sprintf("catalog failed validation with %d violation(s)", len(violations)), http.StatusInternalServerError).
		WithList("violations", violations)
}

// ErrIdempotencyKeyInvalid is returned for a malformed Idempotency-Key header
func ErrIdempotencyKeyInvalid(reason string) *AppError {
	return NewAppError(CodeIdempotencyKeyInvalid, "invalid Idempotency-Key: "+reason, http.StatusBadRequest)
}

// ErrIdempotencyKeyReused is returned when a key is replayed with a different request
func ErrIdempotencyKeyReused() *AppError {
	return NewAppError(CodeIdempotencyKeyReused, "Idempotency-Key was already used for a different request", http.StatusUnprocessableEntity)
}

// ErrRequestInProgress is returned while the first request with a key is still running
func ErrRequestInProgress() *AppError {
	return NewAppError(CodeRequestInProgress, "a request with this Idempotency-Key is still being processed", http.StatusConflict).
		WithDetail("retryable", "true")
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// FromError converts a standard error to an AppError
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	if appErr, ok := AsAppError(err); ok {
		return appErr
	}

	return ErrInternal("").Wrap(err)
}
