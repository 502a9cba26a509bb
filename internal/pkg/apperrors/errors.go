package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors
var (
	// Resource errors
	ErrResourceNotFound = errors.New("resource not found")
	ErrConflict         = errors.New("conflict")

	// Authentication errors
	ErrTokenExpired  = errors.New("token expired")
	ErrTokenInvalid  = errors.New("invalid token")
	ErrInvalidFormat = errors.New("invalid token format")

	// Authorization errors
	ErrPermissionDenied = errors.New("permission denied")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")
	ErrBadRequest       = errors.New("bad request")
)

// Class setup errors
var (
	ErrMalformedSubmission       = errors.New("malformed submission")
	ErrUnresolvedParentReference = errors.New("unresolved parent reference")
	ErrValidationRejected        = errors.New("configuration change rejected")
	ErrPersistenceFailure        = errors.New("persistence failure")
	ErrConfigurationNotFound     = fmt.Errorf("configuration %w", ErrResourceNotFound)
	ErrIncompleteConfiguration   = errors.New("configuration setup is incomplete")
)

// NewResourceNotFoundError creates a new custom error for resource not found with a message
func NewResourceNotFoundError(message string) error {
	return &CustomError{
		Err:     ErrResourceNotFound,
		Message: message,
	}
}

// NewConfigurationNotFoundError reports a missing configuration. It also matches ErrResourceNotFound.
func NewConfigurationNotFoundError(id int64) error {
	return &CustomError{
		Err:     ErrConfigurationNotFound,
		Message: fmt.Sprintf("configuration %d not found", id),
	}
}

// NewForbiddenError creates a new custom error for permission denied with a message
func NewForbiddenError(message string) error {
	return &CustomError{
		Err:     ErrPermissionDenied,
		Message: message,
	}
}

// NewBadRequestError creates a new custom error for bad request with a message
func NewBadRequestError(message string) error {
	return &CustomError{
		Err:     ErrBadRequest,
		Message: message,
	}
}

// NewRejectedError reports a veto from the external validation hook.
func NewRejectedError(reason string) error {
	return &CustomError{
		Err:     ErrValidationRejected,
		Message: "configuration change rejected: " + reason,
		Code:    "REJECTED",
	}
}

// Persistence wraps a store error so it matches ErrPersistenceFailure.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, errors.Join(ErrPersistenceFailure, err))
}

// Is returns whether target matches any of the errors in errList
func Is(err, target error, errList ...error) bool {
	if errors.Is(err, target) {
		return true
	}

	for _, e := range errList {
		if errors.Is(err, e) {
			return true
		}
	}

	return false
}

// CustomError represents application-specific errors with additional context
type CustomError struct {
	Err       error
	Message   string
	StatusMsg string
	Code      string
	Details   map[string]interface{}
}

// Error implements error interface
func (e *CustomError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "unknown error"
}

// Unwrap implements errors.Unwrap interface
func (e *CustomError) Unwrap() error {
	return e.Err
}

// NewCustomError creates a CustomError with underlying error
func NewCustomError(err error, message string) *CustomError {
	return &CustomError{
		Err:     err,
		Message: message,
	}
}

// WithDetails adds context details to the error
func (e *CustomError) WithDetails(details map[string]interface{}) *CustomError {
	e.Details = details
	return e
}

// WithCode adds an error code
func (e *CustomError) WithCode(code string) *CustomError {
	e.Code = code
	return e
}

// FieldError is one problem found in a submitted class row.
type FieldError struct {
	Index   int    `json:"index"`
	Field   string `json:"field"`
	Message string `json:"message"`
	kind    error
}

// SubmissionError collects every problem found while parsing a submission.
// It matches ErrMalformedSubmission and, when a placeholder parent could not be
// resolved, ErrUnresolvedParentReference.
type SubmissionError struct {
	Fields []FieldError
}

// Add records a malformed-field problem.
func (e *SubmissionError) Add(index int, field, format string, args ...interface{}) {
	e.Fields = append(e.Fields, FieldError{Index: index, Field: field, Message: fmt.Sprintf(format, args...), kind: ErrMalformedSubmission})
}

// AddUnresolved records a placeholder parent that does not resolve.
func (e *SubmissionError) AddUnresolved(index int, field, format string, args ...interface{}) {
	e.Fields = append(e.Fields, FieldError{Index: index, Field: field, Message: fmt.Sprintf(format, args...), kind: ErrUnresolvedParentReference})
}

// HasErrors reports whether anything was recorded.
func (e *SubmissionError) HasErrors() bool {
	return e != nil && len(e.Fields) > 0
}

// Error implements error interface
func (e *SubmissionError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, fmt.Sprintf("row %d %s: %s", f.Index, f.Field, f.Message))
	}
	return "malformed submission: " + strings.Join(msgs, "; ")
}

// Unwrap exposes every error kind present in the collection.
func (e *SubmissionError) Unwrap() []error {
	kinds := []error{ErrMalformedSubmission}
	for _, f := range e.Fields {
		if f.kind == ErrUnresolvedParentReference {
			kinds = append(kinds, ErrUnresolvedParentReference)
			break
		}
	}
	return kinds
}

// ErrOrNil returns e as an error when it holds problems, nil otherwise.
func (e *SubmissionError) ErrOrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}
