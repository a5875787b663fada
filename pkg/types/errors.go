package types

import "fmt"

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation     ErrorType = "validation"
	ErrorTypeAuthorization  ErrorType = "authorization"
	ErrorTypeAuthentication ErrorType = "authentication"
	ErrorTypeNotFound       ErrorType = "not_found"
	ErrorTypeConflict       ErrorType = "conflict"
	ErrorTypeInternal       ErrorType = "internal"
)

// Error codes returned by the record store
const (
	ErrCodeAlreadyInitialized   = "ALREADY_INITIALIZED"
	ErrCodeNotInitialized       = "NOT_INITIALIZED"
	ErrCodeNotOwner             = "NOT_OWNER"
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeInvalidPatientID     = "INVALID_PATIENT_ID"
	ErrCodeInvalidIdentity      = "INVALID_IDENTITY"
	ErrCodeInvalidInput         = "INVALID_INPUT"
	ErrCodeRecordNotFound       = "RECORD_NOT_FOUND"
	ErrCodeAuthenticationFailed = "AUTHENTICATION_FAILED"
	ErrCodeInternalError        = "INTERNAL_ERROR"
)

// StoreError represents a structured error returned by the record store
type StoreError struct {
	Type    ErrorType              `json:"type"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *StoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *StoreError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a StoreError carrying the same code, so the
// sentinels below match errors produced with extra details or causes.
func (e *StoreError) Is(target error) bool {
	t, ok := target.(*StoreError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDetail returns a copy of the error with an extra detail field
func (e *StoreError) WithDetail(key string, value interface{}) *StoreError {
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value

	return &StoreError{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping cause
func (e *StoreError) WithCause(cause error) *StoreError {
	return &StoreError{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// Sentinel errors, compare with errors.Is
var (
	ErrAlreadyInitialized = &StoreError{Type: ErrorTypeConflict, Code: ErrCodeAlreadyInitialized, Message: "store is already initialized"}
	ErrNotInitialized     = &StoreError{Type: ErrorTypeConflict, Code: ErrCodeNotInitialized, Message: "store has no owner yet"}
	ErrNotOwner           = &StoreError{Type: ErrorTypeAuthorization, Code: ErrCodeNotOwner, Message: "caller is not the store owner"}
	ErrUnauthorized       = &StoreError{Type: ErrorTypeAuthorization, Code: ErrCodeUnauthorized, Message: "caller is not authorized for this operation"}
	ErrInvalidPatientID   = &StoreError{Type: ErrorTypeValidation, Code: ErrCodeInvalidPatientID, Message: "patient ID must be a non-negative integer"}
	ErrInvalidIdentity    = &StoreError{Type: ErrorTypeValidation, Code: ErrCodeInvalidIdentity, Message: "identity must not be empty"}
	ErrInvalidInput       = &StoreError{Type: ErrorTypeValidation, Code: ErrCodeInvalidInput, Message: "invalid input"}
	ErrRecordNotFound     = &StoreError{Type: ErrorTypeNotFound, Code: ErrCodeRecordNotFound, Message: "record not found"}
)

// NewValidationError creates a new validation error
func NewValidationError(code, message string, details map[string]interface{}) *StoreError {
	return &StoreError{
		Type:    ErrorTypeValidation,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// NewAuthenticationError creates a new authentication error
func NewAuthenticationError(message string, cause error) *StoreError {
	return &StoreError{
		Type:    ErrorTypeAuthentication,
		Code:    ErrCodeAuthenticationFailed,
		Message: message,
		Cause:   cause,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *StoreError {
	return &StoreError{
		Type:    ErrorTypeInternal,
		Code:    ErrCodeInternalError,
		Message: message,
		Cause:   cause,
	}
}
