package types

import (
	"errors"
	"fmt"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation     ErrorType = "validation"
	ErrorTypeAuthentication ErrorType = "authentication"
	ErrorTypeConflict       ErrorType = "conflict"
	ErrorTypeNetwork        ErrorType = "network"
	ErrorTypeData           ErrorType = "data"
	ErrorTypeStale          ErrorType = "stale"
	ErrorTypeNotFound       ErrorType = "not_found"
	ErrorTypeInternal       ErrorType = "internal"
)

// PortalError represents a structured error in the portal
type PortalError struct {
	Type    ErrorType              `json:"type"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *PortalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *PortalError) Unwrap() error {
	return e.Cause
}

// Common error codes
const (
	ErrCodeValidationFailed      = "VALIDATION_FAILED"
	ErrCodeInvalidCredentials    = "INVALID_CREDENTIALS"
	ErrCodeEmailExists           = "EMAIL_EXISTS"
	ErrCodeNetworkError          = "NETWORK_ERROR"
	ErrCodeUnauthorized          = "UNAUTHORIZED"
	ErrCodeMalformedConversation = "MALFORMED_CONVERSATION"
	ErrCodeStaleResponse         = "STALE_RESPONSE"
	ErrCodeNotFound              = "NOT_FOUND"
	ErrCodeIllegalTransition     = "ILLEGAL_STATUS_TRANSITION"
)

// NewValidationError creates a client-side validation error with
// per-field details
func NewValidationError(message string, fields map[string]interface{}) *PortalError {
	return &PortalError{
		Type:    ErrorTypeValidation,
		Code:    ErrCodeValidationFailed,
		Message: message,
		Details: fields,
	}
}

// NewInvalidCredentialsError creates the error returned when the data
// source rejects an email/password pair
func NewInvalidCredentialsError() *PortalError {
	return &PortalError{
		Type:    ErrorTypeAuthentication,
		Code:    ErrCodeInvalidCredentials,
		Message: "Invalid email or password",
	}
}

// NewEmailExistsError creates the error returned when registering an
// already-known email
func NewEmailExistsError(email string) *PortalError {
	return &PortalError{
		Type:    ErrorTypeConflict,
		Code:    ErrCodeEmailExists,
		Message: "Email already registered",
		Details: map[string]interface{}{"email": email},
	}
}

// NewNetworkError wraps a transport-level failure
func NewNetworkError(cause error) *PortalError {
	return &PortalError{
		Type:    ErrorTypeNetwork,
		Code:    ErrCodeNetworkError,
		Message: "Request to the data source failed",
		Cause:   cause,
	}
}

// NewUnauthorizedError creates the 401-equivalent error that forces the
// session to be cleared
func NewUnauthorizedError(message string) *PortalError {
	return &PortalError{
		Type:    ErrorTypeAuthentication,
		Code:    ErrCodeUnauthorized,
		Message: message,
	}
}

// NewMalformedConversationError marks a conversation that has no valid
// counterpart relative to the viewer
func NewMalformedConversationError(conversationID string) *PortalError {
	return &PortalError{
		Type:    ErrorTypeData,
		Code:    ErrCodeMalformedConversation,
		Message: "Conversation has no counterpart for the current user",
		Details: map[string]interface{}{"conversation_id": conversationID},
	}
}

// NewStaleResponseError marks a superseded async result. Stale responses
// are discarded silently and never surface to the user.
func NewStaleResponseError(resource string) *PortalError {
	return &PortalError{
		Type:    ErrorTypeStale,
		Code:    ErrCodeStaleResponse,
		Message: "Response superseded by a newer request",
		Details: map[string]interface{}{"resource": resource},
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource, id string) *PortalError {
	return &PortalError{
		Type:    ErrorTypeNotFound,
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// IsType reports whether err is a PortalError of the given type
func IsType(err error, t ErrorType) bool {
	var pe *PortalError
	if errors.As(err, &pe) {
		return pe.Type == t
	}
	return false
}

// IsStale reports whether err is a superseded-response error
func IsStale(err error) bool {
	return IsType(err, ErrorTypeStale)
}

// IsAuthFailure reports whether err should clear the current session
func IsAuthFailure(err error) bool {
	var pe *PortalError
	if errors.As(err, &pe) {
		return pe.Type == ErrorTypeAuthentication && pe.Code == ErrCodeUnauthorized
	}
	return false
}
