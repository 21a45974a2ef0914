package errors

import (
	"fmt"
	"net/http"
)

// AppError carries an HTTP status code alongside the message so the
// server boundary can answer without a translation table.
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return e.Message
}

func New(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

func NewWithDetails(code int, message, details string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// WithDetails returns a copy of the error with details attached.
func (e *AppError) WithDetails(details string) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
	}
}

var (
	ErrBadRequest          = New(http.StatusBadRequest, "Bad request")
	ErrUnauthorized        = New(http.StatusUnauthorized, "Unauthorized")
	ErrForbidden           = New(http.StatusForbidden, "Forbidden")
	ErrNotFound            = New(http.StatusNotFound, "Not found")
	ErrConflict            = New(http.StatusConflict, "Conflict")
	ErrInternalServerError = New(http.StatusInternalServerError, "Internal server error")
	ErrServiceUnavailable  = New(http.StatusServiceUnavailable, "Service unavailable")

	ErrInvalidPhoneNumber = New(http.StatusBadRequest, "Invalid phone number")
	ErrInvalidGroupID     = New(http.StatusBadRequest, "Invalid group ID")
	ErrInvalidContactType = New(http.StatusBadRequest, "Invalid contact type")
	ErrInvalidGroupType   = New(http.StatusBadRequest, "Invalid group type")
	ErrInvalidWebhookURL  = New(http.StatusBadRequest, "Invalid webhook URL")

	ErrContactNotFound = New(http.StatusNotFound, "Contact not found")
	ErrContactExists   = New(http.StatusConflict, "Contact already exists")
	ErrGroupNotFound   = New(http.StatusNotFound, "Group not found")
	ErrGroupExists     = New(http.StatusConflict, "Group already exists")

	ErrMediaNotFound = New(http.StatusNotFound, "Media not found")
	ErrMediaTooLarge = New(http.StatusBadRequest, "Media exceeds the size limit")
	ErrMediaEmpty    = New(http.StatusBadRequest, "Media payload is empty")

	ErrNoDestination      = New(http.StatusNotFound, "No destination configured")
	ErrClientNotConnected = New(http.StatusServiceUnavailable, "WhatsApp client not connected")
	ErrClientDisabled     = New(http.StatusServiceUnavailable, "WhatsApp client not enabled")
)

func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// GetAppError converts any error to an AppError, defaulting to an
// internal server error for unknown types.
func GetAppError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return NewWithDetails(http.StatusInternalServerError, "Internal server error", err.Error())
}
