package util

import (
	"errors"
	"fmt"
	"net/http"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

// NewTicketNotFound signals an unknown ticket id on ticket-level operations.
func NewTicketNotFound(ticketID string) error {
	return NewDomainError("TICKET_NOT_FOUND", "ticket not found", http.StatusNotFound,
		map[string]any{"ticket_id": ticketID})
}

// NewInvalidTicket signals a message append against an unknown ticket.
func NewInvalidTicket(ticketID string) error {
	return NewDomainError("INVALID_TICKET", "ticket does not exist", http.StatusUnprocessableEntity,
		map[string]any{"ticket_id": ticketID})
}

// NewInvalidTransition carries the conflicting current state so the caller can
// reconcile its local view instead of retrying blindly.
func NewInvalidTransition(message string, details map[string]any) error {
	return NewDomainError("INVALID_TRANSITION", message, http.StatusConflict, details)
}

// NewBusy signals lock-wait expiry; safe to retry.
func NewBusy(ticketID string) error {
	return NewDomainError("BUSY", "ticket is busy, retry", http.StatusServiceUnavailable,
		map[string]any{"ticket_id": ticketID, "retryable": true})
}

// NewLimitExceeded signals a billing gate rejection.
func NewLimitExceeded(resource string) error {
	return NewDomainError("LIMIT_EXCEEDED", "plan limit exceeded", http.StatusPaymentRequired,
		map[string]any{"resource": resource})
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError("FORBIDDEN", message, http.StatusForbidden, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}

// IsCode reports whether err is a DomainError with the given code.
func IsCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}
