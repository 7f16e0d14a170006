// Package service holds the use-case layer between the HTTP handlers and
// the booking ledger.  Every failure leaving this package is an *AppError
// carrying a stable code and the HTTP status the API should answer with.
package service

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes exposed to API clients.
const (
	CodeEventNotFound       = "EVENT_NOT_FOUND"
	CodeEventFull           = "EVENT_FULL"
	CodeAlreadyBooked       = "ALREADY_BOOKED"
	CodeIdentifierExhausted = "IDENTIFIER_EXHAUSTED"
	CodeBookingNotFound     = "BOOKING_NOT_FOUND"
	CodeEventAlreadyStarted = "EVENT_ALREADY_STARTED"
	CodeInvalidInput        = "INVALID_INPUT"
	CodeInternal            = "INTERNAL_ERROR"
)

// AppError is a failure with an external meaning.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// Retriable reports whether the client may repeat the request unchanged.
func (e *AppError) Retriable() bool {
	return e.Code == CodeIdentifierExhausted
}

// AsAppError extracts an *AppError from err, wrapping anything else as an
// internal error.
func AsAppError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return internal(err)
}

func invalidInput(msg string) *AppError {
	return &AppError{Code: CodeInvalidInput, Message: msg, HTTPStatus: http.StatusBadRequest}
}

func internal(err error) *AppError {
	return &AppError{Code: CodeInternal, Message: "internal error", HTTPStatus: http.StatusInternalServerError, Err: err}
}
