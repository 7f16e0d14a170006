package service

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/iliyamo/eventease/internal/ledger"
	"github.com/iliyamo/eventease/internal/logger"
	"github.com/iliyamo/eventease/internal/model"
	"github.com/iliyamo/eventease/internal/utils"
)

// Booker is the part of the ledger the booking service depends on.
type Booker interface {
	Reserve(ctx context.Context, userID, eventID uint64) (*model.Booking, error)
	Cancel(ctx context.Context, userID uint64, bookingID string) error
	ListByUser(ctx context.Context, userID uint64) ([]model.Booking, error)
}

// BookingService exposes the booking use-cases and translates ledger
// outcomes into AppErrors.  It adds no rules of its own.
type BookingService struct {
	ledger Booker
	log    *logger.Logger
}

func NewBookingService(b Booker, log *logger.Logger) *BookingService {
	if log == nil {
		log = logger.Discard()
	}
	return &BookingService{ledger: b, log: log}
}

// Book reserves a seat on eventID for userID.
func (s *BookingService) Book(ctx context.Context, userID, eventID uint64) (*model.Booking, error) {
	if userID == 0 {
		return nil, invalidInput("user id required")
	}
	if eventID == 0 {
		return nil, invalidInput("event id required")
	}
	b, err := s.ledger.Reserve(ctx, userID, eventID)
	if err != nil {
		return nil, s.mapErr(ctx, "book", err)
	}
	return b, nil
}

// MyBookings lists the caller's live bookings.
func (s *BookingService) MyBookings(ctx context.Context, userID uint64) ([]model.Booking, error) {
	if userID == 0 {
		return nil, invalidInput("user id required")
	}
	list, err := s.ledger.ListByUser(ctx, userID)
	if err != nil {
		return nil, s.mapErr(ctx, "list bookings", err)
	}
	return list, nil
}

// Cancel cancels the caller's booking.  Identifiers that cannot have been
// issued are reported as not found without touching the store.
func (s *BookingService) Cancel(ctx context.Context, userID uint64, bookingID string) error {
	if userID == 0 {
		return invalidInput("user id required")
	}
	bookingID = strings.TrimSpace(bookingID)
	if bookingID == "" {
		return invalidInput("booking id required")
	}
	if !utils.BookingIDPattern.MatchString(bookingID) {
		return MapLedgerError(ledger.ErrBookingNotFound)
	}
	if err := s.ledger.Cancel(ctx, userID, bookingID); err != nil {
		return s.mapErr(ctx, "cancel", err)
	}
	return nil
}

func (s *BookingService) mapErr(ctx context.Context, op string, err error) *AppError {
	appErr := MapLedgerError(err)
	if appErr.Code == CodeInternal {
		s.log.ErrorContext(ctx, "booking operation failed", "op", op, "error", err)
	}
	return appErr
}

// MapLedgerError translates a ledger error into its external form.  Errors
// outside the ledger's taxonomy become INTERNAL_ERROR.
func MapLedgerError(err error) *AppError {
	switch {
	case errors.Is(err, ledger.ErrEventNotFound):
		return &AppError{Code: CodeEventNotFound, Message: "event not found", HTTPStatus: http.StatusNotFound, Err: err}
	case errors.Is(err, ledger.ErrEventFull):
		return &AppError{Code: CodeEventFull, Message: "event is full", HTTPStatus: http.StatusConflict, Err: err}
	case errors.Is(err, ledger.ErrAlreadyBooked):
		return &AppError{Code: CodeAlreadyBooked, Message: "already booked", HTTPStatus: http.StatusConflict, Err: err}
	case errors.Is(err, ledger.ErrIdentifierExhausted):
		return &AppError{Code: CodeIdentifierExhausted, Message: "could not allocate booking id, retry", HTTPStatus: http.StatusServiceUnavailable, Err: err}
	case errors.Is(err, ledger.ErrBookingNotFound):
		return &AppError{Code: CodeBookingNotFound, Message: "booking not found", HTTPStatus: http.StatusNotFound, Err: err}
	case errors.Is(err, ledger.ErrEventAlreadyStarted):
		return &AppError{Code: CodeEventAlreadyStarted, Message: "event already started", HTTPStatus: http.StatusBadRequest, Err: err}
	}
	return internal(err)
}
