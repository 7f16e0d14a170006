package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/eventease/internal/service"
)

// BookingHandler exposes the booking use-cases to authenticated users.
type BookingHandler struct {
	Bookings *service.BookingService
}

func NewBookingHandler(s *service.BookingService) *BookingHandler {
	return &BookingHandler{Bookings: s}
}

// Book: POST /v1/events/:id/book
func (h *BookingHandler) Book(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return errorJSON(c, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
	}
	eventID, ok := pathID(c, "id")
	if !ok {
		return errorJSON(c, http.StatusBadRequest, service.CodeInvalidInput, "invalid event id")
	}
	b, err := h.Bookings.Book(c.Request().Context(), uid, eventID)
	if err != nil {
		return writeAppError(c, err)
	}
	return c.JSON(http.StatusCreated, b)
}

// MyBookings: GET /v1/my-bookings
func (h *BookingHandler) MyBookings(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return errorJSON(c, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
	}
	list, err := h.Bookings.MyBookings(c.Request().Context(), uid)
	if err != nil {
		return writeAppError(c, err)
	}
	return c.JSON(http.StatusOK, list)
}

// Cancel: DELETE /v1/bookings/:booking_id
func (h *BookingHandler) Cancel(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return errorJSON(c, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
	}
	if err := h.Bookings.Cancel(c.Request().Context(), uid, c.Param("booking_id")); err != nil {
		return writeAppError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}
