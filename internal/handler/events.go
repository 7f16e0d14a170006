package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/eventease/internal/service"
)

// EventHandler serves the event catalogue.  Listing and detail are public;
// creation and deletion are restricted to administrators by the router.
type EventHandler struct {
	Events *service.EventService
}

func NewEventHandler(s *service.EventService) *EventHandler { return &EventHandler{Events: s} }

type createEventReq struct {
	Title       string    `json:"title" validate:"required"`
	Description *string   `json:"description"`
	StartsAt    time.Time `json:"starts_at" validate:"required"`
	Location    *string   `json:"location"`
	Capacity    *int      `json:"capacity" validate:"required,gte=0"`
}

// List: GET /v1/events
func (h *EventHandler) List(c echo.Context) error {
	events, err := h.Events.List(c.Request().Context())
	if err != nil {
		return writeAppError(c, err)
	}
	return c.JSON(http.StatusOK, events)
}

// Get: GET /v1/events/:id
func (h *EventHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return errorJSON(c, http.StatusBadRequest, service.CodeInvalidInput, "invalid event id")
	}
	e, err := h.Events.Get(c.Request().Context(), id)
	if err != nil {
		return writeAppError(c, err)
	}
	return c.JSON(http.StatusOK, e)
}

// Create: POST /v1/events (ADMIN)
func (h *EventHandler) Create(c echo.Context) error {
	var req createEventReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	e, err := h.Events.Create(c.Request().Context(), service.CreateEventInput{
		Title:       req.Title,
		Description: req.Description,
		StartsAt:    req.StartsAt,
		Location:    req.Location,
		Capacity:    *req.Capacity,
	})
	if err != nil {
		return writeAppError(c, err)
	}
	return c.JSON(http.StatusCreated, e)
}

// Delete: DELETE /v1/events/:id (ADMIN)
func (h *EventHandler) Delete(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return errorJSON(c, http.StatusBadRequest, service.CodeInvalidInput, "invalid event id")
	}
	if err := h.Events.Delete(c.Request().Context(), id); err != nil {
		return writeAppError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
