package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/iliyamo/eventease/internal/logger"
	"github.com/iliyamo/eventease/internal/model"
	"github.com/iliyamo/eventease/internal/repository"
)

// EventStore is the event persistence the service needs.
type EventStore interface {
	List(ctx context.Context) ([]model.Event, error)
	GetByID(ctx context.Context, id uint64) (*model.Event, error)
	Create(ctx context.Context, e *model.Event) error
	Delete(ctx context.Context, id uint64) error
}

// CreateEventInput carries an administrator's new event.
type CreateEventInput struct {
	Title       string
	Description *string
	StartsAt    time.Time
	Location    *string
	Capacity    int
}

// EventService serves the event catalogue.
type EventService struct {
	store EventStore
	log   *logger.Logger
	now   func() time.Time
}

func NewEventService(store EventStore, log *logger.Logger) *EventService {
	if log == nil {
		log = logger.Discard()
	}
	return &EventService{store: store, log: log, now: time.Now}
}

func (s *EventService) List(ctx context.Context) ([]model.Event, error) {
	events, err := s.store.List(ctx)
	if err != nil {
		s.log.ErrorContext(ctx, "list events failed", "error", err)
		return nil, internal(err)
	}
	return events, nil
}

func (s *EventService) Get(ctx context.Context, id uint64) (*model.Event, error) {
	e, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, s.mapErr(ctx, "get event", err)
	}
	return e, nil
}

// Create validates in and stores a new event.
func (s *EventService) Create(ctx context.Context, in CreateEventInput) (*model.Event, error) {
	title := strings.TrimSpace(in.Title)
	switch {
	case title == "":
		return nil, invalidInput("title required")
	case in.Capacity < 0:
		return nil, invalidInput("capacity must be >= 0")
	case in.StartsAt.IsZero():
		return nil, invalidInput("starts_at required")
	}
	e := &model.Event{
		Title:       title,
		Description: trimOptional(in.Description),
		StartsAt:    in.StartsAt.UTC().Truncate(time.Millisecond),
		Location:    trimOptional(in.Location),
		Capacity:    in.Capacity,
		CreatedAt:   s.now().UTC().Truncate(time.Millisecond),
	}
	if err := s.store.Create(ctx, e); err != nil {
		s.log.ErrorContext(ctx, "create event failed", "error", err)
		return nil, internal(err)
	}
	s.log.InfoContext(ctx, "event created", "event_id", e.ID, "capacity", e.Capacity, "starts_at", e.StartsAt)
	return e, nil
}

// Delete removes an event together with its live bookings.
func (s *EventService) Delete(ctx context.Context, id uint64) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return s.mapErr(ctx, "delete event", err)
	}
	s.log.InfoContext(ctx, "event deleted", "event_id", id)
	return nil
}

func (s *EventService) mapErr(ctx context.Context, op string, err error) *AppError {
	if errors.Is(err, repository.ErrEventNotFound) {
		return &AppError{Code: CodeEventNotFound, Message: "event not found", HTTPStatus: http.StatusNotFound, Err: err}
	}
	s.log.ErrorContext(ctx, "event operation failed", "op", op, "error", err)
	return internal(err)
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
