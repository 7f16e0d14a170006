package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/iliyamo/eventease/internal/model"
	"github.com/iliyamo/eventease/internal/repository"
)

type memEvents struct {
	events map[uint64]model.Event
	nextID uint64
}

func newMemEvents() *memEvents { return &memEvents{events: map[uint64]model.Event{}} }

func (m *memEvents) List(context.Context) ([]model.Event, error) {
	out := make([]model.Event, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e)
	}
	return out, nil
}

func (m *memEvents) GetByID(_ context.Context, id uint64) (*model.Event, error) {
	e, ok := m.events[id]
	if !ok {
		return nil, repository.ErrEventNotFound
	}
	return &e, nil
}

func (m *memEvents) Create(_ context.Context, e *model.Event) error {
	m.nextID++
	e.ID = m.nextID
	m.events[e.ID] = *e
	return nil
}

func (m *memEvents) Delete(_ context.Context, id uint64) error {
	if _, ok := m.events[id]; !ok {
		return repository.ErrEventNotFound
	}
	delete(m.events, id)
	return nil
}

func TestEventServiceCreateValidates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := NewEventService(newMemEvents(), nil)
	start := time.Date(2030, time.July, 1, 9, 0, 0, 0, time.UTC)

	tests := map[string]CreateEventInput{
		"blank title":       {Title: "  ", StartsAt: start, Capacity: 1},
		"negative capacity": {Title: "x", StartsAt: start, Capacity: -1},
		"missing start":     {Title: "x", Capacity: 1},
	}
	for name, in := range tests {
		if _, err := svc.Create(ctx, in); AsAppError(err).Code != CodeInvalidInput {
			t.Fatalf("%s: err = %v", name, err)
		}
	}

	blank := "   "
	e, err := svc.Create(ctx, CreateEventInput{Title: " Gala ", StartsAt: start, Capacity: 0, Location: &blank})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if e.ID == 0 || e.Title != "Gala" || e.Location != nil || e.CreatedAt.IsZero() {
		t.Fatalf("event = %+v", e)
	}
}

func TestEventServiceGetAndDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newMemEvents()
	svc := NewEventService(store, nil)
	e, err := svc.Create(ctx, CreateEventInput{Title: "Talk", StartsAt: time.Now().Add(time.Hour), Capacity: 2})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got, err := svc.Get(ctx, e.ID); err != nil || got.Title != "Talk" {
		t.Fatalf("get = %+v, %v", got, err)
	}
	if err := svc.Delete(ctx, e.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, err = svc.Get(ctx, e.ID)
	if appErr := AsAppError(err); appErr.Code != CodeEventNotFound || appErr.HTTPStatus != http.StatusNotFound {
		t.Fatalf("get deleted err = %v", err)
	}
}
