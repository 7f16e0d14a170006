// Package queue carries booking events from the API server to the audit
// worker over RabbitMQ.
package queue

import (
	"errors"
	"time"

	"github.com/iliyamo/eventease/internal/ledger"
)

// BookingQueue is the durable queue both sides declare.
const BookingQueue = "booking.events"

// Message types.
const (
	TypeBookingCreated   = string(ledger.KindCreated)
	TypeBookingCancelled = string(ledger.KindCancelled)
)

// BookingEvent is the JSON payload of one message.  It carries enough for
// downstream consumers to log or notify without querying the database.
type BookingEvent struct {
	Type       string    `json:"type"`
	BookingID  string    `json:"booking_id"`
	UserID     uint64    `json:"user_id"`
	EventID    uint64    `json:"event_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// FromLedger converts a committed ledger event into its wire form.
func FromLedger(ev ledger.Event) BookingEvent {
	return BookingEvent{
		Type:       string(ev.Kind),
		BookingID:  ev.BookingID,
		UserID:     ev.UserID,
		EventID:    ev.EventID,
		OccurredAt: ev.At.UTC(),
	}
}

// Validate rejects payloads a consumer cannot act on.
func (e BookingEvent) Validate() error {
	switch e.Type {
	case TypeBookingCreated, TypeBookingCancelled:
	default:
		return errors.New("unknown event type " + e.Type)
	}
	if e.BookingID == "" {
		return errors.New("booking_id missing")
	}
	if e.UserID == 0 || e.EventID == 0 {
		return errors.New("user_id and event_id required")
	}
	return nil
}
