package ledger

import (
	"context"
	"time"

	"github.com/iliyamo/eventease/internal/logger"
)

// Kind names a booking state change.
type Kind string

const (
	KindCreated   Kind = "booking.created"
	KindCancelled Kind = "booking.cancelled"
)

// Event describes a committed booking state change.
type Event struct {
	Kind      Kind
	BookingID string
	UserID    uint64
	EventID   uint64
	At        time.Time
}

// Observer is notified after a reservation or cancellation commits.  The
// returned error is logged and otherwise ignored; it never changes the
// outcome of the operation that produced the event.
type Observer interface {
	Observe(ctx context.Context, ev Event) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event) error

func (f ObserverFunc) Observe(ctx context.Context, ev Event) error { return f(ctx, ev) }

// LoggingObserver writes one structured record per booking event.
type LoggingObserver struct {
	Log *logger.Logger
}

func (o LoggingObserver) Observe(ctx context.Context, ev Event) error {
	msg := "booking created"
	if ev.Kind == KindCancelled {
		msg = "booking cancelled"
	}
	o.Log.InfoContext(ctx, msg,
		"booking_id", ev.BookingID,
		"user_id", ev.UserID,
		"event_id", ev.EventID,
		"at", ev.At,
	)
	return nil
}
