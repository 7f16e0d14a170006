// Package ledger enforces the booking invariants: an event never holds
// more live bookings than its capacity, a user holds at most one live
// booking per event, booking identifiers are never reused, and a booking
// can only be cancelled before its event starts.
//
// Every operation runs in a single store transaction.  Reservations for
// the same event are serialized on the event row (SELECT ... FOR UPDATE on
// MySQL and Postgres, the database write lock on SQLite).
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/eventease/internal/database"
	"github.com/iliyamo/eventease/internal/logger"
	"github.com/iliyamo/eventease/internal/model"
	"github.com/iliyamo/eventease/internal/repository"
	"github.com/iliyamo/eventease/internal/utils"
)

// DefaultMaxIDAttempts bounds identifier generation per reservation.
const DefaultMaxIDAttempts = 5

// IDGenerator produces a candidate booking identifier for instant t.
type IDGenerator func(t time.Time) (string, error)

// BookingStore is the booking persistence the Ledger drives.  Every method
// taking a *sql.Tx runs inside the caller's transaction.
type BookingStore interface {
	CountLiveTx(ctx context.Context, tx *sql.Tx, eventID uint64) (int, error)
	ExistsForUserEventTx(ctx context.Context, tx *sql.Tx, userID, eventID uint64) (bool, error)
	FindForUserTx(ctx context.Context, tx *sql.Tx, bookingID string, userID uint64) (*model.Booking, error)
	IDIssuedTx(ctx context.Context, tx *sql.Tx, bookingID string) (bool, error)
	InsertTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error
	DeleteTx(ctx context.Context, tx *sql.Tx, bookingID string, at time.Time) error
	ListByUser(ctx context.Context, userID uint64) ([]model.Booking, error)
}

// Ledger is the transactional booking core.
type Ledger struct {
	db            *database.DB
	events        *repository.EventRepo
	bookings      BookingStore
	log           *logger.Logger
	clock         Clock
	newID         IDGenerator
	observers     []Observer
	maxIDAttempts int
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(l *Ledger) { l.clock = c }
}

// WithIDGenerator replaces utils.NewBookingID.
func WithIDGenerator(g IDGenerator) Option {
	return func(l *Ledger) { l.newID = g }
}

// WithObserver registers an observer for committed booking events.
func WithObserver(o Observer) Option {
	return func(l *Ledger) { l.observers = append(l.observers, o) }
}

// WithMaxIDAttempts sets the identifier generation budget.  Values below
// one are treated as one.
func WithMaxIDAttempts(n int) Option {
	return func(l *Ledger) {
		if n < 1 {
			n = 1
		}
		l.maxIDAttempts = n
	}
}

// New constructs a Ledger over an open store handle.
func New(db *database.DB, events *repository.EventRepo, bookings BookingStore, log *logger.Logger, opts ...Option) *Ledger {
	if log == nil {
		log = logger.Discard()
	}
	l := &Ledger{
		db:            db,
		events:        events,
		bookings:      bookings,
		log:           log,
		clock:         SystemClock{},
		newID:         utils.NewBookingID,
		maxIDAttempts: DefaultMaxIDAttempts,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// errRegistryRace signals that another transaction registered the same
// identifier between our check and our insert.
var errRegistryRace = errors.New("booking id registered concurrently")

// Reserve books one seat on eventID for userID.  It returns ErrEventNotFound,
// ErrEventFull, ErrAlreadyBooked or ErrIdentifierExhausted for the
// corresponding business outcomes, and a wrapped store error otherwise.
func (l *Ledger) Reserve(ctx context.Context, userID, eventID uint64) (*model.Booking, error) {
	budget := l.maxIDAttempts
	for {
		b, used, err := l.reserveOnce(ctx, userID, eventID, budget)
		if errors.Is(err, errRegistryRace) {
			budget -= used
			if budget <= 0 {
				return nil, ErrIdentifierExhausted
			}
			l.log.WarnContext(ctx, "booking id race, retrying reservation",
				"user_id", userID, "event_id", eventID, "attempts_left", budget)
			continue
		}
		if err != nil {
			return nil, err
		}
		l.notify(ctx, Event{Kind: KindCreated, BookingID: b.BookingID, UserID: userID, EventID: eventID, At: b.CreatedAt})
		return b, nil
	}
}

// reserveOnce runs one reservation transaction and reports how many
// identifiers it generated.
func (l *Ledger) reserveOnce(ctx context.Context, userID, eventID uint64, budget int) (*model.Booking, int, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("begin reserve: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	ev, err := l.events.GetByIDForUpdateTx(ctx, tx, eventID)
	if errors.Is(err, repository.ErrEventNotFound) {
		return nil, 0, ErrEventNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("lock event: %w", err)
	}

	// a repeat request from a seat holder is AlreadyBooked even when the
	// event is full
	held, err := l.bookings.ExistsForUserEventTx(ctx, tx, userID, eventID)
	if err != nil {
		return nil, 0, fmt.Errorf("check existing booking: %w", err)
	}
	if held {
		return nil, 0, ErrAlreadyBooked
	}

	live, err := l.bookings.CountLiveTx(ctx, tx, eventID)
	if err != nil {
		return nil, 0, fmt.Errorf("count bookings: %w", err)
	}
	if live >= ev.Capacity {
		return nil, 0, ErrEventFull
	}

	now := l.clock.Now().UTC().Truncate(time.Millisecond)
	id, used, err := l.allocateID(ctx, tx, now, budget)
	if err != nil {
		return nil, used, err
	}

	b := &model.Booking{BookingID: id, UserID: userID, EventID: eventID, CreatedAt: now}
	if err := l.bookings.InsertTx(ctx, tx, b); err != nil {
		switch {
		case repository.IsRegistryConflict(err):
			return nil, used, errRegistryRace
		case database.IsUniqueViolation(err):
			return nil, used, ErrAlreadyBooked
		}
		return nil, used, fmt.Errorf("insert booking: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, used, fmt.Errorf("commit reserve: %w", err)
	}
	committed = true
	return b, used, nil
}

// allocateID generates identifiers until one is absent from the registry
// or the budget runs out.
func (l *Ledger) allocateID(ctx context.Context, tx *sql.Tx, now time.Time, budget int) (string, int, error) {
	for attempt := 1; attempt <= budget; attempt++ {
		id, err := l.newID(now)
		if err != nil {
			return "", attempt, fmt.Errorf("generate booking id: %w", err)
		}
		issued, err := l.bookings.IDIssuedTx(ctx, tx, id)
		if err != nil {
			return "", attempt, fmt.Errorf("check booking id: %w", err)
		}
		if !issued {
			return id, attempt, nil
		}
		l.log.DebugContext(ctx, "booking id collision", "booking_id", id, "attempt", attempt)
	}
	return "", budget, ErrIdentifierExhausted
}

// Cancel removes userID's live booking bookingID.  It returns
// ErrBookingNotFound when the booking does not exist or belongs to another
// user, and ErrEventAlreadyStarted once the event's start time has been
// reached.
func (l *Ledger) Cancel(ctx context.Context, userID uint64, bookingID string) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cancel: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	b, err := l.bookings.FindForUserTx(ctx, tx, bookingID, userID)
	if errors.Is(err, repository.ErrBookingNotFound) {
		return ErrBookingNotFound
	}
	if err != nil {
		return fmt.Errorf("find booking: %w", err)
	}

	ev, err := l.events.GetByIDTx(ctx, tx, b.EventID)
	if errors.Is(err, repository.ErrEventNotFound) {
		return ErrEventNotFound
	}
	if err != nil {
		return fmt.Errorf("load event: %w", err)
	}

	now := l.clock.Now().UTC()
	if ev.Started(now) {
		return ErrEventAlreadyStarted
	}

	err = l.bookings.DeleteTx(ctx, tx, b.BookingID, now)
	if errors.Is(err, repository.ErrBookingNotFound) {
		return ErrBookingNotFound
	}
	if err != nil {
		return fmt.Errorf("delete booking: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cancel: %w", err)
	}
	committed = true

	l.notify(ctx, Event{Kind: KindCancelled, BookingID: b.BookingID, UserID: userID, EventID: b.EventID, At: now})
	return nil
}

// ListByUser returns the user's live bookings in insertion order.  The
// result is never nil.
func (l *Ledger) ListByUser(ctx context.Context, userID uint64) ([]model.Booking, error) {
	out, err := l.bookings.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return out, nil
}

// notify runs every observer on a context detached from the caller's
// cancellation.  Observer errors and panics are logged and swallowed.
func (l *Ledger) notify(ctx context.Context, ev Event) {
	ctx = context.WithoutCancel(ctx)
	for _, o := range l.observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					l.log.ErrorContext(ctx, "booking observer panicked", "kind", ev.Kind, "booking_id", ev.BookingID, "panic", r)
				}
			}()
			if err := o.Observe(ctx, ev); err != nil {
				l.log.WarnContext(ctx, "booking observer failed", "kind", ev.Kind, "booking_id", ev.BookingID, "error", err)
			}
		}()
	}
}
