package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/eventease/internal/database"
	"github.com/iliyamo/eventease/internal/model"
)

// BookingRepo persists live bookings and the append-only registry of every
// booking identifier ever issued.  The write methods only run inside a
// transaction owned by the ledger; the caller must commit or roll back.
type BookingRepo struct {
	db *database.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *database.DB) *BookingRepo { return &BookingRepo{db: db} }

// CountLiveTx returns the number of live bookings for eventID.
func (r *BookingRepo) CountLiveTx(ctx context.Context, tx *sql.Tx, eventID uint64) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		r.db.Rebind(`SELECT COUNT(*) FROM bookings WHERE event_id = ?`), eventID).Scan(&n)
	return n, err
}

// ExistsForUserEventTx reports whether userID already holds a live booking
// for eventID.
func (r *BookingRepo) ExistsForUserEventTx(ctx context.Context, tx *sql.Tx, userID, eventID uint64) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		r.db.Rebind(`SELECT COUNT(*) FROM bookings WHERE user_id = ? AND event_id = ?`),
		userID, eventID).Scan(&n)
	return n > 0, err
}

// FindForUserTx returns the live booking bookingID owned by userID, or
// ErrBookingNotFound when it does not exist or belongs to someone else.
func (r *BookingRepo) FindForUserTx(ctx context.Context, tx *sql.Tx, bookingID string, userID uint64) (*model.Booking, error) {
	var (
		b         model.Booking
		createdAt int64
	)
	err := tx.QueryRowContext(ctx,
		r.db.Rebind(`SELECT booking_id, user_id, event_id, created_at FROM bookings WHERE booking_id = ? AND user_id = ?`+r.db.ForUpdate()),
		bookingID, userID).Scan(&b.BookingID, &b.UserID, &b.EventID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	b.CreatedAt = fromMillis(createdAt)
	return &b, nil
}

// IDIssuedTx reports whether bookingID has ever been issued, whether or
// not the booking is still live.
func (r *BookingRepo) IDIssuedTx(ctx context.Context, tx *sql.Tx, bookingID string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		r.db.Rebind(`SELECT COUNT(*) FROM booking_ids WHERE booking_id = ?`), bookingID).Scan(&n)
	return n > 0, err
}

// InsertTx records b.BookingID in the registry and inserts the live
// booking row.  A unique violation is returned unwrapped so the caller can
// tell which constraint failed with IsRegistryConflict.
func (r *BookingRepo) InsertTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
	if _, err := tx.ExecContext(ctx,
		r.db.Rebind(`INSERT INTO booking_ids (booking_id, user_id, event_id, issued_at) VALUES (?, ?, ?, ?)`),
		b.BookingID, b.UserID, b.EventID, toMillis(b.CreatedAt)); err != nil {
		return &registryError{err: err}
	}
	_, err := tx.ExecContext(ctx,
		r.db.Rebind(`INSERT INTO bookings (booking_id, user_id, event_id, created_at) VALUES (?, ?, ?, ?)`),
		b.BookingID, b.UserID, b.EventID, toMillis(b.CreatedAt))
	return err
}

// DeleteTx hard-deletes the live booking and stamps cancelled_at on its
// registry entry.
func (r *BookingRepo) DeleteTx(ctx context.Context, tx *sql.Tx, bookingID string, at time.Time) error {
	res, err := tx.ExecContext(ctx, r.db.Rebind(`DELETE FROM bookings WHERE booking_id = ?`), bookingID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrBookingNotFound
	}
	_, err = tx.ExecContext(ctx,
		r.db.Rebind(`UPDATE booking_ids SET cancelled_at = ? WHERE booking_id = ?`),
		toMillis(at), bookingID)
	return err
}

// ListByUser returns the user's live bookings in insertion order.  An
// empty slice is returned when there are none.
func (r *BookingRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Booking, error) {
	rows, err := r.db.QueryContext(ctx,
		r.db.Rebind(`SELECT booking_id, user_id, event_id, created_at FROM bookings WHERE user_id = ? ORDER BY id`),
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Booking, 0)
	for rows.Next() {
		var (
			b         model.Booking
			createdAt int64
		)
		if err := rows.Scan(&b.BookingID, &b.UserID, &b.EventID, &createdAt); err != nil {
			return nil, err
		}
		b.CreatedAt = fromMillis(createdAt)
		out = append(out, b)
	}
	return out, rows.Err()
}

// RegistryEntry is one row of the identifier registry.
type RegistryEntry struct {
	BookingID   string
	UserID      uint64
	EventID     uint64
	IssuedAt    time.Time
	CancelledAt *time.Time
}

// RegistryEntry returns the registry row for bookingID.
func (r *BookingRepo) RegistryEntry(ctx context.Context, bookingID string) (*RegistryEntry, error) {
	var (
		e         RegistryEntry
		issuedAt  int64
		cancelled sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx,
		r.db.Rebind(`SELECT booking_id, user_id, event_id, issued_at, cancelled_at FROM booking_ids WHERE booking_id = ?`),
		bookingID).Scan(&e.BookingID, &e.UserID, &e.EventID, &issuedAt, &cancelled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	e.IssuedAt = fromMillis(issuedAt)
	e.CancelledAt = fromNullMillis(cancelled)
	return &e, nil
}

// registryError marks a failure inserting into booking_ids.
type registryError struct{ err error }

func (e *registryError) Error() string { return "register booking id: " + e.err.Error() }
func (e *registryError) Unwrap() error { return e.err }

// IsRegistryConflict reports whether err is a duplicate identifier in the
// registry, as opposed to a duplicate (user, event) pair in bookings.
func IsRegistryConflict(err error) bool {
	var re *registryError
	return errors.As(err, &re) && database.IsUniqueViolation(re.err)
}
