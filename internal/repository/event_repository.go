package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/eventease/internal/database"
	"github.com/iliyamo/eventease/internal/model"
)

// EventRepo provides read access to events for the ledger and the public
// API, plus creation for administrators.  Events are never modified by
// the booking core.
type EventRepo struct {
	db *database.DB
}

// NewEventRepo returns a new EventRepo bound to the given database.
func NewEventRepo(db *database.DB) *EventRepo { return &EventRepo{db: db} }

const eventColumns = `id, title, description, starts_at, location, capacity, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*model.Event, error) {
	var (
		e                     model.Event
		desc, loc             sql.NullString
		startsAt, createdAtMs int64
	)
	if err := row.Scan(&e.ID, &e.Title, &desc, &startsAt, &loc, &e.Capacity, &createdAtMs); err != nil {
		return nil, err
	}
	e.Description = fromNullString(desc)
	e.Location = fromNullString(loc)
	e.StartsAt = fromMillis(startsAt)
	e.CreatedAt = fromMillis(createdAtMs)
	return &e, nil
}

// GetByID returns the event with the given id or ErrEventNotFound.
func (r *EventRepo) GetByID(ctx context.Context, id uint64) (*model.Event, error) {
	return r.get(ctx, r.db, id, "")
}

// GetByIDTx reads the event inside tx without locking it.
func (r *EventRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Event, error) {
	return r.get(ctx, tx, id, "")
}

// GetByIDForUpdateTx reads the event inside tx and locks its row until the
// transaction ends.  Concurrent reservations for the same event queue
// behind the lock; reservations for other events proceed.
func (r *EventRepo) GetByIDForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Event, error) {
	return r.get(ctx, tx, id, r.db.ForUpdate())
}

func (r *EventRepo) get(ctx context.Context, q database.Querier, id uint64, suffix string) (*model.Event, error) {
	query := r.db.Rebind(`SELECT ` + eventColumns + ` FROM events WHERE id = ?` + suffix)
	e, err := scanEvent(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	return e, err
}

// List returns every event ordered by start time, then id.  An empty
// slice is returned when there are no events.
func (r *EventRepo) List(ctx context.Context) ([]model.Event, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM events ORDER BY starts_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	events := make([]model.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// Create inserts e and populates its ID.  CreatedAt must be set by the
// caller.
func (r *EventRepo) Create(ctx context.Context, e *model.Event) error {
	e.Title = strings.TrimSpace(e.Title)
	id, err := r.db.InsertID(ctx, r.db,
		`INSERT INTO events (title, description, starts_at, location, capacity, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.Title, nullString(e.Description), toMillis(e.StartsAt), nullString(e.Location), e.Capacity, toMillis(e.CreatedAt))
	if err != nil {
		return err
	}
	e.ID = uint64(id)
	return nil
}

// Delete removes an event.  Its live bookings go with it (ON DELETE
// CASCADE); identifiers stay in the registry.
func (r *EventRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM events WHERE id = ?`), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrEventNotFound
	}
	return nil
}
