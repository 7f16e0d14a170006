package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/eventease/internal/database"
	"github.com/iliyamo/eventease/internal/model"
	"github.com/iliyamo/eventease/internal/repository"
	"github.com/iliyamo/eventease/internal/utils"
)

type fixture struct {
	db       *database.DB
	events   *repository.EventRepo
	bookings *repository.BookingRepo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return &fixture{db: db, events: repository.NewEventRepo(db), bookings: repository.NewBookingRepo(db)}
}

func (f *fixture) ledger(opts ...Option) *Ledger {
	return New(f.db, f.events, f.bookings, nil, opts...)
}

func (f *fixture) event(t *testing.T, capacity int, startsAt time.Time) uint64 {
	t.Helper()
	e := &model.Event{Title: "event", Capacity: capacity, StartsAt: startsAt, CreatedAt: time.Now()}
	if err := f.events.Create(context.Background(), e); err != nil {
		t.Fatalf("create event: %v", err)
	}
	return e.ID
}

// fixedIDs returns a generator yielding ids in order, repeating the last.
func fixedIDs(ids ...string) (IDGenerator, *int32) {
	var calls int32
	return func(time.Time) (string, error) {
		n := atomic.AddInt32(&calls, 1)
		if int(n) > len(ids) {
			return ids[len(ids)-1], nil
		}
		return ids[n-1], nil
	}, &calls
}

func TestReserveCapacityOne(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	l := f.ledger()
	ctx := context.Background()
	eventID := f.event(t, 1, time.Now().Add(24*time.Hour))

	b, err := l.Reserve(ctx, 1, eventID)
	if err != nil {
		t.Fatalf("reserve A: %v", err)
	}
	if !utils.BookingIDPattern.MatchString(b.BookingID) {
		t.Fatalf("booking id %q does not match pattern", b.BookingID)
	}
	if b.EventID != eventID || b.UserID != 1 {
		t.Fatalf("booking = %+v", b)
	}
	if _, err := l.Reserve(ctx, 2, eventID); !errors.Is(err, ErrEventFull) {
		t.Fatalf("reserve B err = %v, want ErrEventFull", err)
	}
}

func TestReserveTwiceOnFullEventIsAlreadyBooked(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	l := f.ledger()
	ctx := context.Background()
	eventID := f.event(t, 1, time.Now().Add(time.Hour))

	if _, err := l.Reserve(ctx, 1, eventID); err != nil {
		t.Fatalf("first reserve: %v", err)
	}
	if _, err := l.Reserve(ctx, 1, eventID); !errors.Is(err, ErrAlreadyBooked) {
		t.Fatalf("repeat reserve err = %v, want ErrAlreadyBooked", err)
	}
	if _, err := l.Reserve(ctx, 2, eventID); !errors.Is(err, ErrEventFull) {
		t.Fatalf("other user err = %v, want ErrEventFull", err)
	}
}

func TestReserveZeroCapacity(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	eventID := f.event(t, 0, time.Now().Add(time.Hour))
	if _, err := f.ledger().Reserve(context.Background(), 1, eventID); !errors.Is(err, ErrEventFull) {
		t.Fatalf("err = %v, want ErrEventFull", err)
	}
}

func TestReserveTwiceIsAlreadyBooked(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	l := f.ledger()
	ctx := context.Background()
	eventID := f.event(t, 10, time.Now().Add(time.Hour))

	if _, err := l.Reserve(ctx, 1, eventID); err != nil {
		t.Fatalf("first reserve: %v", err)
	}
	if _, err := l.Reserve(ctx, 1, eventID); !errors.Is(err, ErrAlreadyBooked) {
		t.Fatalf("second reserve err = %v, want ErrAlreadyBooked", err)
	}
	list, err := l.ListByUser(ctx, 1)
	if err != nil || len(list) != 1 {
		t.Fatalf("list = %v, %v", list, err)
	}
}

func TestReserveUnknownEvent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if _, err := f.ledger().Reserve(context.Background(), 1, 404); !errors.Is(err, ErrEventNotFound) {
		t.Fatalf("err = %v, want ErrEventNotFound", err)
	}
}

func TestConcurrentReserveNeverOverbooks(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	l := f.ledger()
	const capacity, users = 5, 40
	eventID := f.event(t, capacity, time.Now().Add(time.Hour))

	var ok, full, other atomic.Int32
	var g errgroup.Group
	for u := 1; u <= users; u++ {
		userID := uint64(u)
		g.Go(func() error {
			_, err := l.Reserve(context.Background(), userID, eventID)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrEventFull):
				full.Add(1)
			default:
				other.Add(1)
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok.Load() != capacity || full.Load() != users-capacity || other.Load() != 0 {
		t.Fatalf("ok=%d full=%d other=%d", ok.Load(), full.Load(), other.Load())
	}

	var live int
	if err := f.db.QueryRow("SELECT COUNT(*) FROM bookings WHERE event_id = ?", eventID).Scan(&live); err != nil {
		t.Fatalf("count: %v", err)
	}
	if live != capacity {
		t.Fatalf("live bookings = %d, want %d", live, capacity)
	}
}

func TestConcurrentReserveSameUserSucceedsOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	l := f.ledger()
	eventID := f.event(t, 100, time.Now().Add(time.Hour))

	var ok, dup atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Reserve(context.Background(), 9, eventID)
			if err == nil {
				ok.Add(1)
			} else if errors.Is(err, ErrAlreadyBooked) {
				dup.Add(1)
			}
		}()
	}
	wg.Wait()
	if ok.Load() != 1 || dup.Load() != 9 {
		t.Fatalf("ok=%d dup=%d", ok.Load(), dup.Load())
	}
}

func TestReserveRegeneratesOnCollision(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	gen, calls := fixedIDs("BKG-JAN2030-AAA", "BKG-JAN2030-AAA", "BKG-JAN2030-BBB")
	l := f.ledger(WithIDGenerator(gen))
	eventID := f.event(t, 5, time.Now().Add(time.Hour))

	first, err := l.Reserve(ctx, 1, eventID)
	if err != nil || first.BookingID != "BKG-JAN2030-AAA" {
		t.Fatalf("first = %+v, %v", first, err)
	}
	second, err := l.Reserve(ctx, 2, eventID)
	if err != nil {
		t.Fatalf("second reserve: %v", err)
	}
	if second.BookingID != "BKG-JAN2030-BBB" {
		t.Fatalf("second id = %s", second.BookingID)
	}
	if got := atomic.LoadInt32(calls); got != 3 {
		t.Fatalf("generator calls = %d, want 3", got)
	}
}

func TestReserveExhaustsIdentifierBudget(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	gen, calls := fixedIDs("BKG-JAN2030-AAA")
	l := f.ledger(WithIDGenerator(gen), WithMaxIDAttempts(3))
	eventID := f.event(t, 5, time.Now().Add(time.Hour))

	if _, err := l.Reserve(ctx, 1, eventID); err != nil {
		t.Fatalf("first reserve: %v", err)
	}
	if _, err := l.Reserve(ctx, 2, eventID); !errors.Is(err, ErrIdentifierExhausted) {
		t.Fatalf("err = %v, want ErrIdentifierExhausted", err)
	}
	if got := atomic.LoadInt32(calls); got != 4 {
		t.Fatalf("generator calls = %d, want 1+3", got)
	}
	list, err := l.ListByUser(ctx, 2)
	if err != nil || len(list) != 0 {
		t.Fatalf("user 2 bookings = %v, %v", list, err)
	}
}

// racingStore registers the candidate identifier inside the reservation
// transaction just before the real insert, the way a concurrent reservation
// committing the same identifier would, for the first races inserts.
type racingStore struct {
	*repository.BookingRepo
	races int32
}

func (s *racingStore) InsertTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
	if atomic.AddInt32(&s.races, -1) >= 0 {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO booking_ids (booking_id, user_id, event_id, issued_at) VALUES (?, ?, ?, ?)`,
			b.BookingID, 99, b.EventID, b.CreatedAt.UnixMilli()); err != nil {
			return err
		}
	}
	return s.BookingRepo.InsertTx(ctx, tx, b)
}

func TestReserveRetriesAfterRegistryRace(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	gen, calls := fixedIDs("BKG-JAN2030-AAA", "BKG-JAN2030-BBB")
	store := &racingStore{BookingRepo: f.bookings, races: 1}
	l := New(f.db, f.events, store, nil, WithIDGenerator(gen), WithMaxIDAttempts(3))
	eventID := f.event(t, 5, time.Now().Add(time.Hour))

	b, err := l.Reserve(ctx, 1, eventID)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if b.BookingID != "BKG-JAN2030-BBB" {
		t.Fatalf("booking id = %s, want the regenerated one", b.BookingID)
	}
	if got := atomic.LoadInt32(calls); got != 2 {
		t.Fatalf("generator calls = %d, want 2", got)
	}
	// the raced transaction rolled back, so its identifier left no trace
	if _, err := f.bookings.RegistryEntry(ctx, "BKG-JAN2030-AAA"); !errors.Is(err, repository.ErrBookingNotFound) {
		t.Fatalf("raced registry entry err = %v, want ErrBookingNotFound", err)
	}
}

func TestRegistryRacesConsumeIdentifierBudget(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	var n int32
	gen := func(time.Time) (string, error) {
		i := atomic.AddInt32(&n, 1)
		return fmt.Sprintf("BKG-JAN2030-A%02d", i), nil
	}
	store := &racingStore{BookingRepo: f.bookings, races: 100}
	l := New(f.db, f.events, store, nil, WithIDGenerator(gen), WithMaxIDAttempts(3))
	eventID := f.event(t, 5, time.Now().Add(time.Hour))

	if _, err := l.Reserve(ctx, 1, eventID); !errors.Is(err, ErrIdentifierExhausted) {
		t.Fatalf("err = %v, want ErrIdentifierExhausted", err)
	}
	if got := atomic.LoadInt32(&n); got != 3 {
		t.Fatalf("generator calls = %d, want 3 across retries", got)
	}
	list, err := l.ListByUser(ctx, 1)
	if err != nil || len(list) != 0 {
		t.Fatalf("bookings = %v, %v", list, err)
	}
}

func TestIdentifierNotReusedAfterCancel(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	gen, _ := fixedIDs("BKG-JAN2030-AAA")
	l := f.ledger(WithIDGenerator(gen), WithMaxIDAttempts(2))
	eventID := f.event(t, 5, time.Now().Add(time.Hour))

	b, err := l.Reserve(ctx, 1, eventID)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := l.Cancel(ctx, 1, b.BookingID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := l.Reserve(ctx, 1, eventID); !errors.Is(err, ErrIdentifierExhausted) {
		t.Fatalf("err = %v, want ErrIdentifierExhausted", err)
	}
}

func TestCancelWindow(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	start := time.Date(2030, time.June, 1, 12, 0, 0, 0, time.UTC)
	var now atomic.Int64
	now.Store(start.Add(-time.Hour).UnixMilli())
	clock := ClockFunc(func() time.Time { return time.UnixMilli(now.Load()) })
	l := f.ledger(WithClock(clock))
	eventID := f.event(t, 5, start)

	b1, err := l.Reserve(ctx, 1, eventID)
	if err != nil {
		t.Fatalf("reserve 1: %v", err)
	}
	b2, err := l.Reserve(ctx, 2, eventID)
	if err != nil {
		t.Fatalf("reserve 2: %v", err)
	}
	if !b1.CreatedAt.Equal(start.Add(-time.Hour)) {
		t.Fatalf("created_at = %v", b1.CreatedAt)
	}

	// One millisecond before the start the booking can still be cancelled.
	now.Store(start.Add(-time.Millisecond).UnixMilli())
	if err := l.Cancel(ctx, 1, b1.BookingID); err != nil {
		t.Fatalf("cancel before start: %v", err)
	}

	// At exactly the start time the event counts as started.
	now.Store(start.UnixMilli())
	if err := l.Cancel(ctx, 2, b2.BookingID); !errors.Is(err, ErrEventAlreadyStarted) {
		t.Fatalf("cancel at start err = %v", err)
	}
	list, err := l.ListByUser(ctx, 2)
	if err != nil || len(list) != 1 {
		t.Fatalf("booking must survive a rejected cancel: %v, %v", list, err)
	}
}

func TestReservePastEventThenCancelFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	l := f.ledger()
	ctx := context.Background()
	eventID := f.event(t, 5, time.Now().Add(-time.Hour))

	b, err := l.Reserve(ctx, 1, eventID)
	if err != nil {
		t.Fatalf("reserving a started event is allowed: %v", err)
	}
	if err := l.Cancel(ctx, 1, b.BookingID); !errors.Is(err, ErrEventAlreadyStarted) {
		t.Fatalf("err = %v, want ErrEventAlreadyStarted", err)
	}
}

func TestCancelScopedToOwner(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	l := f.ledger()
	ctx := context.Background()
	eventID := f.event(t, 5, time.Now().Add(time.Hour))

	b, err := l.Reserve(ctx, 1, eventID)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := l.Cancel(ctx, 2, b.BookingID); !errors.Is(err, ErrBookingNotFound) {
		t.Fatalf("foreign cancel err = %v", err)
	}
	if err := l.Cancel(ctx, 1, "BKG-JAN2030-NOP"); !errors.Is(err, ErrBookingNotFound) {
		t.Fatalf("unknown cancel err = %v", err)
	}
	if err := l.Cancel(ctx, 1, b.BookingID); err != nil {
		t.Fatalf("owner cancel: %v", err)
	}
	if err := l.Cancel(ctx, 1, b.BookingID); !errors.Is(err, ErrBookingNotFound) {
		t.Fatalf("repeat cancel err = %v", err)
	}
	// the seat is free again
	if _, err := l.Reserve(ctx, 1, eventID); err != nil {
		t.Fatalf("re-reserve after cancel: %v", err)
	}
}

func TestListByUserEmptyIsNotNil(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	list, err := f.ledger().ListByUser(context.Background(), 77)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if list == nil {
		t.Fatal("list must not be nil")
	}
}

func TestObserversRunAfterCommit(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	var seen []Event
	var mu sync.Mutex
	record := ObserverFunc(func(ctx context.Context, ev Event) error {
		// The booking must already be visible outside the transaction.
		var n int
		if err := f.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM bookings WHERE booking_id = ?", ev.BookingID).Scan(&n); err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		if ev.Kind == KindCreated && n != 1 {
			t.Errorf("observer saw uncommitted booking %s", ev.BookingID)
		}
		seen = append(seen, ev)
		return nil
	})
	failing := ObserverFunc(func(context.Context, Event) error { return errors.New("broker down") })
	panicking := ObserverFunc(func(context.Context, Event) error { panic("boom") })

	l := f.ledger(WithObserver(failing), WithObserver(panicking), WithObserver(record))
	eventID := f.event(t, 1, time.Now().Add(time.Hour))

	b, err := l.Reserve(ctx, 1, eventID)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := l.Reserve(ctx, 2, eventID); !errors.Is(err, ErrEventFull) {
		t.Fatalf("full reserve err = %v", err)
	}
	if err := l.Cancel(ctx, 1, b.BookingID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Fatalf("observer events = %d, want 2", len(seen))
	}
	if seen[0].Kind != KindCreated || seen[1].Kind != KindCancelled {
		t.Fatalf("kinds = %s, %s", seen[0].Kind, seen[1].Kind)
	}
	if seen[0].BookingID != b.BookingID || seen[0].UserID != 1 || seen[0].EventID != eventID {
		t.Fatalf("created event = %+v", seen[0])
	}
}

func TestStoreFailureIsNotABusinessOutcome(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	l := f.ledger()
	eventID := f.event(t, 1, time.Now().Add(time.Hour))
	_ = f.db.Close()

	_, err := l.Reserve(context.Background(), 1, eventID)
	if err == nil {
		t.Fatal("expected error on closed store")
	}
	if IsBusiness(err) {
		t.Fatalf("store failure reported as business outcome: %v", err)
	}
}
