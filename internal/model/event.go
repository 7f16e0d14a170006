package model

import "time"

// Event is a bookable happening with a fixed number of seats.  The
// booking ledger treats events as read-only input: it reads Capacity to
// enforce the seat limit and StartsAt to close the cancellation window.
//
// Description and Location are optional and serialised as null when
// absent.
type Event struct {
	ID          uint64    `json:"id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	StartsAt    time.Time `json:"starts_at"`
	Location    *string   `json:"location"`
	Capacity    int       `json:"capacity"`
	CreatedAt   time.Time `json:"created_at"`
}

// Started reports whether the event has begun at instant now.  An event
// whose start equals now counts as started.
func (e Event) Started(now time.Time) bool {
	return !e.StartsAt.After(now)
}
