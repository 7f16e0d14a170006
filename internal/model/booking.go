package model

import "time"

// Booking is one live seat reservation.  Bookings are created only by
// the ledger and are removed, not updated, when cancelled.
type Booking struct {
	BookingID string    `json:"booking_id"`
	UserID    uint64    `json:"-"`
	EventID   uint64    `json:"event_id"`
	CreatedAt time.Time `json:"created_at"`
}
