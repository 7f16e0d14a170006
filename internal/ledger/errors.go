package ledger

import "errors"

// Business outcomes of ledger operations.  Callers branch on them with
// errors.Is; any other error returned by the ledger is a store failure.
var (
	ErrEventNotFound       = errors.New("event not found")
	ErrEventFull           = errors.New("event is full")
	ErrAlreadyBooked       = errors.New("already booked")
	ErrIdentifierExhausted = errors.New("could not allocate a unique booking id")
	ErrBookingNotFound     = errors.New("booking not found")
	ErrEventAlreadyStarted = errors.New("event already started")
)

// IsBusiness reports whether err is one of the ledger outcomes above.
func IsBusiness(err error) bool {
	for _, target := range []error{
		ErrEventNotFound, ErrEventFull, ErrAlreadyBooked,
		ErrIdentifierExhausted, ErrBookingNotFound, ErrEventAlreadyStarted,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
