package utils

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"strings"
	"time"
)

// bookingAlphabet holds the 36 symbols used for the random suffix.
const bookingAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// BookingIDPattern matches identifiers produced by NewBookingID.
var BookingIDPattern = regexp.MustCompile(`^BKG-[A-Z]{3}[0-9]{4}-[A-Z0-9]{3}$`)

// NewBookingID returns an identifier of the form BKG-<MON><YYYY>-<R3> for
// instant t, where MON is the upper-case English month abbreviation in UTC
// and R3 is three symbols drawn uniformly from A-Z0-9.  Identifiers are not
// guaranteed to be unique; callers must check for collisions.
func NewBookingID(t time.Time) (string, error) {
	t = t.UTC()
	suffix := make([]byte, 3)
	max := big.NewInt(int64(len(bookingAlphabet)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		suffix[i] = bookingAlphabet[n.Int64()]
	}
	var b strings.Builder
	b.Grow(16)
	b.WriteString("BKG-")
	b.WriteString(strings.ToUpper(t.Format("Jan")))
	b.WriteString(t.Format("2006"))
	b.WriteByte('-')
	b.Write(suffix)
	return b.String(), nil
}
