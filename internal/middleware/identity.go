package middleware

// identity.go holds the context keys set by JWTAuth and the helpers that
// read them back.

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// Context keys populated by JWTAuth.
const (
	ContextUserID = "user_id"
	ContextRole   = "role"
)

// UserID returns the authenticated user's id.  ok is false when the
// request carried no valid token.
func UserID(c echo.Context) (uint64, bool) {
	switch v := c.Get(ContextUserID).(type) {
	case uint64:
		return v, v != 0
	case float64:
		return uint64(v), v > 0
	case string:
		id, err := strconv.ParseUint(v, 10, 64)
		return id, err == nil && id != 0
	}
	return 0, false
}

// Role returns the authenticated user's role, or "" for guests.
func Role(c echo.Context) string {
	r, _ := c.Get(ContextRole).(string)
	return r
}

// userKey identifies the caller in rate-limit keys and request logs.
func userKey(c echo.Context) string {
	if id, ok := UserID(c); ok {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
