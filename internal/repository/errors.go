// Package repository defines error types that are reused across multiple
// repositories.  These sentinel values allow higher layers such as the
// ledger and the handlers to distinguish between "absent" and a failing
// store without inspecting driver errors.
package repository

import "errors"

// ErrEventNotFound is returned when no event row matches the requested id.
var ErrEventNotFound = errors.New("event not found")

// ErrBookingNotFound is returned when no live booking matches the lookup.
// Callers scoping the lookup to a user get the same error for "not yours"
// and "does not exist".
var ErrBookingNotFound = errors.New("booking not found")

// ErrUserNotFound is returned when no user row matches the lookup.
var ErrUserNotFound = errors.New("user not found")

// ErrEmailExists is returned by UserRepo.Create when the email is taken.
var ErrEmailExists = errors.New("email already exists")

// ErrTokenInvalid is returned when a refresh token is unknown, revoked or
// expired.
var ErrTokenInvalid = errors.New("refresh token invalid")
