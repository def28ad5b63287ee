package autherr

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAdminExists is returned when initial setup is attempted after an admin account already exists.
	ErrAdminExists = errors.New("admin user already exists")
	// ErrUsernameTaken is returned when attempting to create a user with a username that already exists.
	ErrUsernameTaken = errors.New("username already exists")
	// ErrUserNotFound is returned when a user record is not found in the store.
	ErrUserNotFound = errors.New("user not found")
	// ErrSessionNotFound is returned when a session record is not found in the store.
	ErrSessionNotFound = errors.New("session not found")
	// ErrAdminUndeletable is returned when attempting to hard-delete an admin account.
	ErrAdminUndeletable = errors.New("cannot delete admin user")
)

// RateLimitError is returned by the authenticator when the login rate limiter
// denies an attempt. It carries the lockout deadline so callers can surface a
// retry-after hint without parsing the message.
type RateLimitError struct {
	LockoutUntil time.Time
	Message      string
}

func (e *RateLimitError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "too many login attempts"
}

// RetryAfter reports how long the caller must wait before the lockout passes.
// Returns zero if the lockout has already elapsed.
func (e *RateLimitError) RetryAfter(now time.Time) time.Duration {
	if e.LockoutUntil.IsZero() || !now.Before(e.LockoutUntil) {
		return 0
	}
	return e.LockoutUntil.Sub(now)
}

// ValidationError reports a policy violation in user-supplied input. Field
// names the offending input, Reason is safe to show to the end user.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
