package validation

import (
	"errors"
	"regexp"
)

var (
	ErrUsernameTooShort = errors.New("username must be at least 3 characters long")
	ErrUsernameTooLong  = errors.New("username must be at most 30 characters long")
	ErrUsernameCharset  = errors.New("username can only contain letters, numbers, underscores, and hyphens")
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateUsername enforces the general username policy: 3-30 characters from
// [A-Za-z0-9_-]. The bootstrap setup path additionally caps the length at 20
// at its call site.
func ValidateUsername(username string) error {
	if len(username) < 3 {
		return ErrUsernameTooShort
	}
	if len(username) > 30 {
		return ErrUsernameTooLong
	}
	if !usernamePattern.MatchString(username) {
		return ErrUsernameCharset
	}
	return nil
}
