package policy

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidUsername is returned when a username fails the syntax policy.
var ErrInvalidUsername = errors.New("username may only contain letters, digits, hyphens and underscores")

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateUsername checks that username is non-empty and made only of
// ASCII letters, digits, '-' and '_'. It never touches the filesystem.
func ValidateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("%w: username is empty", ErrInvalidUsername)
	}

	if !usernamePattern.MatchString(username) {
		return fmt.Errorf("%w: %q", ErrInvalidUsername, username)
	}

	return nil
}

// IsValidUsername reports whether username satisfies ValidateUsername.
func IsValidUsername(username string) bool {
	return ValidateUsername(username) == nil
}
