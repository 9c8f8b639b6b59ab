package auth

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrDuplicateEmail indicates the email is already registered.
	ErrDuplicateEmail = errors.New("email already exists")
	// ErrInvalidCredentials is returned when authentication fails, whether the
	// email is unknown or the password is wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken covers expired, malformed, mis-typed and wrongly signed tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrUserNotFound signals that the user could not be located.
	ErrUserNotFound = errors.New("user not found")
	// ErrPasswordMismatch is returned by a PasswordHasher when the password does not match.
	ErrPasswordMismatch = errors.New("password does not match")
	// ErrPasswordTooLong is returned by a PasswordHasher that cannot hash the input.
	ErrPasswordTooLong = errors.New("password too long")
)

// ValidationError reports malformed or missing input, keyed by request field name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func fieldError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}
