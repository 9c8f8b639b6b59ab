package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type userLookup interface {
	FindUserByEmail(ctx context.Context, email string) (User, error)
}

// CredentialVerifier checks an email/password pair against the user store.
type CredentialVerifier struct {
	users  userLookup
	hasher PasswordHasher
}

// NewCredentialVerifier constructs a verifier.
func NewCredentialVerifier(users userLookup, hasher PasswordHasher) *CredentialVerifier {
	return &CredentialVerifier{users: users, hasher: hasher}
}

// Verify returns the identity for valid credentials. Unknown emails, wrong
// passwords and deactivated accounts all yield ErrInvalidCredentials.
func (v *CredentialVerifier) Verify(ctx context.Context, email, password string) (Identity, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return Identity{}, ErrInvalidCredentials
	}

	user, err := v.users.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Identity{}, ErrInvalidCredentials
		}
		return Identity{}, fmt.Errorf("find user: %w", err)
	}

	if err := v.hasher.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, ErrPasswordMismatch) {
			return Identity{}, ErrInvalidCredentials
		}
		return Identity{}, fmt.Errorf("verify password: %w", err)
	}

	if !user.IsActive {
		return Identity{}, ErrInvalidCredentials
	}

	return user.Identity(), nil
}

// NormalizeEmail performs case-insensitive canonicalization.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
