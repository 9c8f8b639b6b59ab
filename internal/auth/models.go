package auth

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// User represents an application user as stored.
type User struct {
	ID           uuid.UUID
	Email        string
	Name         string
	PasswordHash string
	Avatar       *string
	Preferences  json.RawMessage
	IsActive     bool
	IsStaff      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity returns the password-free view of the user.
func (u User) Identity() Identity {
	return Identity{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		Avatar:      u.Avatar,
		Preferences: u.Preferences,
		IsActive:    u.IsActive,
	}
}

// Identity is a verified user without credential material.
type Identity struct {
	ID          uuid.UUID
	Email       string
	Name        string
	Avatar      *string
	Preferences json.RawMessage
	IsActive    bool
}

// NewUser carries the fields needed to create a user record.
type NewUser struct {
	Email        string
	Name         string
	PasswordHash string
}

// IssuedToken is a signed token together with its expiry.
type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// TokenPair bundles access and refresh tokens.
type TokenPair struct {
	Access  IssuedToken
	Refresh IssuedToken
}

// Projection is the public representation of a user returned to clients.
type Projection struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Email       string          `json:"email"`
	Avatar      *string         `json:"avatar"`
	Preferences json.RawMessage `json:"preferences"`
}

// ActiveAccount is a projection flagged with its active state.
type ActiveAccount struct {
	Projection
	IsActive bool `json:"isActive"`
}
