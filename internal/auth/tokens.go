package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/abduss/budgetauth/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Claims is the JWT payload shared by access and refresh tokens.
type Claims struct {
	UserID    string `json:"user_id"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and verifies HS256 access and refresh tokens.
// Access and refresh tokens are signed with different secrets.
type TokenIssuer struct {
	cfg     config.AuthConfig
	nowFunc func() time.Time
	parser  *jwt.Parser
}

// NewTokenIssuer creates a TokenIssuer from the auth configuration.
func NewTokenIssuer(cfg config.AuthConfig) *TokenIssuer {
	t := &TokenIssuer{cfg: cfg, nowFunc: time.Now}
	t.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return t.nowFunc() }),
	)
	return t
}

// Issue mints a fresh access/refresh pair bound to the identity's user id.
func (t *TokenIssuer) Issue(identity Identity) (TokenPair, error) {
	now := t.nowFunc()

	access, err := t.sign(identity.ID, tokenTypeAccess, now, t.cfg.AccessTokenTTL, t.cfg.AccessTokenSecret)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}

	refresh, err := t.sign(identity.ID, tokenTypeRefresh, now, t.cfg.RefreshTokenTTL, t.cfg.RefreshTokenSecret)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return TokenPair{Access: access, Refresh: refresh}, nil
}

// Refresh exchanges a valid refresh token for a new access token for the same user.
func (t *TokenIssuer) Refresh(refreshToken string) (IssuedToken, error) {
	claims, err := t.parse(refreshToken, t.cfg.RefreshTokenSecret, tokenTypeRefresh)
	if err != nil {
		return IssuedToken{}, err
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return IssuedToken{}, ErrInvalidToken
	}

	access, err := t.sign(userID, tokenTypeAccess, t.nowFunc(), t.cfg.AccessTokenTTL, t.cfg.AccessTokenSecret)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("sign access token: %w", err)
	}
	return access, nil
}

// ParseAccessToken verifies an access token and returns the user id it was minted for.
func (t *TokenIssuer) ParseAccessToken(accessToken string) (uuid.UUID, error) {
	claims, err := t.parse(accessToken, t.cfg.AccessTokenSecret, tokenTypeAccess)
	if err != nil {
		return uuid.Nil, err
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return userID, nil
}

func (t *TokenIssuer) sign(userID uuid.UUID, tokenType string, now time.Time, ttl time.Duration, secret string) (IssuedToken, error) {
	expiresAt := now.Add(ttl)
	claims := Claims{
		UserID:    userID.String(),
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    t.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return IssuedToken{}, err
	}

	return IssuedToken{Value: signed, ExpiresAt: expiresAt}, nil
}

func (t *TokenIssuer) parse(tokenString, secret, tokenType string) (Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return Claims{}, ErrInvalidToken
	}

	var claims Claims
	parsed, err := t.parser.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}

	if claims.TokenType != tokenType || claims.UserID != claims.Subject {
		return Claims{}, ErrInvalidToken
	}

	return claims, nil
}
