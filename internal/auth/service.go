package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// userStore abstracts the persistence layer.
type userStore interface {
	CreateUser(ctx context.Context, input NewUser) (User, error)
	FindUserByEmail(ctx context.Context, email string) (User, error)
	FindUserByID(ctx context.Context, id uuid.UUID) (User, error)
}

// AvatarResolver turns a stored avatar key into an absolute URL.
type AvatarResolver interface {
	AvatarURL(ctx context.Context, key string) (string, error)
}

// Service encapsulates authentication use cases.
type Service struct {
	store    userStore
	hasher   PasswordHasher
	verifier *CredentialVerifier
	tokens   *TokenIssuer
	avatars  AvatarResolver
	validate *validator.Validate
	log      *zap.Logger
}

// NewService creates a Service with dependencies. avatars and log may be nil.
func NewService(store userStore, hasher PasswordHasher, tokens *TokenIssuer, avatars AvatarResolver, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:    store,
		hasher:   hasher,
		verifier: NewCredentialVerifier(store, hasher),
		tokens:   tokens,
		avatars:  avatars,
		validate: newValidator(),
		log:      log,
	}
}

// RegisterInput carries data for user registration.
type RegisterInput struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Name     string `json:"name" validate:"required,max=150"`
}

// LoginInput carries login credentials.
type LoginInput struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// AuthResult contains the identity and its freshly issued tokens.
type AuthResult struct {
	User   Identity
	Tokens TokenPair
}

// Register creates a new user, hashing the password and issuing tokens.
func (s *Service) Register(ctx context.Context, input RegisterInput) (AuthResult, error) {
	input.Email = NormalizeEmail(input.Email)
	input.Name = strings.TrimSpace(input.Name)
	if err := s.check(input); err != nil {
		return AuthResult{}, err
	}

	hashed, err := s.hasher.Hash(input.Password)
	if err != nil {
		if errors.Is(err, ErrPasswordTooLong) {
			return AuthResult{}, fieldError("password", "Ensure this field has no more than 72 bytes.")
		}
		return AuthResult{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.store.CreateUser(ctx, NewUser{
		Email:        input.Email,
		Name:         input.Name,
		PasswordHash: hashed,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return AuthResult{}, ErrDuplicateEmail
		}
		return AuthResult{}, fmt.Errorf("create user: %w", err)
	}

	return s.issue(user.Identity())
}

// Login authenticates credentials and issues a fresh token pair.
func (s *Service) Login(ctx context.Context, input LoginInput) (AuthResult, error) {
	input.Email = strings.TrimSpace(input.Email)
	if err := s.check(input); err != nil {
		return AuthResult{}, err
	}

	identity, err := s.verifier.Verify(ctx, input.Email, input.Password)
	if err != nil {
		return AuthResult{}, err
	}

	return s.issue(identity)
}

// Refresh exchanges a refresh token for a new access token.
func (s *Service) Refresh(refreshToken string) (IssuedToken, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return IssuedToken{}, fieldError("refresh", validationMessage("required", ""))
	}
	return s.tokens.Refresh(refreshToken)
}

// ResolveAccessToken maps a presented access token to its active user.
func (s *Service) ResolveAccessToken(ctx context.Context, accessToken string) (User, error) {
	userID, err := s.tokens.ParseAccessToken(accessToken)
	if err != nil {
		return User{}, err
	}

	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, ErrInvalidToken
		}
		return User{}, fmt.Errorf("find user: %w", err)
	}
	if !user.IsActive {
		return User{}, ErrInvalidToken
	}

	return user, nil
}

// Project builds the public representation of identity. Avatar resolution
// failures are logged and reported as a missing avatar.
func (s *Service) Project(ctx context.Context, identity Identity) Projection {
	prefs := identity.Preferences
	if len(prefs) == 0 {
		prefs = json.RawMessage("{}")
	}

	return Projection{
		ID:          identity.ID.String(),
		Name:        identity.Name,
		Email:       identity.Email,
		Avatar:      s.avatarURL(ctx, identity),
		Preferences: prefs,
	}
}

// ActiveAccounts lists the accounts active in the caller's session: only the caller.
func (s *Service) ActiveAccounts(ctx context.Context, identity Identity) []ActiveAccount {
	return []ActiveAccount{{
		Projection: s.Project(ctx, identity),
		IsActive:   true,
	}}
}

func (s *Service) issue(identity Identity) (AuthResult, error) {
	tokens, err := s.tokens.Issue(identity)
	if err != nil {
		return AuthResult{}, fmt.Errorf("issue tokens: %w", err)
	}
	return AuthResult{User: identity, Tokens: tokens}, nil
}

func (s *Service) avatarURL(ctx context.Context, identity Identity) *string {
	if identity.Avatar == nil || strings.TrimSpace(*identity.Avatar) == "" || s.avatars == nil {
		return nil
	}

	url, err := s.avatars.AvatarURL(ctx, *identity.Avatar)
	if err != nil {
		s.log.Warn("resolve avatar url",
			zap.String("user_id", identity.ID.String()),
			zap.Error(err),
		)
		return nil
	}
	return &url
}

func (s *Service) check(input any) error {
	err := s.validate.Struct(input)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate input: %w", err)
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		if _, seen := fields[fe.Field()]; !seen {
			fields[fe.Field()] = validationMessage(fe.Tag(), fe.Param())
		}
	}
	return &ValidationError{Fields: fields}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return v
}

func validationMessage(tag, param string) string {
	switch tag {
	case "required":
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "min":
		return fmt.Sprintf("Ensure this field has at least %s characters.", param)
	case "max":
		return fmt.Sprintf("Ensure this field has no more than %s characters.", param)
	default:
		return "Invalid value."
	}
}
