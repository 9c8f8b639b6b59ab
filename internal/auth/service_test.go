package auth

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/abduss/budgetauth/internal/config"
	"github.com/google/uuid"
)

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		AccessTokenSecret:  "access-secret",
		RefreshTokenSecret: "refresh-secret",
		AccessTokenTTL:     time.Minute,
		RefreshTokenTTL:    time.Hour,
		BcryptCost:         4,
		Issuer:             "budgetauth-test",
	}
}

func newTestService(store *memoryStore) *Service {
	return NewService(store, plainHasher{}, NewTokenIssuer(testAuthConfig()), nil, nil)
}

func TestRegisterSuccess(t *testing.T) {
	store := newMemoryStore()
	service := newTestService(store)

	result, err := service.Register(context.Background(), RegisterInput{
		Email:    "a@x.com",
		Password: "password1",
		Name:     "A",
	})
	if err != nil {
		t.Fatalf("register returned error: %v", err)
	}

	if result.User.Email != "a@x.com" {
		t.Fatalf("unexpected email %q", result.User.Email)
	}
	if result.Tokens.Access.Value == "" || result.Tokens.Refresh.Value == "" {
		t.Fatalf("expected tokens to be issued")
	}
	if len(store.users) != 1 {
		t.Fatalf("expected user stored; got %d", len(store.users))
	}

	stored := store.users["a@x.com"]
	if stored.PasswordHash != "plain:password1" {
		t.Fatalf("expected password to go through the hasher, got %q", stored.PasswordHash)
	}

	userID, err := service.tokens.ParseAccessToken(result.Tokens.Access.Value)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if userID != stored.ID {
		t.Fatalf("token resolves to %s, want %s", userID, stored.ID)
	}
}

func TestRegisterNormalizesEmail(t *testing.T) {
	store := newMemoryStore()
	service := newTestService(store)

	result, err := service.Register(context.Background(), RegisterInput{
		Email:    "  Mixed@Example.COM ",
		Password: "password1",
		Name:     " Mixed ",
	})
	if err != nil {
		t.Fatalf("register returned error: %v", err)
	}
	if result.User.Email != "mixed@example.com" || result.User.Name != "Mixed" {
		t.Fatalf("unexpected identity %+v", result.User)
	}
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name   string
		input  RegisterInput
		fields []string
	}{
		{name: "short password", input: RegisterInput{Email: "a@x.com", Password: "short", Name: "A"}, fields: []string{"password"}},
		{name: "bad email", input: RegisterInput{Email: "not-an-email", Password: "password1", Name: "A"}, fields: []string{"email"}},
		{name: "missing everything", input: RegisterInput{}, fields: []string{"email", "password", "name"}},
		{name: "long password", input: RegisterInput{Email: "a@x.com", Password: strings.Repeat("p", 73), Name: "A"}, fields: []string{"password"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := newMemoryStore()
			service := newTestService(store)

			_, err := service.Register(context.Background(), tc.input)

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			for _, f := range tc.fields {
				if verr.Fields[f] == "" {
					t.Fatalf("expected error for field %q in %v", f, verr.Fields)
				}
			}
			if len(store.users) != 0 {
				t.Fatalf("expected no user stored")
			}
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	store := newMemoryStore()
	service := newTestService(store)

	_, err := service.Register(context.Background(), RegisterInput{
		Email:    "user@example.com",
		Password: "StrongPass1!",
		Name:     "User",
	})
	if err != nil {
		t.Fatalf("initial registration returned error: %v", err)
	}

	_, err = service.Register(context.Background(), RegisterInput{
		Email:    "USER@example.com",
		Password: "AnotherPass2!",
		Name:     "Other",
	})

	if !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestRegisterConcurrentDuplicateYieldsSingleSuccess(t *testing.T) {
	store := newMemoryStore()
	service := newTestService(store)

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		dupes     int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.Register(context.Background(), RegisterInput{
				Email:    "race@example.com",
				Password: "password1",
				Name:     "Race",
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrDuplicateEmail):
				dupes++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 || dupes != attempts-1 {
		t.Fatalf("expected 1 success and %d duplicates, got %d and %d", attempts-1, successes, dupes)
	}
}

func TestLogin(t *testing.T) {
	store := newMemoryStore()
	service := newTestService(store)

	registered, err := service.Register(context.Background(), RegisterInput{
		Email:    "user@example.com",
		Password: "StrongPass1!",
		Name:     "User",
	})
	if err != nil {
		t.Fatalf("register returned error: %v", err)
	}

	result, err := service.Login(context.Background(), LoginInput{
		Email:    "user@example.com",
		Password: "StrongPass1!",
	})
	if err != nil {
		t.Fatalf("login returned error: %v", err)
	}

	if result.Tokens.Access.Value == "" {
		t.Fatalf("expected access token")
	}
	if result.Tokens.Refresh.Value == "" {
		t.Fatalf("expected refresh token")
	}
	if result.User.ID != registered.User.ID {
		t.Fatalf("login identity %s differs from registration %s", result.User.ID, registered.User.ID)
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	store := newMemoryStore()
	service := newTestService(store)

	_, err := service.Register(context.Background(), RegisterInput{
		Email:    "user@example.com",
		Password: "StrongPass1!",
		Name:     "User",
	})
	if err != nil {
		t.Fatalf("register returned error: %v", err)
	}

	_, wrongPassword := service.Login(context.Background(), LoginInput{Email: "user@example.com", Password: "WrongPass"})
	_, unknownEmail := service.Login(context.Background(), LoginInput{Email: "nobody@example.com", Password: "StrongPass1!"})

	if wrongPassword != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", wrongPassword)
	}
	if unknownEmail != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", unknownEmail)
	}
}

func TestLoginRequiresFields(t *testing.T) {
	service := newTestService(newMemoryStore())

	_, err := service.Login(context.Background(), LoginInput{Email: " "})

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Fields["email"] == "" || verr.Fields["password"] == "" {
		t.Fatalf("expected both fields reported, got %v", verr.Fields)
	}
}

func TestLoginRejectsInactiveUser(t *testing.T) {
	store := newMemoryStore()
	service := newTestService(store)

	if _, err := service.Register(context.Background(), RegisterInput{Email: "off@example.com", Password: "password1", Name: "Off"}); err != nil {
		t.Fatalf("register returned error: %v", err)
	}
	store.deactivate("off@example.com")

	_, err := service.Login(context.Background(), LoginInput{Email: "off@example.com", Password: "password1"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginPropagatesStoreFailure(t *testing.T) {
	store := newMemoryStore()
	store.failWith = errors.New("connection reset")
	service := newTestService(store)

	_, err := service.Login(context.Background(), LoginInput{Email: "a@x.com", Password: "password1"})
	if err == nil || errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestResolveAccessToken(t *testing.T) {
	store := newMemoryStore()
	service := newTestService(store)

	a, err := service.Register(context.Background(), RegisterInput{Email: "a@x.com", Password: "password1", Name: "A"})
	if err != nil {
		t.Fatalf("register a: %v", err)
	}
	b, err := service.Register(context.Background(), RegisterInput{Email: "b@x.com", Password: "password1", Name: "B"})
	if err != nil {
		t.Fatalf("register b: %v", err)
	}

	userA, err := service.ResolveAccessToken(context.Background(), a.Tokens.Access.Value)
	if err != nil {
		t.Fatalf("resolve a: %v", err)
	}
	userB, err := service.ResolveAccessToken(context.Background(), b.Tokens.Access.Value)
	if err != nil {
		t.Fatalf("resolve b: %v", err)
	}

	if userA.ID != a.User.ID || userB.ID != b.User.ID || userA.ID == userB.ID {
		t.Fatalf("tokens resolved to the wrong users: %s %s", userA.ID, userB.ID)
	}

	if _, err := service.ResolveAccessToken(context.Background(), a.Tokens.Refresh.Value); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh token must not resolve as access token, got %v", err)
	}

	store.deactivate("a@x.com")
	if _, err := service.ResolveAccessToken(context.Background(), a.Tokens.Access.Value); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for inactive user, got %v", err)
	}
}

func TestResolveAccessTokenForDeletedUser(t *testing.T) {
	service := newTestService(newMemoryStore())

	pair, err := service.tokens.Issue(Identity{ID: uuid.New()})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := service.ResolveAccessToken(context.Background(), pair.Access.Value); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestProjectAndActiveAccounts(t *testing.T) {
	avatarKey := "users/a.png"
	identity := Identity{
		ID:          uuid.New(),
		Email:       "a@x.com",
		Name:        "A",
		Avatar:      &avatarKey,
		Preferences: json.RawMessage(`{"currency":"EUR"}`),
		IsActive:    true,
	}

	service := NewService(newMemoryStore(), plainHasher{}, NewTokenIssuer(testAuthConfig()), fakeAvatars{}, nil)

	projection := service.Project(context.Background(), identity)
	if projection.Avatar == nil || *projection.Avatar != "https://media.test/users/a.png" {
		t.Fatalf("unexpected avatar %v", projection.Avatar)
	}
	if string(projection.Preferences) != `{"currency":"EUR"}` {
		t.Fatalf("unexpected preferences %s", projection.Preferences)
	}

	accounts := service.ActiveAccounts(context.Background(), identity)
	if len(accounts) != 1 || !accounts[0].IsActive || accounts[0].ID != identity.ID.String() {
		t.Fatalf("unexpected accounts %+v", accounts)
	}
}

func TestProjectWithoutAvatar(t *testing.T) {
	service := NewService(newMemoryStore(), plainHasher{}, NewTokenIssuer(testAuthConfig()), fakeAvatars{err: errors.New("down")}, nil)

	empty := Identity{ID: uuid.New()}
	projection := service.Project(context.Background(), empty)
	if projection.Avatar != nil {
		t.Fatalf("expected nil avatar")
	}
	if string(projection.Preferences) != "{}" {
		t.Fatalf("expected empty preferences object, got %s", projection.Preferences)
	}

	key := "broken.png"
	failing := Identity{ID: uuid.New(), Avatar: &key}
	if service.Project(context.Background(), failing).Avatar != nil {
		t.Fatalf("expected nil avatar when resolution fails")
	}
}

// memoryStore implements userStore for tests.
type memoryStore struct {
	mu       sync.Mutex
	users    map[string]User
	failWith error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{users: make(map[string]User)}
}

func (m *memoryStore) CreateUser(ctx context.Context, input NewUser) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return User{}, m.failWith
	}
	if _, ok := m.users[input.Email]; ok {
		return User{}, ErrDuplicateEmail
	}
	user := User{
		ID:           uuid.New(),
		Email:        input.Email,
		Name:         input.Name,
		PasswordHash: input.PasswordHash,
		Preferences:  json.RawMessage("{}"),
		IsActive:     true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	m.users[input.Email] = user
	return user, nil
}

func (m *memoryStore) FindUserByEmail(ctx context.Context, email string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return User{}, m.failWith
	}
	user, ok := m.users[email]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (m *memoryStore) FindUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return User{}, m.failWith
	}
	for _, user := range m.users {
		if user.ID == id {
			return user, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (m *memoryStore) deactivate(email string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user := m.users[email]
	user.IsActive = false
	m.users[email] = user
}

// plainHasher is a PasswordHasher double that skips the adaptive hash.
type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) {
	return "plain:" + password, nil
}

func (plainHasher) Verify(hash, password string) error {
	if hash != "plain:"+password {
		return ErrPasswordMismatch
	}
	return nil
}

type fakeAvatars struct {
	err error
}

func (f fakeAvatars) AvatarURL(ctx context.Context, key string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "https://media.test/" + key, nil
}
