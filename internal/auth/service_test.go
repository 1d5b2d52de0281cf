package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubStore struct {
	users  map[string]*User
	tokens map[string]*RefreshToken

	createUserErr error
	rotateCalls   int
	revokedUsers  []string
}

func newStubStore() *stubStore {
	return &stubStore{
		users:  make(map[string]*User),
		tokens: make(map[string]*RefreshToken),
	}
}

func (s *stubStore) CreateUser(ctx context.Context, u *User) error {
	if s.createUserErr != nil {
		return s.createUserErr
	}
	for _, existing := range s.users {
		if existing.Code == u.Code || existing.Email == u.Email {
			return ErrConflict
		}
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *stubStore) FindUser(ctx context.Context, id string) (*User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *stubStore) FindUserByCode(ctx context.Context, code string) (*User, error) {
	for _, u := range s.users {
		if u.Code == code {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *stubStore) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *stubStore) CreateRefreshToken(ctx context.Context, tok *RefreshToken) error {
	cp := *tok
	s.tokens[tok.ID] = &cp
	return nil
}

func (s *stubStore) ActiveRefreshTokens(ctx context.Context, userID string) ([]*RefreshToken, error) {
	var out []*RefreshToken
	for _, tok := range s.tokens {
		if tok.UserID == userID && tok.RevokedAt == nil {
			cp := *tok
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *stubStore) RotateRefreshToken(ctx context.Context, revokeID string, next *RefreshToken) error {
	s.rotateCalls++
	existing, ok := s.tokens[revokeID]
	if !ok || existing.RevokedAt != nil {
		return ErrInvalidToken
	}
	now := time.Now()
	existing.RevokedAt = &now
	cp := *next
	s.tokens[next.ID] = &cp
	return nil
}

func (s *stubStore) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	s.revokedUsers = append(s.revokedUsers, userID)
	now := time.Now()
	for _, tok := range s.tokens {
		if tok.UserID == userID && tok.RevokedAt == nil {
			tok.RevokedAt = &now
		}
	}
	return nil
}

func newTestService(t *testing.T, store Store, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithBcryptCost(4)}, opts...)
	svc, err := NewService(store, "test-secret", opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func registerTestUser(t *testing.T, svc *Service, code string, role Role) *User {
	t.Helper()
	user, err := svc.Register(context.Background(), code, code+"@example.com", "correct horse", role)
	if err != nil {
		t.Fatalf("Register(%s): %v", code, err)
	}
	return user
}

func TestNewServiceRequiresSecret(t *testing.T) {
	if _, err := NewService(newStubStore(), "  "); err == nil {
		t.Fatal("expected error for blank secret")
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestService(t, newStubStore())

	cases := []struct {
		name     string
		code     string
		email    string
		password string
		role     Role
	}{
		{"blank code", "", "a@example.com", "password1", RoleUser},
		{"bad email", "u1", "not-an-email", "password1", RoleUser},
		{"short password", "u1", "a@example.com", "short", RoleUser},
		{"unknown role", "u1", "a@example.com", "password1", Role("superuser")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tc.code, tc.email, tc.password, tc.role)
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("got %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestRegisterNormalizesAndHashes(t *testing.T) {
	store := newStubStore()
	svc := newTestService(t, store)

	user, err := svc.Register(context.Background(), " u1 ", "U1@Example.COM", "password1", RoleUser)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Code != "u1" {
		t.Errorf("code = %q, want trimmed", user.Code)
	}
	if user.Email != "u1@example.com" {
		t.Errorf("email = %q, want lowercased", user.Email)
	}
	if user.PasswordHash == "" || user.PasswordHash == "password1" {
		t.Errorf("password hash not set")
	}
	if err := VerifyPassword(user.PasswordHash, "password1"); err != nil {
		t.Errorf("stored hash does not verify: %v", err)
	}
}

func TestRegisterDuplicateCode(t *testing.T) {
	store := newStubStore()
	svc := newTestService(t, store)
	registerTestUser(t, svc, "u1", RoleUser)

	_, err := svc.Register(context.Background(), "u1", "other@example.com", "password1", RoleUser)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("got %v, want ErrConflict", err)
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	store := newStubStore()
	svc := newTestService(t, store)
	registerTestUser(t, svc, "u1", RoleUser)

	_, _, unknownErr := svc.Login(context.Background(), "no-such-user", "correct horse")
	_, _, badPassErr := svc.Login(context.Background(), "u1", "wrong password")

	if !errors.Is(unknownErr, ErrInvalidCredentials) {
		t.Fatalf("unknown code: got %v, want ErrInvalidCredentials", unknownErr)
	}
	if !errors.Is(badPassErr, ErrInvalidCredentials) {
		t.Fatalf("bad password: got %v, want ErrInvalidCredentials", badPassErr)
	}
	if unknownErr.Error() != badPassErr.Error() {
		t.Fatalf("messages differ: %q vs %q", unknownErr, badPassErr)
	}
}

func TestLoginIssuesPairAndStoresHashOnly(t *testing.T) {
	store := newStubStore()
	svc := newTestService(t, store)
	registerTestUser(t, svc, "u1", RoleAdmin)

	pair, principal, err := svc.Login(context.Background(), "u1", "correct horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("token pair incomplete")
	}
	if !principal.IsAdmin() {
		t.Error("principal lost its role")
	}
	if len(store.tokens) != 1 {
		t.Fatalf("stored %d refresh records, want 1", len(store.tokens))
	}
	for _, rec := range store.tokens {
		if rec.TokenHash == pair.RefreshToken {
			t.Error("raw refresh token was stored")
		}
		if rec.Salt == "" || rec.TokenHash == "" {
			t.Error("refresh record missing salt or hash")
		}
	}
}

func TestAuthenticateRoundTrip(t *testing.T) {
	store := newStubStore()
	svc := newTestService(t, store)
	user := registerTestUser(t, svc, "u1", RoleUser)

	pair, _, err := svc.Login(context.Background(), "u1", "correct horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	principal, err := svc.Authenticate(context.Background(), pair.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if principal.User.ID != user.ID {
		t.Errorf("resolved user %q, want %q", principal.User.ID, user.ID)
	}
}

func TestAuthenticateRejectsRefreshToken(t *testing.T) {
	store := newStubStore()
	svc := newTestService(t, store)
	registerTestUser(t, svc, "u1", RoleUser)

	pair, _, err := svc.Login(context.Background(), "u1", "correct horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("got %v, want ErrInvalidToken for refresh token on access path", err)
	}
}

func TestAuthenticateExpiredToken(t *testing.T) {
	store := newStubStore()
	current := time.Now().UTC()
	svc := newTestService(t, store, WithClock(func() time.Time { return current }))
	registerTestUser(t, svc, "u1", RoleUser)

	pair, _, err := svc.Login(context.Background(), "u1", "correct horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	current = current.Add(svc.AccessTTL() + time.Minute)
	if _, err := svc.Authenticate(context.Background(), pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("got %v, want ErrInvalidToken after expiry", err)
	}
}

func TestRefreshRotates(t *testing.T) {
	store := newStubStore()
	svc := newTestService(t, store)
	registerTestUser(t, svc, "u1", RoleUser)

	pair, _, err := svc.Login(context.Background(), "u1", "correct horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	next, _, err := svc.Refresh(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Error("refresh token was not rotated")
	}
	if store.rotateCalls != 1 {
		t.Errorf("rotate calls = %d, want 1", store.rotateCalls)
	}

	// The spent token no longer matches any active record.
	if _, _, err := svc.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("second redemption: got %v, want ErrInvalidToken", err)
	}
	// The rotated replacement still works.
	if _, _, err := svc.Refresh(context.Background(), next.RefreshToken); err != nil {
		t.Fatalf("redeeming rotated token: %v", err)
	}
}

func TestRefreshRejectsGarbage(t *testing.T) {
	svc := newTestService(t, newStubStore())

	for _, raw := range []string{"", "   ", "not.a.jwt"} {
		if _, _, err := svc.Refresh(context.Background(), raw); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("Refresh(%q): got %v, want ErrInvalidToken", raw, err)
		}
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	store := newStubStore()
	svc := newTestService(t, store)
	registerTestUser(t, svc, "u1", RoleUser)

	pair, _, err := svc.Login(context.Background(), "u1", "correct horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, _, err := svc.Refresh(context.Background(), pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("got %v, want ErrInvalidToken for access token on refresh path", err)
	}
}

func TestRefreshAfterLogout(t *testing.T) {
	store := newStubStore()
	svc := newTestService(t, store)
	user := registerTestUser(t, svc, "u1", RoleUser)

	pair, _, err := svc.Login(context.Background(), "u1", "correct horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := svc.Logout(context.Background(), user.ID); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, _, err := svc.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("got %v, want ErrInvalidToken after logout", err)
	}
}

func TestTokenHashMatches(t *testing.T) {
	hash := hashToken("salt", "raw-token")
	if !tokenHashMatches("salt", hash, "raw-token") {
		t.Error("matching token rejected")
	}
	if tokenHashMatches("salt", hash, "other-token") {
		t.Error("non-matching token accepted")
	}
	if tokenHashMatches("other-salt", hash, "raw-token") {
		t.Error("wrong salt accepted")
	}
}
