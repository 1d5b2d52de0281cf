package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"scorecard.org/internal/ids"
)

const (
	defaultIssuer     = "scorecard"
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// Service implements credential verification and session token lifecycle.
type Service struct {
	store      Store
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	bcryptCost int
	now        func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) Option {
	return func(s *Service) {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			s.issuer = issuer
		}
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithBcryptCost configures the password hashing cost factor.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.bcryptCost = cost }
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service. The signing secret is required.
func NewService(store Store, secret string, opts ...Option) (*Service, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth: signing secret is not configured")
	}
	svc := &Service{
		store:      store,
		secret:     []byte(secret),
		issuer:     defaultIssuer,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// AccessTTL returns the configured access token lifetime.
func (s *Service) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (s *Service) RefreshTTL() time.Duration { return s.refreshTTL }

// Register creates a new account. Fails with ErrConflict when the identity
// code or email is already taken. The raw password is hashed immediately and
// never retained.
func (s *Service) Register(ctx context.Context, code, email, password string, role Role) (*User, error) {
	code = strings.TrimSpace(code)
	email = strings.TrimSpace(strings.ToLower(email))
	switch {
	case code == "":
		return nil, fmt.Errorf("%w: code is required", ErrInvalidInput)
	case email == "" || !strings.Contains(email, "@"):
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	case len(password) < 8:
		return nil, fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	case !role.Valid():
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}

	hash, err := HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	user := &User{
		ID:           ids.New(),
		Code:         code,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login verifies credentials and issues a fresh token pair. Unknown identity
// codes and wrong passwords return the same ErrInvalidCredentials so the two
// cases cannot be told apart.
func (s *Service) Login(ctx context.Context, code, password string) (TokenPair, Principal, error) {
	code = strings.TrimSpace(code)
	if code == "" || password == "" {
		return TokenPair{}, Principal{}, ErrInvalidCredentials
	}
	user, err := s.store.FindUserByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, Principal{}, ErrInvalidCredentials
		}
		return TokenPair{}, Principal{}, err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return TokenPair{}, Principal{}, ErrInvalidCredentials
	}

	pair, rec, err := s.mintPair(user)
	if err != nil {
		return TokenPair{}, Principal{}, err
	}
	if err := s.store.CreateRefreshToken(ctx, rec); err != nil {
		return TokenPair{}, Principal{}, err
	}
	return pair, Principal{User: *user}, nil
}

// Refresh redeems a refresh token and rotates it. The raw token is verified
// against the subject's active records by salted-hash comparison; the matched
// record is revoked and replaced atomically, so a token redeemed twice in a
// race yields exactly one winner.
func (s *Service) Refresh(ctx context.Context, raw string) (TokenPair, Principal, error) {
	claims, err := s.parseToken(raw, tokenTypeRefresh)
	if err != nil {
		return TokenPair{}, Principal{}, ErrInvalidToken
	}

	records, err := s.store.ActiveRefreshTokens(ctx, claims.Subject)
	if err != nil {
		return TokenPair{}, Principal{}, err
	}
	now := s.now().UTC()
	var matched *RefreshToken
	for _, rec := range records {
		if !rec.Active(now) {
			continue
		}
		if tokenHashMatches(rec.Salt, rec.TokenHash, raw) {
			matched = rec
			break
		}
	}
	if matched == nil {
		return TokenPair{}, Principal{}, ErrInvalidToken
	}

	user, err := s.store.FindUser(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, Principal{}, ErrInvalidToken
		}
		return TokenPair{}, Principal{}, err
	}

	pair, next, err := s.mintPair(user)
	if err != nil {
		return TokenPair{}, Principal{}, err
	}
	if err := s.store.RotateRefreshToken(ctx, matched.ID, next); err != nil {
		return TokenPair{}, Principal{}, err
	}
	return pair, Principal{User: *user}, nil
}

// Logout revokes all of the user's active refresh tokens. Already-issued
// access tokens keep working until their short expiry.
func (s *Service) Logout(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return s.store.RevokeUserRefreshTokens(ctx, userID)
}

// Authenticate validates an access token and resolves its principal.
func (s *Service) Authenticate(ctx context.Context, token string) (Principal, error) {
	claims, err := s.parseToken(token, tokenTypeAccess)
	if err != nil {
		return Principal{}, ErrInvalidToken
	}
	user, err := s.store.FindUser(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Principal{}, ErrInvalidToken
		}
		return Principal{}, err
	}
	return Principal{User: *user}, nil
}

func (s *Service) mintPair(user *User) (TokenPair, *RefreshToken, error) {
	now := s.now().UTC()

	access, accessExp, err := s.signToken(user, tokenTypeAccess, now, s.accessTTL)
	if err != nil {
		return TokenPair{}, nil, err
	}
	refresh, refreshExp, err := s.signToken(user, tokenTypeRefresh, now, s.refreshTTL)
	if err != nil {
		return TokenPair{}, nil, err
	}

	salt, err := newSalt()
	if err != nil {
		return TokenPair{}, nil, err
	}
	rec := &RefreshToken{
		ID:        ids.New(),
		UserID:    user.ID,
		Salt:      salt,
		TokenHash: hashToken(salt, refresh),
		ExpiresAt: refreshExp,
		CreatedAt: now,
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, rec, nil
}

func (s *Service) signToken(user *User, tokenType string, now time.Time, ttl time.Duration) (string, time.Time, error) {
	exp := now.Add(ttl)
	claims := Claims{
		Code:      user.Code,
		Role:      string(user.Role),
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

func (s *Service) parseToken(raw, wantType string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Issuer != s.issuer || claims.TokenType != wantType {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func newSalt() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func hashToken(salt, raw string) string {
	sum := sha256.Sum256([]byte(salt + raw))
	return hex.EncodeToString(sum[:])
}

func tokenHashMatches(salt, expectedHash, raw string) bool {
	actual := hashToken(salt, raw)
	if len(actual) != len(expectedHash) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(actual), []byte(expectedHash)) == 1
}
