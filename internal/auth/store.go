package auth

import "context"

// Store describes persistence operations required by the credential and
// session manager.
type Store interface {
	CreateUser(ctx context.Context, u *User) error
	FindUser(ctx context.Context, id string) (*User, error)
	FindUserByCode(ctx context.Context, code string) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)

	CreateRefreshToken(ctx context.Context, tok *RefreshToken) error
	// ActiveRefreshTokens returns the user's unrevoked, unexpired records.
	// Raw tokens are never stored, so refresh verification scans these.
	ActiveRefreshTokens(ctx context.Context, userID string) ([]*RefreshToken, error)
	// RotateRefreshToken revokes the identified record and inserts the
	// replacement inside one transaction. It fails with ErrInvalidToken when
	// the record was already revoked, so two concurrent redemptions of the
	// same token cannot both succeed.
	RotateRefreshToken(ctx context.Context, revokeID string, next *RefreshToken) error
	RevokeUserRefreshTokens(ctx context.Context, userID string) error
}
