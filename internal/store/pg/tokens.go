package pg

import (
	"context"
	"fmt"

	"scorecard.org/internal/auth"
)

func (s *Store) CreateRefreshToken(ctx context.Context, tok *auth.RefreshToken) error {
	_, err := s.db.ExecContext(ctx, `
		insert into refresh_tokens (id, user_id, salt, token_hash, expires_at, created_at)
		values ($1, $2, $3, $4, $5, $6)
	`, tok.ID, tok.UserID, tok.Salt, tok.TokenHash, tok.ExpiresAt, tok.CreatedAt)
	if err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

func (s *Store) ActiveRefreshTokens(ctx context.Context, userID string) ([]*auth.RefreshToken, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, user_id, salt, token_hash, expires_at, created_at, revoked_at
		from refresh_tokens
		where user_id = $1 and revoked_at is null and expires_at > now()
		order by created_at desc
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*auth.RefreshToken
	for rows.Next() {
		var tok auth.RefreshToken
		if err := rows.Scan(&tok.ID, &tok.UserID, &tok.Salt, &tok.TokenHash,
			&tok.ExpiresAt, &tok.CreatedAt, &tok.RevokedAt); err != nil {
			return nil, err
		}
		result = append(result, &tok)
	}
	return result, rows.Err()
}

// RotateRefreshToken revokes one record and inserts its replacement in a
// single transaction. The revoke is guarded by `revoked_at is null`, so when
// two redemptions of the same token race, the loser sees zero affected rows
// and the whole rotation fails with ErrInvalidToken.
func (s *Store) RotateRefreshToken(ctx context.Context, revokeID string, next *auth.RefreshToken) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update refresh_tokens set revoked_at = now()
		where id = $1 and revoked_at is null
	`, revokeID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return auth.ErrInvalidToken
	}

	if _, err := tx.ExecContext(ctx, `
		insert into refresh_tokens (id, user_id, salt, token_hash, expires_at, created_at)
		values ($1, $2, $3, $4, $5, $6)
	`, next.ID, next.UserID, next.Salt, next.TokenHash, next.ExpiresAt, next.CreatedAt); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		update refresh_tokens set revoked_at = now()
		where user_id = $1 and revoked_at is null
	`, userID)
	return err
}
