package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/eventease/internal/database"
)

// TokenRepo persists/validates refresh tokens (single 'token_hash' column).
type TokenRepo struct{ db *database.DB }

func NewTokenRepo(db *database.DB) *TokenRepo { return &TokenRepo{db: db} }

// StoreRefresh inserts a refresh token hash row.
func (r *TokenRepo) StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	_, err := r.db.ExecContext(ctx,
		r.db.Rebind("INSERT INTO refresh_tokens (user_id, token_hash, expires_at, created_at) VALUES (?,?,?,?)"),
		userID, tokenHash, toMillis(exp), toMillis(time.Now()))
	return err
}

// ValidateRefresh returns userID if a non-revoked, non-expired token exists,
// ErrTokenInvalid otherwise.
func (r *TokenRepo) ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error) {
	var (
		userID    uint64
		expiresAt int64
		revokedAt sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx,
		r.db.Rebind("SELECT user_id, expires_at, revoked_at FROM refresh_tokens WHERE token_hash=?"),
		tokenHash).Scan(&userID, &expiresAt, &revokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrTokenInvalid
	}
	if err != nil {
		return 0, err
	}
	if revokedAt.Valid || time.Now().UTC().After(fromMillis(expiresAt)) {
		return 0, ErrTokenInvalid
	}
	return userID, nil
}

// RevokeByHash marks a token as revoked.  It returns ErrTokenInvalid when
// no live token matched, so of two callers racing on the same token only
// one succeeds.
func (r *TokenRepo) RevokeByHash(ctx context.Context, tokenHash string) error {
	now := time.Now()
	res, err := r.db.ExecContext(ctx,
		r.db.Rebind("UPDATE refresh_tokens SET revoked_at=? WHERE token_hash=? AND revoked_at IS NULL"),
		nullMillis(&now), tokenHash)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrTokenInvalid
	}
	return nil
}

// RevokeAllForUser revokes all user's active tokens.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID uint64) error {
	now := time.Now()
	_, err := r.db.ExecContext(ctx,
		r.db.Rebind("UPDATE refresh_tokens SET revoked_at=? WHERE user_id=? AND revoked_at IS NULL"),
		nullMillis(&now), userID)
	return err
}
