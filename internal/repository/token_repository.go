package repository

import (
	"context"
	"database/sql"
	"time"
)

// TokenRepo persists/validates refresh tokens (single 'token_hash' column).
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

const (
	qStoreRefresh               = `INSERT INTO refresh_tokens (account_id, token_hash, expires_at) VALUES (?,?,?)`
	qLookupRefresh              = `SELECT account_id, expires_at, revoked_at FROM refresh_tokens WHERE token_hash=? LIMIT 1`
	qRevokeRefresh              = `UPDATE refresh_tokens SET revoked_at=? WHERE token_hash=? AND revoked_at IS NULL`
	qRevokeAllRefreshForAccount = `UPDATE refresh_tokens SET revoked_at=? WHERE account_id=? AND revoked_at IS NULL`
)

// StoreRefresh inserts a refresh token hash row.
func (r *TokenRepo) StoreRefresh(ctx context.Context, accountID, tokenHash string, exp time.Time) error {
	_, err := r.DB.ExecContext(ctx, qStoreRefresh, accountID, tokenHash, exp)
	return classify(err)
}

// ValidateRefresh returns the account id if a non-revoked, non-expired
// token exists. Unknown, revoked and expired tokens all yield ErrNotFound.
func (r *TokenRepo) ValidateRefresh(ctx context.Context, tokenHash string) (string, error) {
	var (
		accountID string
		expiresAt time.Time
		revokedAt sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx, qLookupRefresh, tokenHash).Scan(&accountID, &expiresAt, &revokedAt)
	if err != nil {
		return "", classify(err)
	}
	if revokedAt.Valid || time.Now().UTC().After(expiresAt) {
		return "", ErrNotFound
	}
	return accountID, nil
}

// RevokeByHash marks a token as revoked.
func (r *TokenRepo) RevokeByHash(ctx context.Context, tokenHash string) error {
	_, err := r.DB.ExecContext(ctx, qRevokeRefresh, time.Now().UTC(), tokenHash)
	return classify(err)
}

// RevokeAllForAccount revokes all of an account's active refresh tokens.
func (r *TokenRepo) RevokeAllForAccount(ctx context.Context, accountID string) error {
	_, err := r.DB.ExecContext(ctx, qRevokeAllRefreshForAccount, time.Now().UTC(), accountID)
	return classify(err)
}
