package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/staymarket/internal/model"
)

// VerificationRepo stores single-use tokens sent by mail (email
// verification and password reset). As with refresh tokens only the hash
// is kept.
type VerificationRepo struct{ db *sql.DB }

func NewVerificationRepo(db *sql.DB) *VerificationRepo { return &VerificationRepo{db: db} }

const (
	qStoreVerification = `INSERT INTO verification_tokens (token_hash, account_id, purpose, expires_at) VALUES (?, ?, ?, ?)`
	qLockVerification  = `SELECT account_id, expires_at, used_at FROM verification_tokens WHERE token_hash = ? AND purpose = ? FOR UPDATE`
	qUseVerification   = `UPDATE verification_tokens SET used_at = ? WHERE token_hash = ?`
)

// Store saves a new token hash.
func (r *VerificationRepo) Store(ctx context.Context, tokenHash, accountID string, purpose model.TokenPurpose, exp time.Time) error {
	_, err := r.db.ExecContext(ctx, qStoreVerification, tokenHash, accountID, purpose, exp)
	return classify(err)
}

// Consume marks the token as used and returns its account. A token can be
// consumed once; expired or used tokens yield ErrNotFound.
func (r *VerificationRepo) Consume(ctx context.Context, tokenHash string, purpose model.TokenPurpose, now time.Time) (string, error) {
	var accountID string
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var (
			exp    time.Time
			usedAt sql.NullTime
		)
		if err := tx.QueryRowContext(ctx, qLockVerification, tokenHash, purpose).Scan(&accountID, &exp, &usedAt); err != nil {
			return err
		}
		if usedAt.Valid || now.After(exp) {
			return ErrNotFound
		}
		_, err := tx.ExecContext(ctx, qUseVerification, now, tokenHash)
		return err
	})
	if err != nil {
		return "", err
	}
	return accountID, nil
}
