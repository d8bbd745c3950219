package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/iliyamo/staymarket/internal/model"
)

// AccountRepo persists identity records (credentials, custom claims and the
// session revocation watermark). Operations that also touch the profile
// document run in a single transaction.
type AccountRepo struct{ db *sql.DB }

func NewAccountRepo(db *sql.DB) *AccountRepo { return &AccountRepo{db: db} }

const (
	qInsertAccount = `INSERT INTO accounts (id, email, password_hash, custom_claims, email_verified, tokens_valid_after, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	qInsertProfile = `INSERT INTO users (id, email, is_host, verified, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`
	qSelectAccount = `SELECT id, email, password_hash, custom_claims, email_verified, tokens_valid_after, created_at, updated_at FROM accounts`

	qUpdateAccountEmail = `UPDATE accounts SET email = ?, email_verified = 0, updated_at = ? WHERE id = ?`
	qUpdateProfileEmail = `UPDATE users SET email = ?, verified = 0, verified_at = NULL, updated_at = ? WHERE id = ?`
	qUpdatePassword     = `UPDATE accounts SET password_hash = ?, tokens_valid_after = ?, updated_at = ? WHERE id = ?`
	qUpdateClaims       = `UPDATE accounts SET custom_claims = ?, tokens_valid_after = ?, updated_at = ? WHERE id = ?`
	qRevokeWatermark    = `UPDATE accounts SET tokens_valid_after = ?, updated_at = ? WHERE id = ?`
	qAccountVerified    = `UPDATE accounts SET email_verified = 1, updated_at = ? WHERE id = ?`
	qProfileVerified    = `UPDATE users SET verified = 1, verified_at = ?, updated_at = ? WHERE id = ?`
	qValidAfter         = `SELECT tokens_valid_after FROM accounts WHERE id = ?`

	qDeleteRefreshForAccount = `DELETE FROM refresh_tokens WHERE account_id = ?`
	qDeleteVerifyForAccount  = `DELETE FROM verification_tokens WHERE account_id = ?`
	qDeleteAppealForUser     = `DELETE FROM host_appeals WHERE id = ?`
	qDeleteProfile           = `DELETE FROM users WHERE id = ?`
	qDeleteAccount           = `DELETE FROM accounts WHERE id = ?`
)

func normalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// Create inserts the identity record and its profile document together.
func (r *AccountRepo) Create(ctx context.Context, acc *model.Account, profile *model.User) error {
	acc.Email = normalizeEmail(acc.Email)
	claims, err := encodeClaims(acc.Claims)
	if err != nil {
		return err
	}
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, qInsertAccount,
			acc.ID, acc.Email, acc.PasswordHash, claims, acc.EmailVerified,
			acc.TokensValidAfter, acc.CreatedAt, acc.UpdatedAt); err != nil {
			if isDuplicate(err) {
				return ErrEmailExists
			}
			return err
		}
		_, err := tx.ExecContext(ctx, qInsertProfile,
			profile.ID, acc.Email, profile.IsHost, profile.Verified, profile.CreatedAt, profile.UpdatedAt)
		return err
	})
}

// GetByID fetches an account by id.
func (r *AccountRepo) GetByID(ctx context.Context, id string) (*model.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx, qSelectAccount+" WHERE id = ? LIMIT 1", id))
	return a, classify(err)
}

// GetByEmail fetches an account by normalized email.
func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx, qSelectAccount+" WHERE email = ? LIMIT 1", normalizeEmail(email)))
	return a, classify(err)
}

// UpdateEmail changes the sign-in email on both records and clears the
// verification flags; the new address has to be verified again.
func (r *AccountRepo) UpdateEmail(ctx context.Context, id, email string, at time.Time) error {
	email = normalizeEmail(email)
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, qUpdateAccountEmail, email, at, id)
		if err != nil {
			if isDuplicate(err) {
				return ErrEmailExists
			}
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		_, err = tx.ExecContext(ctx, qUpdateProfileEmail, email, at, id)
		return err
	})
}

// UpdatePassword stores a new hash and revokes every session issued before at.
func (r *AccountRepo) UpdatePassword(ctx context.Context, id, hash string, at time.Time) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, qUpdatePassword, hash, at, at, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, qRevokeAllRefreshForAccount, at, id)
		return err
	})
}

// SetClaims replaces the custom claims and revokes all outstanding sessions
// in the same transaction. Claims are embedded in tokens at issuance, so a
// claim change without revocation would leave stale tokens in circulation.
func (r *AccountRepo) SetClaims(ctx context.Context, id string, claims map[string]any, at time.Time) error {
	enc, err := encodeClaims(claims)
	if err != nil {
		return err
	}
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, qUpdateClaims, enc, at, at, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		_, err = tx.ExecContext(ctx, qRevokeAllRefreshForAccount, at, id)
		return err
	})
}

// RevokeSessions invalidates every access and refresh token issued before at.
func (r *AccountRepo) RevokeSessions(ctx context.Context, id string, at time.Time) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, qRevokeWatermark, at, at, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, qRevokeAllRefreshForAccount, at, id)
		return err
	})
}

// MarkEmailVerified flags both the identity record and the profile.
func (r *AccountRepo) MarkEmailVerified(ctx context.Context, id string, at time.Time) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, qAccountVerified, at, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, qProfileVerified, at, at, id)
		return err
	})
}

// ValidAfter returns the session revocation watermark of an account.
func (r *AccountRepo) ValidAfter(ctx context.Context, id string) (time.Time, error) {
	var t time.Time
	err := r.db.QueryRowContext(ctx, qValidAfter, id).Scan(&t)
	return t.UTC(), classify(err)
}

// DeleteCascade removes the identity record, the profile document, the
// appeal and all tokens of a user in one transaction. Listings and bookings
// are left in place; bookings carry their own listing snapshot.
func (r *AccountRepo) DeleteCascade(ctx context.Context, id string) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, q := range []string{qDeleteRefreshForAccount, qDeleteVerifyForAccount, qDeleteAppealForUser, qDeleteProfile} {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx, qDeleteAccount, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func scanAccount(row rowScanner) (*model.Account, error) {
	var (
		a      model.Account
		claims []byte
	)
	if err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &claims, &a.EmailVerified,
		&a.TokensValidAfter, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	if len(claims) > 0 {
		if err := json.Unmarshal(claims, &a.Claims); err != nil {
			return nil, err
		}
	}
	a.TokensValidAfter = a.TokensValidAfter.UTC()
	return &a, nil
}

func encodeClaims(claims map[string]any) (any, error) {
	if len(claims) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(claims)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
