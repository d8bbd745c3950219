package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/staymarket/internal/model"
)

// UserRepo reads and writes profile documents in the `users` table.
type UserRepo struct{ db *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

const (
	qSelectUser     = `SELECT id, email, is_host, verified, verified_at, created_at, updated_at FROM users`
	qLockUser       = `SELECT id FROM users WHERE id = ? FOR UPDATE`
	qSetHostFlag    = `UPDATE users SET is_host = ?, updated_at = ? WHERE id = ?`
	qGrantHostFlag  = `UPDATE users SET is_host = 1, updated_at = ? WHERE id = ?`
	qDeleteUserOnly = `DELETE FROM users WHERE id = ?`
)

// GetByID fetches a profile by user id.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, qSelectUser+" WHERE id = ? LIMIT 1", id))
	return u, classify(err)
}

// List returns every profile ordered by creation time.
func (r *UserRepo) List(ctx context.Context) ([]model.User, error) {
	rows, err := r.db.QueryContext(ctx, qSelectUser+" ORDER BY created_at, id")
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	out := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, classify(rows.Err())
}

// SetHost sets the host flag of an existing profile.
func (r *UserRepo) SetHost(ctx context.Context, id string, value bool, at time.Time) (*model.User, error) {
	var out *model.User
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var got string
		if err := tx.QueryRowContext(ctx, qLockUser, id).Scan(&got); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, qSetHostFlag, value, at, id); err != nil {
			return err
		}
		u, err := scanUser(tx.QueryRowContext(ctx, qSelectUser+" WHERE id = ?", id))
		out = u
		return err
	})
	return out, err
}

// DeleteProfileOnly removes the profile document and leaves the identity
// record behind. It exists for the degraded admin delete path only.
func (r *UserRepo) DeleteProfileOnly(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, qDeleteUserOnly, id)
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u          model.User
		verifiedAt sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Email, &u.IsHost, &u.Verified, &verifiedAt, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.VerifiedAt = nullTime(verifiedAt)
	return &u, nil
}
