package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/staymarket/internal/model"
)

// AppealRepo persists host appeals. Every state change runs in a
// transaction that first locks the appeal row, so two concurrent writers
// on the same appeal are serialised and the second one sees the outcome of
// the first.
type AppealRepo struct{ db *sql.DB }

func NewAppealRepo(db *sql.DB) *AppealRepo { return &AppealRepo{db: db} }

const (
	appealColumns   = `id, uid, email, display_name, message, status, created_at, updated_at, reviewed_at, reviewed_by`
	qSelectAppeal   = `SELECT ` + appealColumns + ` FROM host_appeals WHERE id = ?`
	qLockAppeal     = `SELECT ` + appealColumns + ` FROM host_appeals WHERE id = ? FOR UPDATE`
	qPendingAppeals = `SELECT ` + appealColumns + ` FROM host_appeals WHERE status = 'pending' ORDER BY created_at, id`
	qInsertAppeal   = `INSERT INTO host_appeals (id, uid, email, display_name, message, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	qResubmitAppeal = `UPDATE host_appeals SET email = ?, display_name = ?, message = ?, status = ?, updated_at = ? WHERE id = ?`
	qDecideAppeal   = `UPDATE host_appeals SET status = ?, reviewed_at = ?, reviewed_by = ?, updated_at = ? WHERE id = ?`
)

// Get fetches the appeal with the given id.
func (r *AppealRepo) Get(ctx context.Context, id string) (*model.HostAppeal, error) {
	a, err := scanAppeal(r.db.QueryRowContext(ctx, qSelectAppeal, id))
	return a, classify(err)
}

// ListPending returns pending appeals, oldest first.
func (r *AppealRepo) ListPending(ctx context.Context) ([]model.HostAppeal, error) {
	rows, err := r.db.QueryContext(ctx, qPendingAppeals)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	out := []model.HostAppeal{}
	for rows.Next() {
		a, err := scanAppeal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, classify(rows.Err())
}

// Submit creates the appeal or moves a denied one back to pending. The
// original created_at and the previous review metadata are preserved on
// resubmission. A *model.TransitionError is returned when the current
// status does not allow the move.
func (r *AppealRepo) Submit(ctx context.Context, in *model.HostAppeal, now time.Time) (*model.HostAppeal, error) {
	var out *model.HostAppeal
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		cur, err := scanAppeal(tx.QueryRowContext(ctx, qLockAppeal, in.ID))
		switch {
		case errors.Is(err, sql.ErrNoRows):
			a := *in
			a.Status = model.AppealPending
			a.CreatedAt = now
			a.UpdatedAt = now
			a.ReviewedAt, a.ReviewedBy = nil, nil
			if _, err := tx.ExecContext(ctx, qInsertAppeal,
				a.ID, a.UID, a.Email, a.DisplayName, a.Message, a.Status, a.CreatedAt, a.UpdatedAt); err != nil {
				if isDuplicate(err) {
					return ErrConflict
				}
				return err
			}
			out = &a
			return nil
		case err != nil:
			return err
		}
		if !cur.Status.CanTransition(model.AppealPending) {
			return &model.TransitionError{From: cur.Status, To: model.AppealPending}
		}
		if _, err := tx.ExecContext(ctx, qResubmitAppeal,
			in.Email, in.DisplayName, in.Message, model.AppealPending, now, in.ID); err != nil {
			return err
		}
		cur.Email, cur.DisplayName, cur.Message = in.Email, in.DisplayName, in.Message
		cur.Status = model.AppealPending
		cur.UpdatedAt = now
		out = cur
		return nil
	})
	return out, err
}

// Decide records an admin decision. On approval the applicant's profile is
// granted host in the same transaction; either both writes land or none.
// A decision on an appeal that is no longer pending returns a
// *model.TransitionError and changes nothing.
func (r *AppealRepo) Decide(ctx context.Context, id string, to model.AppealStatus, reviewer string, at time.Time) (*model.HostAppeal, error) {
	var out *model.HostAppeal
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		cur, err := scanAppeal(tx.QueryRowContext(ctx, qLockAppeal, id))
		if err != nil {
			return err
		}
		if !cur.Status.CanTransition(to) || to == model.AppealPending {
			return &model.TransitionError{From: cur.Status, To: to}
		}
		if to == model.AppealApproved {
			var uid string
			if err := tx.QueryRowContext(ctx, qLockUser, cur.UID).Scan(&uid); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, qDecideAppeal, to, at, reviewer, at, id); err != nil {
			return err
		}
		if to == model.AppealApproved {
			if _, err := tx.ExecContext(ctx, qGrantHostFlag, at, cur.UID); err != nil {
				return err
			}
		}
		cur.Status = to
		cur.ReviewedAt = &at
		cur.ReviewedBy = &reviewer
		cur.UpdatedAt = at
		out = cur
		return nil
	})
	return out, err
}

func scanAppeal(row rowScanner) (*model.HostAppeal, error) {
	var (
		a          model.HostAppeal
		reviewedAt sql.NullTime
		reviewedBy sql.NullString
	)
	if err := row.Scan(&a.ID, &a.UID, &a.Email, &a.DisplayName, &a.Message, &a.Status,
		&a.CreatedAt, &a.UpdatedAt, &reviewedAt, &reviewedBy); err != nil {
		return nil, err
	}
	a.ReviewedAt = nullTime(reviewedAt)
	a.ReviewedBy = nullString(reviewedBy)
	return &a, nil
}
