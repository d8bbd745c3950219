// Package repository contains data access logic separated from HTTP handlers.
// This file defines listing persistence. Ownership checks are made by the
// service layer; the repository only guarantees that owner_id is written
// once, at insert time.
package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/staymarket/internal/model"
)

// ListingRepo encapsulates all database queries related to listings.
type ListingRepo struct {
	db *sql.DB // db is the underlying database connection pool
}

// NewListingRepo constructs a ListingRepo with the provided DB handle.
func NewListingRepo(db *sql.DB) *ListingRepo {
	return &ListingRepo{db: db}
}

const (
	listingColumns   = `id, owner_id, title, description, image_url, price, created_at`
	qInsertListing   = `INSERT INTO listings (` + listingColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`
	qSelectListing   = `SELECT ` + listingColumns + ` FROM listings WHERE id = ?`
	qListListings    = `SELECT ` + listingColumns + ` FROM listings ORDER BY created_at DESC, id LIMIT ?`
	qListingsByOwner = `SELECT ` + listingColumns + ` FROM listings WHERE owner_id = ? ORDER BY created_at DESC, id`
	qDeleteListing   = `DELETE FROM listings WHERE id = ?`
)

// Create inserts a new listing. The caller supplies the id and timestamps.
func (r *ListingRepo) Create(ctx context.Context, l *model.Listing) error {
	_, err := r.db.ExecContext(ctx, qInsertListing, l.ID, l.OwnerID, l.Title, l.Description, l.ImageURL, l.Price, l.CreatedAt)
	return classify(err)
}

// GetByID fetches a listing by id, returning ErrNotFound when missing.
func (r *ListingRepo) GetByID(ctx context.Context, id string) (*model.Listing, error) {
	l, err := scanListing(r.db.QueryRowContext(ctx, qSelectListing, id))
	return l, classify(err)
}

// List returns the newest listings first, at most limit rows.
func (r *ListingRepo) List(ctx context.Context, limit int) ([]model.Listing, error) {
	return r.query(ctx, qListListings, limit)
}

// ListByOwner returns all listings of one host, newest first.
func (r *ListingRepo) ListByOwner(ctx context.Context, ownerID string) ([]model.Listing, error) {
	return r.query(ctx, qListingsByOwner, ownerID)
}

// Delete removes a listing by id.
func (r *ListingRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, qDeleteListing, id)
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ListingRepo) query(ctx context.Context, q string, args ...any) ([]model.Listing, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	out := []model.Listing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

func scanListing(row rowScanner) (*model.Listing, error) {
	var l model.Listing
	if err := row.Scan(&l.ID, &l.OwnerID, &l.Title, &l.Description, &l.ImageURL, &l.Price, &l.CreatedAt); err != nil {
		return nil, err
	}
	return &l, nil
}
