package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/staymarket/internal/model"
)

// BookingRepo persists bookings. Bookings are insert-only: there is no
// update or delete statement in this file.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

const (
	bookingColumns = `id, uid, listing_id, listing_owner_id, listing_title, check_in, check_out, guests, nights, price_per_night, total_price, reserved_at`

	// The listing row is the source of owner, title and nightly price, and
	// the price guard makes the insert a no-op if the listing changed after
	// the caller computed the total.
	qInsertBooking = `INSERT INTO bookings (` + bookingColumns + `)
SELECT ?, ?, l.id, l.owner_id, l.title, ?, ?, ?, ?, l.price, ?, ?
FROM listings l WHERE l.id = ? AND l.price = ?`
	qListingPrice      = `SELECT price FROM listings WHERE id = ?`
	qBookingsByUser    = `SELECT ` + bookingColumns + ` FROM bookings WHERE uid = ? ORDER BY reserved_at DESC, id`
	qBookingsByOwner   = `SELECT ` + bookingColumns + ` FROM bookings WHERE listing_owner_id = ? ORDER BY check_in, id`
	qSelectBookingByID = `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
)

// Create inserts b if its listing still exists at b.PricePerNight. It
// returns ErrNotFound when the listing is gone and ErrConflict when its
// price no longer matches.
func (r *BookingRepo) Create(ctx context.Context, b *model.Booking) error {
	res, err := r.db.ExecContext(ctx, qInsertBooking,
		b.ID, b.UID, b.CheckIn, b.CheckOut, b.Guests, b.Nights, b.TotalPrice, b.ReservedAt,
		b.ListingID, b.PricePerNight)
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	var price float64
	if err := r.db.QueryRowContext(ctx, qListingPrice, b.ListingID).Scan(&price); err != nil {
		return classify(err)
	}
	return ErrConflict
}

// GetByID fetches one booking.
func (r *BookingRepo) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	b, err := scanBooking(r.db.QueryRowContext(ctx, qSelectBookingByID, id))
	return b, classify(err)
}

// ListByUser returns the bookings made by uid, newest first.
func (r *BookingRepo) ListByUser(ctx context.Context, uid string) ([]model.Booking, error) {
	return r.query(ctx, qBookingsByUser, uid)
}

// ListByListingOwner returns bookings made on listings owned by ownerID.
func (r *BookingRepo) ListByListingOwner(ctx context.Context, ownerID string) ([]model.Booking, error) {
	return r.query(ctx, qBookingsByOwner, ownerID)
}

func (r *BookingRepo) query(ctx context.Context, q string, arg string) ([]model.Booking, error) {
	rows, err := r.db.QueryContext(ctx, q, arg)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	out := []model.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, classify(rows.Err())
}

func scanBooking(row rowScanner) (*model.Booking, error) {
	var b model.Booking
	if err := row.Scan(&b.ID, &b.UID, &b.ListingID, &b.ListingOwnerID, &b.ListingTitle,
		&b.CheckIn, &b.CheckOut, &b.Guests, &b.Nights, &b.PricePerNight, &b.TotalPrice, &b.ReservedAt); err != nil {
		return nil, err
	}
	b.CheckIn, b.CheckOut = b.CheckIn.UTC(), b.CheckOut.UTC()
	return &b, nil
}
