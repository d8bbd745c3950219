package model

import (
	"encoding/json"
	"time"
)

// DateLayout is the wire format of check-in and check-out dates.
const DateLayout = "2006-01-02"

// Booking is an immutable reservation of a listing. Nights and TotalPrice
// are always derived from the dates and the listing price at write time.
type Booking struct {
	ID             string
	UID            string
	ListingID      string
	ListingOwnerID string
	ListingTitle   string
	CheckIn        time.Time
	CheckOut       time.Time
	Guests         int
	Nights         int
	PricePerNight  float64
	TotalPrice     float64
	ReservedAt     time.Time
}

type bookingJSON struct {
	ID             string    `json:"id"`
	UID            string    `json:"uid"`
	ListingID      string    `json:"listingId"`
	ListingOwnerID string    `json:"listingOwnerId"`
	ListingTitle   string    `json:"listingTitle"`
	CheckIn        string    `json:"checkIn"`
	CheckOut       string    `json:"checkOut"`
	Guests         int       `json:"guests"`
	Nights         int       `json:"nights"`
	PricePerNight  float64   `json:"pricePerNight"`
	TotalPrice     float64   `json:"totalPrice"`
	ReservedAt     time.Time `json:"reservedAt"`
}

// MarshalJSON renders stay dates as plain YYYY-MM-DD strings.
func (b Booking) MarshalJSON() ([]byte, error) {
	return json.Marshal(bookingJSON{
		ID:             b.ID,
		UID:            b.UID,
		ListingID:      b.ListingID,
		ListingOwnerID: b.ListingOwnerID,
		ListingTitle:   b.ListingTitle,
		CheckIn:        b.CheckIn.Format(DateLayout),
		CheckOut:       b.CheckOut.Format(DateLayout),
		Guests:         b.Guests,
		Nights:         b.Nights,
		PricePerNight:  b.PricePerNight,
		TotalPrice:     b.TotalPrice,
		ReservedAt:     b.ReservedAt,
	})
}

// UnmarshalJSON is the inverse of MarshalJSON; live feed consumers decode
// bookings through it.
func (b *Booking) UnmarshalJSON(data []byte) error {
	var raw bookingJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	in, err := ParseDate(raw.CheckIn)
	if err != nil {
		return err
	}
	out, err := ParseDate(raw.CheckOut)
	if err != nil {
		return err
	}
	*b = Booking{
		ID:             raw.ID,
		UID:            raw.UID,
		ListingID:      raw.ListingID,
		ListingOwnerID: raw.ListingOwnerID,
		ListingTitle:   raw.ListingTitle,
		CheckIn:        in,
		CheckOut:       out,
		Guests:         raw.Guests,
		Nights:         raw.Nights,
		PricePerNight:  raw.PricePerNight,
		TotalPrice:     raw.TotalPrice,
		ReservedAt:     raw.ReservedAt,
	}
	return nil
}

// ParseDate parses a YYYY-MM-DD date as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// DaysBetween returns the number of whole calendar days from checkIn to
// checkOut. The result is zero or negative when checkOut is not after
// checkIn.
func DaysBetween(checkIn, checkOut time.Time) int {
	in := time.Date(checkIn.Year(), checkIn.Month(), checkIn.Day(), 0, 0, 0, 0, time.UTC)
	out := time.Date(checkOut.Year(), checkOut.Month(), checkOut.Day(), 0, 0, 0, 0, time.UTC)
	// Unix seconds instead of Sub, which saturates past ~292 years.
	return int((out.Unix() - in.Unix()) / secondsPerDay)
}

const secondsPerDay = 24 * 60 * 60

// TotalPrice is the only way a booking total is computed.
func TotalPrice(nights int, pricePerNight float64) float64 {
	return float64(nights) * pricePerNight
}
