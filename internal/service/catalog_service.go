package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/staymarket/internal/feed"
	"github.com/iliyamo/staymarket/internal/model"
	"github.com/iliyamo/staymarket/internal/queue"
	"github.com/iliyamo/staymarket/internal/repository"
)

const (
	maxTitle         = 120
	maxDescription   = 2000
	defaultListLimit = 100
	maxGuests        = 50
)

// CatalogService owns listings and bookings.
type CatalogService struct {
	listings ListingStore
	bookings BookingStore
	emit     emitter
	log      logrus.FieldLogger
	now      Clock
	// OnBooking, when set, observes every committed booking.
	OnBooking func(*model.Booking)
	// Guard re-checks the opener of a live query while it stays open. Live
	// queries are refused without one.
	Guard SessionGuard
}

func NewCatalogService(listings ListingStore, bookings BookingStore, n Notifier, ev EventPublisher, log logrus.FieldLogger, clock Clock) *CatalogService {
	if clock == nil {
		clock = systemClock
	}
	return &CatalogService{
		listings: listings,
		bookings: bookings,
		emit:     emitter{notifier: n, events: ev, log: log},
		log:      log,
		now:      clock,
	}
}

// ListingInput is the create-listing request.
type ListingInput struct {
	Title       string
	Description string
	ImageURL    string
	Price       float64
}

// CreateListing publishes a new listing owned by the caller. Hosts and
// admins only.
func (s *CatalogService) CreateListing(ctx context.Context, actor Actor, in ListingInput) (*model.Listing, error) {
	if err := requireRole(actor, model.RoleHost, model.RoleAdmin); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(in.Title)
	switch {
	case title == "":
		return nil, invalid("title", "required")
	case utf8.RuneCountInString(title) > maxTitle:
		return nil, invalid("title", "at most 120 characters")
	}
	if math.IsNaN(in.Price) || math.IsInf(in.Price, 0) || in.Price < 0 {
		return nil, invalid("price", "must be a finite number >= 0")
	}
	desc := strings.TrimSpace(in.Description)
	if utf8.RuneCountInString(desc) > maxDescription {
		return nil, invalid("description", "at most 2000 characters")
	}
	img := strings.TrimSpace(in.ImageURL)
	if img != "" {
		u, err := url.Parse(img)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, invalid("imageUrl", "must be an http(s) URL")
		}
	}

	l := &model.Listing{
		ID:          uuid.NewString(),
		OwnerID:     actor.ID(),
		Title:       title,
		Description: desc,
		ImageURL:    img,
		Price:       in.Price,
		CreatedAt:   s.now().Truncate(timePrecision),
	}
	if err := s.listings.Create(ctx, l); err != nil {
		return nil, translate(err)
	}
	s.log.WithFields(logrus.Fields{"listing": l.ID, "owner": l.OwnerID}).Info("listing created")
	s.emit.upsert(ctx, feed.Listings, l.ID, l)
	s.emit.event(ctx, queue.Event{
		Type:       queue.TypeListingCreated,
		ActorID:    actor.ID(),
		SubjectID:  l.ID,
		Attrs:      map[string]string{"title": l.Title, "price": formatMoney(l.Price)},
		OccurredAt: l.CreatedAt,
	})
	return l, nil
}

// DeleteListing removes a listing. Only its owner or an admin may delete
// it. Existing bookings keep their snapshot of the listing.
func (s *CatalogService) DeleteListing(ctx context.Context, actor Actor, id string) error {
	if err := requireAuth(actor); err != nil {
		return err
	}
	l, err := s.listings.GetByID(ctx, id)
	if err != nil {
		return translate(err)
	}
	if l.OwnerID != actor.ID() && !actor.Is(model.RoleAdmin) {
		return ErrPermissionDenied
	}
	if err := s.listings.Delete(ctx, id); err != nil {
		return translate(err)
	}
	s.log.WithFields(logrus.Fields{"listing": id, "by": actor.ID()}).Info("listing deleted")
	s.emit.remove(ctx, feed.Listings, id)
	s.emit.event(ctx, queue.Event{Type: queue.TypeListingDeleted, ActorID: actor.ID(), SubjectID: id, OccurredAt: s.now()})
	return nil
}

// GetListing is public.
func (s *CatalogService) GetListing(ctx context.Context, id string) (*model.Listing, error) {
	l, err := s.listings.GetByID(ctx, id)
	return l, translate(err)
}

// ListListings returns the newest listings. Public.
func (s *CatalogService) ListListings(ctx context.Context, limit int) ([]model.Listing, error) {
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	out, err := s.listings.List(ctx, limit)
	return out, translate(err)
}

// ListByOwner returns one host's listings. Public.
func (s *CatalogService) ListByOwner(ctx context.Context, ownerID string) ([]model.Listing, error) {
	out, err := s.listings.ListByOwner(ctx, ownerID)
	return out, translate(err)
}

// ReserveInput is the booking request. Nights and TotalPrice are optional
// echoes of what the client displayed; when present they must agree with
// the server's computation.
type ReserveInput struct {
	CheckIn    string
	CheckOut   string
	Guests     int
	Nights     *int
	TotalPrice *float64
}

// Reserve books a listing for the caller. Nights and total are derived
// here from the dates and the listing's current price; a request whose
// echoed values disagree is treated as tampered and refused.
func (s *CatalogService) Reserve(ctx context.Context, actor Actor, listingID string, in ReserveInput) (*model.Booking, error) {
	if err := requireAuth(actor); err != nil {
		return nil, err
	}
	checkIn, err := model.ParseDate(strings.TrimSpace(in.CheckIn))
	if err != nil {
		return nil, invalid("checkIn", "expected YYYY-MM-DD")
	}
	checkOut, err := model.ParseDate(strings.TrimSpace(in.CheckOut))
	if err != nil {
		return nil, invalid("checkOut", "expected YYYY-MM-DD")
	}
	nights := model.DaysBetween(checkIn, checkOut)
	if nights <= 0 {
		return nil, invalid("checkOut", "must be after checkIn")
	}
	if in.Guests < 1 || in.Guests > maxGuests {
		return nil, invalid("guests", "must be between 1 and 50")
	}

	l, err := s.listings.GetByID(ctx, listingID)
	if err != nil {
		return nil, translate(err)
	}
	total := model.TotalPrice(nights, l.Price)
	if in.Nights != nil && *in.Nights != nights {
		return nil, ErrPermissionDenied
	}
	if in.TotalPrice != nil && math.Abs(*in.TotalPrice-total) > 0.005 {
		return nil, ErrPermissionDenied
	}

	b := &model.Booking{
		ID:             uuid.NewString(),
		UID:            actor.ID(),
		ListingID:      l.ID,
		ListingOwnerID: l.OwnerID,
		ListingTitle:   l.Title,
		CheckIn:        checkIn,
		CheckOut:       checkOut,
		Guests:         in.Guests,
		Nights:         nights,
		PricePerNight:  l.Price,
		TotalPrice:     total,
		ReservedAt:     s.now().Truncate(timePrecision),
	}
	if err := s.bookings.Create(ctx, b); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrListingChanged
		}
		return nil, translate(err)
	}
	s.log.WithFields(logrus.Fields{"booking": b.ID, "listing": b.ListingID, "uid": b.UID}).Info("booking created")
	if s.OnBooking != nil {
		s.OnBooking(b)
	}
	s.emit.upsert(ctx, feed.Bookings, b.ID, b)
	s.emit.event(ctx, queue.Event{
		Type:      queue.TypeBookingCreated,
		ActorID:   b.UID,
		SubjectID: b.ID,
		Attrs: map[string]string{
			"listing":   b.ListingID,
			"check_in":  b.CheckIn.Format(model.DateLayout),
			"check_out": b.CheckOut.Format(model.DateLayout),
			"total":     formatMoney(b.TotalPrice),
		},
		OccurredAt: b.ReservedAt,
	})
	return b, nil
}

// ListMyBookings returns the caller's own bookings.
func (s *CatalogService) ListMyBookings(ctx context.Context, actor Actor) ([]model.Booking, error) {
	if err := requireAuth(actor); err != nil {
		return nil, err
	}
	out, err := s.bookings.ListByUser(ctx, actor.ID())
	return out, translate(err)
}

// ListHostBookings returns bookings made on the caller's listings.
func (s *CatalogService) ListHostBookings(ctx context.Context, actor Actor) ([]model.Booking, error) {
	if err := requireRole(actor, model.RoleHost, model.RoleAdmin); err != nil {
		return nil, err
	}
	out, err := s.bookings.ListByListingOwner(ctx, actor.ID())
	return out, translate(err)
}

// ListingsQuery is the live query over listings, optionally restricted to
// one owner. Public.
func (s *CatalogService) ListingsQuery(ownerID string) feed.Query {
	q := feed.Query{Collection: feed.Listings}
	if ownerID == "" {
		q.Snapshot = func(ctx context.Context) ([]feed.Doc, error) {
			list, err := s.listings.List(ctx, defaultListLimit)
			if err != nil {
				return nil, translate(err)
			}
			return feed.DocsOf(list, listingID)
		}
		return q
	}
	q.Match = func(doc json.RawMessage) bool {
		var l model.Listing
		return jsonInto(doc, &l) && l.OwnerID == ownerID
	}
	q.Snapshot = func(ctx context.Context) ([]feed.Doc, error) {
		list, err := s.listings.ListByOwner(ctx, ownerID)
		if err != nil {
			return nil, translate(err)
		}
		return feed.DocsOf(list, listingID)
	}
	return q
}

// MyBookingsQuery is the live query over the caller's bookings.
func (s *CatalogService) MyBookingsQuery(actor Actor) (feed.Query, error) {
	if err := requireAuth(actor); err != nil {
		return feed.Query{}, err
	}
	uid := actor.ID()
	return guarded(s.Guard, actor, feed.Query{
		Collection: feed.Bookings,
		Match: func(doc json.RawMessage) bool {
			var b model.Booking
			return jsonInto(doc, &b) && b.UID == uid
		},
		Snapshot: func(ctx context.Context) ([]feed.Doc, error) {
			list, err := s.bookings.ListByUser(ctx, uid)
			if err != nil {
				return nil, translate(err)
			}
			return feed.DocsOf(list, func(b model.Booking) string { return b.ID })
		},
	})
}

func listingID(l model.Listing) string { return l.ID }

func formatMoney(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }
