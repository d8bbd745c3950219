package service

import (
	"context"
	"time"

	"github.com/iliyamo/staymarket/internal/feed"
	"github.com/iliyamo/staymarket/internal/model"
	"github.com/iliyamo/staymarket/internal/queue"
)

// The store interfaces below are satisfied by the MySQL repositories and by
// in-memory fakes in tests.

type AccountStore interface {
	Create(ctx context.Context, acc *model.Account, profile *model.User) error
	GetByID(ctx context.Context, id string) (*model.Account, error)
	GetByEmail(ctx context.Context, email string) (*model.Account, error)
	UpdateEmail(ctx context.Context, id, email string, at time.Time) error
	UpdatePassword(ctx context.Context, id, hash string, at time.Time) error
	SetClaims(ctx context.Context, id string, claims map[string]any, at time.Time) error
	RevokeSessions(ctx context.Context, id string, at time.Time) error
	MarkEmailVerified(ctx context.Context, id string, at time.Time) error
	ValidAfter(ctx context.Context, id string) (time.Time, error)
	DeleteCascade(ctx context.Context, id string) error
}

type ProfileStore interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	List(ctx context.Context) ([]model.User, error)
	SetHost(ctx context.Context, id string, value bool, at time.Time) (*model.User, error)
	DeleteProfileOnly(ctx context.Context, id string) error
}

type RefreshStore interface {
	StoreRefresh(ctx context.Context, accountID, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (string, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForAccount(ctx context.Context, accountID string) error
}

type VerificationStore interface {
	Store(ctx context.Context, tokenHash, accountID string, purpose model.TokenPurpose, exp time.Time) error
	Consume(ctx context.Context, tokenHash string, purpose model.TokenPurpose, now time.Time) (string, error)
}

type AppealStore interface {
	Get(ctx context.Context, id string) (*model.HostAppeal, error)
	ListPending(ctx context.Context) ([]model.HostAppeal, error)
	Submit(ctx context.Context, in *model.HostAppeal, now time.Time) (*model.HostAppeal, error)
	Decide(ctx context.Context, id string, to model.AppealStatus, reviewer string, at time.Time) (*model.HostAppeal, error)
}

type ListingStore interface {
	Create(ctx context.Context, l *model.Listing) error
	GetByID(ctx context.Context, id string) (*model.Listing, error)
	List(ctx context.Context, limit int) ([]model.Listing, error)
	ListByOwner(ctx context.Context, ownerID string) ([]model.Listing, error)
	Delete(ctx context.Context, id string) error
}

type BookingStore interface {
	Create(ctx context.Context, b *model.Booking) error
	GetByID(ctx context.Context, id string) (*model.Booking, error)
	ListByUser(ctx context.Context, uid string) ([]model.Booking, error)
	ListByListingOwner(ctx context.Context, ownerID string) ([]model.Booking, error)
}

// Notifier receives a change for every committed document write so live
// subscriptions can observe it. *feed.Hub implements it.
type Notifier interface {
	Publish(ctx context.Context, c feed.Change) error
}

// EventPublisher emits domain events to the broker.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.Event) error
}

// Mailer sends transactional mail.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Clock returns the current time. Tests substitute a fixed one.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

// timePrecision matches the DATETIME columns the timestamps are stored in.
const timePrecision = time.Second

// watermarkPrecision matches accounts.tokens_valid_after, a DATETIME(3)
// column, and the iat_ms claim of access tokens.
const watermarkPrecision = time.Millisecond

// RoleResolver derives the effective role of a session.
type RoleResolver interface {
	ResolveRole(ctx context.Context, s *model.Session) model.Role
}
