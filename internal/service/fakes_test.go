package service

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/staymarket/internal/feed"
	"github.com/iliyamo/staymarket/internal/model"
	"github.com/iliyamo/staymarket/internal/queue"
	"github.com/iliyamo/staymarket/internal/repository"
)

// memDB is an in-memory stand-in for the MySQL schema. The typed views
// below implement the store interfaces over it.
type memDB struct {
	mu       sync.Mutex
	accounts map[string]*model.Account
	users    map[string]*model.User
	appeals  map[string]*model.HostAppeal
	listings map[string]*model.Listing
	bookings map[string]*model.Booking
	refresh  map[string]string
	tokens   map[string]string
	// failProfiles makes every profile read fail as unavailable.
	failProfiles bool
	// failCascade makes DeleteCascade fail as unavailable.
	failCascade bool
}

func newMemDB() *memDB {
	return &memDB{
		accounts: map[string]*model.Account{},
		users:    map[string]*model.User{},
		appeals:  map[string]*model.HostAppeal{},
		listings: map[string]*model.Listing{},
		bookings: map[string]*model.Booking{},
		refresh:  map[string]string{},
		tokens:   map[string]string{},
	}
}

var errDown = repository.ErrUnavailable

func (db *memDB) addUser(id, email string, host bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.accounts[id] = &model.Account{ID: id, Email: email}
	db.users[id] = &model.User{ID: id, Email: email, IsHost: host}
}

type accountView struct{ *memDB }

func (v accountView) Create(_ context.Context, acc *model.Account, profile *model.User) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, a := range v.accounts {
		if a.Email == acc.Email {
			return repository.ErrEmailExists
		}
	}
	a, p := *acc, *profile
	v.accounts[a.ID] = &a
	v.users[p.ID] = &p
	return nil
}

func (v accountView) GetByID(_ context.Context, id string) (*model.Account, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	a, ok := v.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (v accountView) GetByEmail(_ context.Context, email string) (*model.Account, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, a := range v.accounts {
		if a.Email == strings.ToLower(email) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (v accountView) UpdateEmail(_ context.Context, id, email string, _ time.Time) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	a, ok := v.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.Email, a.EmailVerified = email, false
	if u, ok := v.users[id]; ok {
		u.Email, u.Verified = email, false
	}
	return nil
}

func (v accountView) UpdatePassword(_ context.Context, id, hash string, at time.Time) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	a, ok := v.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.PasswordHash, a.TokensValidAfter = hash, at
	return nil
}

func (v accountView) SetClaims(_ context.Context, id string, claims map[string]any, at time.Time) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	a, ok := v.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.Claims, a.TokensValidAfter = claims, at
	return nil
}

func (v accountView) RevokeSessions(_ context.Context, id string, at time.Time) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if a, ok := v.accounts[id]; ok {
		a.TokensValidAfter = at
	}
	return nil
}

func (v accountView) MarkEmailVerified(_ context.Context, id string, at time.Time) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if a, ok := v.accounts[id]; ok {
		a.EmailVerified = true
	}
	if u, ok := v.users[id]; ok {
		u.Verified, u.VerifiedAt = true, &at
	}
	return nil
}

func (v accountView) ValidAfter(_ context.Context, id string) (time.Time, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	a, ok := v.accounts[id]
	if !ok {
		return time.Time{}, repository.ErrNotFound
	}
	return a.TokensValidAfter, nil
}

func (v accountView) DeleteCascade(_ context.Context, id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.failCascade {
		return errDown
	}
	if _, ok := v.accounts[id]; !ok {
		return repository.ErrNotFound
	}
	delete(v.accounts, id)
	delete(v.users, id)
	delete(v.appeals, id)
	return nil
}

type profileView struct{ *memDB }

func (v profileView) GetByID(_ context.Context, id string) (*model.User, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.failProfiles {
		return nil, errDown
	}
	u, ok := v.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (v profileView) List(context.Context) ([]model.User, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := []model.User{}
	for _, u := range v.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v profileView) SetHost(_ context.Context, id string, value bool, at time.Time) (*model.User, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	u, ok := v.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	u.IsHost, u.UpdatedAt = value, at
	cp := *u
	return &cp, nil
}

func (v profileView) DeleteProfileOnly(_ context.Context, id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(v.users, id)
	return nil
}

type refreshView struct{ *memDB }

func (v refreshView) StoreRefresh(_ context.Context, accountID, hash string, _ time.Time) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.refresh[hash] = accountID
	return nil
}

func (v refreshView) ValidateRefresh(_ context.Context, hash string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	id, ok := v.refresh[hash]
	if !ok {
		return "", repository.ErrNotFound
	}
	return id, nil
}

func (v refreshView) RevokeByHash(_ context.Context, hash string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.refresh, hash)
	return nil
}

func (v refreshView) RevokeAllForAccount(_ context.Context, accountID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for h, id := range v.refresh {
		if id == accountID {
			delete(v.refresh, h)
		}
	}
	return nil
}

type verifyView struct{ *memDB }

func (v verifyView) Store(_ context.Context, hash, accountID string, _ model.TokenPurpose, _ time.Time) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tokens[hash] = accountID
	return nil
}

func (v verifyView) Consume(_ context.Context, hash string, _ model.TokenPurpose, _ time.Time) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	id, ok := v.tokens[hash]
	if !ok {
		return "", repository.ErrNotFound
	}
	delete(v.tokens, hash)
	return id, nil
}

type appealView struct{ *memDB }

func (v appealView) Get(_ context.Context, id string) (*model.HostAppeal, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	a, ok := v.appeals[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (v appealView) ListPending(context.Context) ([]model.HostAppeal, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := []model.HostAppeal{}
	for _, a := range v.appeals {
		if a.Status == model.AppealPending {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (v appealView) Submit(_ context.Context, in *model.HostAppeal, now time.Time) (*model.HostAppeal, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	cur, ok := v.appeals[in.ID]
	if !ok {
		a := *in
		a.Status, a.CreatedAt, a.UpdatedAt = model.AppealPending, now, now
		v.appeals[a.ID] = &a
		cp := a
		return &cp, nil
	}
	if !cur.Status.CanTransition(model.AppealPending) {
		return nil, &model.TransitionError{From: cur.Status, To: model.AppealPending}
	}
	cur.Message, cur.DisplayName, cur.Status, cur.UpdatedAt = in.Message, in.DisplayName, model.AppealPending, now
	cp := *cur
	return &cp, nil
}

func (v appealView) Decide(_ context.Context, id string, to model.AppealStatus, reviewer string, at time.Time) (*model.HostAppeal, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	cur, ok := v.appeals[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if !cur.Status.CanTransition(to) || to == model.AppealPending {
		return nil, &model.TransitionError{From: cur.Status, To: to}
	}
	if to == model.AppealApproved {
		u, ok := v.users[cur.UID]
		if !ok {
			return nil, repository.ErrNotFound
		}
		u.IsHost = true
	}
	cur.Status, cur.ReviewedAt, cur.ReviewedBy, cur.UpdatedAt = to, &at, &reviewer, at
	cp := *cur
	return &cp, nil
}

type listingView struct{ *memDB }

func (v listingView) Create(_ context.Context, l *model.Listing) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	cp := *l
	v.listings[l.ID] = &cp
	return nil
}

func (v listingView) GetByID(_ context.Context, id string) (*model.Listing, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	l, ok := v.listings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (v listingView) List(_ context.Context, limit int) ([]model.Listing, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := []model.Listing{}
	for _, l := range v.listings {
		if len(out) == limit {
			break
		}
		out = append(out, *l)
	}
	return out, nil
}

func (v listingView) ListByOwner(_ context.Context, ownerID string) ([]model.Listing, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := []model.Listing{}
	for _, l := range v.listings {
		if l.OwnerID == ownerID {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (v listingView) Delete(_ context.Context, id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.listings[id]; !ok {
		return repository.ErrNotFound
	}
	delete(v.listings, id)
	return nil
}

type bookingView struct{ *memDB }

func (v bookingView) Create(_ context.Context, b *model.Booking) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	l, ok := v.listings[b.ListingID]
	if !ok {
		return repository.ErrNotFound
	}
	if l.Price != b.PricePerNight {
		return repository.ErrConflict
	}
	cp := *b
	v.bookings[b.ID] = &cp
	return nil
}

func (v bookingView) GetByID(_ context.Context, id string) (*model.Booking, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	b, ok := v.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (v bookingView) ListByUser(_ context.Context, uid string) ([]model.Booking, error) {
	return v.filter(func(b *model.Booking) bool { return b.UID == uid }), nil
}

func (v bookingView) ListByListingOwner(_ context.Context, ownerID string) ([]model.Booking, error) {
	return v.filter(func(b *model.Booking) bool { return b.ListingOwnerID == ownerID }), nil
}

func (v bookingView) filter(keep func(*model.Booking) bool) []model.Booking {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := []model.Booking{}
	for _, b := range v.bookings {
		if keep(b) {
			out = append(out, *b)
		}
	}
	return out
}

// recorder captures feed changes and domain events.
type recorder struct {
	mu      sync.Mutex
	changes []feed.Change
	events  []queue.Event
	mails   []string
}

func (r *recorder) Publish(_ context.Context, c feed.Change) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
	return nil
}

type eventSink struct{ *recorder }

func (e eventSink) Publish(_ context.Context, ev queue.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return nil
}

type mailSink struct{ *recorder }

func (m mailSink) Send(_ context.Context, to, _, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mails = append(m.mails, to+"\n"+body)
	return nil
}

func (r *recorder) eventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func quietLog() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func fixedClock(t time.Time) Clock { return func() time.Time { return t } }

func actorFor(id string, role model.Role) Actor {
	return Actor{Session: &model.Session{UserID: id, Email: id + "@example.com", Admin: role == model.RoleAdmin}, Role: role}
}
