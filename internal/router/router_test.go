package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/staymarket/internal/handler"
	"github.com/iliyamo/staymarket/internal/middleware"
	"github.com/iliyamo/staymarket/internal/model"
	"github.com/iliyamo/staymarket/internal/repository"
	"github.com/iliyamo/staymarket/internal/service"
)

func quietLog() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

// sessions maps raw bearer values to user ids; roles maps user ids to the
// role the resolver answers with.
type sessions map[string]string

func (s sessions) VerifyToken(_ context.Context, raw string) (*model.Session, error) {
	if uid, ok := s[raw]; ok {
		return &model.Session{UserID: uid}, nil
	}
	return nil, service.ErrAuthenticationRequired
}

type roles map[string]model.Role

func (r roles) ResolveRole(_ context.Context, s *model.Session) model.Role {
	if role, ok := r[s.UserID]; ok {
		return role
	}
	return model.RoleGuest
}

type listings struct {
	mu   sync.Mutex
	byID map[string]*model.Listing
}

func (l *listings) Create(_ context.Context, in *model.Listing) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byID[in.ID] = in
	return nil
}

func (l *listings) GetByID(_ context.Context, id string) (*model.Listing, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if v, ok := l.byID[id]; ok {
		return v, nil
	}
	return nil, repository.ErrNotFound
}

func (l *listings) List(context.Context, int) ([]model.Listing, error) { return nil, nil }

func (l *listings) ListByOwner(context.Context, string) ([]model.Listing, error) { return nil, nil }

func (l *listings) Delete(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.byID[id]; !ok {
		return repository.ErrNotFound
	}
	delete(l.byID, id)
	return nil
}

type noBookings struct{}

func (noBookings) Create(context.Context, *model.Booking) error { return nil }
func (noBookings) GetByID(context.Context, string) (*model.Booking, error) {
	return nil, repository.ErrNotFound
}
func (noBookings) ListByUser(context.Context, string) ([]model.Booking, error) { return nil, nil }
func (noBookings) ListByListingOwner(context.Context, string) ([]model.Booking, error) {
	return nil, nil
}

func passThrough(next echo.HandlerFunc) echo.HandlerFunc { return next }

func newServer(store *listings) *echo.Echo {
	log := quietLog()
	e := echo.New()
	e.Use(middleware.Authenticate(
		sessions{"t-former": "former", "t-guest": "guest", "t-host": "host", "t-admin": "admin"},
		roles{"host": model.RoleHost, "admin": model.RoleAdmin},
	))
	catalog := handler.NewCatalogHandler(service.NewCatalogService(store, noBookings{}, nil, nil, log, nil), log)
	appeals := handler.NewAppealHandler(nil, log)
	RegisterPublic(e, catalog, passThrough)
	RegisterAccount(e, handler.NewAccountHandler(nil, log), appeals, catalog)
	RegisterHost(e, catalog)
	RegisterAdmin(e, appeals, handler.NewAdminHandler(nil, log))
	return e
}

func call(e *echo.Echo, method, path, token string) int {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec.Code
}

func TestDeleteListingNeedsOwnershipNotHostFlag(t *testing.T) {
	store := &listings{byID: map[string]*model.Listing{
		"l1": {ID: "l1", OwnerID: "former"},
		"l2": {ID: "l2", OwnerID: "former"},
		"l3": {ID: "l3", OwnerID: "host"},
	}}
	e := newServer(store)

	cases := []struct {
		name  string
		token string
		id    string
		want  int
	}{
		{"anonymous", "", "l1", http.StatusUnauthorized},
		{"someone else's listing", "t-guest", "l1", http.StatusForbidden},
		{"owner whose host flag was cleared", "t-former", "l1", http.StatusNoContent},
		{"admin", "t-admin", "l2", http.StatusNoContent},
		{"host owner", "t-host", "l3", http.StatusNoContent},
		{"already gone", "t-former", "l1", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := call(e, http.MethodDelete, "/v1/listings/"+tc.id, tc.token); got != tc.want {
				t.Fatalf("status = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestCreateListingStillNeedsHost(t *testing.T) {
	e := newServer(&listings{byID: map[string]*model.Listing{}})
	if got := call(e, http.MethodPost, "/v1/listings", "t-former"); got != http.StatusForbidden {
		t.Fatalf("guest create: status = %d, want 403", got)
	}
	if got := call(e, http.MethodPost, "/v1/listings", ""); got != http.StatusUnauthorized {
		t.Fatalf("anonymous create: status = %d, want 401", got)
	}
}

func TestUnknownPathsAreNotFound(t *testing.T) {
	e := newServer(&listings{byID: map[string]*model.Listing{}})
	for _, path := range []string{"/v1/nope", "/v1/admin/nope", "/v1/listings/l1/nope"} {
		for _, token := range []string{"", "t-guest", "t-host", "t-admin"} {
			if got := call(e, http.MethodGet, path, token); got != http.StatusNotFound {
				t.Fatalf("GET %s with %q: status = %d, want 404", path, token, got)
			}
		}
	}
}

func TestAdminRoutesStillGuarded(t *testing.T) {
	e := newServer(&listings{byID: map[string]*model.Listing{}})
	if got := call(e, http.MethodGet, "/v1/admin/users", ""); got != http.StatusUnauthorized {
		t.Fatalf("anonymous: status = %d, want 401", got)
	}
	if got := call(e, http.MethodGet, "/v1/admin/users", "t-host"); got != http.StatusForbidden {
		t.Fatalf("host: status = %d, want 403", got)
	}
}
