package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/iliyamo/staymarket/internal/model"
)

// Resolver derives the effective role of a session on every request. The
// admin claim wins without a profile read; otherwise the profile's host
// flag decides. Any lookup failure, including an open breaker, resolves to
// guest: an outage must never widen privileges.
type Resolver struct {
	profiles ProfileStore
	breaker  *gobreaker.CircuitBreaker
	log      logrus.FieldLogger
}

// NewResolver wraps profile reads in a circuit breaker so a failing store
// is not hammered by every request.
func NewResolver(profiles ProfileStore, log logrus.FieldLogger) *Resolver {
	st := gobreaker.Settings{
		Name:        "profile-lookup",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 5 },
		IsSuccessful: func(err error) bool {
			return err == nil || isNotFound(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).
				Warn("circuit breaker state changed")
		},
	}
	return &Resolver{profiles: profiles, breaker: gobreaker.NewCircuitBreaker(st), log: log}
}

// ResolveRole never fails; see the type comment.
func (r *Resolver) ResolveRole(ctx context.Context, s *model.Session) model.Role {
	if s == nil || s.UserID == "" {
		return model.RoleGuest
	}
	if s.Admin {
		return model.RoleAdmin
	}
	v, err := r.breaker.Execute(func() (interface{}, error) {
		return r.profiles.GetByID(ctx, s.UserID)
	})
	if err != nil {
		if !isNotFound(err) {
			r.log.WithError(err).WithField("uid", s.UserID).Warn("role lookup failed, treating caller as guest")
		}
		return model.RoleGuest
	}
	if u, ok := v.(*model.User); ok && u != nil && u.IsHost {
		return model.RoleHost
	}
	return model.RoleGuest
}

// Actor bundles a session with its resolved role.
func (r *Resolver) Actor(ctx context.Context, s *model.Session) Actor {
	return Actor{Session: s, Role: r.ResolveRole(ctx, s)}
}
