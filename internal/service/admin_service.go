package service

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/staymarket/internal/feed"
	"github.com/iliyamo/staymarket/internal/model"
	"github.com/iliyamo/staymarket/internal/queue"
)

// AdminService holds the user management operations reserved for admins
// and the privileged claim grant used by the grantadmin command.
type AdminService struct {
	accounts AccountStore
	profiles ProfileStore
	emit     emitter
	log      logrus.FieldLogger
	now      Clock
	// AllowProfileOnlyDelete enables the degraded delete path: when the
	// atomic delete fails because the store is unavailable, only the profile
	// document is removed and the identity record is left orphaned.
	AllowProfileOnlyDelete bool
	// Guard re-checks the opener of a live query while it stays open. Live
	// queries are refused without one.
	Guard SessionGuard
}

func NewAdminService(accounts AccountStore, profiles ProfileStore, n Notifier, ev EventPublisher, log logrus.FieldLogger, clock Clock) *AdminService {
	if clock == nil {
		clock = systemClock
	}
	return &AdminService{
		accounts: accounts,
		profiles: profiles,
		emit:     emitter{notifier: n, events: ev, log: log},
		log:      log,
		now:      clock,
	}
}

// ListUsers returns every profile. Admin only.
func (s *AdminService) ListUsers(ctx context.Context, actor Actor) ([]model.User, error) {
	if err := requireRole(actor, model.RoleAdmin); err != nil {
		return nil, err
	}
	out, err := s.profiles.List(ctx)
	return out, translate(err)
}

// SetHostFlag grants or revokes host directly. Admin only.
func (s *AdminService) SetHostFlag(ctx context.Context, actor Actor, target string, value bool) (*model.User, error) {
	if err := requireRole(actor, model.RoleAdmin); err != nil {
		return nil, err
	}
	if strings.TrimSpace(target) == "" {
		return nil, invalid("id", "required")
	}
	u, err := s.profiles.SetHost(ctx, target, value, s.now().Truncate(timePrecision))
	if err != nil {
		return nil, translate(err)
	}
	s.log.WithFields(logrus.Fields{"uid": target, "isHost": value, "by": actor.ID()}).Info("host flag changed")
	s.emit.upsert(ctx, feed.Users, u.ID, u)
	s.emit.event(ctx, queue.Event{
		Type:       queue.TypeHostChanged,
		ActorID:    actor.ID(),
		SubjectID:  target,
		Attrs:      map[string]string{"is_host": boolString(value)},
		OccurredAt: u.UpdatedAt,
	})
	return u, nil
}

// DeleteResult reports how a user was deleted.
type DeleteResult struct {
	// OrphanedIdentity is set when only the profile document was removed
	// and the identity record still exists.
	OrphanedIdentity bool
}

// DeleteUser removes a user's identity record, profile, appeal and tokens
// in one transaction. Admin only.
func (s *AdminService) DeleteUser(ctx context.Context, actor Actor, target string) (DeleteResult, error) {
	if err := requireRole(actor, model.RoleAdmin); err != nil {
		return DeleteResult{}, err
	}
	if strings.TrimSpace(target) == "" {
		return DeleteResult{}, invalid("id", "required")
	}
	var res DeleteResult
	err := translate(s.accounts.DeleteCascade(ctx, target))
	if err != nil && s.AllowProfileOnlyDelete && errors.Is(err, ErrUnavailable) {
		fallbackErr := s.profiles.DeleteProfileOnly(ctx, target)
		if fallbackErr != nil {
			return DeleteResult{}, translate(fallbackErr)
		}
		s.log.WithError(err).WithField("uid", target).Warn("identity delete failed, removed profile only; identity record is orphaned")
		res.OrphanedIdentity = true
		err = nil
	}
	if err != nil {
		return DeleteResult{}, err
	}
	s.log.WithFields(logrus.Fields{"uid": target, "by": actor.ID()}).Info("user deleted")
	s.emit.remove(ctx, feed.Users, target)
	if !res.OrphanedIdentity {
		s.emit.remove(ctx, feed.Appeals, target)
	}
	s.emit.event(ctx, queue.Event{
		Type:       queue.TypeUserDeleted,
		ActorID:    actor.ID(),
		SubjectID:  target,
		Attrs:      map[string]string{"orphaned_identity": boolString(res.OrphanedIdentity)},
		OccurredAt: s.now(),
	})
	return res, nil
}

// UsersQuery is the live query behind the admin user list.
func (s *AdminService) UsersQuery(actor Actor) (feed.Query, error) {
	if err := requireRole(actor, model.RoleAdmin); err != nil {
		return feed.Query{}, err
	}
	return guarded(s.Guard, actor, feed.Query{
		Collection: feed.Users,
		Snapshot: func(ctx context.Context) ([]feed.Doc, error) {
			list, err := s.profiles.List(ctx)
			if err != nil {
				return nil, translate(err)
			}
			return feed.DocsOf(list, func(u model.User) string { return u.ID })
		},
	}, model.RoleAdmin)
}

// GrantAdmin sets the admin claim on the account named by idOrEmail (an
// argument containing "@" is an email). Existing claims are kept. Every
// outstanding session is revoked in the same write, so the grant only takes
// effect in tokens issued afterwards. This is an operator action and has no
// Actor.
func (s *AdminService) GrantAdmin(ctx context.Context, idOrEmail string) (*model.Account, error) {
	return s.setAdminClaim(ctx, idOrEmail, true)
}

// RevokeAdmin removes the admin claim; see GrantAdmin.
func (s *AdminService) RevokeAdmin(ctx context.Context, idOrEmail string) (*model.Account, error) {
	return s.setAdminClaim(ctx, idOrEmail, false)
}

func (s *AdminService) setAdminClaim(ctx context.Context, idOrEmail string, admin bool) (*model.Account, error) {
	key := strings.TrimSpace(idOrEmail)
	if key == "" {
		return nil, invalid("user", "uid or email required")
	}
	var (
		acc *model.Account
		err error
	)
	if strings.Contains(key, "@") {
		acc, err = s.accounts.GetByEmail(ctx, key)
	} else {
		acc, err = s.accounts.GetByID(ctx, key)
	}
	if err != nil {
		return nil, translate(err)
	}

	claims := make(map[string]any, len(acc.Claims)+1)
	for k, v := range acc.Claims {
		claims[k] = v
	}
	if admin {
		claims["admin"] = true
	} else {
		delete(claims, "admin")
	}
	at := s.now().UTC().Truncate(watermarkPrecision)
	if err := s.accounts.SetClaims(ctx, acc.ID, claims, at); err != nil {
		return nil, translate(err)
	}
	acc.Claims = claims
	acc.TokensValidAfter = at
	s.log.WithFields(logrus.Fields{"uid": acc.ID, "admin": admin}).Info("admin claim updated, sessions revoked")
	s.emit.event(ctx, queue.Event{
		Type:       queue.TypeAdminChanged,
		SubjectID:  acc.ID,
		Attrs:      map[string]string{"admin": boolString(admin)},
		OccurredAt: at,
	})
	return acc, nil
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
