package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/staymarket/internal/feed"
	"github.com/iliyamo/staymarket/internal/model"
	"github.com/iliyamo/staymarket/internal/queue"
)

const maxAppealMessage = 2000

// AppealService runs the host appeal workflow.
type AppealService struct {
	appeals  AppealStore
	profiles ProfileStore
	emit     emitter
	log      logrus.FieldLogger
	now      Clock
	// OnDecision, when set, observes every committed decision.
	OnDecision func(model.Decision)
	// Guard re-checks the opener of a live query while it stays open. Live
	// queries are refused without one.
	Guard SessionGuard
}

func NewAppealService(appeals AppealStore, profiles ProfileStore, n Notifier, ev EventPublisher, log logrus.FieldLogger, clock Clock) *AppealService {
	if clock == nil {
		clock = systemClock
	}
	return &AppealService{
		appeals:  appeals,
		profiles: profiles,
		emit:     emitter{notifier: n, events: ev, log: log},
		log:      log,
		now:      clock,
	}
}

// SubmitInput is the applicant's request.
type SubmitInput struct {
	DisplayName string
	Message     string
}

// Submit files or refiles the caller's appeal. Only a caller without an
// appeal or with a denied one may submit.
func (s *AppealService) Submit(ctx context.Context, actor Actor, in SubmitInput) (*model.HostAppeal, error) {
	if err := requireAuth(actor); err != nil {
		return nil, err
	}
	msg := strings.TrimSpace(in.Message)
	if utf8.RuneCountInString(msg) > maxAppealMessage {
		return nil, invalid("message", "at most 2000 characters")
	}
	name := strings.TrimSpace(in.DisplayName)
	if utf8.RuneCountInString(name) > 120 {
		return nil, invalid("displayName", "at most 120 characters")
	}
	if actor.Is(model.RoleHost) {
		return nil, ErrAppealApproved
	}
	email := ""
	if actor.Session != nil {
		email = actor.Session.Email
	}

	a, err := s.appeals.Submit(ctx, &model.HostAppeal{
		ID:          actor.ID(),
		UID:         actor.ID(),
		Email:       email,
		DisplayName: name,
		Message:     msg,
	}, s.now())
	if err != nil {
		var te *model.TransitionError
		if errors.As(err, &te) {
			switch te.From {
			case model.AppealPending:
				return nil, ErrAppealPending
			case model.AppealApproved:
				return nil, ErrAppealApproved
			}
		}
		return nil, translate(err)
	}
	s.log.WithField("uid", a.UID).Info("host appeal submitted")
	s.emit.upsert(ctx, feed.Appeals, a.ID, a)
	s.emit.event(ctx, queue.Event{Type: queue.TypeAppealSubmitted, ActorID: a.UID, SubjectID: a.ID, OccurredAt: a.UpdatedAt})
	return a, nil
}

// Decide approves or denies a pending appeal. Approval grants host to the
// applicant in the same transaction. Only the first decision on a pending
// appeal takes effect; later ones fail with ErrAlreadyDecided.
func (s *AppealService) Decide(ctx context.Context, actor Actor, appealID string, d model.Decision) (*model.HostAppeal, error) {
	if err := requireRole(actor, model.RoleAdmin); err != nil {
		return nil, err
	}
	to, ok := d.Status()
	if !ok {
		return nil, invalid("decision", "must be approve or deny")
	}
	if strings.TrimSpace(appealID) == "" {
		return nil, invalid("id", "required")
	}
	a, err := s.appeals.Decide(ctx, appealID, to, actor.ID(), s.now())
	if err != nil {
		var te *model.TransitionError
		if errors.As(err, &te) {
			return nil, ErrAlreadyDecided
		}
		return nil, translate(err)
	}
	s.log.WithFields(logrus.Fields{
		"appeal":   a.ID,
		"decision": string(d),
		"reviewer": actor.ID(),
	}).Info("host appeal decided")
	if s.OnDecision != nil {
		s.OnDecision(d)
	}

	s.emit.upsert(ctx, feed.Appeals, a.ID, a)
	if to == model.AppealApproved {
		if u, err := s.profiles.GetByID(ctx, a.UID); err == nil {
			s.emit.upsert(ctx, feed.Users, u.ID, u)
		}
	}
	s.emit.event(ctx, queue.Event{
		Type:       queue.TypeAppealDecided,
		ActorID:    actor.ID(),
		SubjectID:  a.ID,
		Attrs:      map[string]string{"status": string(a.Status)},
		OccurredAt: *a.ReviewedAt,
	})
	return a, nil
}

// Get returns an appeal to its owner or to an admin.
func (s *AppealService) Get(ctx context.Context, actor Actor, appealID string) (*model.HostAppeal, error) {
	if err := requireAuth(actor); err != nil {
		return nil, err
	}
	if appealID != actor.ID() && !actor.Is(model.RoleAdmin) {
		return nil, ErrPermissionDenied
	}
	a, err := s.appeals.Get(ctx, appealID)
	return a, translate(err)
}

// ListPending returns pending appeals oldest first. Admin only.
func (s *AppealService) ListPending(ctx context.Context, actor Actor) ([]model.HostAppeal, error) {
	if err := requireRole(actor, model.RoleAdmin); err != nil {
		return nil, err
	}
	out, err := s.appeals.ListPending(ctx)
	return out, translate(err)
}

// PendingQuery is the live query behind the admin appeal queue.
func (s *AppealService) PendingQuery(actor Actor) (feed.Query, error) {
	if err := requireRole(actor, model.RoleAdmin); err != nil {
		return feed.Query{}, err
	}
	return guarded(s.Guard, actor, feed.Query{
		Collection: feed.Appeals,
		Match: func(doc json.RawMessage) bool {
			var a model.HostAppeal
			return jsonInto(doc, &a) && a.Status == model.AppealPending
		},
		Snapshot: func(ctx context.Context) ([]feed.Doc, error) {
			list, err := s.appeals.ListPending(ctx)
			if err != nil {
				return nil, translate(err)
			}
			return feed.DocsOf(list, func(a model.HostAppeal) string { return a.ID })
		},
	}, model.RoleAdmin)
}
