package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/staymarket/internal/feed"
	"github.com/iliyamo/staymarket/internal/model"
	"github.com/iliyamo/staymarket/internal/queue"
)

const emitTimeout = 3 * time.Second

// emitter fans a committed write out to live subscriptions and the domain
// event broker. Both are best effort: the write already happened, so a
// failure here is logged and never reported to the caller.
type emitter struct {
	notifier Notifier
	events   EventPublisher
	log      logrus.FieldLogger
}

func (e emitter) upsert(ctx context.Context, collection, id string, doc any) {
	if e.notifier == nil {
		return
	}
	c, err := feed.Upsert(collection, id, doc)
	if err != nil {
		e.log.WithError(err).WithField("collection", collection).Warn("encode change failed")
		return
	}
	e.change(ctx, c)
}

func (e emitter) remove(ctx context.Context, collection, id string) {
	if e.notifier == nil {
		return
	}
	e.change(ctx, feed.Delete(collection, id))
}

func (e emitter) change(ctx context.Context, c feed.Change) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), emitTimeout)
	defer cancel()
	if err := e.notifier.Publish(ctx, c); err != nil {
		e.log.WithError(err).WithFields(logrus.Fields{
			"collection": c.Collection,
			"id":         c.ID,
		}).Warn("publish change failed")
	}
}

func (e emitter) event(ctx context.Context, ev queue.Event) {
	if e.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), emitTimeout)
	defer cancel()
	if err := e.events.Publish(ctx, ev); err != nil {
		e.log.WithError(err).WithField("event", ev.Type).Warn("publish event failed")
	}
}

func jsonInto(doc json.RawMessage, v any) bool {
	return json.Unmarshal(doc, v) == nil
}

// SessionGuard re-checks a session held open past the request that
// verified it.
type SessionGuard interface {
	Reauthorize(ctx context.Context, s *model.Session, roles ...model.Role) error
}

// guarded makes q re-check the opener's session for as long as it stays
// open. A query without a guard is refused.
func guarded(g SessionGuard, actor Actor, q feed.Query, roles ...model.Role) (feed.Query, error) {
	if g == nil {
		return feed.Query{}, fmt.Errorf("%w: live query has no session guard", ErrUnavailable)
	}
	sess := actor.Session
	q.Authorize = func(ctx context.Context) error {
		return g.Reauthorize(ctx, sess, roles...)
	}
	return q, nil
}
