package feed

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// EventType tags a frame delivered to a subscriber.
type EventType string

const (
	EventSnapshot EventType = "snapshot"
	EventAdded    EventType = "added"
	EventModified EventType = "modified"
	EventRemoved  EventType = "removed"
	EventError    EventType = "error"
)

// Doc is a document as seen by a subscriber.
type Doc struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"doc"`
}

// Event is one frame of a subscription. Snapshot events carry Docs; deltas
// carry ID and, except for removals, Doc. An error event is always last.
type Event struct {
	Type  EventType       `json:"type"`
	ID    string          `json:"id,omitempty"`
	Doc   json.RawMessage `json:"doc,omitempty"`
	Docs  []Doc           `json:"docs,omitempty"`
	Error string          `json:"error,omitempty"`
}

// Query describes a live query over one collection.
type Query struct {
	Collection string
	// Match reports whether a document belongs to the query. Nil matches all.
	Match func(doc json.RawMessage) bool
	// Snapshot loads the current result set.
	Snapshot func(ctx context.Context) ([]Doc, error)
	// Authorize re-checks the opener before every delta and periodically
	// while idle. A non-nil error ends the subscription with an error event.
	Authorize func(ctx context.Context) error
}

// DefaultReauthInterval is how often an idle subscription re-runs
// Query.Authorize.
const DefaultReauthInterval = 30 * time.Second

// Hub opens subscriptions against a Bus.
type Hub struct {
	bus Bus
	log logrus.FieldLogger
	// OnOpen and OnClose are optional hooks, used for metrics.
	OnOpen  func(collection string)
	OnClose func(collection string)
	// ReauthInterval overrides DefaultReauthInterval.
	ReauthInterval time.Duration
}

func NewHub(bus Bus, log logrus.FieldLogger) *Hub {
	return &Hub{bus: bus, log: log}
}

// Publish forwards a change to the bus.
func (h *Hub) Publish(ctx context.Context, c Change) error {
	return h.bus.Publish(ctx, c)
}

// Subscription is a live query stream. The opener owns it and must call
// Cancel when done.
type Subscription struct {
	events chan Event
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

// Events returns the event stream. It is closed after Cancel or after a
// terminal error event.
func (s *Subscription) Events() <-chan Event { return s.events }

// Cancel stops the subscription and waits for its goroutine to exit. It is
// safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
	<-s.done
}

// Subscribe opens the bus stream first and only then loads the snapshot, so
// a write committed between the two is delivered as a delta instead of
// being lost. A failure to open the stream or load the snapshot is returned
// directly.
func (h *Hub) Subscribe(ctx context.Context, q Query) (*Subscription, error) {
	stream, err := h.bus.Subscribe(ctx, q.Collection)
	if err != nil {
		return nil, err
	}
	docs, err := q.Snapshot(ctx)
	if err != nil {
		_ = stream.Close()
		return nil, err
	}
	if docs == nil {
		docs = []Doc{}
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		events: make(chan Event, 16),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	if h.OnOpen != nil {
		h.OnOpen(q.Collection)
	}
	go h.run(ctx, q, stream, docs, sub)
	return sub, nil
}

func (h *Hub) run(ctx context.Context, q Query, stream BusSubscription, docs []Doc, sub *Subscription) {
	defer func() {
		_ = stream.Close()
		close(sub.events)
		if h.OnClose != nil {
			h.OnClose(q.Collection)
		}
		close(sub.done)
	}()

	present := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		present[d.ID] = struct{}{}
	}
	if !send(ctx, sub.events, Event{Type: EventSnapshot, Docs: docs}) {
		return
	}

	var tick <-chan time.Time
	if q.Authorize != nil {
		every := h.ReauthInterval
		if every <= 0 {
			every = DefaultReauthInterval
		}
		t := time.NewTicker(every)
		defer t.Stop()
		tick = t.C
	}
	authorized := func() bool {
		if q.Authorize == nil {
			return true
		}
		err := q.Authorize(ctx)
		if err == nil {
			return true
		}
		if ctx.Err() == nil {
			h.log.WithError(err).WithField("collection", q.Collection).Info("live query no longer authorized")
			send(ctx, sub.events, Event{Type: EventError, Error: err.Error()})
		}
		return false
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			if !authorized() {
				return
			}
		case c, ok := <-stream.Changes():
			if !ok {
				err := stream.Err()
				if err == nil {
					err = ErrBusClosed
				}
				h.log.WithError(err).WithField("collection", q.Collection).Warn("live query terminated")
				send(ctx, sub.events, Event{Type: EventError, Error: err.Error()})
				return
			}
			ev, emit := delta(q, present, c)
			if !emit {
				continue
			}
			if !authorized() || !send(ctx, sub.events, ev) {
				return
			}
		}
	}
}

// delta folds c into the tracked result set and returns the event it
// produces for this query, if any.
func delta(q Query, present map[string]struct{}, c Change) (Event, bool) {
	_, had := present[c.ID]
	matches := c.Op == OpUpsert && (q.Match == nil || q.Match(c.Doc))
	switch {
	case matches && had:
		return Event{Type: EventModified, ID: c.ID, Doc: c.Doc}, true
	case matches:
		present[c.ID] = struct{}{}
		return Event{Type: EventAdded, ID: c.ID, Doc: c.Doc}, true
	case had:
		delete(present, c.ID)
		return Event{Type: EventRemoved, ID: c.ID}, true
	}
	return Event{}, false
}

func send(ctx context.Context, ch chan<- Event, ev Event) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// DocsOf converts a result set into snapshot documents.
func DocsOf[T any](items []T, id func(T) string) ([]Doc, error) {
	docs := make([]Doc, 0, len(items))
	for _, it := range items {
		raw, err := json.Marshal(it)
		if err != nil {
			return nil, err
		}
		docs = append(docs, Doc{ID: id(it), Data: raw})
	}
	return docs, nil
}

// Upsert builds an upsert change for v.
func Upsert(collection, id string, v any) (Change, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Change{}, err
	}
	return Change{Collection: collection, Op: OpUpsert, ID: id, Doc: raw}, nil
}

// Delete builds a delete change.
func Delete(collection, id string) Change {
	return Change{Collection: collection, Op: OpDelete, ID: id}
}

// Collection names.
const (
	Listings = "listings"
	Bookings = "bookings"
	Appeals  = "host_appeals"
	Users    = "users"
)
