// Package feed implements live query subscriptions. Writers publish a
// Change for every committed document write; a Subscription delivers an
// initial snapshot of a query followed by the deltas that affect it, in the
// order the bus delivered them, until the subscriber cancels it or the bus
// fails. A bus failure ends the subscription with a single error event;
// subscriptions are never silently retried.
package feed

import (
	"context"
	"encoding/json"
	"errors"
)

// Op is the kind of write a Change describes.
type Op string

const (
	OpUpsert Op = "upsert"
	OpDelete Op = "delete"
)

// Change is one committed write to a document.
type Change struct {
	Collection string          `json:"collection"`
	Op         Op              `json:"op"`
	ID         string          `json:"id"`
	Doc        json.RawMessage `json:"doc,omitempty"`
}

// ErrSlowConsumer terminates a subscription whose reader fell too far
// behind the bus.
var ErrSlowConsumer = errors.New("feed: subscriber too slow")

// ErrBusClosed is reported when the bus shuts down under a live
// subscription.
var ErrBusClosed = errors.New("feed: bus closed")

// Bus carries changes between writers and subscribers, one channel per
// collection. Implementations must deliver changes on a channel in publish
// order.
type Bus interface {
	Publish(ctx context.Context, c Change) error
	Subscribe(ctx context.Context, collection string) (BusSubscription, error)
}

// BusSubscription is a raw stream of changes for one collection. Changes is
// closed when the stream ends; Err then reports why (nil after Close).
type BusSubscription interface {
	Changes() <-chan Change
	Err() error
	Close() error
}

func channelName(collection string) string { return "feed:" + collection }
