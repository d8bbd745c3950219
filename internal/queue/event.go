// Package queue defines domain events exchanged over the message broker and
// the publisher and consumer that carry them.
package queue

import "time"

// QueueName is the durable queue every domain event is published to.
const QueueName = "marketplace.events"

// Event types.
const (
	TypeUserRegistered  = "user.registered"
	TypeUserDeleted     = "user.deleted"
	TypeAppealSubmitted = "appeal.submitted"
	TypeAppealDecided   = "appeal.decided"
	TypeHostChanged     = "host.changed"
	TypeAdminChanged    = "admin.changed"
	TypeListingCreated  = "listing.created"
	TypeListingDeleted  = "listing.deleted"
	TypeBookingCreated  = "booking.created"
)

// Event carries enough information for downstream consumers to log, notify
// or aggregate without querying the primary database.
type Event struct {
	Type       string            `json:"type"`
	ActorID    string            `json:"actor_id,omitempty"`
	SubjectID  string            `json:"subject_id"`
	Attrs      map[string]string `json:"attrs,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}
