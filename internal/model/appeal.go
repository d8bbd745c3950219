package model

import (
	"fmt"
	"time"
)

// AppealStatus is the state of a host appeal. The zero value means no
// appeal exists yet.
type AppealStatus string

const (
	AppealNone     AppealStatus = ""
	AppealPending  AppealStatus = "pending"
	AppealApproved AppealStatus = "approved"
	AppealDenied   AppealStatus = "denied"
)

// CanTransition reports whether an appeal in state s may move to state to.
// Approved is terminal; denied appeals may be resubmitted.
func (s AppealStatus) CanTransition(to AppealStatus) bool {
	switch s {
	case AppealNone, AppealDenied:
		return to == AppealPending
	case AppealPending:
		return to == AppealApproved || to == AppealDenied
	}
	return false
}

// TransitionError is returned when a requested appeal transition is not
// allowed from the current state.
type TransitionError struct {
	From AppealStatus
	To   AppealStatus
}

func (e *TransitionError) Error() string {
	from := string(e.From)
	if from == "" {
		from = "none"
	}
	return fmt.Sprintf("appeal cannot move from %s to %s", from, e.To)
}

// Decision is an admin verdict on a pending appeal.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionDeny    Decision = "deny"
)

// Status returns the appeal status a decision leads to, or false when the
// decision is unknown.
func (d Decision) Status() (AppealStatus, bool) {
	switch d {
	case DecisionApprove:
		return AppealApproved, true
	case DecisionDeny:
		return AppealDenied, true
	}
	return AppealNone, false
}

// HostAppeal is a user's request to become a host. ID always equals UID so
// each user has at most one appeal.
type HostAppeal struct {
	ID          string       `json:"id"`
	UID         string       `json:"uid"`
	Email       string       `json:"email"`
	DisplayName string       `json:"displayName"`
	Message     string       `json:"message"`
	Status      AppealStatus `json:"status"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
	ReviewedAt  *time.Time   `json:"reviewedAt,omitempty"`
	ReviewedBy  *string      `json:"reviewedBy,omitempty"`
}
