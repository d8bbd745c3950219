package service

import "github.com/iliyamo/staymarket/internal/model"

// Actor is the caller of an operation: the verified session, if any, and
// the role resolved for it on this request.
type Actor struct {
	Session *model.Session
	Role    model.Role
}

// Guest is the unauthenticated caller.
var Guest = Actor{Role: model.RoleGuest}

// ID returns the caller's user id, or "" for guests.
func (a Actor) ID() string {
	if a.Session == nil {
		return ""
	}
	return a.Session.UserID
}

// Authenticated reports whether a verified session is present.
func (a Actor) Authenticated() bool { return a.Session != nil && a.Session.UserID != "" }

// Is reports whether the caller holds one of roles.
func (a Actor) Is(roles ...model.Role) bool {
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}

func requireAuth(a Actor) error {
	if !a.Authenticated() {
		return ErrAuthenticationRequired
	}
	return nil
}

// requireRole fails with ErrAuthenticationRequired for guests and
// ErrPermissionDenied for authenticated callers outside roles.
func requireRole(a Actor, roles ...model.Role) error {
	if err := requireAuth(a); err != nil {
		return err
	}
	if !a.Is(roles...) {
		return ErrPermissionDenied
	}
	return nil
}
