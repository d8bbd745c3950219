package model

import "time"

// Role is the effective privilege level of a caller. It is derived per
// request and never stored.
type Role string

const (
	RoleGuest Role = "guest"
	RoleHost  Role = "host"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleGuest, RoleHost, RoleAdmin:
		return true
	}
	return false
}

// Session is the authenticated identity decoded from a bearer token.
// Admin mirrors the token's admin claim at issuance time.
type Session struct {
	UserID    string
	Email     string
	Admin     bool
	IssuedAt  time.Time // millisecond precision
	ExpiresAt time.Time
}
