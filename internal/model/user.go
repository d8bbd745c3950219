package model

import "time"

// Account is the identity record backing sign-in. It lives in the
// `accounts` table and is the only place custom claims are kept.
//
// Fields:
//  ID               – stable user identifier (uuid), shared with User.ID.
//  Email            – unique, lower-cased email address.
//  PasswordHash     – bcrypt hash.
//  Claims           – custom token claims, e.g. {"admin": true}.
//  EmailVerified    – set once the verification link was followed.
//  TokensValidAfter – tokens issued before this instant are rejected.
type Account struct {
	ID               string
	Email            string
	PasswordHash     string
	Claims           map[string]any
	EmailVerified    bool
	TokensValidAfter time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsAdmin reports whether the account carries the admin custom claim.
func (a *Account) IsAdmin() bool {
	if a == nil || a.Claims == nil {
		return false
	}
	v, ok := a.Claims["admin"].(bool)
	return ok && v
}

// User is the mutable profile document stored in `users`. Admin status is
// deliberately absent; it only exists as a token claim.
type User struct {
	ID         string     `json:"id"`
	Email      string     `json:"email"`
	IsHost     bool       `json:"isHost"`
	Verified   bool       `json:"verified"`
	VerifiedAt *time.Time `json:"verifiedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// RefreshToken models a row in `refresh_tokens`. Only the SHA-256 hash of
// the raw token is persisted.
type RefreshToken struct {
	ID        uint64
	AccountID string
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

// TokenPurpose distinguishes single-use tokens mailed to users.
type TokenPurpose string

const (
	PurposeVerifyEmail   TokenPurpose = "verify_email"
	PurposeResetPassword TokenPurpose = "reset_password"
)
