package utils // package utils provides helper functions for token creation and hashing

import (
	"crypto/rand"   // secure random number generation
	"crypto/sha256" // SHA-256 hashing for refresh and mailed tokens
	"encoding/hex"  // hex encoding and decoding functions
	"errors"
	"fmt"
	"time" // time utilities for generating expirations

	"github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens

	"github.com/iliyamo/staymarket/internal/model"
)

// AccessToken represents a signed JWT access token along with its expiry.
// Access tokens are short-lived and sent in the Authorization header when
// calling protected endpoints.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// RefreshToken represents a long-lived token used to obtain new access tokens.
// In the database only a SHA-256 hash of the raw string is stored.
type RefreshToken struct {
	Raw string    // raw token string returned to the client
	Exp time.Time // UTC expiration time
}

// reservedClaims cannot be overridden by custom claims.
var reservedClaims = map[string]bool{
	"sub": true, "email": true, "exp": true, "iat": true, "iat_ms": true, "nbf": true, "iss": true, "aud": true, "jti": true,
}

// issuedSkew tolerates an iat that leads the verifier's clock. Tokens
// issued right after a revocation are stamped one millisecond past the
// watermark, which can cross a second boundary.
const issuedSkew = time.Second

// ErrInvalidToken is returned for tokens that fail signature, expiry or
// shape checks.
var ErrInvalidToken = errors.New("invalid token")

// NewAccessToken builds and signs an HS256 JWT for an account. Custom claims
// (such as admin) are copied to the top level of the token, so a claim
// change only becomes visible in tokens issued after it.
func NewAccessToken(secret string, acc *model.Account, ttlMin int, now time.Time) (AccessToken, error) {
	now = now.UTC()
	exp := now.Add(time.Duration(ttlMin) * time.Minute)
	claims := jwt.MapClaims{}
	for k, v := range acc.Claims {
		if !reservedClaims[k] {
			claims[k] = v
		}
	}
	claims["sub"] = acc.ID
	claims["email"] = acc.Email
	claims["exp"] = exp.Unix()
	claims["iat"] = now.Unix()
	claims["iat_ms"] = now.UnixMilli()

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken verifies an HS256 token against the clock reading now
// and decodes it into a session. Only a boolean true admin claim grants
// admin.
func ParseAccessToken(secret, raw string, now time.Time) (*model.Session, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		// Reject tokens signed with anything but HMAC.
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(issuedSkew),
		jwt.WithTimeFunc(func() time.Time { return now }))
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, ErrInvalidToken
	}
	iat, err := claims.GetIssuedAt()
	if err != nil || iat == nil {
		return nil, ErrInvalidToken
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, ErrInvalidToken
	}
	s := &model.Session{UserID: sub, IssuedAt: iat.Time.UTC(), ExpiresAt: exp.Time.UTC()}
	// iat_ms refines iat; a value outside iat's second is ignored.
	if ms, ok := claims["iat_ms"].(float64); ok {
		precise := time.UnixMilli(int64(ms)).UTC()
		if precise.Unix() == iat.Unix() {
			s.IssuedAt = precise
		}
	}
	if email, ok := claims["email"].(string); ok {
		s.Email = email
	}
	if admin, ok := claims["admin"].(bool); ok {
		s.Admin = admin
	}
	return s, nil
}

// NewRefreshToken returns a cryptographically secure random token (raw) and
// its expiration time.
func NewRefreshToken(ttlDays int) (RefreshToken, error) {
	raw, err := RandomHex(48) // 48 bytes -> 96 hex chars
	if err != nil {
		return RefreshToken{}, err
	}
	return RefreshToken{
		Raw: raw,
		Exp: time.Now().UTC().Add(time.Duration(ttlDays) * 24 * time.Hour),
	}, nil
}

// HashToken returns the SHA-256 hash of a raw refresh or mailed token as a
// hex string. Storing only the hash keeps leaked rows from being replayed.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// RandomHex returns a hex-encoded string generated from n bytes of
// cryptographically secure random data.
func RandomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
