package utils

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/staymarket/internal/model"
)

const secret = "test-secret"

var issued = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func TestAccessTokenRoundTrip(t *testing.T) {
	acc := &model.Account{
		ID:     "u1",
		Email:  "u1@example.com",
		Claims: map[string]any{"admin": true, "sub": "someone-else", "tier": "gold"},
	}
	tok, err := NewAccessToken(secret, acc, 15, issued)
	if err != nil {
		t.Fatal(err)
	}
	if !tok.Exp.Equal(issued.Add(15 * time.Minute)) {
		t.Fatalf("exp = %v", tok.Exp)
	}

	s, err := ParseAccessToken(secret, tok.Token, issued.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if s.UserID != "u1" || s.Email != "u1@example.com" || !s.Admin || !s.IssuedAt.Equal(issued) {
		t.Fatalf("session = %+v", s)
	}
}

func TestAccessTokenKeepsMilliseconds(t *testing.T) {
	at := issued.Add(250 * time.Millisecond)
	acc := &model.Account{ID: "u1", Claims: map[string]any{"iat_ms": 1}}
	tok, err := NewAccessToken(secret, acc, 15, at)
	if err != nil {
		t.Fatal(err)
	}
	s, err := ParseAccessToken(secret, tok.Token, at)
	if err != nil {
		t.Fatal(err)
	}
	if !s.IssuedAt.Equal(at) {
		t.Fatalf("issued at = %v, want %v", s.IssuedAt, at)
	}
	if !s.ExpiresAt.Equal(issued.Add(15 * time.Minute)) {
		t.Fatalf("expires at = %v", s.ExpiresAt)
	}
}

func TestParseAccessTokenRejects(t *testing.T) {
	acc := &model.Account{ID: "u1", Email: "u1@example.com"}
	tok, err := NewAccessToken(secret, acc, 15, issued)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := ParseAccessToken(secret, tok.Token, issued.Add(16*time.Minute)); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token: err = %v", err)
	}
	if _, err := ParseAccessToken("other-secret", tok.Token, issued); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong secret: err = %v", err)
	}
	if _, err := ParseAccessToken(secret, "not.a.jwt", issued); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage: err = %v", err)
	}

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
		"sub": "u1", "iat": issued.Unix(), "exp": issued.Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ParseAccessToken(secret, hs512, issued); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("HS512 token: err = %v", err)
	}
}

func TestAdminClaimMustBeBoolean(t *testing.T) {
	acc := &model.Account{ID: "u1", Claims: map[string]any{"admin": "true"}}
	tok, err := NewAccessToken(secret, acc, 15, issued)
	if err != nil {
		t.Fatal(err)
	}
	s, err := ParseAccessToken(secret, tok.Token, issued)
	if err != nil {
		t.Fatal(err)
	}
	if s.Admin {
		t.Fatal("string admin claim must not grant admin")
	}
}

func TestHashToken(t *testing.T) {
	if HashToken("a") == HashToken("b") {
		t.Fatal("different tokens share a hash")
	}
	if len(HashToken("a")) != 64 {
		t.Fatalf("hash length = %d", len(HashToken("a")))
	}
	r, err := NewRefreshToken(7)
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Raw) != 96 {
		t.Fatalf("raw length = %d", len(r.Raw))
	}
}

func TestPasswords(t *testing.T) {
	if err := CheckPassword("12345"); !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("short password: %v", err)
	}
	if err := CheckPassword("123456"); err != nil {
		t.Fatalf("six characters: %v", err)
	}
	h, err := HashPassword("hunter22", bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	if !VerifyPassword(h, "hunter22") || VerifyPassword(h, "hunter23") {
		t.Fatal("VerifyPassword mismatch")
	}
}
