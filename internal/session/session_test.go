package session

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signTestToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}
	return token
}

func TestFromToken(t *testing.T) {
	exp := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	raw := signTestToken(t, jwt.MapClaims{
		"user_id": 42,
		"name":    "Site Admin",
		"exp":     exp.Unix(),
	})

	cred, err := FromToken(raw)
	if err != nil {
		t.Fatalf("FromToken() error = %v", err)
	}
	if cred.UserID() != 42 {
		t.Errorf("UserID() = %d, want 42", cred.UserID())
	}
	if cred.Name() != "Site Admin" {
		t.Errorf("Name() = %q, want Site Admin", cred.Name())
	}
	if cred.Token() != raw {
		t.Error("Token() does not round-trip the raw credential")
	}
	if cred.Expired(exp.Add(-time.Hour)) {
		t.Error("Expired() = true before expiry")
	}
	if !cred.Expired(exp.Add(time.Hour)) {
		t.Error("Expired() = false after expiry")
	}
}

func TestFromTokenWithoutExpiryNeverExpires(t *testing.T) {
	cred, err := FromToken(signTestToken(t, jwt.MapClaims{"user_id": 7}))
	if err != nil {
		t.Fatalf("FromToken() error = %v", err)
	}
	if cred.Expired(time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("token without exp claim reported expired")
	}
}

func TestFromTokenMissingUser(t *testing.T) {
	_, err := FromToken(signTestToken(t, jwt.MapClaims{"name": "nobody"}))
	if !errors.Is(err, ErrNoUser) {
		t.Errorf("error = %v, want ErrNoUser", err)
	}
}

func TestFromTokenGarbage(t *testing.T) {
	_, err := FromToken("not-a-jwt")
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("error = %v, want ErrInvalidToken", err)
	}
}
