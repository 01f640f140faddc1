// Package session holds the opaque bearer credential the daemon was given
// for one dashboard user. The backend issues and validates the token; this
// side only extracts the identity claims it needs for push addressing, so
// the token is parsed without signature verification.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("session: invalid token")
	ErrNoUser       = errors.New("session: token carries no user id")
)

// Claims are the token claims the daemon cares about.
type Claims struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Credential is an authenticated session: the raw token for outgoing
// requests plus the identity extracted from it.
type Credential struct {
	token  string
	claims *Claims
}

// FromToken parses the session token and extracts its claims. The signature
// is not checked here: the daemon is not the token's audience, it merely
// forwards the credential and needs the user id for the membership filter.
func FromToken(token string) (*Credential, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.UserID == 0 {
		return nil, ErrNoUser
	}
	return &Credential{token: token, claims: claims}, nil
}

// Token returns the raw bearer token.
func (c *Credential) Token() string {
	return c.token
}

// UserID returns the authenticated user's id.
func (c *Credential) UserID() int64 {
	return c.claims.UserID
}

// Name returns the user's display name, if the token carries one.
func (c *Credential) Name() string {
	return c.claims.Name
}

// Expired reports whether the token's expiry has passed. Tokens without an
// expiry claim never expire from this side's point of view.
func (c *Credential) Expired(now time.Time) bool {
	if c.claims.ExpiresAt == nil {
		return false
	}
	return now.After(c.claims.ExpiresAt.Time)
}
