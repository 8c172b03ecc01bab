// Package identity tracks who is signed in. A Provider reports identity
// changes; Backend is the Provider that signs in against the platform's own
// auth endpoints.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Kind is the account type.
type Kind string

const (
	KindBrand   Kind = "brand"
	KindCreator Kind = "creator"
)

// Identity is a signed-in user.
type Identity struct {
	UID         string
	Email       string
	DisplayName string
	Kind        Kind
	Token       string
	ExpiresAt   time.Time
}

// Expired reports whether the identity's token has expired at now.
func (id *Identity) Expired(now time.Time) bool {
	return id != nil && !id.ExpiresAt.IsZero() && !now.Before(id.ExpiresAt)
}

// Provider reports identity changes.
type Provider interface {
	// OnIdentityChanged calls fn with the current identity right away, nil
	// when signed out, and again on every change.
	OnIdentityChanged(fn func(*Identity)) (unsubscribe func())

	SignOut(ctx context.Context) error
}

// Claims are the JWT claims issued by the platform backend.
type Claims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Kind  Kind   `json:"user_type,omitempty"`
	jwt.RegisteredClaims
}

var (
	// ErrTokenExpired is returned when restoring an expired token.
	ErrTokenExpired = errors.New("identity: token expired")

	// ErrMalformedToken is returned for tokens that are not JWTs.
	ErrMalformedToken = errors.New("identity: malformed token")
)

// FromToken builds an identity from a token's claims without verifying the
// signature. The backend still verifies every request; this only lets a
// stored session resume without a round trip.
func FromToken(token string, now time.Time) (*Identity, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	id := &Identity{
		UID:         claims.Subject,
		Email:       claims.Email,
		DisplayName: claims.Name,
		Kind:        claims.Kind,
		Token:       token,
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	if id.Expired(now) {
		return nil, ErrTokenExpired
	}
	return id, nil
}
