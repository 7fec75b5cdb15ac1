// Package auth issues and verifies the HS256 tokens that identify a project owner.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	perrors "github.com/p-blackswan/project-builder/internal/errors"
)

// CookieName is the cookie that may carry the token instead of the Authorization header.
const CookieName = "token"

const issuer = "project-builder"

// Claims carries the owner id. Older tokens put it in "id" rather than "sub".
type Claims struct {
	UserID string `json:"id,omitempty"`
	jwt.RegisteredClaims
}

// Owner returns the owner identity carried by the claims.
func (c *Claims) Owner() string {
	if c.Subject != "" {
		return c.Subject
	}
	return c.UserID
}

// Tokens signs and verifies owner tokens with a shared secret.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens creates a token service.
func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue returns a signed token for owner.
func (t *Tokens) Issue(owner string) (string, error) {
	if owner == "" {
		return "", perrors.Validation("owner is required")
	}
	now := t.now()
	claims := Claims{
		UserID: owner,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   owner,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("signing JWT: %w", err)
	}
	return signed, nil
}

// Verify parses a token and returns its owner. Every failure wraps ErrUnauthenticated.
func (t *Tokens) Verify(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("%w: missing token", perrors.ErrUnauthenticated)
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(tok *jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now))
	if err != nil {
		reason := "invalid token"
		if errors.Is(err, jwt.ErrTokenExpired) {
			reason = "token expired"
		}
		return "", fmt.Errorf("%w: %s: %v", perrors.ErrUnauthenticated, reason, err)
	}

	owner := claims.Owner()
	if owner == "" {
		return "", fmt.Errorf("%w: token carries no owner", perrors.ErrUnauthenticated)
	}
	return owner, nil
}
