package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the subset of the access token the client cares about.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
}

// InspectToken decodes token without verifying its signature; the server
// remains the authority. A token whose exp is at or before now yields
// ErrTokenExpired alongside the decoded claims. Tokens without exp never
// expire client-side.
func InspectToken(token string, now time.Time) (Claims, error) {
	var rc jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &rc); err != nil {
		return Claims{}, fmt.Errorf("decoding token: %w", err)
	}

	c := Claims{Subject: rc.Subject}
	if rc.ExpiresAt != nil {
		c.ExpiresAt = rc.ExpiresAt.Time
		if !now.Before(c.ExpiresAt) {
			return c, ErrTokenExpired
		}
	}
	return c, nil
}
