package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExpirySafetyMargin is how much lifetime an access token must have left to
// be handed out without a refresh. Tokens closer to expiry than this are
// treated as already expired so a request never departs with a token that
// dies in flight.
const ExpirySafetyMargin = 60 * time.Second

// Claims holds the timing and identity fields the client reads from a token.
// Tokens are decoded without signature verification; the server is the only
// party that validates signatures.
type Claims struct {
	UserID    string
	Email     string
	TokenType string // "access" or "refresh"
	ExpiresAt time.Time
	IssuedAt  time.Time
}

type wireClaims struct {
	jwt.RegisteredClaims
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	TokenType string `json:"type"`
}

// DecodeClaims extracts claims from a JWT without verifying its signature.
func DecodeClaims(token string) (*Claims, error) {
	var wc wireClaims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &wc); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}

	claims := &Claims{
		UserID:    wc.UserID,
		Email:     wc.Email,
		TokenType: wc.TokenType,
	}
	if wc.ExpiresAt != nil {
		claims.ExpiresAt = wc.ExpiresAt.Time
	}
	if wc.IssuedAt != nil {
		claims.IssuedAt = wc.IssuedAt.Time
	}
	return claims, nil
}

// Usable reports whether the token's expiry is far enough away to use it
// for a new request.
func (c *Claims) Usable(now time.Time) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return c.ExpiresAt.Sub(now) > ExpirySafetyMargin
}

// Expired reports whether the token is past its expiry with no margin.
// Used for refresh tokens, where the only question is whether the server
// would still accept it at all.
func (c *Claims) Expired(now time.Time) bool {
	if c.ExpiresAt.IsZero() {
		return true
	}
	return !c.ExpiresAt.After(now)
}
