package jwtx

import (
	"time"

	"github.com/castellan/authd/pkg/idx"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType discriminates access tokens from refresh tokens. The verifier
// for one kind must never accept the other, even with a valid signature.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Default token lifetimes.
const (
	DefaultAccessTokenTTL  = 30 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// Claims is the signed payload carried by both token kinds:
// {jti, sub, email, role, typ, iat, exp}.
type Claims struct {
	Email string    `json:"email"`
	Role  string    `json:"role"`
	Type  TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// UserID returns the subject claim.
func (c Claims) UserID() string { return c.Subject }

func newClaims(userID, email, role string, typ TokenType, issuer string, ttl time.Duration, now time.Time) Claims {
	return Claims{
		Email: email,
		Role:  role,
		Type:  typ,
		RegisteredClaims: jwt.RegisteredClaims{
			// A unique jti guarantees two pairs minted in the same second
			// never collide.
			ID:        idx.New().String(),
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}
