package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken      = errors.New("invalid_token")
	ErrTokenExpired      = errors.New("token_expired")
	ErrTokenTypeMismatch = errors.New("token_type_mismatch")
)

// Codec signs and verifies HS256 access/refresh token pairs. The two kinds
// are signed with distinct secrets, so a token can never pass the other
// kind's verifier; the typ claim is checked as well to cover secret
// misconfiguration.
type Codec struct {
	AccessSecret  []byte
	RefreshSecret []byte
	Issuer        string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// Pair is a freshly issued access/refresh token pair. ExpiresAt is the
// access token expiry.
type Pair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// NewCodec builds a Codec with the default lifetimes.
func NewCodec(accessSecret, refreshSecret []byte, issuer string) (*Codec, error) {
	if len(accessSecret) == 0 || len(refreshSecret) == 0 {
		return nil, errors.New("jwtx: access and refresh secrets are required")
	}
	if string(accessSecret) == string(refreshSecret) {
		return nil, errors.New("jwtx: access and refresh secrets must differ")
	}

	return &Codec{
		AccessSecret:  accessSecret,
		RefreshSecret: refreshSecret,
		Issuer:        issuer,
		AccessTTL:     DefaultAccessTokenTTL,
		RefreshTTL:    DefaultRefreshTokenTTL,
	}, nil
}

// IssuePair signs a new access/refresh pair carrying the same identity
// claims at the given issuance time.
func (c *Codec) IssuePair(userID, email, role string, now time.Time) (Pair, error) {
	access, err := c.sign(newClaims(userID, email, role, TokenTypeAccess, c.Issuer, c.accessTTL(), now), c.AccessSecret)
	if err != nil {
		return Pair{}, fmt.Errorf("sign access token: %w", err)
	}

	refresh, err := c.sign(newClaims(userID, email, role, TokenTypeRefresh, c.Issuer, c.refreshTTL(), now), c.RefreshSecret)
	if err != nil {
		return Pair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return Pair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    now.Add(c.accessTTL()),
	}, nil
}

// VerifyAccess validates an access token's signature, expiry, and typ claim.
func (c *Codec) VerifyAccess(raw string) (Claims, error) {
	return c.verify(raw, c.AccessSecret, TokenTypeAccess)
}

// VerifyRefresh validates a refresh token's signature, expiry, and typ claim.
func (c *Codec) VerifyRefresh(raw string) (Claims, error) {
	return c.verify(raw, c.RefreshSecret, TokenTypeRefresh)
}

// IsExpired decodes the token without verifying its signature and compares
// the exp claim against now. It exists for cheap client-side polling; never
// use it to authorize anything. Unparseable tokens report as expired.
func (c *Codec) IsExpired(raw string, now time.Time) bool {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return true
	}
	if claims.ExpiresAt == nil {
		return true
	}
	return !now.Before(claims.ExpiresAt.Time)
}

func (c *Codec) sign(claims Claims, secret []byte) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (c *Codec) verify(raw string, secret []byte, want TokenType) (Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if c.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.Issuer))
	}

	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	if claims.Type != want {
		return Claims{}, ErrTokenTypeMismatch
	}

	return *claims, nil
}

func (c *Codec) accessTTL() time.Duration {
	if c.AccessTTL <= 0 {
		return DefaultAccessTokenTTL
	}
	return c.AccessTTL
}

func (c *Codec) refreshTTL() time.Duration {
	if c.RefreshTTL <= 0 {
		return DefaultRefreshTokenTTL
	}
	return c.RefreshTTL
}
