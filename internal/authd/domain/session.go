package domain

import "time"

// ClientMeta is the client context attached to sessions, attempts, and
// audit events.
type ClientMeta struct {
	IPAddress string
	UserAgent string
}

// Session is one issued token pair. A session row is superseded (deleted
// and recreated) on every refresh; at most one valid row exists per live
// token pair.
type Session struct {
	ID           string
	UserID       string
	AccessToken  string
	RefreshToken string // empty when no refresh token was issued
	ExpiresAt    time.Time
	IPAddress    string
	UserAgent    string
	CreatedAt    time.Time
}
