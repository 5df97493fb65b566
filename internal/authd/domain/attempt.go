package domain

import "time"

// LoginAttempt is an append-only record of one credential check, used only
// for rate-limit windowing.
type LoginAttempt struct {
	ID        string
	Email     string // normalized
	IPAddress string
	Succeeded bool
	CreatedAt time.Time
}
