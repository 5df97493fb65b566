package service

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials covers unknown email, wrong password, and
	// disabled accounts alike so responses can't be used to probe which
	// accounts exist.
	ErrInvalidCredentials = errors.New("invalid_credentials")

	// ErrInvalidMFACode is a wrong second-factor code for a live challenge.
	ErrInvalidMFACode = errors.New("invalid_mfa_code")

	// ErrExpiredOrUsedCode is an emailed code that is past its lifetime or
	// was already consumed.
	ErrExpiredOrUsedCode = errors.New("expired_or_used_code")

	// ErrUnknownChallenge is a submit against a challenge id that was never
	// issued, already completed, or timed out.
	ErrUnknownChallenge = errors.New("unknown_challenge")

	// ErrEmailTaken is a registration attempt for an existing account.
	ErrEmailTaken = errors.New("email_taken")

	// ErrNotificationFailed wraps delivery failures from the code sender.
	ErrNotificationFailed = errors.New("notification_failed")

	// ErrSessionNotFound is a refresh or restore against a token whose
	// session row no longer exists.
	ErrSessionNotFound = errors.New("session_not_found")
)

// RateLimitedError reports that an email hit the failed-login threshold.
// ResetAt is when the oldest counted failure leaves the sliding window.
type RateLimitedError struct {
	ResetAt time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate_limited until %s", e.ResetAt.UTC().Format(time.RFC3339))
}
