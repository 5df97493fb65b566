package service

import (
	"context"
	"errors"
	"time"

	"github.com/castellan/authd/internal/authd/domain"
	"github.com/castellan/authd/internal/authd/store"
	"github.com/castellan/authd/pkg/idx"
)

// Rate limit defaults: 5 failures per email within a sliding hour.
const (
	DefaultRateLimitWindow    = time.Hour
	DefaultRateLimitThreshold = 5
)

// RateLimiter throttles credential checks per email over a sliding window
// of recorded failures. Successful logins never count against the
// threshold, and being blocked does not extend the block: the reset time
// derives from the oldest counted failure, not from the latest attempt.
type RateLimiter struct {
	Store     store.Store
	Window    time.Duration
	Threshold int
	Clock     Clock
}

// RateLimitStatus is the current window state for one email.
type RateLimitStatus struct {
	Blocked   bool
	Remaining int
	ResetAt   time.Time
}

func (l *RateLimiter) window() time.Duration {
	if l.Window <= 0 {
		return DefaultRateLimitWindow
	}
	return l.Window
}

func (l *RateLimiter) threshold() int {
	if l.Threshold <= 0 {
		return DefaultRateLimitThreshold
	}
	return l.Threshold
}

// Check reports whether the email may attempt a login right now.
func (l *RateLimiter) Check(ctx context.Context, email string) (RateLimitStatus, error) {
	now := clockOrSystem(l.Clock).Now()
	since := now.Add(-l.window())

	failures, err := l.Store.LoginAttempts().CountFailedAttemptsSince(ctx, email, since)
	if err != nil {
		return RateLimitStatus{}, err
	}

	status := RateLimitStatus{Remaining: max(l.threshold()-failures, 0)}
	if failures < l.threshold() {
		return status, nil
	}

	oldest, err := l.Store.LoginAttempts().OldestFailedAttemptSince(ctx, email, since)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Failures aged out between the two queries.
			return status, nil
		}
		return RateLimitStatus{}, err
	}

	status.Blocked = true
	status.ResetAt = oldest.Add(l.window())
	return status, nil
}

// Record appends one attempt to the window.
func (l *RateLimiter) Record(ctx context.Context, email string, succeeded bool, meta domain.ClientMeta) error {
	return l.Store.LoginAttempts().RecordAttempt(ctx, domain.LoginAttempt{
		ID:        idx.New().String(),
		Email:     email,
		IPAddress: meta.IPAddress,
		Succeeded: succeeded,
		CreatedAt: clockOrSystem(l.Clock).Now(),
	})
}
