package service

import (
	"context"
	"sync"
	"time"

	"github.com/castellan/authd/internal/authd/store"
	"github.com/castellan/authd/pkg/slogx"
)

const (
	// DefaultHousekeepingInterval is how often expired rows are swept.
	DefaultHousekeepingInterval = 15 * time.Minute

	// DefaultAttemptRetention keeps login attempts long enough for any
	// rate-limit window plus audit headroom.
	DefaultAttemptRetention = 24 * time.Hour
)

// HousekeepingService periodically deletes rows nothing can use anymore:
// spent or expired OTP codes, sessions past their refresh window, and
// login attempts older than every rate-limit window.
type HousekeepingService struct {
	Store            store.Store
	Interval         time.Duration
	AttemptRetention time.Duration
	Clock            Clock

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func (s *HousekeepingService) interval() time.Duration {
	if s.Interval <= 0 {
		return DefaultHousekeepingInterval
	}
	return s.Interval
}

func (s *HousekeepingService) retention() time.Duration {
	if s.AttemptRetention <= 0 {
		return DefaultAttemptRetention
	}
	return s.AttemptRetention
}

// Start launches the sweep loop.
func (s *HousekeepingService) Start(ctx context.Context) {
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	go func() {
		defer close(s.doneCh)

		ticker := time.NewTicker(s.interval())
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.sweep(ctx)
			}
		}
	}()
}

// Stop halts the loop and waits for any in-flight sweep to finish.
func (s *HousekeepingService) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh
}

func (s *HousekeepingService) sweep(ctx context.Context) {
	now := clockOrSystem(s.Clock).Now()
	log := slogx.FromContext(ctx)

	if err := s.Store.OtpCodes().DeleteExpiredOtpCodes(ctx, now); err != nil {
		log.Warn("housekeeping: otp sweep failed", "error", err)
	}
	if err := s.Store.Sessions().DeleteExpiredSessions(ctx, now); err != nil {
		log.Warn("housekeeping: session sweep failed", "error", err)
	}
	if err := s.Store.LoginAttempts().DeleteAttemptsBefore(ctx, now.Add(-s.retention())); err != nil {
		log.Warn("housekeeping: attempt sweep failed", "error", err)
	}
}
