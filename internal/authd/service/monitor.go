package service

import (
	"context"
	"sync"
	"time"

	"github.com/castellan/authd/pkg/jwtx"
)

// DefaultMonitorInterval is how often a session monitor re-checks token
// expiry.
const DefaultMonitorInterval = time.Minute

// SessionMonitor keeps one session alive. When the access token lapses it
// rotates the pair through Refresh; when rotation is impossible (no refresh
// token, or the refresh token itself is dead) it fires OnExpire and exits.
type SessionMonitor struct {
	Session  *SessionContext
	Codec    *jwtx.Codec
	Interval time.Duration
	Clock    Clock

	// Refresh rotates the session's tokens in place. Nil disables
	// rotation, making every expiry terminal.
	Refresh func(ctx context.Context, sc *SessionContext) error

	// OnExpire runs on the monitor goroutine when the session cannot be
	// kept alive. It must not call Stop on this monitor; the loop exits
	// on its own after firing.
	OnExpire func(sc *SessionContext)

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func (m *SessionMonitor) interval() time.Duration {
	if m.Interval <= 0 {
		return DefaultMonitorInterval
	}
	return m.Interval
}

// Start launches the watch loop.
func (m *SessionMonitor) Start() {
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	go m.run()
}

// Stop halts the loop and waits for it to exit. Safe to call more than
// once, and safe to call after the monitor expired on its own.
func (m *SessionMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	<-m.doneCh
}

func (m *SessionMonitor) run() {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.interval())
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			if m.tick() {
				return
			}
		}
	}
}

// tick returns true when the session is terminal and the loop must exit.
func (m *SessionMonitor) tick() bool {
	now := clockOrSystem(m.Clock).Now()
	if !m.Codec.IsExpired(m.Session.AccessToken(), now) {
		return false
	}

	if m.Refresh != nil && m.Session.RefreshToken() != "" {
		if err := m.Refresh(context.Background(), m.Session); err == nil {
			return false
		}
		// A manual refresh may have rotated the pair under us; if the
		// context now holds a live token the session survives.
		if !m.Codec.IsExpired(m.Session.AccessToken(), clockOrSystem(m.Clock).Now()) {
			return false
		}
	}

	if m.OnExpire != nil {
		m.OnExpire(m.Session)
	}
	return true
}
