package service

import (
	"sync"
	"time"

	"github.com/castellan/authd/internal/authd/domain"
)

// SessionContext is the in-memory view of one live session. Token refreshes
// mutate it in place under the lock, so a concurrently running monitor or
// handler always sees the latest pair.
type SessionContext struct {
	mu sync.RWMutex

	sessionID    string
	userID       string
	email        string
	role         domain.Role
	accessToken  string
	refreshToken string
	expiresAt    time.Time
	meta         domain.ClientMeta
}

func newSessionContext(sess domain.Session, user domain.User) *SessionContext {
	return &SessionContext{
		sessionID:    sess.ID,
		userID:       user.ID,
		email:        user.Email,
		role:         user.Role,
		accessToken:  sess.AccessToken,
		refreshToken: sess.RefreshToken,
		expiresAt:    sess.ExpiresAt,
		meta:         domain.ClientMeta{IPAddress: sess.IPAddress, UserAgent: sess.UserAgent},
	}
}

func (sc *SessionContext) SessionID() string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.sessionID
}

func (sc *SessionContext) UserID() string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.userID
}

func (sc *SessionContext) Email() string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.email
}

func (sc *SessionContext) Role() domain.Role {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.role
}

func (sc *SessionContext) AccessToken() string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.accessToken
}

func (sc *SessionContext) RefreshToken() string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.refreshToken
}

func (sc *SessionContext) ExpiresAt() time.Time {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.expiresAt
}

func (sc *SessionContext) Meta() domain.ClientMeta {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.meta
}

// update swaps in the rotated session row.
func (sc *SessionContext) update(sess domain.Session) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.sessionID = sess.ID
	sc.accessToken = sess.AccessToken
	sc.refreshToken = sess.RefreshToken
	sc.expiresAt = sess.ExpiresAt
}
