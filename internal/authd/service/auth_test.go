package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/castellan/authd/internal/authd/domain"
	"github.com/castellan/authd/internal/authd/store"

	"github.com/stretchr/testify/require"
)

func TestLoginWithoutMFA(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	u := e.createUser(t, "alice@example.com", "correct horse battery", domain.MFAKindNone, nil)

	res, err := e.auth.Login(ctx, "Alice@Example.com", "correct horse battery", testMeta)
	require.NoError(t, err)
	require.False(t, res.MFARequired)
	require.NotNil(t, res.Session)
	require.Equal(t, u.ID, res.Session.UserID())

	claims, err := e.codec.VerifyAccess(res.Session.AccessToken())
	require.NoError(t, err)
	require.Equal(t, u.ID, claims.UserID())
	require.Equal(t, "alice@example.com", claims.Email)

	_, err = e.codec.VerifyRefresh(res.Session.RefreshToken())
	require.NoError(t, err)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.createUser(t, "alice@example.com", "right-password", domain.MFAKindNone, nil)

	inactive := e.createUser(t, "carol@example.com", "right-password", domain.MFAKindNone, nil)
	require.NoError(t, e.store.Users().SetActive(ctx, inactive.ID, false))

	cases := map[string]struct {
		email, password string
	}{
		"wrong password":   {"alice@example.com", "wrong-password"},
		"unknown email":    {"nobody@example.com", "right-password"},
		"disabled account": {"carol@example.com", "right-password"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			res, err := e.auth.Login(ctx, tc.email, tc.password, testMeta)
			require.ErrorIs(t, err, ErrInvalidCredentials)
			require.NotNil(t, res)
		})
	}
}

func TestLoginReportsRemainingAttempts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.createUser(t, "alice@example.com", "right-password", domain.MFAKindNone, nil)

	res, err := e.auth.Login(ctx, "alice@example.com", "nope", testMeta)
	require.ErrorIs(t, err, ErrInvalidCredentials)
	require.Equal(t, DefaultRateLimitThreshold-1, res.RemainingAttempts)

	res, err = e.auth.Login(ctx, "alice@example.com", "nope", testMeta)
	require.ErrorIs(t, err, ErrInvalidCredentials)
	require.Equal(t, DefaultRateLimitThreshold-2, res.RemainingAttempts)
}

func TestLoginRateLimited(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.createUser(t, "alice@example.com", "right-password", domain.MFAKindNone, nil)

	for range DefaultRateLimitThreshold {
		_, err := e.auth.Login(ctx, "alice@example.com", "nope", testMeta)
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	// Even the correct password is refused while blocked, and the refusal
	// is not recorded as another failure.
	_, err := e.auth.Login(ctx, "alice@example.com", "right-password", testMeta)
	var limited *RateLimitedError
	require.ErrorAs(t, err, &limited)
	require.WithinDuration(t, e.clock.Now().Add(DefaultRateLimitWindow), limited.ResetAt, time.Second)

	n, err := e.store.LoginAttempts().CountFailedAttemptsSince(ctx, "alice@example.com", time.Time{})
	require.NoError(t, err)
	require.Equal(t, DefaultRateLimitThreshold, n)

	// After the window passes the correct password works again.
	e.clock.Advance(DefaultRateLimitWindow + time.Second)
	res, err := e.auth.Login(ctx, "alice@example.com", "right-password", testMeta)
	require.NoError(t, err)
	require.NotNil(t, res.Session)
}

func TestRefreshRotatesSession(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.createUser(t, "alice@example.com", "pw-pw-pw-pw", domain.MFAKindNone, nil)

	res, err := e.auth.Login(ctx, "alice@example.com", "pw-pw-pw-pw", testMeta)
	require.NoError(t, err)
	sc := res.Session
	oldRefresh := sc.RefreshToken()
	oldSessionID := sc.SessionID()

	e.clock.Advance(time.Second)

	got, err := e.auth.Refresh(ctx, oldRefresh, testMeta)
	require.NoError(t, err)

	// The tracked context is updated in place, not replaced.
	require.Same(t, sc, got)
	require.NotEqual(t, oldSessionID, sc.SessionID())
	require.NotEqual(t, oldRefresh, sc.RefreshToken())

	// The spent refresh token is dead.
	_, err = e.auth.Refresh(ctx, oldRefresh, testMeta)
	require.ErrorIs(t, err, ErrSessionNotFound)

	// The new one works.
	e.clock.Advance(time.Second)
	_, err = e.auth.Refresh(ctx, sc.RefreshToken(), testMeta)
	require.NoError(t, err)
}

func TestLogoutIsIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.createUser(t, "alice@example.com", "pw-pw-pw-pw", domain.MFAKindNone, nil)

	res, err := e.auth.Login(ctx, "alice@example.com", "pw-pw-pw-pw", testMeta)
	require.NoError(t, err)
	id := res.Session.SessionID()

	require.NoError(t, e.auth.Logout(ctx, id, testMeta))
	require.NoError(t, e.auth.Logout(ctx, id, testMeta))

	// The refresh token no longer resolves to a session.
	_, err = e.auth.Refresh(ctx, res.Session.RefreshToken(), testMeta)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

// slowLookupStore holds the first refresh-token lookup open until released,
// so a test can interleave a logout with an in-flight rotation.
type slowLookupStore struct {
	store.Store
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *slowLookupStore) Sessions() store.Sessions {
	return &slowLookupSessions{Sessions: s.Store.Sessions(), s: s}
}

type slowLookupSessions struct {
	store.Sessions
	s *slowLookupStore
}

func (r *slowLookupSessions) GetSessionByRefreshToken(ctx context.Context, refreshToken string) (domain.Session, error) {
	r.s.once.Do(func() {
		close(r.s.entered)
		<-r.s.release
	})
	return r.Sessions.GetSessionByRefreshToken(ctx, refreshToken)
}

func TestLogoutCancelsMonitorBeforeReleasingSession(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.createUser(t, "alice@example.com", "pw-pw-pw-pw", domain.MFAKindNone, nil)

	// Tokens are minted against the frozen test clock while the monitor
	// watches the real one, so the access token lapses almost immediately
	// and the first tick goes down the rotation path; the wrapped store
	// holds that rotation open while the logout runs.
	e.codec.AccessTTL = 50 * time.Millisecond
	e.auth.Clock = SystemClock
	e.auth.MonitorInterval = 10 * time.Millisecond

	gate := &slowLookupStore{
		Store:   e.store,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	e.auth.Store = gate

	res, err := e.auth.Login(ctx, "alice@example.com", "pw-pw-pw-pw", testMeta)
	require.NoError(t, err)
	sc := res.Session

	<-gate.entered

	errCh := make(chan error, 1)
	go func() { errCh <- e.auth.Logout(ctx, sc.SessionID(), testMeta) }()

	// Let the logout reach the monitor before the rotation proceeds.
	time.Sleep(20 * time.Millisecond)
	close(gate.release)
	require.NoError(t, <-errCh)

	// Nothing survives the logout: no tracked context, no monitor, and no
	// row under whatever id the rotation ended up producing.
	e.auth.mu.Lock()
	require.Empty(t, e.auth.sessions)
	require.Empty(t, e.auth.monitors)
	e.auth.mu.Unlock()

	_, err = e.store.Sessions().GetSessionByID(ctx, sc.SessionID())
	require.ErrorIs(t, err, store.ErrNotFound)
}

// brokenSessionStore fails every session delete.
type brokenSessionStore struct {
	store.Store
}

func (s *brokenSessionStore) Sessions() store.Sessions {
	return brokenSessions{s.Store.Sessions()}
}

type brokenSessions struct {
	store.Sessions
}

func (brokenSessions) DeleteSession(context.Context, string) error {
	return errors.New("delete failed")
}

// captureAuditStore records audit events on their way to the database.
type captureAuditStore struct {
	store.Store
	events chan domain.AuditEvent
}

func (s *captureAuditStore) AuditLog() store.AuditLog {
	return captureAuditLog{s}
}

type captureAuditLog struct {
	s *captureAuditStore
}

func (c captureAuditLog) CreateAuditEvent(ctx context.Context, ev domain.AuditEvent) error {
	c.s.events <- ev
	return c.s.Store.AuditLog().CreateAuditEvent(ctx, ev)
}

func TestExpiryAuditedEvenWhenRevokeFails(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.createUser(t, "alice@example.com", "pw-pw-pw-pw", domain.MFAKindNone, nil)

	res, err := e.auth.Login(ctx, "alice@example.com", "pw-pw-pw-pw", testMeta)
	require.NoError(t, err)
	id := res.Session.SessionID()

	audit := &captureAuditStore{Store: e.store, events: make(chan domain.AuditEvent, 4)}
	e.auth.Audit = &AuditRecorder{Store: audit, Clock: e.clock}
	e.auth.Tokens.Store = &brokenSessionStore{Store: e.store}

	e.auth.handleExpiry(res.Session)

	// The session is untracked and the expiry audited despite the failed
	// delete; auditing is best-effort and never skipped.
	_, tracked := e.auth.Session(id)
	require.False(t, tracked)

	select {
	case ev := <-audit.events:
		require.Equal(t, domain.AuditLogout, ev.Action)
		require.Equal(t, "expired", ev.Details)
	default:
		t.Fatal("no audit event recorded for the expired session")
	}
}

func TestRestoreSession(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	u := e.createUser(t, "alice@example.com", "pw-pw-pw-pw", domain.MFAKindNone, nil)

	res, err := e.auth.Login(ctx, "alice@example.com", "pw-pw-pw-pw", testMeta)
	require.NoError(t, err)

	// Forget the in-memory context, as a restart would.
	e.auth.Close()

	sc, err := e.auth.RestoreSession(ctx, res.Session.RefreshToken(), testMeta)
	require.NoError(t, err)
	require.Equal(t, u.ID, sc.UserID())
	require.Equal(t, res.Session.SessionID(), sc.SessionID())

	_, err = e.auth.RestoreSession(ctx, "garbage-token", testMeta)
	require.Error(t, err)
}

func TestRegistrationFlow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	err := e.auth.SendRegistrationOTP(ctx, "New@Example.com", "fresh-password", testMeta)
	require.NoError(t, err)

	to, code := e.sender.last()
	require.Equal(t, "new@example.com", to)
	require.Len(t, code, OTPCodeLength)

	u, err := e.auth.VerifyRegistrationOTP(ctx, "new@example.com", code, testMeta)
	require.NoError(t, err)
	require.Equal(t, "new@example.com", u.Email)
	require.Equal(t, domain.RoleStandard, u.Role)

	// The stored hash is the one captured at send time.
	res, err := e.auth.Login(ctx, "new@example.com", "fresh-password", testMeta)
	require.NoError(t, err)
	require.NotNil(t, res.Session)

	// The code is spent.
	_, err = e.auth.VerifyRegistrationOTP(ctx, "new@example.com", code, testMeta)
	require.ErrorIs(t, err, ErrExpiredOrUsedCode)
}

func TestRegistrationEmailTaken(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.createUser(t, "alice@example.com", "pw-pw-pw-pw", domain.MFAKindNone, nil)

	err := e.auth.SendRegistrationOTP(ctx, "alice@example.com", "other", testMeta)
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestRegistrationCodeExpires(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	require.NoError(t, e.auth.SendRegistrationOTP(ctx, "new@example.com", "fresh-password", testMeta))
	_, code := e.sender.last()

	// At exactly the TTL boundary the code is already invalid.
	e.clock.Advance(DefaultOTPTTL)

	_, err := e.auth.VerifyRegistrationOTP(ctx, "new@example.com", code, testMeta)
	require.ErrorIs(t, err, ErrExpiredOrUsedCode)
}
