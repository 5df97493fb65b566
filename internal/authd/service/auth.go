package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/castellan/authd/internal/authd/domain"
	"github.com/castellan/authd/internal/authd/store"
	"github.com/castellan/authd/pkg/cryptox"
	"github.com/castellan/authd/pkg/idx"
	"github.com/castellan/authd/pkg/jwtx"
	"github.com/castellan/authd/pkg/slogx"
)

// AuthService orchestrates the full login lifecycle: credential check,
// second-factor challenge, token issuance and rotation, registration, and
// per-session expiry monitoring. It tracks live sessions in memory; the
// database rows remain the source of truth for token validity.
type AuthService struct {
	Store       store.Store
	Credentials *CredentialVerifier
	MFA         *MFAService
	Tokens      *TokenService
	OTP         *OTPService
	Limiter     *RateLimiter
	Audit       *AuditRecorder
	Codec       *jwtx.Codec
	Clock       Clock

	// MonitorInterval is passed to each session monitor.
	MonitorInterval time.Duration

	mu       sync.Mutex
	sessions map[string]*SessionContext
	monitors map[string]*SessionMonitor
}

// LoginResult is the outcome of a password check that did not error out
// entirely. When MFARequired is set the caller must follow up with
// VerifyMFA before any tokens exist.
type LoginResult struct {
	Session     *SessionContext
	MFARequired bool
	ChallengeID string
	MFAKind     domain.MFAKind

	// RemainingAttempts is populated alongside ErrInvalidCredentials so
	// callers can warn the user before the window closes.
	RemainingAttempts int
}

// Login verifies credentials and either establishes a session outright or
// opens an MFA challenge. On ErrInvalidCredentials the returned result is
// non-nil and carries the remaining attempt count.
func (a *AuthService) Login(ctx context.Context, email, password string, meta domain.ClientMeta) (*LoginResult, error) {
	normalized := NormalizeEmail(email)

	user, err := a.Credentials.Verify(ctx, email, password, meta)
	if err != nil {
		var limited *RateLimitedError
		switch {
		case errors.As(err, &limited):
			a.Audit.Record(ctx, domain.AuditLoginRateLimited, "", meta, normalized)
			return nil, err
		case errors.Is(err, ErrInvalidCredentials):
			a.Audit.Record(ctx, domain.AuditLoginFailed, "", meta, normalized)
			status, checkErr := a.Limiter.Check(ctx, normalized)
			if checkErr != nil {
				return nil, err
			}
			return &LoginResult{RemainingAttempts: status.Remaining}, err
		default:
			return nil, err
		}
	}

	if user.MFAEnabled() {
		ch, err := a.MFA.Begin(ctx, user, meta)
		if err != nil {
			return nil, err
		}
		a.Audit.Record(ctx, domain.AuditMFAChallenged, user.ID, meta, string(ch.Kind))
		return &LoginResult{MFARequired: true, ChallengeID: ch.ID, MFAKind: ch.Kind}, nil
	}

	sc, err := a.establishSession(ctx, user, meta)
	if err != nil {
		return nil, err
	}
	a.Audit.Record(ctx, domain.AuditLoginSucceeded, user.ID, meta, "")
	return &LoginResult{Session: sc}, nil
}

// VerifyMFA completes a pending challenge. The bool reports whether a
// backup code was spent, so callers can nudge the user to regenerate.
func (a *AuthService) VerifyMFA(ctx context.Context, challengeID, code string, meta domain.ClientMeta) (*SessionContext, bool, error) {
	ch, usedBackup, err := a.MFA.Submit(ctx, challengeID, code)
	if err != nil {
		if errors.Is(err, ErrInvalidMFACode) {
			a.Audit.Record(ctx, domain.AuditMFAFailed, "", meta, "")
		}
		return nil, false, err
	}

	user, err := a.Store.Users().GetUserByID(ctx, ch.UserID)
	if err != nil {
		return nil, false, err
	}

	sc, err := a.establishSession(ctx, user, meta)
	if err != nil {
		return nil, false, err
	}

	details := ""
	if usedBackup {
		details = "backup_code"
	}
	a.Audit.Record(ctx, domain.AuditMFASucceeded, user.ID, meta, details)
	a.Audit.Record(ctx, domain.AuditLoginSucceeded, user.ID, meta, "")
	return sc, usedBackup, nil
}

// Refresh rotates a refresh token into a new pair. A tracked session keeps
// its SessionContext (and monitor) with the new tokens swapped in.
func (a *AuthService) Refresh(ctx context.Context, refreshToken string, meta domain.ClientMeta) (*SessionContext, error) {
	old, err := a.Store.Sessions().GetSessionByRefreshToken(ctx, refreshToken)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	next, err := a.Tokens.RotateSession(ctx, refreshToken, meta)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	sc := a.sessions[old.ID]
	if sc != nil {
		delete(a.sessions, old.ID)
		sc.update(next)
		a.sessions[next.ID] = sc
		if m := a.monitors[old.ID]; m != nil {
			delete(a.monitors, old.ID)
			a.monitors[next.ID] = m
		}
	}
	a.mu.Unlock()

	if sc == nil {
		user, err := a.Store.Users().GetUserByID(ctx, next.UserID)
		if err != nil {
			return nil, err
		}
		sc = a.trackSession(next, user)
	}

	a.Audit.Record(ctx, domain.AuditTokenRefreshed, next.UserID, meta, "")
	return sc, nil
}

// Logout revokes a session. The monitor is cancelled synchronously before
// any state is released: a tick already inside a rotation would otherwise
// find the session gone from the maps, re-track it, and resurrect it
// behind the logout. Logging out a session that is already gone is not an
// error.
func (a *AuthService) Logout(ctx context.Context, sessionID string, meta domain.ClientMeta) error {
	a.mu.Lock()
	sc := a.sessions[sessionID]
	m := a.monitors[sessionID]
	a.mu.Unlock()

	if m != nil {
		m.Stop()
	}

	// The stopped tick may have rotated the pair before Stop returned, so
	// the context's current id is the one to clear and revoke.
	if sc != nil {
		sessionID = sc.SessionID()
	}

	a.mu.Lock()
	delete(a.sessions, sessionID)
	delete(a.monitors, sessionID)
	a.mu.Unlock()

	// Local state is already cleared; a failed server-side delete must not
	// undo a logout, the housekeeping sweep will collect the row later.
	if err := a.Tokens.Revoke(ctx, sessionID); err != nil {
		slogx.FromContext(ctx).Warn("failed to revoke session on logout",
			"session_id", sessionID, "error", err)
	}

	actor := ""
	if sc != nil {
		actor = sc.UserID()
	}
	a.Audit.Record(ctx, domain.AuditLogout, actor, meta, "")
	return nil
}

// SendRegistrationOTP starts a registration. The account is not created
// yet; the hashed password rides along with the emailed code and the user
// row only appears once the code is verified.
func (a *AuthService) SendRegistrationOTP(ctx context.Context, email, password string, meta domain.ClientMeta) error {
	email = NormalizeEmail(email)

	_, err := a.Store.Users().GetUserByEmail(ctx, email)
	if err == nil {
		return ErrEmailTaken
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return err
	}

	if _, err := a.OTP.IssueWithPayload(ctx, email, domain.OtpKindRegister, email, hash); err != nil {
		return err
	}

	a.Audit.Record(ctx, domain.AuditRegistrationOTP, "", meta, email)
	return nil
}

// VerifyRegistrationOTP consumes a registration code and creates the
// account it was issued for.
func (a *AuthService) VerifyRegistrationOTP(ctx context.Context, email, code string, meta domain.ClientMeta) (domain.User, error) {
	email = NormalizeEmail(email)

	consumed, err := a.OTP.Consume(ctx, email, code, domain.OtpKindRegister)
	if err != nil {
		return domain.User{}, err
	}

	now := clockOrSystem(a.Clock).Now()
	user := domain.User{
		ID:           idx.New().String(),
		Email:        email,
		PasswordHash: consumed.Payload,
		Role:         domain.RoleStandard,
		MFAKind:      domain.MFAKindNone,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.Store.Users().CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, ErrEmailTaken
		}
		return domain.User{}, err
	}

	a.Audit.Record(ctx, domain.AuditRegistered, user.ID, meta, "")
	return user, nil
}

// RestoreSession rebuilds the in-memory context for a session that
// survived a restart, keyed by its refresh token.
func (a *AuthService) RestoreSession(ctx context.Context, refreshToken string, meta domain.ClientMeta) (*SessionContext, error) {
	if _, err := a.Codec.VerifyRefresh(refreshToken); err != nil {
		return nil, err
	}

	sess, err := a.Store.Sessions().GetSessionByRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	user, err := a.Store.Users().GetUserByID(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	if !user.Active {
		return nil, ErrSessionNotFound
	}

	return a.trackSession(sess, user), nil
}

// Session returns the tracked context for a session id, if any.
func (a *AuthService) Session(sessionID string) (*SessionContext, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	sc, ok := a.sessions[sessionID]
	return sc, ok
}

// Close stops every session monitor. Sessions themselves stay valid; they
// live in the database.
func (a *AuthService) Close() {
	a.mu.Lock()
	monitors := make([]*SessionMonitor, 0, len(a.monitors))
	for _, m := range a.monitors {
		monitors = append(monitors, m)
	}
	a.monitors = nil
	a.sessions = nil
	a.mu.Unlock()

	for _, m := range monitors {
		m.Stop()
	}
}

func (a *AuthService) establishSession(ctx context.Context, user domain.User, meta domain.ClientMeta) (*SessionContext, error) {
	sess, err := a.Tokens.IssueSession(ctx, user, meta)
	if err != nil {
		return nil, err
	}
	return a.trackSession(sess, user), nil
}

func (a *AuthService) trackSession(sess domain.Session, user domain.User) *SessionContext {
	sc := newSessionContext(sess, user)

	m := &SessionMonitor{
		Session:  sc,
		Codec:    a.Codec,
		Interval: a.MonitorInterval,
		Clock:    a.Clock,
		Refresh:  a.rotateMonitored,
		OnExpire: a.handleExpiry,
	}

	a.mu.Lock()
	if a.sessions == nil {
		a.sessions = make(map[string]*SessionContext)
		a.monitors = make(map[string]*SessionMonitor)
	}
	a.sessions[sess.ID] = sc
	a.monitors[sess.ID] = m
	a.mu.Unlock()

	m.Start()
	return sc
}

// rotateMonitored runs on a monitor goroutine when it finds its access
// token expired. Refresh rotates the pair and updates sc in place, so the
// monitor keeps watching the same context under its new session id.
func (a *AuthService) rotateMonitored(ctx context.Context, sc *SessionContext) error {
	_, err := a.Refresh(ctx, sc.RefreshToken(), sc.Meta())
	return err
}

// handleExpiry runs on the monitor goroutine when a session times out. The
// monitor's loop exits after firing, so the monitor is only removed from
// the map here, never Stop()ped.
func (a *AuthService) handleExpiry(sc *SessionContext) {
	sessionID := sc.SessionID()

	a.mu.Lock()
	delete(a.sessions, sessionID)
	delete(a.monitors, sessionID)
	a.mu.Unlock()

	ctx := context.Background()
	if err := a.Tokens.Revoke(ctx, sessionID); err != nil {
		slogx.FromContext(ctx).Warn("failed to revoke expired session",
			"session_id", sessionID, "error", err)
	}
	a.Audit.Record(ctx, domain.AuditLogout, sc.UserID(), domain.ClientMeta{}, "expired")
}
