package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/castellan/authd/internal/authd/domain"
	"github.com/castellan/authd/internal/authd/service"
	"github.com/castellan/authd/internal/authd/store/drivers/sqlite"
	"github.com/castellan/authd/pkg/cryptox"
	"github.com/castellan/authd/pkg/idx"
	"github.com/castellan/authd/pkg/jwtx"
	"github.com/castellan/authd/pkg/slogx"

	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "authd-pepper")
	if err != nil {
		os.Exit(1)
	}
	cryptox.SetPepperPath(filepath.Join(dir, "pepper.key"))

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

type captureSender struct {
	mu       sync.Mutex
	lastCode string
}

func (s *captureSender) SendCode(_ context.Context, _, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCode = code
	return nil
}

func (s *captureSender) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCode
}

type testServer struct {
	router *Router
	store  *sqlite.Store
	sender *captureSender
	codec  *jwtx.Codec
	auth   *service.AuthService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())

	codec, err := jwtx.NewCodec(
		[]byte("test-access-secret-0123456789abc"),
		[]byte("test-refresh-secret-0123456789ab"),
		"authd-test",
	)
	require.NoError(t, err)

	sender := &captureSender{}
	limiter := &service.RateLimiter{Store: st}
	otp := &service.OTPService{Store: st, Sender: sender}
	totp := &service.TOTPVerifier{Issuer: "authd-test"}
	mfa := &service.MFAService{Store: st, TOTP: totp, OTP: otp}

	auth := &service.AuthService{
		Store:           st,
		Credentials:     &service.CredentialVerifier{Store: st, Limiter: limiter},
		MFA:             mfa,
		Tokens:          &service.TokenService{Store: st, Codec: codec},
		OTP:             otp,
		Limiter:         limiter,
		Audit:           &service.AuditRecorder{Store: st},
		Codec:           codec,
		MonitorInterval: time.Hour,
	}

	logger := slogx.New(slogx.Config{Service: "authd-test", Level: "error", Format: "text"})
	router := NewRouter(codec, "test", st, logger)
	router.AuthService = auth
	router.MFAService = mfa
	router.ApplyRoutes()

	t.Cleanup(func() {
		auth.Close()
		_ = st.Close()
	})

	return &testServer{router: router, store: st, sender: sender, codec: codec, auth: auth}
}

func (ts *testServer) createUser(t *testing.T, email, password string, kind domain.MFAKind) domain.User {
	t.Helper()

	hash, err := cryptox.HashPassword(password)
	require.NoError(t, err)

	now := time.Now().UTC()
	u := domain.User{
		ID:           idx.New().String(),
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleStandard,
		MFAKind:      kind,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, ts.store.Users().CreateUser(context.Background(), u))
	return u
}

func (ts *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestLoginEndpoint(t *testing.T) {
	ts := newTestServer(t)

	u := ts.createUser(t, "alice@example.com", "correct horse battery", domain.MFAKindNone)

	rec := ts.do(t, "POST", "/v1/auth/login", map[string]string{
		"email":    "alice@example.com",
		"password": "correct horse battery",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	body := decodeBody[loginResponse](t, rec)
	require.False(t, body.MFARequired)
	require.NotNil(t, body.Tokens)
	require.Equal(t, "Bearer", body.Tokens.TokenType)
	require.EqualValues(t, 1800, body.Tokens.ExpiresIn)

	claims, err := ts.codec.VerifyAccess(body.Tokens.AccessToken)
	require.NoError(t, err)
	require.Equal(t, u.ID, claims.UserID())
}

func TestLoginEndpointRejectsBadRequests(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, "POST", "/v1/auth/login", map[string]string{"email": "not-an-email"}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginEndpointInvalidCredentials(t *testing.T) {
	ts := newTestServer(t)

	ts.createUser(t, "alice@example.com", "right-password", domain.MFAKindNone)

	rec := ts.do(t, "POST", "/v1/auth/login", map[string]string{
		"email":    "alice@example.com",
		"password": "wrong",
	}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	body := decodeBody[map[string]any](t, rec)
	require.Equal(t, "invalid_credentials", body["error"])
	require.EqualValues(t, service.DefaultRateLimitThreshold-1, body["remaining_attempts"])
}

func TestEmailMFAEndpointFlow(t *testing.T) {
	ts := newTestServer(t)

	ts.createUser(t, "alice@example.com", "right-password", domain.MFAKindEmail)

	rec := ts.do(t, "POST", "/v1/auth/login", map[string]string{
		"email":    "alice@example.com",
		"password": "right-password",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[loginResponse](t, rec)
	require.True(t, body.MFARequired)
	require.Equal(t, "email", body.MFAKind)
	require.Nil(t, body.Tokens)

	rec = ts.do(t, "POST", "/v1/auth/mfa", map[string]string{
		"challenge_id": body.ChallengeID,
		"code":         ts.sender.last(),
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	verified := decodeBody[verifyMFAResponse](t, rec)
	require.NotNil(t, verified.Tokens)
	require.False(t, verified.BackupCodeUsed)
}

func TestRefreshAndLogoutEndpoints(t *testing.T) {
	ts := newTestServer(t)

	ts.createUser(t, "alice@example.com", "right-password", domain.MFAKindNone)

	rec := ts.do(t, "POST", "/v1/auth/login", map[string]string{
		"email":    "alice@example.com",
		"password": "right-password",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	login := decodeBody[loginResponse](t, rec)

	rec = ts.do(t, "POST", "/v1/auth/refresh", map[string]string{
		"refresh_token": login.Tokens.RefreshToken,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	refreshed := decodeBody[tokenResponse](t, rec)
	require.NotEqual(t, login.Tokens.SessionID, refreshed.SessionID)

	// The spent refresh token is rejected.
	rec = ts.do(t, "POST", "/v1/auth/refresh", map[string]string{
		"refresh_token": login.Tokens.RefreshToken,
	}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	authz := map[string]string{"Authorization": "Bearer " + refreshed.AccessToken}

	rec = ts.do(t, "POST", "/v1/auth/logout", map[string]string{
		"session_id": refreshed.SessionID,
	}, authz)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// Idempotent.
	rec = ts.do(t, "POST", "/v1/auth/logout", map[string]string{
		"session_id": refreshed.SessionID,
	}, authz)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// And requires authentication.
	rec = ts.do(t, "POST", "/v1/auth/logout", map[string]string{
		"session_id": refreshed.SessionID,
	}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutForeignSessionForbidden(t *testing.T) {
	ts := newTestServer(t)

	ts.createUser(t, "alice@example.com", "right-password", domain.MFAKindNone)
	ts.createUser(t, "bob@example.com", "right-password", domain.MFAKindNone)

	rec := ts.do(t, "POST", "/v1/auth/login", map[string]string{
		"email": "alice@example.com", "password": "right-password",
	}, nil)
	alice := decodeBody[loginResponse](t, rec)

	rec = ts.do(t, "POST", "/v1/auth/login", map[string]string{
		"email": "bob@example.com", "password": "right-password",
	}, nil)
	bob := decodeBody[loginResponse](t, rec)

	rec = ts.do(t, "POST", "/v1/auth/logout", map[string]string{
		"session_id": alice.Tokens.SessionID,
	}, map[string]string{"Authorization": "Bearer " + bob.Tokens.AccessToken})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRegisterEndpointFlow(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, "POST", "/v1/auth/register", map[string]string{
		"email":    "new@example.com",
		"password": "fresh-password",
	}, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = ts.do(t, "POST", "/v1/auth/register/verify", map[string]string{
		"email": "new@example.com",
		"code":  ts.sender.last(),
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	created := decodeBody[map[string]string](t, rec)
	require.Equal(t, "new@example.com", created["email"])

	// Registering the same email again conflicts.
	rec = ts.do(t, "POST", "/v1/auth/register", map[string]string{
		"email":    "new@example.com",
		"password": "fresh-password",
	}, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestSystemEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, "GET", "/livez", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, "GET", "/readyz", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
