package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/castellan/authd/internal/authd/service"
	"github.com/castellan/authd/pkg/httpx"
	"github.com/castellan/authd/pkg/jwtx"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// decodeJSON parses and validates a request body into dst. A false return
// means the error response was already written.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return false
	}
	return true
}

type tokenResponse struct {
	SessionID    string `json:"session_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

func newTokenResponse(sc *service.SessionContext, codec *jwtx.Codec) *tokenResponse {
	ttl := codec.AccessTTL
	if ttl <= 0 {
		ttl = jwtx.DefaultAccessTokenTTL
	}
	return &tokenResponse{
		SessionID:    sc.SessionID(),
		AccessToken:  sc.AccessToken(),
		RefreshToken: sc.RefreshToken(),
		TokenType:    "Bearer",
		ExpiresIn:    int64(ttl.Seconds()),
	}
}

// writeServiceError maps service-layer errors onto the API error shape.
func writeServiceError(w http.ResponseWriter, err error) {
	var limited *service.RateLimitedError
	switch {
	case errors.As(err, &limited):
		retryAfter := max(int(time.Until(limited.ResetAt).Seconds()), 1)
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		httpx.WriteJSON(w, http.StatusTooManyRequests, map[string]string{
			"error":             "rate_limited",
			"error_description": "Too many failed login attempts. Try again later.",
			"reset_at":          limited.ResetAt.UTC().Format(time.RFC3339),
		})
	case errors.Is(err, service.ErrInvalidCredentials):
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password")
	case errors.Is(err, service.ErrInvalidMFACode):
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_mfa_code", "The submitted code is not valid")
	case errors.Is(err, service.ErrUnknownChallenge):
		httpx.WriteError(w, http.StatusUnauthorized, "unknown_challenge", "No pending challenge for this id")
	case errors.Is(err, service.ErrExpiredOrUsedCode):
		httpx.WriteError(w, http.StatusBadRequest, "expired_or_used_code", "The code expired or was already used")
	case errors.Is(err, service.ErrEmailTaken):
		httpx.WriteError(w, http.StatusConflict, "email_taken", "An account with this email already exists")
	case errors.Is(err, service.ErrNotificationFailed):
		httpx.WriteError(w, http.StatusBadGateway, "notification_failed", "Could not deliver the verification code")
	case errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, jwtx.ErrInvalidToken),
		errors.Is(err, jwtx.ErrTokenExpired),
		errors.Is(err, jwtx.ErrTokenTypeMismatch):
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "The token is invalid or expired")
	default:
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Internal server error")
	}
}
