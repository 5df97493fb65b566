package http

import (
	"errors"
	"net/http"

	"github.com/castellan/authd/internal/authd/domain"
	"github.com/castellan/authd/internal/authd/service"
	"github.com/castellan/authd/pkg/httpx"
	"github.com/castellan/authd/pkg/jwtx"
	"github.com/castellan/authd/pkg/slogx"
)

// LoginHandler serves the password and MFA steps of a login.
type LoginHandler struct {
	AuthService *service.AuthService
	Codec       *jwtx.Codec
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	MFARequired bool           `json:"mfa_required"`
	ChallengeID string         `json:"challenge_id,omitempty"`
	MFAKind     string         `json:"mfa_kind,omitempty"`
	Tokens      *tokenResponse `json:"tokens,omitempty"`
}

// HandleLogin handles POST /v1/auth/login.
func (h *LoginHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.AuthService.Login(ctx, req.Email, req.Password, clientMeta(r))
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) && res != nil {
			httpx.WriteJSON(w, http.StatusUnauthorized, map[string]any{
				"error":              "invalid_credentials",
				"error_description":  "Invalid email or password",
				"remaining_attempts": res.RemainingAttempts,
			})
			return
		}
		writeServiceError(w, err)
		return
	}

	if res.MFARequired {
		httpx.WriteJSON(w, http.StatusOK, loginResponse{
			MFARequired: true,
			ChallengeID: res.ChallengeID,
			MFAKind:     string(res.MFAKind),
		})
		return
	}

	log.Info("login succeeded", "user_id", res.Session.UserID())
	httpx.WriteJSON(w, http.StatusOK, loginResponse{
		Tokens: newTokenResponse(res.Session, h.Codec),
	})
}

type verifyMFARequest struct {
	ChallengeID string `json:"challenge_id" validate:"required"`
	Code        string `json:"code" validate:"required"`
}

type verifyMFAResponse struct {
	Tokens         *tokenResponse `json:"tokens"`
	BackupCodeUsed bool           `json:"backup_code_used"`
}

// HandleVerifyMFA handles POST /v1/auth/mfa.
func (h *LoginHandler) HandleVerifyMFA(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req verifyMFARequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sc, usedBackup, err := h.AuthService.VerifyMFA(ctx, req.ChallengeID, req.Code, clientMeta(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	log.Info("mfa verification succeeded", "user_id", sc.UserID())
	httpx.WriteJSON(w, http.StatusOK, verifyMFAResponse{
		Tokens:         newTokenResponse(sc, h.Codec),
		BackupCodeUsed: usedBackup,
	})
}

func clientMeta(r *http.Request) domain.ClientMeta {
	return domain.ClientMeta{
		IPAddress: httpx.IPKeyExtractor(r),
		UserAgent: r.UserAgent(),
	}
}
