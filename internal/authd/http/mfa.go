package http

import (
	"net/http"

	"github.com/castellan/authd/internal/authd/service"
	"github.com/castellan/authd/internal/authd/store"
	"github.com/castellan/authd/pkg/httpx"
	"github.com/castellan/authd/pkg/slogx"
)

// MFAHandler serves second-factor management for authenticated users.
type MFAHandler struct {
	AuthService *service.AuthService
	MFAService  *service.MFAService
	Store       store.Store
}

func (h *MFAHandler) currentUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := r.Context().Value(httpx.CtxKeyUserID).(string)
	if !ok || userID == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "Missing authenticated user")
		return "", false
	}
	return userID, true
}

// HandleEnrollTOTP handles POST /v1/mfa/totp/enroll. The secret is shown
// exactly once; nothing is persisted until activation.
func (h *MFAHandler) HandleEnrollTOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID, ok := h.currentUserID(w, r)
	if !ok {
		return
	}

	user, err := h.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		log.Warn("failed to load user", "user_id", userID, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Internal server error")
		return
	}

	enrollment, err := h.MFAService.EnrollTOTP(ctx, user)
	if err != nil {
		log.Error("totp enrollment failed", "user_id", userID, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Internal server error")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"secret": enrollment.Secret,
		"url":    enrollment.URL,
	})
}

type activateTOTPRequest struct {
	Secret string `json:"secret" validate:"required"`
	Code   string `json:"code" validate:"required"`
}

// HandleActivateTOTP handles POST /v1/mfa/totp/activate. Returns the backup
// codes, shown once.
func (h *MFAHandler) HandleActivateTOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID, ok := h.currentUserID(w, r)
	if !ok {
		return
	}

	var req activateTOTPRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	backupCodes, err := h.MFAService.ActivateTOTP(ctx, userID, req.Secret, req.Code)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	log.Info("totp enabled", "user_id", userID)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"backup_codes": backupCodes,
	})
}

// HandleEnableEmail handles POST /v1/mfa/email/enable.
func (h *MFAHandler) HandleEnableEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID, ok := h.currentUserID(w, r)
	if !ok {
		return
	}

	if err := h.MFAService.EnableEmailMFA(ctx, userID); err != nil {
		log.Error("enabling email mfa failed", "user_id", userID, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Internal server error")
		return
	}

	log.Info("email mfa enabled", "user_id", userID)
	w.WriteHeader(http.StatusNoContent)
}

// HandleDisable handles DELETE /v1/mfa.
func (h *MFAHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID, ok := h.currentUserID(w, r)
	if !ok {
		return
	}

	if err := h.MFAService.DisableMFA(ctx, userID); err != nil {
		log.Error("disabling mfa failed", "user_id", userID, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Internal server error")
		return
	}

	log.Info("mfa disabled", "user_id", userID)
	w.WriteHeader(http.StatusNoContent)
}
