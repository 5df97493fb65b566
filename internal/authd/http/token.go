package http

import (
	"errors"
	"net/http"

	"github.com/castellan/authd/internal/authd/service"
	"github.com/castellan/authd/internal/authd/store"
	"github.com/castellan/authd/pkg/httpx"
	"github.com/castellan/authd/pkg/jwtx"
	"github.com/castellan/authd/pkg/slogx"
)

// TokenHandler serves refresh and logout.
type TokenHandler struct {
	AuthService *service.AuthService
	Codec       *jwtx.Codec
	Store       store.Store
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// HandleRefresh handles POST /v1/auth/refresh.
func (h *TokenHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req refreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sc, err := h.AuthService.Refresh(ctx, req.RefreshToken, clientMeta(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, newTokenResponse(sc, h.Codec))
}

type logoutRequest struct {
	SessionID string `json:"session_id" validate:"required"`
}

// HandleLogout handles POST /v1/auth/logout. Logout is idempotent: a
// session that is already gone still yields 204.
func (h *TokenHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID, ok := ctx.Value(httpx.CtxKeyUserID).(string)
	if !ok || userID == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "Missing authenticated user")
		return
	}

	var req logoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	// A user may only revoke their own sessions.
	sess, err := h.Store.Sessions().GetSessionByID(ctx, req.SessionID)
	if err == nil && sess.UserID != userID {
		httpx.WriteError(w, http.StatusForbidden, "forbidden", "Session belongs to another user")
		return
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Internal server error")
		return
	}

	if err := h.AuthService.Logout(ctx, req.SessionID, clientMeta(r)); err != nil {
		log.Error("logout failed", "session_id", req.SessionID, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
