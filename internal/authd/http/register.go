package http

import (
	"net/http"

	"github.com/castellan/authd/internal/authd/service"
	"github.com/castellan/authd/pkg/httpx"
	"github.com/castellan/authd/pkg/jwtx"
	"github.com/castellan/authd/pkg/slogx"
)

// RegisterHandler serves the two-step email-verified registration.
type RegisterHandler struct {
	AuthService *service.AuthService
	Codec       *jwtx.Codec
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// HandleRegister handles POST /v1/auth/register. No account exists until
// the emailed code is verified.
func (h *RegisterHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.AuthService.SendRegistrationOTP(ctx, req.Email, req.Password, clientMeta(r)); err != nil {
		writeServiceError(w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusAccepted, map[string]string{
		"status": "verification_code_sent",
	})
}

type registerVerifyRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

// HandleVerify handles POST /v1/auth/register/verify.
func (h *RegisterHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req registerVerifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.AuthService.VerifyRegistrationOTP(ctx, req.Email, req.Code, clientMeta(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	log.Info("user registered", "user_id", user.ID)
	httpx.WriteJSON(w, http.StatusCreated, map[string]string{
		"user_id": user.ID,
		"email":   user.Email,
	})
}
