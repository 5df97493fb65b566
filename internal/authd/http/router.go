package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/castellan/authd/internal/authd/service"
	"github.com/castellan/authd/internal/authd/store"
	"github.com/castellan/authd/pkg/httpx"
	"github.com/castellan/authd/pkg/jwtx"
	"github.com/castellan/authd/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	codec        *jwtx.Codec
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	store        store.Store

	AuthService *service.AuthService
	MFAService  *service.MFAService
}

func NewRouter(codec *jwtx.Codec, buildVersion string, st store.Store, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		codec:        codec,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
		store:        st,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerMFA()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	login := &LoginHandler{AuthService: r.AuthService, Codec: r.codec}
	r.Mux.Handle("POST /v1/auth/login",
		httpx.Chain(http.HandlerFunc(login.HandleLogin),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/mfa",
		httpx.Chain(http.HandlerFunc(login.HandleVerifyMFA),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	token := &TokenHandler{AuthService: r.AuthService, Codec: r.codec, Store: r.store}
	r.Mux.Handle("POST /v1/auth/refresh",
		httpx.Chain(http.HandlerFunc(token.HandleRefresh),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/logout",
		httpx.Chain(http.HandlerFunc(token.HandleLogout),
			httpx.AuthnMiddleware(r.codec),
		),
	)

	register := &RegisterHandler{AuthService: r.AuthService, Codec: r.codec}
	r.Mux.Handle("POST /v1/auth/register",
		httpx.Chain(http.HandlerFunc(register.HandleRegister),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/register/verify",
		httpx.Chain(http.HandlerFunc(register.HandleVerify),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerMFA() {
	h := &MFAHandler{AuthService: r.AuthService, MFAService: r.MFAService, Store: r.store}

	r.Mux.Handle("POST /v1/mfa/totp/enroll",
		httpx.Chain(http.HandlerFunc(h.HandleEnrollTOTP),
			httpx.AuthnMiddleware(r.codec),
		),
	)
	r.Mux.Handle("POST /v1/mfa/totp/activate",
		httpx.Chain(http.HandlerFunc(h.HandleActivateTOTP),
			httpx.AuthnMiddleware(r.codec),
		),
	)
	r.Mux.Handle("POST /v1/mfa/email/enable",
		httpx.Chain(http.HandlerFunc(h.HandleEnableEmail),
			httpx.AuthnMiddleware(r.codec),
		),
	)
	r.Mux.Handle("DELETE /v1/mfa",
		httpx.Chain(http.HandlerFunc(h.HandleDisable),
			httpx.AuthnMiddleware(r.codec),
		),
	)
}

func (r *Router) registerSystem() {
	system := &SystemHandler{
		Store:        r.store,
		BuildVersion: r.buildVersion,
		StartTime:    r.startTime,
	}
	r.Mux.HandleFunc("GET /livez", system.HandleLivez)
	r.Mux.HandleFunc("GET /readyz", system.HandleReadyz)
}
