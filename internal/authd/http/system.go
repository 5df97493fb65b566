package http

import (
	"net/http"
	"time"

	"github.com/castellan/authd/internal/authd/store"
	"github.com/castellan/authd/pkg/httpx"
)

// SystemHandler serves liveness and readiness probes.
type SystemHandler struct {
	Store        store.Store
	BuildVersion string
	StartTime    time.Time
}

// HandleLivez handles GET /livez.
func (h *SystemHandler) HandleLivez(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.BuildVersion,
		"uptime":  time.Since(h.StartTime).Truncate(time.Second).String(),
	})
}

// HandleReadyz handles GET /readyz. Not ready means the database is
// unreachable.
func (h *SystemHandler) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
		})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
