package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// SessionCounter reports live onboarding sessions.
type SessionCounter interface {
	Len() int
}

// HealthHandler handles health-check endpoints.
type HealthHandler struct {
	sessions SessionCounter
}

func NewHealthHandler(sessions SessionCounter) *HealthHandler {
	return &HealthHandler{sessions: sessions}
}

// Ping answers /health-check/ping and /health-check/stats.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	switch chi.URLParam(r, "action") {
	case "ping":
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "pong"})
	case "stats":
		n := 0
		if h.sessions != nil {
			n = h.sessions.Len()
		}
		writeJSON(w, http.StatusOK, map[string]int{"active_sessions": n})
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
	}
}
