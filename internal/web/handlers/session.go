package handlers

import (
	"log"
	"net/http"

	"github.com/kozaktomas/gatewatch/internal/engine"
)

// SessionHandler exposes the tracking session state
type SessionHandler struct {
	session *engine.Session
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(session *engine.Session) *SessionHandler {
	return &SessionHandler{session: session}
}

// Status returns a snapshot of the current session
func (h *SessionHandler) Status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.session.Status())
}

// Reset discards the session state without resolving exits
func (h *SessionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.session.Reset()
	log.Printf("Session reset by %s", sanitizeForLog(r.RemoteAddr))
	respondJSON(w, http.StatusOK, map[string]string{"status": "tracker reset"})
}
