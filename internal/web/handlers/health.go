package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/kozaktomas/gatewatch/internal/database"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Health(ctx context.Context) error
}

// ReadyHandler reports whether the server can process frames.
type ReadyHandler struct {
	inference Pinger
}

// NewReadyHandler creates a readiness handler. inference may be nil.
func NewReadyHandler(inference Pinger) *ReadyHandler {
	return &ReadyHandler{inference: inference}
}

// ReadyResponse lists the state of each dependency.
type ReadyResponse struct {
	Status    string `json:"status"`
	Database  string `json:"database"`
	Inference string `json:"inference"`
}

// Get checks the storage backend and the inference server.
func (h *ReadyHandler) Get(w http.ResponseWriter, r *http.Request) {
	resp := ReadyResponse{Status: "ok", Database: "ok", Inference: "ok"}

	if !database.IsInitialized() {
		resp.Database = "not initialized"
		resp.Status = "degraded"
	}

	if h.inference == nil {
		resp.Inference = "not configured"
		resp.Status = "degraded"
	} else {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := h.inference.Health(ctx); err != nil {
			log.Printf("Readiness: inference server check failed: %v", err)
			resp.Inference = "unreachable"
			resp.Status = "degraded"
		}
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, resp)
}
