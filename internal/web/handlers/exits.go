package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/kozaktomas/gatewatch/internal/database"
	"github.com/kozaktomas/gatewatch/internal/engine"
)

// ExitsHandler serves pending and historical exits
type ExitsHandler struct {
	session  *engine.Session
	exits    database.ExitReader
	location *time.Location
}

// NewExitsHandler creates a new exits handler. History timestamps are
// rendered in loc.
func NewExitsHandler(session *engine.Session, exits database.ExitReader, loc *time.Location) *ExitsHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &ExitsHandler{session: session, exits: exits, location: loc}
}

// PendingResponse is the result of finalizing the current session
type PendingResponse struct {
	Exits    []string `json:"exits"`
	Recorded []string `json:"recorded"`
}

// Pending resolves every live track as an exit, records them and resets the
// session.
func (h *ExitsHandler) Pending(w http.ResponseWriter, r *http.Request) {
	res, err := h.session.FinalizeAndReset(r.Context())
	if err != nil {
		log.Printf("Failed to record pending exits: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to record exits")
		return
	}
	respondJSON(w, http.StatusOK, PendingResponse{Exits: res.Exits, Recorded: res.Recorded})
}

// ExitEntry is one row of the exit history
type ExitEntry struct {
	ID         int64  `json:"id"`
	Identity   string `json:"identity"`
	RecordedAt string `json:"recorded_at"`
}

// ListResponse is the exit history
type ListResponse struct {
	Exits    []ExitEntry `json:"exits"`
	Count    int         `json:"count"`
	Timezone string      `json:"timezone"`
}

// List returns the full exit history with timestamps in the configured timezone
func (h *ExitsHandler) List(w http.ResponseWriter, r *http.Request) {
	events, err := h.exits.ListExits(r.Context())
	if err != nil {
		log.Printf("Failed to list exits: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list exits")
		return
	}

	entries := make([]ExitEntry, 0, len(events))
	for _, e := range events {
		entries = append(entries, ExitEntry{
			ID:         e.ID,
			Identity:   e.Identity,
			RecordedAt: e.RecordedAt.In(h.location).Format(time.RFC3339),
		})
	}
	respondJSON(w, http.StatusOK, ListResponse{
		Exits:    entries,
		Count:    len(entries),
		Timezone: h.location.String(),
	})
}

// ListLegacy returns the history as [identity, timestamp] pairs
func (h *ExitsHandler) ListLegacy(w http.ResponseWriter, r *http.Request) {
	events, err := h.exits.ListExits(r.Context())
	if err != nil {
		log.Printf("Failed to list exits: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list exits")
		return
	}

	pairs := make([][2]string, 0, len(events))
	for _, e := range events {
		pairs = append(pairs, [2]string{e.Identity, e.RecordedAt.In(h.location).Format(time.RFC3339)})
	}
	respondJSON(w, http.StatusOK, map[string]any{"exits": pairs})
}

// Recent returns the identities recorded within the last "window" (a Go
// duration, default 1h)
func (h *ExitsHandler) Recent(w http.ResponseWriter, r *http.Request) {
	window := time.Hour
	if v := r.URL.Query().Get("window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			respondError(w, http.StatusBadRequest, "invalid window")
			return
		}
		window = d
	}

	names, err := h.exits.RecentExits(r.Context(), time.Now().Add(-window))
	if err != nil {
		log.Printf("Failed to query recent exits: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to query exits")
		return
	}
	if names == nil {
		names = []string{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"identities": names, "window": window.String()})
}
