package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/kozaktomas/gatewatch/internal/constants"
	"github.com/kozaktomas/gatewatch/internal/engine"
	"github.com/kozaktomas/gatewatch/internal/facematch"
)

// StreamHandler ingests encoded frames over a WebSocket and answers every
// processed frame with its exits and predictions.
type StreamHandler struct {
	session  *engine.Session
	upgrader websocket.Upgrader
}

// NewStreamHandler creates a stream handler. checkOrigin may be nil to accept
// any origin.
func NewStreamHandler(session *engine.Session, checkOrigin func(r *http.Request) bool) *StreamHandler {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &StreamHandler{
		session: session,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 << 10,
			WriteBufferSize: 16 << 10,
			CheckOrigin:     checkOrigin,
		},
	}
}

// FrameMessage is the reply to one processed frame.
type FrameMessage struct {
	ExitIDs     []string                  `json:"exit_ids"`
	Predictions map[int]engine.Prediction `json:"predictions"`
}

// Serve attaches the connection to the session. The session is reset on
// connect and finalized on disconnect. A second concurrent stream gets 409.
func (h *StreamHandler) Serve(w http.ResponseWriter, r *http.Request) {
	release, err := h.session.Attach()
	if errors.Is(err, engine.ErrSessionBusy) {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	defer release()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(constants.MaxFrameBytes)

	connID := uuid.New().String()
	h.session.Reset()
	log.Printf("Stream %s connected from %s", connID, sanitizeForLog(r.RemoteAddr))

	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), constants.FinalizeTimeout)
		defer cancel()
		res, err := h.session.FinalizeAndReset(ctx)
		if err != nil {
			log.Printf("Stream %s: failed to record final exits: %v", connID, err)
		}
		if res != nil {
			log.Printf("Stream %s disconnected, final exits: %v", connID, res.Exits)
		}
	}()

	ctx := r.Context()
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("Stream %s read error: %v", connID, err)
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}

		frame, err := facematch.DecodeImage(data)
		if err != nil {
			log.Printf("Stream %s: dropping frame: %v", connID, err)
			continue
		}

		res, err := h.session.ProcessFrame(ctx, frame)
		if err != nil {
			log.Printf("Stream %s: %v", connID, err)
		}
		if res == nil {
			continue
		}

		msg := FrameMessage{ExitIDs: res.ExitIDs, Predictions: res.Predictions}
		if msg.ExitIDs == nil {
			msg.ExitIDs = []string{}
		}
		_ = conn.SetWriteDeadline(time.Now().Add(constants.StreamWriteTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("Stream %s write error: %v", connID, err)
			return
		}
	}
}
