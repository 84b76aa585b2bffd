package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/kozaktomas/gatewatch/internal/constants"
	"github.com/kozaktomas/gatewatch/internal/engine"
)

// Event is one message pushed to SSE listeners.
type Event struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// EventBroadcaster provides listener management and event broadcasting.
type EventBroadcaster struct {
	listeners []chan Event
	mu        sync.RWMutex
}

// AddListener adds an event listener.
func (b *EventBroadcaster) AddListener() chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, constants.EventChannelBuffer)
	b.listeners = append(b.listeners, ch)
	return ch
}

// RemoveListener removes an event listener.
func (b *EventBroadcaster) RemoveListener(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// ListenerCount returns the number of connected listeners.
func (b *EventBroadcaster) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// SendEvent sends an event to all listeners.
func (b *EventBroadcaster) SendEvent(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- event:
		default:
			// Listener buffer full, skip.
		}
	}
}

// ExitNotice is the payload of an "exit" event.
type ExitNotice struct {
	Identities []string  `json:"identities"`
	RecordedAt time.Time `json:"recorded_at"`
}

// ExitFeed broadcasts newly recorded exits to SSE clients.
type ExitFeed struct {
	EventBroadcaster
}

// NewExitFeed creates an exit feed with no listeners.
func NewExitFeed() *ExitFeed {
	return &ExitFeed{}
}

// Wrap returns a recorder that publishes every inserted batch after next
// persists it.
func (f *ExitFeed) Wrap(next engine.ExitRecorder) engine.ExitRecorder {
	return &feedRecorder{next: next, feed: f}
}

type feedRecorder struct {
	next engine.ExitRecorder
	feed *ExitFeed
}

func (r *feedRecorder) RecordExits(ctx context.Context, names []string, at time.Time, window time.Duration) ([]string, error) {
	inserted, err := r.next.RecordExits(ctx, names, at, window)
	if len(inserted) > 0 {
		r.feed.SendEvent(Event{
			Type: "exit",
			Data: ExitNotice{Identities: inserted, RecordedAt: at},
		})
	}
	return inserted, err
}

// Events streams exit events as server-sent events until the client leaves.
func (f *ExitFeed) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	eventCh := f.AddListener()
	defer f.RemoveListener(eventCh)

	sendSSEEvent(w, flusher, "connected", Event{Type: "connected"})

	heartbeat := time.NewTicker(constants.SSEHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			_, _ = io.WriteString(w, ": keepalive\n\n")
			flusher.Flush()
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			sendSSEEvent(w, flusher, event.Type, event)
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	jsonData, _ := json.Marshal(data)
	_, _ = io.WriteString(w, "event: "+eventType+"\n")
	_, _ = io.WriteString(w, "data: ")
	_, _ = io.Copy(w, bytes.NewReader(jsonData))
	_, _ = io.WriteString(w, "\n\n")
	flusher.Flush()
}
