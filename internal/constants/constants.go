// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Event channel constants
const (
	// EventChannelBuffer is the buffer size for event channels
	EventChannelBuffer = 100

	// SSEHeartbeatInterval is how often idle SSE connections get a keepalive comment
	SSEHeartbeatInterval = 30 * time.Second
)

// Frame stream constants
const (
	// MaxFrameBytes is the largest encoded frame accepted over the WebSocket
	MaxFrameBytes = 16 << 20

	// StreamWriteTimeout bounds a single WebSocket write
	StreamWriteTimeout = 10 * time.Second

	// FinalizeTimeout bounds the finalize on stream disconnect, which runs
	// after the request context is gone
	FinalizeTimeout = 30 * time.Second
)

// Replay constants
const (
	// ReplayLogInterval is the number of frames between replay status lines
	// when no progress bar is shown
	ReplayLogInterval = 100
)
