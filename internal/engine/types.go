// Package engine implements the per-stream track lifecycle: detection cadence,
// track bookkeeping, recognition caching, and exit decisions.
package engine

import (
	"context"
	"image"
	"time"

	"github.com/kozaktomas/gatewatch/internal/facematch"
)

// UnknownName is the label reported for tracks without a confident identity.
const UnknownName = "Unknown"

// Identity is an entry of the recognizer's gallery. The zero value is "Unknown".
type Identity struct {
	ID   int64
	Name string
}

// Known reports whether the identity came from a confident gallery match.
func (i Identity) Known() bool {
	return i.ID != 0
}

// Label returns the identity name, or UnknownName.
func (i Identity) Label() string {
	if !i.Known() {
		return UnknownName
	}
	return i.Name
}

// Detection is a face box with confidence, either fresh from the detector or extrapolated.
type Detection struct {
	Box        facematch.Box
	Confidence float64
}

// TrackedBox is one tracker output: a persistent track ID and its box for this frame.
type TrackedBox struct {
	ID    int
	Box   facematch.Box
	Score float64
}

// Detector maps a frame to face detections. An empty result is not an error.
type Detector interface {
	Detect(ctx context.Context, frame image.Image) ([]Detection, error)
}

// Recognizer maps a cropped face to a gallery identity. ok is false when no
// gallery entry passes the similarity threshold.
type Recognizer interface {
	Recognize(ctx context.Context, face image.Image) (identity Identity, ok bool, err error)
}

// Tracker assigns persistent IDs to detections. IDs are positive and stable for
// the lifetime of one Tracker instance.
type Tracker interface {
	Update(detections []Detection, width, height int) []TrackedBox
}

// TrackerFactory returns a fresh tracker; called on every session reset.
type TrackerFactory func() Tracker

// ExitRecorder persists exit events. RecordExits must check the trailing window
// and insert atomically, returning only the names that were inserted.
type ExitRecorder interface {
	RecordExits(ctx context.Context, names []string, at time.Time, window time.Duration) ([]string, error)
}

// Observation is one entry of the append-only per-session position log.
type Observation struct {
	Frame    int
	TrackID  int
	Identity Identity
	X        float64
	Y        float64
	Width    float64
	Height   float64
	Score    float64
}

// Prediction is the per-track output for one processed frame.
type Prediction struct {
	Identity   string    `json:"identity"`
	IdentityID int64     `json:"identity_id,omitempty"`
	Score      float64   `json:"score"`
	BBox       []float64 `json:"bbox"` // [x1, y1, x2, y2]
}

// FrameResult is returned for every processed (non-skipped) frame.
type FrameResult struct {
	Frame       int                `json:"frame"`
	Processed   int                `json:"processed"`
	Detected    bool               `json:"detected"`
	ExitIDs     []string           `json:"exit_ids"`
	Predictions map[int]Prediction `json:"predictions"`
}

// FinalizeResult reports the session-end vote resolution.
type FinalizeResult struct {
	Exits    []string `json:"exits"`    // every resolved identity
	Recorded []string `json:"recorded"` // identities newly written to the exit log
}
