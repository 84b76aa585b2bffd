package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/gatewatch/internal/config"
	"github.com/kozaktomas/gatewatch/internal/facematch"
)

// ErrSessionBusy is returned when a second stream tries to attach to a session.
var ErrSessionBusy = errors.New("session already has an active stream")

// SessionState is the lifecycle state of a session.
type SessionState string

const (
	StateActive    SessionState = "active"
	StateResetting SessionState = "resetting"
)

// Options holds the tunables of a session.
type Options struct {
	SkipFrames             int
	DetectionInterval      int
	VotesThreshold         int
	TrackBuffer            int
	CropMaxSize            int
	ExtrapolationDecay     float64
	ExtrapolationExpansion float64
	DedupWindow            time.Duration
}

// OptionsFromConfig builds session options from loaded configuration.
func OptionsFromConfig(engine config.EngineConfig, exits config.ExitsConfig) Options {
	return Options{
		SkipFrames:             engine.SkipFrames,
		DetectionInterval:      engine.DetectionInterval,
		VotesThreshold:         engine.VotesThreshold,
		TrackBuffer:            engine.TrackBuffer,
		CropMaxSize:            engine.CropMaxSize,
		ExtrapolationDecay:     engine.ExtrapolationDecay,
		ExtrapolationExpansion: engine.ExtrapolationExpansion,
		DedupWindow:            exits.DedupWindow,
	}
}

func (o Options) validate() error {
	switch {
	case o.SkipFrames < 1:
		return fmt.Errorf("skip frames must be positive, got %d", o.SkipFrames)
	case o.DetectionInterval < 1:
		return fmt.Errorf("detection interval must be positive, got %d", o.DetectionInterval)
	case o.VotesThreshold < 1:
		return fmt.Errorf("votes threshold must be positive, got %d", o.VotesThreshold)
	case o.TrackBuffer < 1:
		return fmt.Errorf("track buffer must be positive, got %d", o.TrackBuffer)
	}
	return nil
}

// Status is a point-in-time snapshot of a session.
type Status struct {
	ID           string       `json:"id"`
	State        SessionState `json:"state"`
	StartedAt    time.Time    `json:"started_at"`
	Streaming    bool         `json:"streaming"`
	FrameCounter int          `json:"frame_counter"`
	Processed    int          `json:"processed_frames"`
	Tracks       int          `json:"tracks"`
	ActiveTracks int          `json:"active_tracks"`
	Observations int          `json:"observations"`
	CacheEntries int          `json:"cache_entries"`
}

// Session owns all per-stream state. Frames are processed strictly one at a
// time; Reset and Finalize take the same lock and so only run between frames.
type Session struct {
	mu sync.Mutex

	opts       Options
	detector   Detector
	recognizer Recognizer
	newTracker TrackerFactory
	exits      *ExitEngine

	id           string
	state        SessionState
	startedAt    time.Time
	tracker      Tracker
	cadence      *Cadence
	store        *Store
	cache        *RecognitionCache
	frameCounter int
	processed    int

	streaming atomic.Bool
}

// NewSession creates a session in the Active state.
func NewSession(opts Options, detector Detector, recognizer Recognizer, newTracker TrackerFactory, recorder ExitRecorder) (*Session, error) {
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("invalid session options: %w", err)
	}
	if detector == nil || recognizer == nil || newTracker == nil || recorder == nil {
		return nil, errors.New("session requires a detector, recognizer, tracker factory and exit recorder")
	}

	s := &Session{
		opts:       opts,
		detector:   detector,
		recognizer: recognizer,
		newTracker: newTracker,
		exits:      NewExitEngine(recorder, opts.VotesThreshold, opts.TrackBuffer, opts.SkipFrames, opts.DedupWindow),
		cadence:    NewCadence(opts.DetectionInterval, opts.ExtrapolationDecay, opts.ExtrapolationExpansion),
		store:      NewStore(),
		cache:      NewRecognitionCache(opts.DetectionInterval),
	}
	s.reset()
	return s, nil
}

// ProcessFrame runs one raw frame through the pipeline. Skipped frames return
// a nil result. When the exit log cannot be written the result is still
// returned alongside the error.
func (s *Session) ProcessFrame(ctx context.Context, frame image.Image) (*FrameResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.frameCounter++
	if s.frameCounter%s.opts.SkipFrames != 0 {
		return nil, nil
	}
	s.processed++
	idx := s.processed

	bounds := frame.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	detect := s.cadence.ShouldDetect(idx)
	var detections []Detection
	if detect {
		dets, err := s.detector.Detect(ctx, frame)
		if err != nil {
			log.Printf("Frame %d: detector failed: %v", s.frameCounter, err)
			dets = nil
		}
		s.cadence.Remember(dets, idx)
		detections = dets
	} else {
		detections = s.cadence.Extrapolate(idx, width, height)
	}

	var tracked []TrackedBox
	if len(detections) > 0 {
		tracked = s.tracker.Update(detections, width, height)
	}

	result := &FrameResult{
		Frame:       s.frameCounter,
		Processed:   idx,
		Detected:    detect,
		ExitIDs:     []string{},
		Predictions: make(map[int]Prediction, len(tracked)),
	}

	for _, tb := range tracked {
		tb.Box = facematch.ClampToFrame(tb.Box, width, height)
		if tb.Box.Degenerate() {
			continue
		}

		identity := s.identify(ctx, frame, tb, idx, detect)
		s.store.Observe(s.frameCounter, tb, identity)

		result.Predictions[tb.ID] = Prediction{
			Identity:   identity.Label(),
			IdentityID: identity.ID,
			Score:      tb.Score,
			BBox:       tb.Box.Slice(),
		}
	}

	if !detect {
		return result, nil
	}

	exits, err := s.exits.Evaluate(ctx, s.store, s.frameCounter, width)
	if len(exits) > 0 {
		result.ExitIDs = exits
	}
	if err != nil {
		return result, fmt.Errorf("frame %d: %w", s.frameCounter, err)
	}
	return result, nil
}

// identify resolves the identity of a tracked box, consulting the cache unless
// this is a detector frame. Recognizer failures resolve to Unknown and are not cached.
func (s *Session) identify(ctx context.Context, frame image.Image, tb TrackedBox, idx int, detect bool) Identity {
	if !detect {
		if identity, ok := s.cache.Get(tb.ID, idx); ok {
			return identity
		}
	}

	crop := facematch.Crop(frame, tb.Box)
	if crop == nil {
		s.cache.Put(tb.ID, idx, Identity{})
		return Identity{}
	}
	crop = facematch.Downscale(crop, s.opts.CropMaxSize)

	identity, ok, err := s.recognizer.Recognize(ctx, crop)
	if err != nil {
		log.Printf("Track %d: recognizer failed: %v", tb.ID, err)
		return Identity{}
	}
	if !ok {
		identity = Identity{}
	}
	s.cache.Put(tb.ID, idx, identity)
	return identity
}

// Finalize resolves every live track as an exit and records the result.
// Session state other than the done flags is left untouched.
func (s *Session) Finalize(ctx context.Context) (*FinalizeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exits.Finalize(ctx, s.store)
}

// FinalizeAndReset finalizes the session and resets it under one lock, so no
// frame can slip in between. The session is reset even when recording fails.
func (s *Session) FinalizeAndReset(ctx context.Context) (*FinalizeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, err := s.exits.Finalize(ctx, s.store)
	s.reset()
	return result, err
}

// Reset discards all per-session state and starts a new session ID.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

func (s *Session) reset() {
	s.state = StateResetting

	s.tracker = s.newTracker()
	s.cadence.Reset()
	s.store.Reset()
	s.cache.Reset()
	s.frameCounter = 0
	s.processed = 0

	s.id = uuid.New().String()
	s.startedAt = time.Now()
	s.state = StateActive
	log.Printf("Session %s started", s.id)
}

// Attach marks the session as driven by a stream. The returned function
// releases it. Only one stream may be attached at a time.
func (s *Session) Attach() (release func(), err error) {
	if !s.streaming.CompareAndSwap(false, true) {
		return nil, ErrSessionBusy
	}
	var once sync.Once
	return func() { once.Do(func() { s.streaming.Store(false) }) }, nil
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := 0
	for _, t := range s.store.Tracks() {
		if !t.Done {
			active++
		}
	}

	return Status{
		ID:           s.id,
		State:        s.state,
		StartedAt:    s.startedAt,
		Streaming:    s.streaming.Load(),
		FrameCounter: s.frameCounter,
		Processed:    s.processed,
		Tracks:       s.store.TrackCount(),
		ActiveTracks: active,
		Observations: s.store.Len(),
		CacheEntries: s.cache.Len(),
	}
}

// Options returns the options the session was created with.
func (s *Session) Options() Options {
	return s.opts
}
