package handlers

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"testing"
	"time"

	"github.com/kozaktomas/gatewatch/internal/config"
	"github.com/kozaktomas/gatewatch/internal/database/mock"
	"github.com/kozaktomas/gatewatch/internal/engine"
	"github.com/kozaktomas/gatewatch/internal/facematch"
	"github.com/kozaktomas/gatewatch/internal/tracker"
)

var alice = engine.Identity{ID: 1, Name: "Alice"}

// staticDetector reports the same face on every frame.
type staticDetector struct{}

func (staticDetector) Detect(context.Context, image.Image) ([]engine.Detection, error) {
	return []engine.Detection{{Box: facematch.Box{X1: 20, Y1: 20, X2: 60, Y2: 60}, Confidence: 0.9}}, nil
}

type staticRecognizer struct{}

func (staticRecognizer) Recognize(context.Context, image.Image) (engine.Identity, bool, error) {
	return alice, true, nil
}

// testConfig creates a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Engine: config.EngineConfig{
			SkipFrames:        1,
			DetectionInterval: 1,
			VotesThreshold:    3,
			TrackThresh:       0.45,
			TrackBuffer:       50,
			MatchThresh:       0.8,
			FrameRate:         30,
			CropMaxSize:       100,
		},
		Exits: config.ExitsConfig{DedupWindow: time.Minute, Timezone: "Asia/Kolkata"},
	}
}

// newTestSession builds a session whose exits go through feed into store.
func newTestSession(t *testing.T, store *mock.MockExitStore, feed *ExitFeed) *engine.Session {
	t.Helper()
	cfg := testConfig()
	opts := engine.OptionsFromConfig(cfg.Engine, cfg.Exits)
	opts.ExtrapolationDecay = 0.98
	opts.ExtrapolationExpansion = 0.05

	session, err := engine.NewSession(opts, staticDetector{}, staticRecognizer{},
		tracker.NewFactory(tracker.ConfigFromEngine(cfg.Engine)), feed.Wrap(store))
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	return session
}

func testFrame(t *testing.T) (image.Image, []byte) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode frame: %v", err)
	}
	return img, buf.Bytes()
}

func feedFrames(t *testing.T, session *engine.Session, n int) {
	t.Helper()
	frame, _ := testFrame(t)
	for _n := 0; _n < n; _n++ {
		if _, err := session.ProcessFrame(context.Background(), frame); err != nil {
			t.Fatalf("ProcessFrame() error = %v", err)
		}
	}
}
