package engine

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"github.com/kozaktomas/gatewatch/internal/facematch"
)

// Test doubles shared by the engine tests.

type fakeDetector struct {
	detect func(call int) []Detection
	err    error
	calls  int
}

func (f *fakeDetector) Detect(_ context.Context, _ image.Image) ([]Detection, error) {
	call := f.calls
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.detect == nil {
		return nil, nil
	}
	return f.detect(call), nil
}

func fixedDetections(dets ...Detection) func(int) []Detection {
	return func(int) []Detection { return dets }
}

type fakeRecognizer struct {
	identity Identity
	ok       bool
	err      error
	calls    int
	sizes    []image.Point
}

func (f *fakeRecognizer) Recognize(_ context.Context, face image.Image) (Identity, bool, error) {
	f.calls++
	f.sizes = append(f.sizes, face.Bounds().Size())
	if f.err != nil {
		return Identity{}, false, f.err
	}
	return f.identity, f.ok, nil
}

// echoTracker assigns IDs by detection position, starting at 1.
type echoTracker struct {
	calls int
}

func (e *echoTracker) Update(dets []Detection, _, _ int) []TrackedBox {
	e.calls++
	out := make([]TrackedBox, 0, len(dets))
	for i, d := range dets {
		out = append(out, TrackedBox{ID: i + 1, Box: d.Box, Score: d.Confidence})
	}
	return out
}

type recordedExit struct {
	name string
	at   time.Time
}

// memRecorder dedups against a trailing window the way the database backends do.
type memRecorder struct {
	mu     sync.Mutex
	events []recordedExit
	err    error
}

func (m *memRecorder) RecordExits(_ context.Context, names []string, at time.Time, window time.Duration) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}

	since := at.Add(-window)
	var inserted []string
	for _, name := range names {
		dup := false
		for _, e := range m.events {
			if e.name == name && !e.at.Before(since) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		m.events = append(m.events, recordedExit{name: name, at: at})
		inserted = append(inserted, name)
	}
	return inserted, nil
}

func (m *memRecorder) names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.name)
	}
	return out
}

var errBoom = errors.New("boom")

var alice = Identity{ID: 1, Name: "Alice"}

func box(x1, y1, x2, y2 float64) facematch.Box {
	return facematch.Box{X1: x1, Y1: y1, X2: x2, Y2: y2}
}

func blankFrame(w, h int) image.Image {
	return image.NewRGBA(image.Rect(0, 0, w, h))
}
