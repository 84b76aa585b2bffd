package tracker

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kozaktomas/gatewatch/internal/engine"
	"github.com/kozaktomas/gatewatch/internal/facematch"
)

func defaultConfig() Config {
	return Config{TrackThresh: 0.45, MatchThresh: 0.8, TrackBuffer: 50, FrameRate: 30}
}

func det(x1, y1, x2, y2, conf float64) engine.Detection {
	return engine.Detection{Box: facematch.Box{X1: x1, Y1: y1, X2: x2, Y2: y2}, Confidence: conf}
}

func ids(boxes []engine.TrackedBox) []int {
	out := []int{}
	for _, b := range boxes {
		out = append(out, b.ID)
	}
	return out
}

func TestTracker_FirstFrameActivates(t *testing.T) {
	tr := New(defaultConfig())

	got := tr.Update([]engine.Detection{det(10, 10, 50, 50, 0.9), det(100, 10, 140, 50, 0.8)}, 200, 200)

	if diff := cmp.Diff([]int{1, 2}, ids(got)); diff != "" {
		t.Errorf("IDs mismatch (-want +got):\n%s", diff)
	}
	if got[0].Score != 0.9 {
		t.Errorf("score = %v, want 0.9", got[0].Score)
	}
}

func TestTracker_StableIDs(t *testing.T) {
	tr := New(defaultConfig())
	tr.Update([]engine.Detection{det(10, 10, 50, 50, 0.9), det(100, 10, 140, 50, 0.9)}, 200, 200)

	// Both faces drift a few pixels.
	got := tr.Update([]engine.Detection{det(104, 10, 144, 50, 0.9), det(13, 10, 53, 50, 0.9)}, 200, 200)

	want := []engine.TrackedBox{
		{ID: 1, Box: facematch.Box{X1: 13, Y1: 10, X2: 53, Y2: 50}, Score: 0.9},
		{ID: 2, Box: facematch.Box{X1: 104, Y1: 10, X2: 144, Y2: 50}, Score: 0.9},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("tracks mismatch (-want +got):\n%s", diff)
	}
}

func TestTracker_NewTrackNeedsConfirmation(t *testing.T) {
	tr := New(defaultConfig())
	tr.Update([]engine.Detection{det(10, 10, 50, 50, 0.9)}, 200, 200)

	got := tr.Update([]engine.Detection{det(10, 10, 50, 50, 0.9), det(120, 10, 160, 50, 0.9)}, 200, 200)
	if diff := cmp.Diff([]int{1}, ids(got)); diff != "" {
		t.Errorf("frame 2 IDs mismatch (-want +got):\n%s", diff)
	}

	got = tr.Update([]engine.Detection{det(10, 10, 50, 50, 0.9), det(121, 10, 161, 50, 0.9)}, 200, 200)
	if diff := cmp.Diff([]int{1, 2}, ids(got)); diff != "" {
		t.Errorf("frame 3 IDs mismatch (-want +got):\n%s", diff)
	}
}

func TestTracker_LowScoreKeepsTrackAlive(t *testing.T) {
	tr := New(defaultConfig())
	tr.Update([]engine.Detection{det(10, 10, 50, 50, 0.9)}, 200, 200)

	got := tr.Update([]engine.Detection{det(11, 10, 51, 50, 0.3)}, 200, 200)
	if diff := cmp.Diff([]int{1}, ids(got)); diff != "" {
		t.Errorf("IDs mismatch (-want +got):\n%s", diff)
	}
	if got[0].Score != 0.3 {
		t.Errorf("score = %v, want 0.3", got[0].Score)
	}
}

func TestTracker_LowScoreDoesNotStartTrack(t *testing.T) {
	tr := New(defaultConfig())

	got := tr.Update([]engine.Detection{det(10, 10, 50, 50, 0.3), det(100, 10, 140, 50, 0.5)}, 200, 200)

	if len(got) != 0 {
		t.Errorf("expected no tracks, got %v", got)
	}
	if tr.TrackCount() != 0 {
		t.Errorf("TrackCount() = %d, want 0", tr.TrackCount())
	}
}

func TestTracker_LostTrackRefound(t *testing.T) {
	tr := New(defaultConfig())
	tr.Update([]engine.Detection{det(10, 10, 50, 50, 0.9)}, 200, 200)
	tr.Update([]engine.Detection{det(150, 150, 190, 190, 0.9)}, 200, 200)

	got := tr.Update([]engine.Detection{det(12, 10, 52, 50, 0.9)}, 200, 200)
	if diff := cmp.Diff([]int{1}, ids(got)); diff != "" {
		t.Errorf("IDs mismatch (-want +got):\n%s", diff)
	}
}

func TestTracker_LostTrackExpires(t *testing.T) {
	cfg := defaultConfig()
	cfg.TrackBuffer = 2
	tr := New(cfg)

	a := det(10, 10, 50, 50, 0.9)
	c := det(150, 150, 190, 190, 0.9)

	tr.Update([]engine.Detection{a}, 200, 200) // A -> 1
	tr.Update([]engine.Detection{c}, 200, 200) // A lost, C -> 2 unconfirmed
	tr.Update([]engine.Detection{c}, 200, 200)
	tr.Update([]engine.Detection{c}, 200, 200) // A removed

	got := tr.Update([]engine.Detection{a, c}, 200, 200)
	if diff := cmp.Diff([]int{2}, ids(got)); diff != "" {
		t.Errorf("frame 5 IDs mismatch (-want +got):\n%s", diff)
	}

	got = tr.Update([]engine.Detection{a, c}, 200, 200)
	if diff := cmp.Diff([]int{2, 3}, ids(got)); diff != "" {
		t.Errorf("frame 6 IDs mismatch (-want +got):\n%s", diff)
	}
}

func TestNewFactory_FreshInstances(t *testing.T) {
	factory := NewFactory(defaultConfig())

	first := factory()
	first.Update([]engine.Detection{det(10, 10, 50, 50, 0.9)}, 200, 200)

	got := factory().Update([]engine.Detection{det(100, 100, 150, 150, 0.9)}, 200, 200)
	if diff := cmp.Diff([]int{1}, ids(got)); diff != "" {
		t.Errorf("IDs mismatch (-want +got):\n%s", diff)
	}
}
