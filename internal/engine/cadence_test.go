package engine

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestCadence_ShouldDetect(t *testing.T) {
	c := NewCadence(6, 0.98, 0.05)

	if !c.ShouldDetect(1) {
		t.Error("expected detection when no reference exists")
	}

	c.Remember([]Detection{{Box: box(0, 0, 10, 10), Confidence: 0.9}}, 1)

	for idx, want := range map[int]bool{2: false, 5: false, 6: true, 7: false, 12: true} {
		if got := c.ShouldDetect(idx); got != want {
			t.Errorf("ShouldDetect(%d) = %v, want %v", idx, got, want)
		}
	}
}

func TestCadence_RememberIgnoresEmpty(t *testing.T) {
	c := NewCadence(6, 0.98, 0.05)
	c.Remember([]Detection{{Box: box(0, 0, 10, 10), Confidence: 0.9}}, 6)
	c.Remember(nil, 12)

	if c.LastIndex() != 6 {
		t.Errorf("LastIndex() = %d, want 6", c.LastIndex())
	}
	if got := c.Extrapolate(13, 100, 100); len(got) != 1 {
		t.Errorf("expected extrapolation from the earlier reference, got %d detections", len(got))
	}
}

func TestCadence_ExtrapolateDecay(t *testing.T) {
	c := NewCadence(6, 0.98, 0.05)
	c.Remember([]Detection{{Box: box(100, 100, 200, 300), Confidence: 0.8}}, 6)

	// Three frames after the reference: motion factor 0.5, edges move by 2.5%.
	got := c.Extrapolate(9, 1000, 1000)
	want := []Detection{{Box: box(97.5, 95, 202.5, 305), Confidence: 0.784}}

	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("Extrapolate() mismatch (-want +got):\n%s", diff)
	}
}

func TestCadence_ExtrapolateClampsToFrame(t *testing.T) {
	c := NewCadence(6, 0.98, 0.05)
	c.Remember([]Detection{{Box: box(0, 0, 100, 100), Confidence: 1}}, 6)

	got := c.Extrapolate(12, 102, 200)
	want := []Detection{{Box: box(0, 0, 102, 105), Confidence: 0.98}}

	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("Extrapolate() mismatch (-want +got):\n%s", diff)
	}
}

func TestCadence_ExtrapolateStale(t *testing.T) {
	c := NewCadence(6, 0.98, 0.05)
	c.Remember([]Detection{{Box: box(10, 10, 20, 20), Confidence: 0.9}}, 6)

	if got := c.Extrapolate(18, 100, 100); len(got) != 1 {
		t.Errorf("at exactly twice the interval expected 1 detection, got %d", len(got))
	}
	if got := c.Extrapolate(19, 100, 100); got != nil {
		t.Errorf("expected no detections past twice the interval, got %v", got)
	}
}

func TestCadence_Reset(t *testing.T) {
	c := NewCadence(6, 0.98, 0.05)
	c.Remember([]Detection{{Box: box(10, 10, 20, 20), Confidence: 0.9}}, 6)
	c.Reset()

	if got := c.Extrapolate(7, 100, 100); got != nil {
		t.Errorf("expected nil after reset, got %v", got)
	}
	if !c.ShouldDetect(7) {
		t.Error("expected detection after reset")
	}
}
