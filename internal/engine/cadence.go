package engine

import "github.com/kozaktomas/gatewatch/internal/facematch"

// Cadence decides when the real detector runs and synthesizes detections for
// the frames in between from the last real result.
type Cadence struct {
	interval  int
	decay     float64
	expansion float64

	last      []Detection
	lastIndex int
}

// NewCadence creates a cadence controller running the detector every interval
// processed frames.
func NewCadence(interval int, decay, expansion float64) *Cadence {
	return &Cadence{
		interval:  interval,
		decay:     decay,
		expansion: expansion,
	}
}

// ShouldDetect reports whether the real detector must run on this processed frame.
func (c *Cadence) ShouldDetect(processedIndex int) bool {
	return len(c.last) == 0 || processedIndex%c.interval == 0
}

// Remember stores a real detection result as the extrapolation reference.
// Empty results leave the previous reference in place.
func (c *Cadence) Remember(detections []Detection, processedIndex int) {
	if len(detections) == 0 {
		return
	}
	c.last = append(c.last[:0], detections...)
	c.lastIndex = processedIndex
}

// Extrapolate synthesizes detections for a frame where the detector is skipped.
// Returns nil once the reference is older than twice the interval.
func (c *Cadence) Extrapolate(processedIndex, width, height int) []Detection {
	if len(c.last) == 0 {
		return nil
	}
	age := processedIndex - c.lastIndex
	if age > 2*c.interval {
		return nil
	}

	motion := min(1.0, float64(age)/float64(c.interval))
	out := make([]Detection, 0, len(c.last))
	for _, d := range c.last {
		out = append(out, Detection{
			Box:        facematch.Expand(d.Box, motion*c.expansion, width, height),
			Confidence: d.Confidence * c.decay,
		})
	}
	return out
}

// LastIndex returns the processed-frame index of the reference detections.
func (c *Cadence) LastIndex() int {
	return c.lastIndex
}

// Reset drops the reference detections.
func (c *Cadence) Reset() {
	c.last = nil
	c.lastIndex = 0
}
