// Package tracker assigns persistent IDs to face detections across frames
// using two-stage IoU association: confident detections first, then the
// leftover low-confidence ones against tracks that are still live.
package tracker

import (
	"cmp"
	"slices"

	"github.com/kozaktomas/gatewatch/internal/config"
	"github.com/kozaktomas/gatewatch/internal/engine"
	"github.com/kozaktomas/gatewatch/internal/facematch"
)

const (
	// lowScoreThresh is the floor below which detections are ignored entirely.
	lowScoreThresh = 0.1
	// Distance thresholds (1 - IoU) for the second and unconfirmed passes.
	secondMatchThresh      = 0.5
	unconfirmedMatchThresh = 0.7
	// newTrackMargin is added to TrackThresh for starting a new track.
	newTrackMargin = 0.1
)

type state int

const (
	stateTracked state = iota
	stateLost
	stateRemoved
)

type strack struct {
	id        int
	box       facematch.Box
	score     float64
	state     state
	activated bool
	frameID   int
}

func (s *strack) update(d engine.Detection, frameID int) {
	s.box = d.Box
	s.score = d.Confidence
	s.state = stateTracked
	s.activated = true
	s.frameID = frameID
}

// Config holds the association parameters.
type Config struct {
	TrackThresh float64
	MatchThresh float64
	TrackBuffer int
	FrameRate   int
}

// ConfigFromEngine extracts tracker settings from the engine configuration.
func ConfigFromEngine(e config.EngineConfig) Config {
	return Config{
		TrackThresh: e.TrackThresh,
		MatchThresh: e.MatchThresh,
		TrackBuffer: e.TrackBuffer,
		FrameRate:   e.FrameRate,
	}
}

// Tracker is a single-stream multi-object tracker. It is not safe for
// concurrent use; the engine session serializes calls.
type Tracker struct {
	cfg         Config
	maxTimeLost int

	frameID int
	nextID  int
	tracks  []*strack
}

// New creates a tracker. IDs start at 1.
func New(cfg Config) *Tracker {
	frameRate := cfg.FrameRate
	if frameRate <= 0 {
		frameRate = 30
	}
	return &Tracker{
		cfg:         cfg,
		maxTimeLost: int(float64(frameRate) / 30.0 * float64(cfg.TrackBuffer)),
	}
}

// NewFactory returns a factory producing fresh trackers, used on session reset.
func NewFactory(cfg Config) engine.TrackerFactory {
	return func() engine.Tracker { return New(cfg) }
}

// Update associates detections with existing tracks and returns the confirmed
// tracks updated in this call, ordered by ID.
func (t *Tracker) Update(dets []engine.Detection, _, _ int) []engine.TrackedBox {
	t.frameID++

	var high, low []engine.Detection
	for _, d := range dets {
		switch {
		case d.Confidence >= t.cfg.TrackThresh:
			high = append(high, d)
		case d.Confidence > lowScoreThresh:
			low = append(low, d)
		}
	}

	var pool, unconfirmed []*strack
	for _, s := range t.tracks {
		switch {
		case s.state == stateLost:
			pool = append(pool, s)
		case s.state == stateTracked && s.activated:
			pool = append(pool, s)
		case s.state == stateTracked:
			unconfirmed = append(unconfirmed, s)
		}
	}

	// First pass: confident detections against confirmed and lost tracks,
	// with IoU weighted by detection score.
	matches, poolLeft, highLeft := associate(pool, high, t.cfg.MatchThresh, true)
	for _, m := range matches {
		pool[m.track].update(high[m.det], t.frameID)
	}

	// Second pass: low-confidence detections keep live tracks alive.
	var live []*strack
	for _, i := range poolLeft {
		if pool[i].state == stateTracked {
			live = append(live, pool[i])
		}
	}
	matches, liveLeft, _ := associate(live, low, secondMatchThresh, false)
	for _, m := range matches {
		live[m.track].update(low[m.det], t.frameID)
	}
	for _, i := range liveLeft {
		live[i].state = stateLost
	}

	// Unconfirmed tracks get one chance to be confirmed by a leftover confident detection.
	rest := make([]engine.Detection, 0, len(highLeft))
	for _, i := range highLeft {
		rest = append(rest, high[i])
	}
	matches, unconfirmedLeft, restLeft := associate(unconfirmed, rest, unconfirmedMatchThresh, true)
	for _, m := range matches {
		unconfirmed[m.track].update(rest[m.det], t.frameID)
	}
	for _, i := range unconfirmedLeft {
		unconfirmed[i].state = stateRemoved
	}

	for _, i := range restLeft {
		d := rest[i]
		if d.Confidence < t.cfg.TrackThresh+newTrackMargin {
			continue
		}
		t.nextID++
		t.tracks = append(t.tracks, &strack{
			id:        t.nextID,
			box:       d.Box,
			score:     d.Confidence,
			state:     stateTracked,
			activated: t.frameID == 1,
			frameID:   t.frameID,
		})
	}

	for _, s := range t.tracks {
		if s.state == stateLost && t.frameID-s.frameID > t.maxTimeLost {
			s.state = stateRemoved
		}
	}
	t.tracks = slices.DeleteFunc(t.tracks, func(s *strack) bool { return s.state == stateRemoved })

	var out []engine.TrackedBox
	for _, s := range t.tracks {
		if s.state == stateTracked && s.activated && s.frameID == t.frameID {
			out = append(out, engine.TrackedBox{ID: s.id, Box: s.box, Score: s.score})
		}
	}
	slices.SortFunc(out, func(a, b engine.TrackedBox) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// TrackCount returns the number of tracked and lost tracks held.
func (t *Tracker) TrackCount() int {
	return len(t.tracks)
}

type match struct {
	track int
	det   int
}

// associate greedily pairs tracks and detections by descending similarity.
// Pairs with distance (1 - similarity) above thresh are never matched.
// Returns matches and the unmatched track and detection indices.
func associate(tracks []*strack, dets []engine.Detection, thresh float64, fuseScore bool) ([]match, []int, []int) {
	type candidate struct {
		match
		sim float64
	}

	var candidates []candidate
	for ti, s := range tracks {
		for di, d := range dets {
			sim := facematch.ComputeIoU(s.box, d.Box)
			if fuseScore {
				sim *= d.Confidence
			}
			if 1-sim > thresh {
				continue
			}
			candidates = append(candidates, candidate{match{ti, di}, sim})
		}
	}
	slices.SortStableFunc(candidates, func(a, b candidate) int { return cmp.Compare(b.sim, a.sim) })

	trackUsed := make([]bool, len(tracks))
	detUsed := make([]bool, len(dets))
	var matches []match
	for _, c := range candidates {
		if trackUsed[c.track] || detUsed[c.det] {
			continue
		}
		trackUsed[c.track] = true
		detUsed[c.det] = true
		matches = append(matches, c.match)
	}

	var tracksLeft, detsLeft []int
	for i, used := range trackUsed {
		if !used {
			tracksLeft = append(tracksLeft, i)
		}
	}
	for i, used := range detUsed {
		if !used {
			detsLeft = append(detsLeft, i)
		}
	}
	return matches, tracksLeft, detsLeft
}
