package engine

import (
	"cmp"
	"context"
	"fmt"
	"log"
	"time"
)

// ExitEngine decides when tracks have left the monitored area and records
// deduplicated exit events.
type ExitEngine struct {
	votesThreshold int
	timeoutFrames  int
	window         time.Duration
	recorder       ExitRecorder
	now            func() time.Time
}

// NewExitEngine creates an exit engine. A track times out after
// trackBuffer*skipFrames raw frames without an observation.
func NewExitEngine(recorder ExitRecorder, votesThreshold, trackBuffer, skipFrames int, window time.Duration) *ExitEngine {
	return &ExitEngine{
		votesThreshold: votesThreshold,
		timeoutFrames:  trackBuffer * skipFrames,
		window:         window,
		recorder:       recorder,
		now:            time.Now,
	}
}

// ResolveVote picks the identity with the most votes. Ties go to the
// lexicographically smallest name, then the smallest gallery ID.
// ok is false when the tally is empty or the winner has fewer than threshold votes.
func ResolveVote(votes map[Identity]int, threshold int) (Identity, bool) {
	var best Identity
	bestCount := 0
	for id, n := range votes {
		if n > bestCount || (n == bestCount && lessIdentity(id, best)) {
			best, bestCount = id, n
		}
	}
	if bestCount == 0 || bestCount < threshold {
		return Identity{}, false
	}
	return best, true
}

func lessIdentity(a, b Identity) bool {
	if c := cmp.Compare(a.Name, b.Name); c != 0 {
		return c < 0
	}
	return a.ID < b.ID
}

// ProjectX linearly extrapolates the left edge of a track to frameCounter from
// its two referenced observations. ok is false when they share a frame.
func ProjectX(first, last Observation, frameCounter int) (float64, bool) {
	dt := last.Frame - first.Frame
	if dt <= 0 {
		return 0, false
	}
	v := last.X - first.X
	ahead := frameCounter - last.Frame
	return last.X + v*float64(ahead)/float64(dt), true
}

// Evaluate runs the timeout and projection rules over every live track and
// records the identities of tracks that just finished. Returns the names that
// were newly written to the exit log.
func (e *ExitEngine) Evaluate(ctx context.Context, store *Store, frameCounter, frameWidth int) ([]string, error) {
	var candidates []string
	for _, t := range store.Tracks() {
		if t.Done || !t.Seen {
			continue
		}

		first := store.Observation(t.First)
		last := store.Observation(t.Last)

		if frameCounter-last.Frame > e.timeoutFrames {
			t.Done = true
			log.Printf("Track %d done (timeout)", t.ID)
		}

		if x, ok := ProjectX(first, last, frameCounter); ok && x+last.Width > float64(frameWidth) {
			if !t.Done {
				log.Printf("Track %d done (left frame)", t.ID)
			}
			t.Done = true
		}

		if !t.Done {
			continue
		}
		if id, ok := ResolveVote(t.Votes, e.votesThreshold); ok {
			candidates = appendUnique(candidates, id.Name)
		}
	}

	return e.record(ctx, candidates)
}

// Finalize treats the end of the session as an exit for every live track.
func (e *ExitEngine) Finalize(ctx context.Context, store *Store) (*FinalizeResult, error) {
	result := &FinalizeResult{Exits: []string{}, Recorded: []string{}}
	for _, t := range store.Tracks() {
		if t.Done {
			continue
		}
		t.Done = true
		if id, ok := ResolveVote(t.Votes, e.votesThreshold); ok {
			result.Exits = appendUnique(result.Exits, id.Name)
		}
	}

	recorded, err := e.record(ctx, result.Exits)
	if err != nil {
		return result, err
	}
	result.Recorded = append(result.Recorded, recorded...)
	return result, nil
}

func (e *ExitEngine) record(ctx context.Context, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	recorded, err := e.recorder.RecordExits(ctx, names, e.now(), e.window)
	if err != nil {
		return nil, fmt.Errorf("recording exits: %w", err)
	}
	for _, name := range recorded {
		log.Printf("New exit recorded: %s", name)
	}
	return recorded, nil
}

func appendUnique(list []string, name string) []string {
	for _, n := range list {
		if n == name {
			return list
		}
	}
	return append(list, name)
}
