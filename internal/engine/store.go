package engine

import (
	"slices"

	"github.com/kozaktomas/gatewatch/internal/facematch"
)

// Track is the per-ID state kept for one tracker identity.
type Track struct {
	ID    int
	Votes map[Identity]int

	// First and Last index the observation log. First is the observation
	// immediately preceding Last, not the first sighting; the exit engine
	// derives a one-step velocity from the pair.
	First int
	Last  int

	Seen bool
	Done bool
}

// Store owns the tracks and the append-only observation log of a session.
type Store struct {
	tracks map[int]*Track
	log    []Observation
	maxID  int
}

// NewStore creates an empty track store.
func NewStore() *Store {
	return &Store{tracks: make(map[int]*Track)}
}

// Observe records one tracked box for the given frame and returns the track.
// Known identities add a vote to the track's tally.
func (s *Store) Observe(frame int, tb TrackedBox, identity Identity) *Track {
	t, ok := s.tracks[tb.ID]
	if !ok {
		t = &Track{ID: tb.ID, Votes: make(map[Identity]int)}
		s.tracks[tb.ID] = t
		s.maxID = max(s.maxID, tb.ID)
	}

	if identity.Known() {
		t.Votes[identity]++
	}

	idx := len(s.log)
	if !t.Seen {
		t.Seen = true
		t.Last = idx
	}
	t.First = t.Last
	t.Last = idx

	s.log = append(s.log, observationFromBox(frame, tb, identity))
	return t
}

func observationFromBox(frame int, tb TrackedBox, identity Identity) Observation {
	return Observation{
		Frame:    frame,
		TrackID:  tb.ID,
		Identity: identity,
		X:        tb.Box.X1,
		Y:        tb.Box.Y1,
		Width:    tb.Box.Width(),
		Height:   tb.Box.Height(),
		Score:    tb.Score,
	}
}

// Track returns the track with the given ID.
func (s *Store) Track(id int) (*Track, bool) {
	t, ok := s.tracks[id]
	return t, ok
}

// Tracks returns all tracks ordered by ID.
func (s *Store) Tracks() []*Track {
	out := make([]*Track, 0, len(s.tracks))
	for _, t := range s.tracks {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b *Track) int { return a.ID - b.ID })
	return out
}

// Observation returns the log entry at index i.
func (s *Store) Observation(i int) Observation {
	return s.log[i]
}

// Len returns the observation log length.
func (s *Store) Len() int {
	return len(s.log)
}

// TrackCount returns the number of distinct tracks observed.
func (s *Store) TrackCount() int {
	return len(s.tracks)
}

// MaxTrackID returns the largest track ID observed, zero when empty.
func (s *Store) MaxTrackID() int {
	return s.maxID
}

// LastBox returns the most recent box of a track.
func (s *Store) LastBox(t *Track) facematch.Box {
	o := s.log[t.Last]
	return facematch.Box{X1: o.X, Y1: o.Y, X2: o.X + o.Width, Y2: o.Y + o.Height}
}

// Reset drops every track and the observation log.
func (s *Store) Reset() {
	s.tracks = make(map[int]*Track)
	s.log = nil
	s.maxID = 0
}
