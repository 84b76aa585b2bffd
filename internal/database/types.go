package database

import (
	"time"
)

// ExitEvent is one persisted exit: an identity leaving the monitored area.
type ExitEvent struct {
	ID         int64
	Identity   string
	RecordedAt time.Time
}

// GalleryIdentity is one enrolled person in the recognition gallery.
// Embedding is the L2-normalized mean of the enrollment samples.
type GalleryIdentity struct {
	ID          int64
	Name        string // display name
	Key         string // normalized name, unique
	Embedding   []float32
	SampleCount int
	Model       string
	Dim         int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
