package database

import (
	"context"
	"time"
)

// ExitReader provides read-only access to the exit log
type ExitReader interface {
	// ListExits returns every recorded exit ordered by time
	ListExits(ctx context.Context) ([]ExitEvent, error)
	// RecentExits returns the distinct identities recorded at or after since
	RecentExits(ctx context.Context, since time.Time) ([]string, error)
	// CountExits returns the number of recorded exits
	CountExits(ctx context.Context) (int, error)
}

// ExitWriter provides write access to the exit log
type ExitWriter interface {
	ExitReader

	// RecordExits inserts an exit at time at for every name that has no exit
	// within the trailing window ending at at. The window check and the inserts
	// are atomic with respect to other writers. Returns the inserted names.
	RecordExits(ctx context.Context, names []string, at time.Time, window time.Duration) ([]string, error)
}

// GalleryReader provides read-only access to enrolled identities
type GalleryReader interface {
	// ListIdentities returns all identities ordered by ID
	ListIdentities(ctx context.Context) ([]GalleryIdentity, error)
	// GetIdentity retrieves an identity by normalized key, returns nil if not found
	GetIdentity(ctx context.Context, key string) (*GalleryIdentity, error)
	// CountIdentities returns the number of enrolled identities
	CountIdentities(ctx context.Context) (int, error)
}

// GalleryWriter provides write access to enrolled identities
type GalleryWriter interface {
	GalleryReader

	// UpsertIdentity inserts or replaces the identity with the same key and
	// returns its ID. IDs are stable across re-enrollment.
	UpsertIdentity(ctx context.Context, identity *GalleryIdentity) (int64, error)
	// DeleteIdentity removes an identity by key
	DeleteIdentity(ctx context.Context, key string) error
}
