// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/kozaktomas/gatewatch/internal/database"
)

// MockExitStore is an in-memory implementation of database.ExitWriter
type MockExitStore struct {
	mu     sync.Mutex
	events []database.ExitEvent
	nextID int64

	// Error injection
	RecordError error
	ListError   error
	RecentError error
	CountError  error
}

// NewMockExitStore creates a new mock exit store
func NewMockExitStore() *MockExitStore {
	return &MockExitStore{}
}

// AddExit appends an exit without dedup checks
func (m *MockExitStore) AddExit(name string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.events = append(m.events, database.ExitEvent{ID: m.nextID, Identity: name, RecordedAt: at})
}

// RecordExits inserts names that have no exit within the trailing window
func (m *MockExitStore) RecordExits(ctx context.Context, names []string, at time.Time, window time.Duration) ([]string, error) {
	if m.RecordError != nil {
		return nil, m.RecordError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	since := at.Add(-window)
	var inserted []string
	for _, name := range names {
		recent := slices.ContainsFunc(m.events, func(e database.ExitEvent) bool {
			return e.Identity == name && !e.RecordedAt.Before(since)
		})
		if recent {
			continue
		}
		m.nextID++
		m.events = append(m.events, database.ExitEvent{ID: m.nextID, Identity: name, RecordedAt: at})
		inserted = append(inserted, name)
	}
	return inserted, nil
}

// ListExits returns all exits ordered by time
func (m *MockExitStore) ListExits(ctx context.Context) ([]database.ExitEvent, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := slices.Clone(m.events)
	slices.SortStableFunc(out, func(a, b database.ExitEvent) int { return a.RecordedAt.Compare(b.RecordedAt) })
	return out, nil
}

// RecentExits returns the distinct identities recorded at or after since
func (m *MockExitStore) RecentExits(ctx context.Context, since time.Time) ([]string, error) {
	if m.RecentError != nil {
		return nil, m.RecentError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for _, e := range m.events {
		if !e.RecordedAt.Before(since) && !slices.Contains(names, e.Identity) {
			names = append(names, e.Identity)
		}
	}
	slices.Sort(names)
	return names, nil
}

// CountExits returns the number of recorded exits
func (m *MockExitStore) CountExits(ctx context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events), nil
}

// MockGallery is an in-memory implementation of database.GalleryWriter
type MockGallery struct {
	mu         sync.RWMutex
	identities map[string]*database.GalleryIdentity
	nextID     int64

	// Error injection
	UpsertError error
	ListError   error
	GetError    error
	CountError  error
	DeleteError error
}

// NewMockGallery creates a new mock gallery
func NewMockGallery() *MockGallery {
	return &MockGallery{identities: make(map[string]*database.GalleryIdentity)}
}

// AddIdentity stores an identity, assigning an ID if it has none
func (m *MockGallery) AddIdentity(identity database.GalleryIdentity) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if identity.ID == 0 {
		m.nextID++
		identity.ID = m.nextID
	} else if identity.ID > m.nextID {
		m.nextID = identity.ID
	}
	identity.Dim = len(identity.Embedding)
	m.identities[identity.Key] = &identity
	return identity.ID
}

// UpsertIdentity inserts or replaces the identity with the same key
func (m *MockGallery) UpsertIdentity(ctx context.Context, identity *database.GalleryIdentity) (int64, error) {
	if m.UpsertError != nil {
		return 0, m.UpsertError
	}
	if identity.Key == "" {
		return 0, fmt.Errorf("identity key is required")
	}
	m.mu.Lock()
	if existing, ok := m.identities[identity.Key]; ok {
		identity.ID = existing.ID
	}
	m.mu.Unlock()
	id := m.AddIdentity(*identity)
	identity.ID = id
	return id, nil
}

// ListIdentities returns all identities ordered by ID
func (m *MockGallery) ListIdentities(ctx context.Context) ([]database.GalleryIdentity, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]database.GalleryIdentity, 0, len(m.identities))
	for _, identity := range m.identities {
		out = append(out, *identity)
	}
	slices.SortFunc(out, func(a, b database.GalleryIdentity) int { return int(a.ID - b.ID) })
	return out, nil
}

// GetIdentity retrieves an identity by key, returns nil if not found
func (m *MockGallery) GetIdentity(ctx context.Context, key string) (*database.GalleryIdentity, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	identity, ok := m.identities[key]
	if !ok {
		return nil, nil
	}
	copied := *identity
	return &copied, nil
}

// CountIdentities returns the number of identities
func (m *MockGallery) CountIdentities(ctx context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.identities), nil
}

// DeleteIdentity removes an identity by key
func (m *MockGallery) DeleteIdentity(ctx context.Context, key string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.identities, key)
	return nil
}

// Verify interface compliance
var (
	_ database.ExitWriter    = (*MockExitStore)(nil)
	_ database.GalleryWriter = (*MockGallery)(nil)
)
