package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/coder/hnsw"
)

// HNSWIndexMetadata stores metadata for validating cached HNSW indexes.
type HNSWIndexMetadata struct {
	IdentityCount int64     `json:"identity_count"`
	MaxIdentityID int64     `json:"max_identity_id"`
	LastUpdated   time.Time `json:"last_updated"`
	BuildTime     time.Time `json:"build_time"`
	Version       int       `json:"version"` // For future compatibility
}

const hnswMetadataVersion = 1

// ErrIndexNotInitialized is returned when searching an empty index.
var ErrIndexNotInitialized = errors.New("index not initialized")

// HNSWIndex wraps the HNSW graph for gallery embedding search.
type HNSWIndex struct {
	graph      *hnsw.Graph[int64]
	savedGraph *hnsw.SavedGraph[int64] // For persistence
	identities map[int64]*GalleryIdentity
	mu         sync.RWMutex
}

// NewHNSWIndex creates a new empty HNSW index.
func NewHNSWIndex() *HNSWIndex {
	return &HNSWIndex{
		identities: make(map[int64]*GalleryIdentity),
	}
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.CosineDistance
	return g
}

// Build builds the index from a slice of identities.
func (h *HNSWIndex) Build(identities []GalleryIdentity) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.savedGraph = nil
	h.identities = make(map[int64]*GalleryIdentity, len(identities))
	if len(identities) == 0 {
		h.graph = nil
		return
	}

	g := newGraph()
	for i := range identities {
		identity := &identities[i]
		if len(identity.Embedding) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(identity.ID, identity.Embedding))
		h.identities[identity.ID] = identity
	}
	h.graph = g
}

// Search finds the k nearest neighbors to the query embedding.
// Returns identity IDs and their cosine distances.
func (h *HNSWIndex) Search(query []float32, k int) ([]int64, []float64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil && h.savedGraph == nil {
		return nil, nil, ErrIndexNotInitialized
	}

	var neighbors []hnsw.Node[int64]
	if h.savedGraph != nil {
		neighbors = h.savedGraph.Search(query, k)
	} else {
		neighbors = h.graph.Search(query, k)
	}

	ids := make([]int64, 0, len(neighbors))
	distances := make([]float64, 0, len(neighbors))
	for _, n := range neighbors {
		// Nodes of identities removed since the last build are skipped.
		if _, ok := h.identities[n.Key]; !ok {
			continue
		}
		ids = append(ids, n.Key)
		distances = append(distances, CosineDistance(query, n.Value))
	}

	return ids, distances, nil
}

// Get returns the identity for a given ID.
func (h *HNSWIndex) Get(id int64) *GalleryIdentity {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.identities[id]
}

// Count returns the number of indexed identities.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.identities)
}

// IsEmpty returns true if the index has no graph data loaded.
func (h *HNSWIndex) IsEmpty() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.graph == nil && h.savedGraph == nil
}

// MetadataFor describes the given identities for staleness checks.
func MetadataFor(identities []GalleryIdentity) HNSWIndexMetadata {
	meta := HNSWIndexMetadata{IdentityCount: int64(len(identities))}
	for _, identity := range identities {
		meta.MaxIdentityID = max(meta.MaxIdentityID, identity.ID)
		if identity.UpdatedAt.After(meta.LastUpdated) {
			meta.LastUpdated = identity.UpdatedAt
		}
	}
	return meta
}

// Matches reports whether two metadata records describe the same gallery state.
func (m HNSWIndexMetadata) Matches(other HNSWIndexMetadata) bool {
	return m.IdentityCount == other.IdentityCount &&
		m.MaxIdentityID == other.MaxIdentityID &&
		m.LastUpdated.Equal(other.LastUpdated)
}

// SaveWithMetadata persists the index to disk along with metadata for staleness detection.
func (h *HNSWIndex) SaveWithMetadata(path string, metadata HNSWIndexMetadata) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil && h.savedGraph == nil {
		// Remove existing files if index is empty (best-effort cleanup).
		_ = os.Remove(path)
		_ = os.Remove(path + ".meta")
		return nil
	}

	f, err := os.Create(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	if h.savedGraph != nil {
		err = h.savedGraph.Export(f)
	} else {
		err = h.graph.Export(f)
	}
	_ = f.Close()
	if err != nil {
		return fmt.Errorf("failed to export HNSW graph: %w", err)
	}

	metadata.Version = hnswMetadataVersion
	metadata.BuildTime = time.Now()
	metaData, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if err := os.WriteFile(path+".meta", metaData, 0600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}

	return nil
}

// LoadHNSWMetadata loads metadata from a separate .meta file.
func LoadHNSWMetadata(path string) (HNSWIndexMetadata, error) {
	var metadata HNSWIndexMetadata

	data, err := os.ReadFile(path + ".meta") //nolint:gosec // path is from trusted config
	if err != nil {
		return metadata, fmt.Errorf("failed to read metadata file: %w", err)
	}

	if err := json.Unmarshal(data, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return metadata, nil
}

// Load loads the graph from disk and attaches the given identities to it.
// The caller is responsible for checking the metadata first.
func (h *HNSWIndex) Load(path string, identities []GalleryIdentity) error {
	saved, err := hnsw.LoadSavedGraph[int64](path)
	if err != nil {
		return fmt.Errorf("failed to load HNSW index: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.graph = nil
	h.savedGraph = saved
	h.identities = make(map[int64]*GalleryIdentity, len(identities))
	for i := range identities {
		h.identities[identities[i].ID] = &identities[i]
	}
	return nil
}
