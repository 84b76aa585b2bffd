// Package gallery recognizes cropped faces against the enrolled identities.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"math"
	"slices"
	"sync"

	"github.com/kozaktomas/gatewatch/internal/database"
	"github.com/kozaktomas/gatewatch/internal/engine"
)

// ErrEmptyGallery is returned when there is nothing to match against.
var ErrEmptyGallery = errors.New("gallery has no enrolled identities")

// Embedder computes the embedding of a cropped face.
type Embedder interface {
	EmbedFace(ctx context.Context, face image.Image) ([]float32, error)
}

// Match is the best gallery entry for a query embedding.
type Match struct {
	Identity   database.GalleryIdentity
	Similarity float64
}

// Recognizer implements engine.Recognizer over an in-memory copy of the
// gallery. Small galleries are searched exhaustively, larger ones through an
// HNSW index.
type Recognizer struct {
	embedder   Embedder
	threshold  float64
	exactLimit int

	mu         sync.RWMutex
	identities []database.GalleryIdentity
	index      *database.HNSWIndex
}

// NewRecognizer creates a recognizer accepting matches with cosine similarity
// at or above threshold.
func NewRecognizer(embedder Embedder, threshold float64, exactLimit int) *Recognizer {
	return &Recognizer{
		embedder:   embedder,
		threshold:  threshold,
		exactLimit: exactLimit,
	}
}

// Load replaces the in-memory gallery with the stored identities. When
// indexPath is set, a saved HNSW index is reused if it matches the gallery
// and rewritten otherwise. Returns the number of identities loaded.
func (r *Recognizer) Load(ctx context.Context, reader database.GalleryReader, indexPath string) (int, error) {
	identities, err := reader.ListIdentities(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load gallery: %w", err)
	}
	for i := range identities {
		identities[i].Embedding = slices.Clone(identities[i].Embedding)
		normalize(identities[i].Embedding)
	}

	var index *database.HNSWIndex
	if len(identities) > r.exactLimit {
		index, err = buildIndex(identities, indexPath)
		if err != nil {
			return 0, err
		}
	}

	r.mu.Lock()
	r.identities = identities
	r.index = index
	r.mu.Unlock()
	return len(identities), nil
}

func buildIndex(identities []database.GalleryIdentity, path string) (*database.HNSWIndex, error) {
	index := database.NewHNSWIndex()
	meta := database.MetadataFor(identities)

	if path != "" {
		if saved, err := database.LoadHNSWMetadata(path); err == nil && saved.Matches(meta) {
			if err := index.Load(path, identities); err == nil {
				log.Printf("Loaded gallery HNSW index from %s (%d identities)", path, len(identities))
				return index, nil
			}
			log.Printf("Warning: failed to load gallery HNSW index, rebuilding: %v", err)
		}
	}

	index.Build(identities)
	if path != "" {
		if err := index.SaveWithMetadata(path, meta); err != nil {
			log.Printf("Warning: failed to save gallery HNSW index: %v", err)
		}
	}
	return index, nil
}

// Count returns the number of loaded identities.
func (r *Recognizer) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.identities)
}

// Recognize embeds the face and returns the closest identity if it passes the
// similarity threshold.
func (r *Recognizer) Recognize(ctx context.Context, face image.Image) (engine.Identity, bool, error) {
	embedding, err := r.embedder.EmbedFace(ctx, face)
	if err != nil {
		return engine.Identity{}, false, fmt.Errorf("failed to embed face: %w", err)
	}

	m, err := r.Best(embedding)
	if errors.Is(err, ErrEmptyGallery) {
		return engine.Identity{}, false, nil
	}
	if err != nil {
		return engine.Identity{}, false, err
	}
	if m.Similarity < r.threshold {
		return engine.Identity{}, false, nil
	}
	return engine.Identity{ID: m.Identity.ID, Name: m.Identity.Name}, true, nil
}

// Best returns the gallery entry most similar to embedding regardless of
// the threshold. Ties go to the lower ID.
func (r *Recognizer) Best(embedding []float32) (Match, error) {
	query := slices.Clone(embedding)
	normalize(query)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.identities) == 0 {
		return Match{}, ErrEmptyGallery
	}
	if r.index != nil {
		return r.searchIndex(query)
	}
	return r.searchExact(query), nil
}

func (r *Recognizer) searchExact(query []float32) Match {
	best := Match{Similarity: math.Inf(-1)}
	for _, identity := range r.identities {
		sim := database.CosineSimilarity(query, identity.Embedding)
		if sim > best.Similarity {
			best = Match{Identity: identity, Similarity: sim}
		}
	}
	return best
}

func (r *Recognizer) searchIndex(query []float32) (Match, error) {
	ids, distances, err := r.index.Search(query, database.HNSWSearchMultiplier)
	if err != nil {
		return Match{}, fmt.Errorf("gallery search failed: %w", err)
	}
	if len(ids) == 0 {
		return r.searchExact(query), nil
	}

	best := 0
	for i := 1; i < len(ids); i++ {
		if distances[i] < distances[best] || (distances[i] == distances[best] && ids[i] < ids[best]) {
			best = i
		}
	}
	identity := r.index.Get(ids[best])
	if identity == nil {
		return r.searchExact(query), nil
	}
	return Match{Identity: *identity, Similarity: 1 - distances[best]}, nil
}

// normalize scales v to unit length in place. Zero vectors are left alone.
func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
}

var _ engine.Recognizer = (*Recognizer)(nil)
