package gallery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/kozaktomas/gatewatch/internal/database"
	"github.com/kozaktomas/gatewatch/internal/facematch"
	"github.com/kozaktomas/gatewatch/internal/inference"
)

// ErrNoFace is returned when a sample image yields no usable embedding.
var ErrNoFace = errors.New("no face found in sample")

var sampleExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".bmp": true, ".webp": true,
}

// SampleEmbedder embeds enrollment photos.
type SampleEmbedder interface {
	DetectFaces(ctx context.Context, imageData []byte) (*inference.FaceResponse, error)
	EmbedCrop(ctx context.Context, imageData []byte) ([]float32, error)
}

// Person is one sub-directory of the dataset.
type Person struct {
	Name    string
	Key     string
	Samples []string
}

// EnrollResult reports one enrolled person.
type EnrollResult struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Samples int    `json:"samples"`
	Skipped int    `json:"skipped"`
}

// ScanDataset lists the people in dir: one sub-directory per person with their
// sample images. People are ordered by directory name.
func ScanDataset(dir string) ([]Person, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}

	var people []Person
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		files, err := os.ReadDir(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", entry.Name(), err)
		}
		p := Person{
			Name: facematch.DisplayName(entry.Name()),
			Key:  facematch.IdentityKey(entry.Name()),
		}
		for _, f := range files {
			if f.IsDir() || !sampleExtensions[strings.ToLower(filepath.Ext(f.Name()))] {
				continue
			}
			p.Samples = append(p.Samples, filepath.Join(dir, entry.Name(), f.Name()))
		}
		if len(p.Samples) == 0 || p.Key == "" {
			continue
		}
		slices.Sort(p.Samples)
		people = append(people, p)
	}
	slices.SortFunc(people, func(a, b Person) int { return strings.Compare(a.Key, b.Key) })
	return people, nil
}

// Enroller computes mean embeddings and stores them in the gallery.
type Enroller struct {
	embedder SampleEmbedder
	writer   database.GalleryWriter
	model    string
}

// NewEnroller creates an enroller tagging stored embeddings with model.
func NewEnroller(embedder SampleEmbedder, writer database.GalleryWriter, model string) *Enroller {
	return &Enroller{embedder: embedder, writer: writer, model: model}
}

// Enroll embeds every sample of p, stores the normalized mean and returns the
// result. Samples without a face are skipped; a person with no usable sample
// is an error wrapping ErrNoFace.
func (e *Enroller) Enroll(ctx context.Context, p Person) (EnrollResult, error) {
	res := EnrollResult{Name: p.Name}
	var sum []float64

	for _, path := range p.Samples {
		emb, err := e.embedSample(ctx, path)
		if errors.Is(err, ErrNoFace) {
			res.Skipped++
			continue
		}
		if err != nil {
			return res, fmt.Errorf("%s: %w", path, err)
		}

		v := toFloat64(emb)
		if sum == nil {
			sum = v
		} else if len(v) != len(sum) {
			return res, fmt.Errorf("%s: embedding dimension %d, expected %d", path, len(v), len(sum))
		} else {
			floats.Add(sum, v)
		}
		res.Samples++
	}

	if res.Samples == 0 {
		return res, fmt.Errorf("%s: %w", p.Name, ErrNoFace)
	}

	mean := MeanEmbedding(sum, res.Samples)
	identity := &database.GalleryIdentity{
		Name:        p.Name,
		Key:         p.Key,
		Embedding:   mean,
		SampleCount: res.Samples,
		Model:       e.model,
	}
	id, err := e.writer.UpsertIdentity(ctx, identity)
	if err != nil {
		return res, err
	}
	res.ID = id
	return res, nil
}

// embedSample uses the most confident detected face, or embeds the whole image
// when the detector finds none.
func (e *Enroller) embedSample(ctx context.Context, path string) ([]float32, error) {
	data, err := os.ReadFile(path) //nolint:gosec // dataset path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("failed to read sample: %w", err)
	}

	resp, err := e.embedder.DetectFaces(ctx, data)
	if err != nil {
		return nil, err
	}
	var best *inference.FaceDetection
	for i := range resp.Faces {
		f := &resp.Faces[i]
		if len(f.Embedding) == 0 {
			continue
		}
		if best == nil || f.DetScore > best.DetScore {
			best = f
		}
	}
	if best != nil {
		return best.Embedding, nil
	}

	emb, err := e.embedder.EmbedCrop(ctx, data)
	if errors.Is(err, inference.ErrEmptyEmbedding) {
		return nil, ErrNoFace
	}
	return emb, err
}

// MeanEmbedding divides the summed embeddings by n and scales the result to
// unit length.
func MeanEmbedding(sum []float64, n int) []float32 {
	mean := slices.Clone(sum)
	floats.Scale(1/float64(n), mean)
	if norm := floats.Norm(mean, 2); norm > 0 {
		floats.Scale(1/norm, mean)
	}
	out := make([]float32, len(mean))
	for i, x := range mean {
		out[i] = float32(x)
	}
	return out
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
