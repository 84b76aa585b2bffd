package inference

import (
	"context"
	"fmt"
	"image"

	"github.com/kozaktomas/gatewatch/internal/engine"
	"github.com/kozaktomas/gatewatch/internal/facematch"
)

// FaceDetector adapts the inference server's face endpoint to the engine's
// Detector contract. Weak detections are dropped and the remaining boxes are
// padded by a fraction of the frame size.
type FaceDetector struct {
	client        *EmbeddingClient
	minConfidence float64
	padding       float64
}

// NewFaceDetector creates a detector backed by the inference server.
func NewFaceDetector(client *EmbeddingClient, minConfidence, padding float64) *FaceDetector {
	return &FaceDetector{client: client, minConfidence: minConfidence, padding: padding}
}

// Detect encodes the frame, runs detection and post-processes the boxes.
func (d *FaceDetector) Detect(ctx context.Context, frame image.Image) ([]engine.Detection, error) {
	data, err := facematch.EncodeJPEG(frame)
	if err != nil {
		return nil, err
	}

	resp, err := d.client.DetectFaces(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("face detection: %w", err)
	}

	bounds := frame.Bounds()
	return postProcess(resp.Faces, bounds.Dx(), bounds.Dy(), d.minConfidence, d.padding), nil
}

func postProcess(faces []FaceDetection, width, height int, minConfidence, padding float64) []engine.Detection {
	padX := padding * float64(width)
	padY := padding * float64(height)

	var out []engine.Detection
	for _, f := range faces {
		if f.DetScore < minConfidence {
			continue
		}
		box, ok := facematch.BoxFromSlice(f.BBox)
		if !ok {
			continue
		}
		out = append(out, engine.Detection{
			Box:        facematch.Pad(box, padX, padY),
			Confidence: f.DetScore,
		})
	}
	return out
}
