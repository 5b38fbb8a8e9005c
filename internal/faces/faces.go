// Package faces turns single-face images into embeddings using the face service.
package faces

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/kozaktomas/lookalike/internal/fingerprint"
)

var (
	// ErrNoFace is returned when the service finds no face in an image.
	ErrNoFace = errors.New("no face detected")
	// ErrMultipleFaces is returned when an image shows more than one face.
	ErrMultipleFaces = errors.New("more than one face detected")
)

// Detector detects faces and computes their embeddings.
type Detector interface {
	DetectFaces(ctx context.Context, imageData []byte) (*fingerprint.FaceResponse, error)
}

// Face is the embedding of the only face of an image.
type Face struct {
	Embedding []float32
	BBox      []float64
	DetScore  float64
	Model     string
}

// Extractor computes one embedding per image.
type Extractor struct {
	detector Detector
	dim      int
}

// NewExtractor creates an extractor expecting dim-dimensional embeddings.
func NewExtractor(detector Detector, dim int) *Extractor {
	return &Extractor{detector: detector, dim: dim}
}

// Extract returns the embedding of the single face in the image at path.
func (e *Extractor) Extract(ctx context.Context, path string) (Face, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from a dataset listing
	if err != nil {
		return Face{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return e.ExtractBytes(ctx, data)
}

// ExtractBytes is Extract for an encoded image already in memory.
func (e *Extractor) ExtractBytes(ctx context.Context, data []byte) (Face, error) {
	resp, err := e.detector.DetectFaces(ctx, data)
	if err != nil {
		return Face{}, fmt.Errorf("face detection failed: %w", err)
	}

	if resp == nil || len(resp.Faces) == 0 {
		return Face{}, ErrNoFace
	}
	if n := len(resp.Faces); n > 1 {
		return Face{}, fmt.Errorf("%w: %d faces", ErrMultipleFaces, n)
	}

	face := resp.Faces[0]
	if len(face.Embedding) != e.dim {
		return Face{}, fmt.Errorf("face service returned a %d-dimensional embedding, want %d", len(face.Embedding), e.dim)
	}
	return Face{
		Embedding: face.Embedding,
		BBox:      face.BBox,
		DetScore:  face.DetScore,
		Model:     resp.Model,
	}, nil
}
