// Package facecount flags images whose number of detected faces differs from the
// number a dataset allows.
package facecount

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/kozaktomas/lookalike/internal/fingerprint"
	"github.com/kozaktomas/lookalike/internal/logging"
)

// Counter counts the faces visible in an image file.
type Counter interface {
	CountFaces(ctx context.Context, path string) (int, error)
}

// Detector is the part of the face service client the service counter needs.
type Detector interface {
	DetectFaces(ctx context.Context, imageData []byte) (*fingerprint.FaceResponse, error)
}

// ServiceCounter counts faces with the external face service.
type ServiceCounter struct {
	detector Detector
}

// NewServiceCounter wraps a face service client.
func NewServiceCounter(detector Detector) *ServiceCounter {
	return &ServiceCounter{detector: detector}
}

// CountFaces reads the file and returns the number of faces the service detected.
// A response without detections counts as zero faces.
func (c *ServiceCounter) CountFaces(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from a dataset listing
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", path, err)
	}
	resp, err := c.detector.DetectFaces(ctx, data)
	if err != nil {
		return 0, fmt.Errorf("face detection failed for %s: %w", path, err)
	}
	return resp.Count(), nil
}

// Filter applies a Counter to a batch.
type Filter struct {
	counter Counter
	log     *slog.Logger
}

func NewFilter(counter Counter, log *slog.Logger) *Filter {
	return &Filter{counter: counter, log: logging.OrDiscard(log)}
}

// HandleFaceNumber returns the paths, in input order, whose face count is not exactly
// allowed. Detection failures mark the image invalid and the batch continues; only a
// cancelled context stops it early.
func (f *Filter) HandleFaceNumber(ctx context.Context, paths []string, allowed int) ([]string, error) {
	var invalid []string
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("face count interrupted: %w", err)
		}

		n, err := f.counter.CountFaces(ctx, p)
		if err != nil {
			f.log.Warn("face detection failed, marking image invalid", "path", p, "error", err)
			invalid = append(invalid, p)
			continue
		}
		if n != allowed {
			f.log.Debug("unexpected face count", "path", p, "faces", n, "allowed", allowed)
			invalid = append(invalid, p)
		}
	}
	return invalid, nil
}
