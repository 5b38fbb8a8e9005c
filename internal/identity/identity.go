// Package identity answers "whose face is this": a 1-nearest-neighbour index over
// face embeddings of a labeled dataset, a label encoder mapping identity names to
// integer codes, and a matcher joining both with the dataset's file list.
package identity

import (
	"errors"
	"math"
)

// EmbeddingDim is the length of the embeddings produced by the face service.
const EmbeddingDim = 512

var (
	// ErrContractViolation is returned when an index is used before it is fitted,
	// with inconsistent inputs, or against a dataset it was not built from.
	ErrContractViolation = errors.New("identity index contract violation")

	// ErrUnknownLabel is returned when encoding a label, or decoding a code, that the
	// encoder was not fitted with.
	ErrUnknownLabel = errors.New("unknown label")
)

// Embedding is a fixed-length face descriptor.
type Embedding = []float32

// EuclideanDistance returns the L2 distance between a and b, which must have the
// same length.
func EuclideanDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
