package identity

import (
	"fmt"

	"github.com/kozaktomas/lookalike/internal/catalog"
)

// Match is the closest dataset image for one query embedding.
type Match struct {
	Path     string  `json:"path"`
	Label    string  `json:"label"`
	Code     int     `json:"code"`
	Distance float64 `json:"distance"`
}

// Matcher resolves query embeddings to dataset images and identity labels.
type Matcher struct {
	index   *Index
	encoder *LabelEncoder
	dataset catalog.Batch
}

// NewMatcher checks that dataset is the listing the index was fitted on: same
// length, and same fingerprint when the index recorded one.
func NewMatcher(index *Index, encoder *LabelEncoder, dataset catalog.Batch) (*Matcher, error) {
	if !index.Fitted() {
		return nil, fmt.Errorf("%w: index is not fitted", ErrContractViolation)
	}
	if len(dataset) != index.Len() {
		return nil, fmt.Errorf("%w: dataset has %d images but the index was fitted on %d; retrain the index",
			ErrContractViolation, len(dataset), index.Len())
	}
	if fp := index.Metadata().Fingerprint; fp != "" && fp != formatFingerprint(catalog.Fingerprint(dataset)) {
		return nil, fmt.Errorf("%w: dataset changed since the index was fitted; retrain the index", ErrContractViolation)
	}
	return &Matcher{index: index, encoder: encoder, dataset: dataset}, nil
}

// Match returns the nearest dataset image for every embedding, in input order.
func (m *Matcher) Match(embeddings [][]float32) ([]Match, error) {
	neighbors, err := m.index.Query(embeddings)
	if err != nil {
		return nil, err
	}

	codes := make([]int, len(neighbors))
	for i, n := range neighbors {
		codes[i] = n.Code
	}
	labels, err := m.encoder.Decode(codes)
	if err != nil {
		return nil, err
	}

	out := make([]Match, len(neighbors))
	for i, n := range neighbors {
		out[i] = Match{
			Path:     m.dataset[n.Row].Path,
			Label:    labels[i],
			Code:     n.Code,
			Distance: n.Distance,
		}
	}
	return out, nil
}
