package database

import (
	"context"
)

// EmbeddingReader provides read-only access to the embeddings of a dataset.
type EmbeddingReader interface {
	// Load returns every embedding in the order it was saved.
	Load(ctx context.Context) ([]StoredEmbedding, error)
	// Count returns the total number of embeddings stored.
	Count(ctx context.Context) (int, error)
}

// EmbeddingWriter provides write access to the embeddings of a dataset.
type EmbeddingWriter interface {
	EmbeddingReader

	// Replace swaps the stored embeddings for the given ones, keeping their order.
	Replace(ctx context.Context, embeddings []StoredEmbedding) error
}

// EmbeddingStore is a writable store that owns resources.
type EmbeddingStore interface {
	EmbeddingWriter
	Close() error
}

// ByPath indexes embeddings by image path.
func ByPath(embeddings []StoredEmbedding) map[string]StoredEmbedding {
	m := make(map[string]StoredEmbedding, len(embeddings))
	for _, e := range embeddings {
		m[e.Path] = e
	}
	return m
}

// LabelCounter is implemented by stores that can aggregate per label without
// loading every vector.
type LabelCounter interface {
	CountByLabels(ctx context.Context, labels []string) (map[string]int, error)
}

// CountByLabels returns the number of stored embeddings of each label, using the
// store's own aggregation when it has one.
func CountByLabels(ctx context.Context, r EmbeddingReader, labels []string) (map[string]int, error) {
	if c, ok := r.(LabelCounter); ok {
		return c.CountByLabels(ctx, labels)
	}
	all, err := r.Load(ctx)
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]bool, len(labels))
	for _, l := range labels {
		wanted[l] = true
	}
	counts := make(map[string]int, len(labels))
	for _, e := range all {
		if wanted[e.Label] {
			counts[e.Label]++
		}
	}
	return counts, nil
}
