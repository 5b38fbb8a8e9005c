// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"sync"

	"github.com/kozaktomas/lookalike/internal/database"
)

// MockEmbeddingStore is an in-memory implementation of database.EmbeddingStore.
type MockEmbeddingStore struct {
	mu         sync.RWMutex
	embeddings []database.StoredEmbedding

	// Error injection
	LoadError    error
	CountError   error
	ReplaceError error

	// ReplaceCalls counts successful Replace calls.
	ReplaceCalls int
	Closed       bool
}

// NewMockEmbeddingStore creates a mock store holding the given embeddings.
func NewMockEmbeddingStore(embeddings ...database.StoredEmbedding) *MockEmbeddingStore {
	return &MockEmbeddingStore{embeddings: embeddings}
}

// Load returns a copy of the stored embeddings
func (m *MockEmbeddingStore) Load(ctx context.Context) ([]database.StoredEmbedding, error) {
	if m.LoadError != nil {
		return nil, m.LoadError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]database.StoredEmbedding(nil), m.embeddings...), nil
}

// Count returns the total number of embeddings
func (m *MockEmbeddingStore) Count(ctx context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.embeddings), nil
}

// Replace swaps the stored embeddings
func (m *MockEmbeddingStore) Replace(ctx context.Context, embeddings []database.StoredEmbedding) error {
	if m.ReplaceError != nil {
		return m.ReplaceError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embeddings = append([]database.StoredEmbedding(nil), embeddings...)
	m.ReplaceCalls++
	return nil
}

// Close marks the store closed
func (m *MockEmbeddingStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}
