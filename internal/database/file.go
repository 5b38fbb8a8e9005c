package database

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStore keeps embeddings in a single gob file.
type FileStore struct {
	path string
	mu   sync.RWMutex
}

// NewFileStore returns a store backed by path. The file is created on first Replace.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the embeddings. A missing file is an empty store.
func (s *FileStore) Load(_ context.Context) ([]StoredEmbedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read embeddings file: %w", err)
	}

	var export ExportData
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&export); err != nil {
		return nil, fmt.Errorf("failed to decode embeddings: %w", err)
	}
	if export.Version != currentExportVersion {
		return nil, fmt.Errorf("unsupported embeddings file version %d", export.Version)
	}
	return export.Embeddings, nil
}

func (s *FileStore) Count(ctx context.Context) (int, error) {
	embeddings, err := s.Load(ctx)
	if err != nil {
		return 0, err
	}
	return len(embeddings), nil
}

// Replace writes the embeddings through a temporary file so readers never see a
// partial store.
func (s *FileStore) Replace(_ context.Context, embeddings []StoredEmbedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var buf bytes.Buffer
	export := ExportData{Version: currentExportVersion, ExportedAt: time.Now().UTC(), Embeddings: embeddings}
	if err := gob.NewEncoder(&buf).Encode(export); err != nil {
		return fmt.Errorf("failed to encode embeddings: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("failed to create embeddings directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write embeddings file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace embeddings file: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error {
	return nil
}
