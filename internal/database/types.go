package database

import (
	"time"
)

// StoredEmbedding is the face embedding of one dataset image.
type StoredEmbedding struct {
	Path      string
	Label     string
	Embedding []float32
	Model     string
	Dim       int
	CreatedAt time.Time
}

// ExportData is the on-disk layout of the file store.
type ExportData struct {
	Version    int
	ExportedAt time.Time
	Embeddings []StoredEmbedding
}

const currentExportVersion = 1
