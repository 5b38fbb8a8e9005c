package database

import (
	"context"
	"fmt"

	"github.com/kozaktomas/lookalike/internal/config"
)

// PostgresOpener creates a PostgreSQL-backed store.
type PostgresOpener func(ctx context.Context, cfg *config.DatabaseConfig) (EmbeddingStore, error)

var postgresOpener PostgresOpener

// RegisterPostgresBackend registers the PostgreSQL store constructor.
// This is called by the postgres package to avoid import cycles.
func RegisterPostgresBackend(open PostgresOpener) {
	postgresOpener = open
}

// Open returns the embeddings store selected by embeddings.backend.
func Open(ctx context.Context, cfg *config.Config) (EmbeddingStore, error) {
	switch cfg.Embeddings.Backend {
	case "", "file":
		return NewFileStore(cfg.Embeddings.Path), nil
	case "postgres":
		if postgresOpener == nil {
			return nil, fmt.Errorf("PostgreSQL backend not registered")
		}
		return postgresOpener(ctx, &cfg.Database)
	default:
		return nil, fmt.Errorf("unknown embeddings backend %q", cfg.Embeddings.Backend)
	}
}
