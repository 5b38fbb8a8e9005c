package postgres

import (
	"context"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/lookalike/internal/database"
)

// EmbeddingRepository stores dataset embeddings in the face_embeddings table. Rows
// keep the order they were saved in through the position column.
type EmbeddingRepository struct {
	pool *Pool
}

// NewEmbeddingRepository creates a new PostgreSQL embedding repository
func NewEmbeddingRepository(pool *Pool) *EmbeddingRepository {
	return &EmbeddingRepository{pool: pool}
}

// Load returns every embedding ordered by position
func (r *EmbeddingRepository) Load(ctx context.Context) ([]database.StoredEmbedding, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT path, label, embedding, model, dim, created_at
		FROM face_embeddings
		ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	var out []database.StoredEmbedding
	for rows.Next() {
		var emb database.StoredEmbedding
		var vec pgvector.Vector
		if err := rows.Scan(&emb.Path, &emb.Label, &vec, &emb.Model, &emb.Dim, &emb.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		emb.Embedding = vec.Slice()
		out = append(out, emb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}
	return out, nil
}

// Count returns the total number of embeddings stored
func (r *EmbeddingRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM face_embeddings").Scan(&count); err != nil {
		return 0, fmt.Errorf("count embeddings: %w", err)
	}
	return count, nil
}

// CountByLabels returns the number of embeddings of each of the given labels
func (r *EmbeddingRepository) CountByLabels(ctx context.Context, labels []string) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT label, COUNT(*) FROM face_embeddings
		WHERE label = ANY($1)
		GROUP BY label
	`, pq.Array(labels))
	if err != nil {
		return nil, fmt.Errorf("count embeddings by label: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int, len(labels))
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, fmt.Errorf("scan label count: %w", err)
		}
		counts[label] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate label counts: %w", err)
	}
	return counts, nil
}

// Replace swaps the table contents in one transaction, bulk loading with COPY
func (r *EmbeddingRepository) Replace(ctx context.Context, embeddings []database.StoredEmbedding) error {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM face_embeddings"); err != nil {
		return fmt.Errorf("clear embeddings: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("face_embeddings", "position", "path", "label", "embedding", "model", "dim"))
	if err != nil {
		return fmt.Errorf("prepare copy: %w", err)
	}
	for i, emb := range embeddings {
		if _, err := stmt.ExecContext(ctx, i, emb.Path, emb.Label, pgvector.NewVector(emb.Embedding), emb.Model, emb.Dim); err != nil {
			_ = stmt.Close()
			return fmt.Errorf("copy embedding %s: %w", emb.Path, err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return fmt.Errorf("flush copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("close copy: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit embeddings: %w", err)
	}
	return nil
}

// Close releases the connection pool
func (r *EmbeddingRepository) Close() error {
	return r.pool.Close()
}
