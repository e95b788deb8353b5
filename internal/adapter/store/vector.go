package store

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/sourpie/gitknow/internal/domain"
)

// VectorStore handles pgvector-specific operations for file embeddings.
// Vectors are always bound as typed pgvector parameters.
type VectorStore struct {
	store     *PostgresStore
	dimension int
}

// NewVectorStore creates a vector store backed by the given Postgres store.
func NewVectorStore(store *PostgresStore, dimension int) *VectorStore {
	return &VectorStore{store: store, dimension: dimension}
}

func (v *VectorStore) checkDimension(vec []float32) error {
	if v.dimension > 0 && len(vec) != v.dimension {
		return fmt.Errorf("vector has %d dimensions, want %d", len(vec), v.dimension)
	}
	return nil
}

// InsertFileEmbedding persists one file row together with its vector.
func (v *VectorStore) InsertFileEmbedding(ctx context.Context, e *domain.FileEmbedding) error {
	if err := v.checkDimension(e.Vector); err != nil {
		return fmt.Errorf("store embedding: %w", err)
	}

	query := `INSERT INTO file_embeddings (project_id, file_name, source_code, summary, summary_embedding)
	          VALUES ($1, $2, $3, $4, $5)
	          RETURNING id, created_at`

	err := v.store.db.QueryRowxContext(ctx, query,
		e.ProjectID, e.FileName, e.SourceCode, e.Summary, pgvector.NewVector(e.Vector),
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("store embedding: %w", err)
	}
	return nil
}

// CountFileEmbeddings returns how many files are indexed for a project.
func (v *VectorStore) CountFileEmbeddings(ctx context.Context, projectID string) (int, error) {
	var n int
	if err := v.store.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM file_embeddings WHERE project_id = $1`, projectID); err != nil {
		return 0, fmt.Errorf("count embeddings: %w", err)
	}
	return n, nil
}

// ListFileEmbeddings returns every indexed file of a project, without vectors.
func (v *VectorStore) ListFileEmbeddings(ctx context.Context, projectID string) ([]domain.FileEmbedding, error) {
	query := `SELECT id, project_id, file_name, source_code, summary, created_at
	          FROM file_embeddings
	          WHERE project_id = $1
	          ORDER BY created_at, file_name`

	files := []domain.FileEmbedding{}
	if err := v.store.db.SelectContext(ctx, &files, query, projectID); err != nil {
		return nil, fmt.Errorf("list embeddings: %w", err)
	}
	return files, nil
}

// SearchSimilar performs a cosine similarity search scoped to one project.
// Only rows scoring strictly above threshold are returned, best first.
func (v *VectorStore) SearchSimilar(ctx context.Context, projectID string, queryVector []float32, threshold float64, limit int) ([]domain.ScoredFile, error) {
	if err := v.checkDimension(queryVector); err != nil {
		return nil, fmt.Errorf("search similar: %w", err)
	}

	query := `SELECT id, project_id, file_name, source_code, summary, created_at,
	                 1 - (summary_embedding <=> $1) AS similarity
	          FROM file_embeddings
	          WHERE project_id = $2
	            AND 1 - (summary_embedding <=> $1) > $3
	          ORDER BY similarity DESC
	          LIMIT $4`

	results := []domain.ScoredFile{}
	if err := v.store.db.SelectContext(ctx, &results, query,
		pgvector.NewVector(queryVector), projectID, threshold, limit,
	); err != nil {
		return nil, fmt.Errorf("search similar: %w", err)
	}
	return results, nil
}

// DeleteFileEmbeddings removes every indexed file of a project.
func (v *VectorStore) DeleteFileEmbeddings(ctx context.Context, projectID string) error {
	if _, err := v.store.db.ExecContext(ctx,
		`DELETE FROM file_embeddings WHERE project_id = $1`, projectID); err != nil {
		return fmt.Errorf("delete embeddings: %w", err)
	}
	return nil
}

// SQLStore is the Postgres-backed port.Store: relational rows plus vectors.
type SQLStore struct {
	*PostgresStore
	*VectorStore
}

// NewSQLStore combines the relational and vector halves into one store.
func NewSQLStore(pg *PostgresStore, dimension int) *SQLStore {
	return &SQLStore{PostgresStore: pg, VectorStore: NewVectorStore(pg, dimension)}
}
