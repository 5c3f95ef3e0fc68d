package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignisattend/ignis/internal/store"
	"github.com/pgvector/pgvector-go"
)

// EmbeddingRepository tracks embedding artifacts in PostgreSQL. The vector is
// replicated into a pgvector column so the database holds a durable copy of
// what the filesystem artifacts contain.
type EmbeddingRepository struct {
	pool *Pool
}

func NewEmbeddingRepository(pool *Pool) *EmbeddingRepository {
	return &EmbeddingRepository{pool: pool}
}

func (r *EmbeddingRepository) Upsert(ctx context.Context, meta *store.EmbeddingMeta, vector []float32) error {
	if meta.ID == "" {
		meta.ID = uuid.NewString()
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}
	meta.Dim = len(vector)

	query := `
		INSERT INTO face_embeddings
			(id, student_id, view_type, embedding_path, model_name, dim, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT ON CONSTRAINT uq_student_viewtype DO UPDATE SET
			embedding_path = EXCLUDED.embedding_path,
			model_name = EXCLUDED.model_name,
			dim = EXCLUDED.dim,
			embedding = EXCLUDED.embedding,
			created_at = EXCLUDED.created_at
	`
	if _, err := r.pool.Exec(ctx, query,
		meta.ID, meta.StudentID, meta.ViewType, meta.Path, meta.Model, meta.Dim,
		pgvector.NewVector(vector), meta.CreatedAt,
	); err != nil {
		return fmt.Errorf("upsert embedding: %w", err)
	}
	return nil
}

func (r *EmbeddingRepository) ListByStudent(ctx context.Context, studentID string) ([]store.EmbeddingMeta, error) {
	query := `
		SELECT id, student_id, view_type, embedding_path, model_name, dim, created_at
		FROM face_embeddings
		WHERE student_id = $1
		ORDER BY view_type
	`

	rows, err := r.pool.Query(ctx, query, studentID)
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	var out []store.EmbeddingMeta
	for rows.Next() {
		var m store.EmbeddingMeta
		if err := rows.Scan(&m.ID, &m.StudentID, &m.ViewType, &m.Path,
			&m.Model, &m.Dim, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}
	return out, nil
}

func (r *EmbeddingRepository) DeleteByStudent(ctx context.Context, studentID string) (int, error) {
	res, err := r.pool.Exec(ctx, "DELETE FROM face_embeddings WHERE student_id = $1", studentID)
	if err != nil {
		return 0, fmt.Errorf("delete embeddings: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete embeddings rows affected: %w", err)
	}
	return int(affected), nil
}
