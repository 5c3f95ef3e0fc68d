package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignisattend/ignis/internal/store"
	"github.com/lib/pq"
)

// DisputeRepository provides PostgreSQL-backed dispute storage. The partial
// unique index uq_dispute_pending allows at most one pending dispute per
// (session, student).
type DisputeRepository struct {
	pool *Pool
}

func NewDisputeRepository(pool *Pool) *DisputeRepository {
	return &DisputeRepository{pool: pool}
}

func (r *DisputeRepository) Create(ctx context.Context, d *store.Dispute) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = store.DisputePending
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO attendance_disputes
			(id, session_id, course_id, student_id, dispute_type, status, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
	`
	_, err := r.pool.Exec(ctx, query,
		d.ID, d.SessionID, d.CourseID, d.StudentID, d.Type, d.Status, d.Reason, d.CreatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return store.ErrDisputePending
	}
	if err != nil {
		return fmt.Errorf("insert dispute: %w", err)
	}
	return nil
}

func (r *DisputeRepository) Get(ctx context.Context, id string) (*store.Dispute, error) {
	query := disputeSelect + " WHERE id = $1"
	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("query dispute: %w", err)
	}
	defer rows.Close()

	out, err := scanDisputes(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, store.ErrNotFound
	}
	return &out[0], nil
}

func (r *DisputeRepository) ListByStudent(ctx context.Context, studentID string) ([]store.Dispute, error) {
	query := disputeSelect + " WHERE student_id = $1 ORDER BY created_at DESC"
	rows, err := r.pool.Query(ctx, query, studentID)
	if err != nil {
		return nil, fmt.Errorf("query student disputes: %w", err)
	}
	defer rows.Close()
	return scanDisputes(rows)
}

func (r *DisputeRepository) ListByCourse(ctx context.Context, courseID, status string) ([]store.Dispute, error) {
	query := disputeSelect + " WHERE course_id = $1"
	args := []any{courseID}
	if status != "" {
		query += " AND status = $2"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query course disputes: %w", err)
	}
	defer rows.Close()
	return scanDisputes(rows)
}

func (r *DisputeRepository) Resolve(ctx context.Context, id, status, note, resolverID string, at time.Time) error {
	query := `
		UPDATE attendance_disputes
		SET status = $2, resolution_note = NULLIF($3, ''), resolver_id = $4, resolved_at = $5
		WHERE id = $1 AND status = $6
	`
	res, err := r.pool.Exec(ctx, query, id, status, note, resolverID, at, store.DisputePending)
	if err != nil {
		return fmt.Errorf("resolve dispute: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve dispute rows affected: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

const disputeSelect = `
	SELECT id, session_id, course_id, student_id, dispute_type, status,
	       COALESCE(reason, ''), COALESCE(resolution_note, ''),
	       COALESCE(resolver_id, ''), created_at, resolved_at
	FROM attendance_disputes
`

func scanDisputes(rows *sql.Rows) ([]store.Dispute, error) {
	var out []store.Dispute
	for rows.Next() {
		var d store.Dispute
		var resolvedAt sql.NullTime
		if err := rows.Scan(&d.ID, &d.SessionID, &d.CourseID, &d.StudentID,
			&d.Type, &d.Status, &d.Reason, &d.ResolutionNote, &d.ResolverID,
			&d.CreatedAt, &resolvedAt); err != nil {
			return nil, fmt.Errorf("scan dispute: %w", err)
		}
		if resolvedAt.Valid {
			d.ResolvedAt = &resolvedAt.Time
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate disputes: %w", err)
	}
	return out, nil
}
