package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ignisattend/ignis/internal/store"
)

// SessionRepository provides PostgreSQL-backed session lookups.
type SessionRepository struct {
	pool *Pool
}

func NewSessionRepository(pool *Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

func (r *SessionRepository) GetSession(ctx context.Context, id string) (*store.Session, error) {
	query := `
		SELECT id, course_id, lecturer_id, start_time, end_time, status
		FROM sessions
		WHERE id = $1
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

func (r *SessionRepository) ActiveSession(ctx context.Context, courseID string) (*store.Session, error) {
	query := `
		SELECT id, course_id, lecturer_id, start_time, end_time, status
		FROM sessions
		WHERE course_id = $1 AND status = $2
		ORDER BY start_time DESC
		LIMIT 1
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, courseID, store.SessionActive))
}

func (r *SessionRepository) CountByCourse(ctx context.Context, courseID string) (int, error) {
	var count int
	err := r.pool.QueryRow(
		ctx, "SELECT COUNT(*) FROM sessions WHERE course_id = $1", courseID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return count, nil
}

func (r *SessionRepository) scanOne(row *sql.Row) (*store.Session, error) {
	var s store.Session
	var endTime sql.NullTime
	err := row.Scan(&s.ID, &s.CourseID, &s.LecturerID, &s.StartTime, &endTime, &s.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	if endTime.Valid {
		s.EndTime = &endTime.Time
	}
	return &s, nil
}
