package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignisattend/ignis/internal/store"
)

// AttendanceRepository provides PostgreSQL-backed attendance storage. The
// uq_attendance_once constraint makes Insert idempotent per
// (session, student).
type AttendanceRepository struct {
	pool *Pool
}

func NewAttendanceRepository(pool *Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

func (r *AttendanceRepository) Insert(ctx context.Context, rec *store.AttendanceRecord) (bool, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if rec.Status == "" {
		rec.Status = "present"
	}

	query := `
		INSERT INTO attendance (id, session_id, student_id, ts, status, method, confidence)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT ON CONSTRAINT uq_attendance_once DO NOTHING
	`

	res, err := r.pool.Exec(ctx, query,
		rec.ID, rec.SessionID, rec.StudentID, rec.Timestamp, rec.Status, rec.Method, rec.Confidence,
	)
	if err != nil {
		return false, fmt.Errorf("insert attendance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert attendance rows affected: %w", err)
	}
	return affected == 1, nil
}

func (r *AttendanceRepository) Get(ctx context.Context, sessionID, studentID string) (*store.AttendanceRecord, error) {
	query := `
		SELECT id, session_id, student_id, ts, status, method, confidence
		FROM attendance
		WHERE session_id = $1 AND student_id = $2
	`
	return scanAttendanceRow(r.pool.QueryRow(ctx, query, sessionID, studentID))
}

func (r *AttendanceRepository) LastMark(ctx context.Context, studentID, courseID string) (*store.AttendanceRecord, error) {
	query := `
		SELECT a.id, a.session_id, a.student_id, a.ts, a.status, a.method, a.confidence
		FROM attendance a
		JOIN sessions s ON s.id = a.session_id
		WHERE a.student_id = $1 AND s.course_id = $2
		ORDER BY a.ts DESC
		LIMIT 1
	`
	return scanAttendanceRow(r.pool.QueryRow(ctx, query, studentID, courseID))
}

func (r *AttendanceRepository) ListBySession(ctx context.Context, sessionID string) ([]store.AttendanceRecord, error) {
	query := `
		SELECT id, session_id, student_id, ts, status, method, confidence
		FROM attendance
		WHERE session_id = $1
		ORDER BY ts
	`

	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query attendance: %w", err)
	}
	defer rows.Close()

	var out []store.AttendanceRecord
	for rows.Next() {
		var rec store.AttendanceRecord
		var conf sql.NullFloat64
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.StudentID, &rec.Timestamp,
			&rec.Status, &rec.Method, &conf); err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		if conf.Valid {
			rec.Confidence = &conf.Float64
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance: %w", err)
	}
	return out, nil
}

func (r *AttendanceRepository) Delete(ctx context.Context, sessionID, studentID string) (bool, error) {
	res, err := r.pool.Exec(
		ctx, "DELETE FROM attendance WHERE session_id = $1 AND student_id = $2", sessionID, studentID,
	)
	if err != nil {
		return false, fmt.Errorf("delete attendance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete attendance rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *AttendanceRepository) CountByCourse(ctx context.Context, courseID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM attendance a
		JOIN sessions s ON s.id = a.session_id
		WHERE s.course_id = $1
	`
	var count int
	if err := r.pool.QueryRow(ctx, query, courseID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count attendance: %w", err)
	}
	return count, nil
}

func scanAttendanceRow(row *sql.Row) (*store.AttendanceRecord, error) {
	var rec store.AttendanceRecord
	var conf sql.NullFloat64
	err := row.Scan(&rec.ID, &rec.SessionID, &rec.StudentID, &rec.Timestamp,
		&rec.Status, &rec.Method, &conf)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan attendance: %w", err)
	}
	if conf.Valid {
		rec.Confidence = &conf.Float64
	}
	return &rec, nil
}

// AuditRepository appends manual-change audit entries.
type AuditRepository struct {
	pool *Pool
}

func NewAuditRepository(pool *Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

func (r *AuditRepository) Append(ctx context.Context, entry *store.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO attendance_audit (id, session_id, student_id, lecturer_id, action, reason, ts)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
	`
	if _, err := r.pool.Exec(ctx, query,
		entry.ID, entry.SessionID, entry.StudentID, entry.LecturerID,
		entry.Action, entry.Reason, entry.Timestamp,
	); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (r *AuditRepository) ListBySession(ctx context.Context, sessionID string) ([]store.AuditEntry, error) {
	query := `
		SELECT id, session_id, student_id, lecturer_id, action, COALESCE(reason, ''), ts
		FROM attendance_audit
		WHERE session_id = $1
		ORDER BY ts
	`

	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var out []store.AuditEntry
	for rows.Next() {
		var e store.AuditEntry
		if err := rows.Scan(&e.ID, &e.SessionID, &e.StudentID, &e.LecturerID,
			&e.Action, &e.Reason, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return out, nil
}
