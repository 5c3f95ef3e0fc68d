package store

import (
	"context"
	"time"
)

// UserStore reads user rows. User management itself is owned elsewhere; the
// attendance core only needs lookups for role and existence checks.
type UserStore interface {
	// GetUser returns the user or ErrNotFound.
	GetUser(ctx context.Context, id string) (*User, error)
}

// CourseStore reads course rows.
type CourseStore interface {
	// GetCourse returns the course or ErrNotFound.
	GetCourse(ctx context.Context, id string) (*Course, error)
	// CountEnrolled returns the number of students enrolled in the course.
	CountEnrolled(ctx context.Context, courseID string) (int, error)
}

// SessionStore reads session rows.
type SessionStore interface {
	// GetSession returns the session or ErrNotFound.
	GetSession(ctx context.Context, id string) (*Session, error)
	// ActiveSession returns the course's active session or ErrNotFound.
	ActiveSession(ctx context.Context, courseID string) (*Session, error)
	// CountByCourse returns the number of sessions held for the course.
	CountByCourse(ctx context.Context, courseID string) (int, error)
}

// EnrollmentStore answers the enrollment predicate. The core never writes
// enrollments.
type EnrollmentStore interface {
	IsEnrolled(ctx context.Context, studentID, courseID string) (bool, error)
}

// AttendanceStore persists attendance marks.
type AttendanceStore interface {
	// Insert writes a record if none exists for (session_id, student_id).
	// Returns false without error when the unique constraint suppressed the
	// write; the caller reports that as a duplicate skip.
	Insert(ctx context.Context, rec *AttendanceRecord) (bool, error)
	// Get returns the record for (session, student) or ErrNotFound.
	Get(ctx context.Context, sessionID, studentID string) (*AttendanceRecord, error)
	// LastMark returns the most recent record for the student across all of
	// the course's sessions, or ErrNotFound. Used for cooldown computation.
	LastMark(ctx context.Context, studentID, courseID string) (*AttendanceRecord, error)
	// ListBySession returns all records for a session ordered by timestamp.
	ListBySession(ctx context.Context, sessionID string) ([]AttendanceRecord, error)
	// Delete removes the record for (session, student); false if none existed.
	Delete(ctx context.Context, sessionID, studentID string) (bool, error)
	// CountByCourse returns total marks across all of the course's sessions.
	CountByCourse(ctx context.Context, courseID string) (int, error)
}

// AuditStore appends manual-change audit entries. Entries are never updated
// or deleted.
type AuditStore interface {
	Append(ctx context.Context, entry *AuditEntry) error
	ListBySession(ctx context.Context, sessionID string) ([]AuditEntry, error)
}

// DisputeStore persists attendance disputes.
type DisputeStore interface {
	// Create inserts a pending dispute. Returns ErrDisputePending when the
	// (session, student) pair already has one pending.
	Create(ctx context.Context, d *Dispute) error
	// Get returns the dispute or ErrNotFound.
	Get(ctx context.Context, id string) (*Dispute, error)
	// ListByStudent returns the student's disputes, newest first.
	ListByStudent(ctx context.Context, studentID string) ([]Dispute, error)
	// ListByCourse returns the course's disputes, newest first, optionally
	// filtered by status ("" means all).
	ListByCourse(ctx context.Context, courseID, status string) ([]Dispute, error)
	// Resolve transitions a pending dispute to its final status.
	Resolve(ctx context.Context, id, status, note, resolverID string, at time.Time) error
}

// EmbeddingMetaStore tracks stored embedding artifacts in the database. The
// vector is passed alongside the metadata so backends that can hold it
// (pgvector) keep a durable replica.
type EmbeddingMetaStore interface {
	// Upsert replaces the row for (student_id, view_type).
	Upsert(ctx context.Context, meta *EmbeddingMeta, vector []float32) error
	// ListByStudent returns the student's embedding rows.
	ListByStudent(ctx context.Context, studentID string) ([]EmbeddingMeta, error)
	// DeleteByStudent removes all rows for a student, returning the count.
	DeleteByStudent(ctx context.Context, studentID string) (int, error)
}

// Store bundles every repository the attendance core depends on. Backends
// fill all fields; tests swap in mocks per concern.
type Store struct {
	Users       UserStore
	Courses     CourseStore
	Sessions    SessionStore
	Enrollments EnrollmentStore
	Attendance  AttendanceStore
	Audit       AuditStore
	Disputes    DisputeStore
	Embeddings  EmbeddingMetaStore
}
