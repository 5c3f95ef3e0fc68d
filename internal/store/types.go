// Package store defines the persistence model for attendance: row types,
// repository interfaces, and shared sentinel errors. Concrete backends live
// in the postgres and mock subpackages.
package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrDisputePending is returned when opening a dispute for a
// (session, student) pair that already has one pending.
var ErrDisputePending = errors.New("pending dispute already exists")

// User roles.
const (
	RoleStudent  = "student"
	RoleLecturer = "lecturer"
)

// Session statuses.
const (
	SessionActive = "active"
	SessionEnded  = "ended"
)

// Attendance methods.
const (
	MethodImageUpload = "image_upload"
	MethodLiveVideo   = "live_video"
	MethodManual      = "manual"
)

// Audit actions.
const (
	ActionMark   = "mark"
	ActionUnmark = "unmark"
)

// Dispute types and statuses.
const (
	DisputeMissing   = "missing"
	DisputeIncorrect = "incorrect"

	DisputePending  = "pending"
	DisputeApproved = "approved"
	DisputeRejected = "rejected"
)

// User covers both students and lecturers, discriminated by Role.
type User struct {
	ID         string    `json:"id"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	Identifier string    `json:"identifier"`
	Role       string    `json:"role"`
	Department string    `json:"department"`
	CreatedAt  time.Time `json:"created_at"`
}

// FullName joins the name parts for display.
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// Course is owned by a lecturer; students attach through enrollments.
type Course struct {
	ID         string    `json:"id"`
	Code       string    `json:"course_code"`
	Title      string    `json:"course_title"`
	LecturerID string    `json:"lecturer_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Session is one class meeting. Attendance can only be marked while it is
// active; at most one session per course is active at a time.
type Session struct {
	ID         string     `json:"id"`
	CourseID   string     `json:"course_id"`
	LecturerID string     `json:"lecturer_id"`
	StartTime  time.Time  `json:"start_time"`
	EndTime    *time.Time `json:"end_time,omitempty"`
	Status     string     `json:"status"`
}

// AttendanceRecord is one present mark. The database enforces at most one
// row per (session_id, student_id).
type AttendanceRecord struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	StudentID  string    `json:"student_id"`
	Timestamp  time.Time `json:"timestamp"`
	Status     string    `json:"status"`
	Method     string    `json:"method"`
	Confidence *float64  `json:"confidence,omitempty"`
}

// AuditEntry records a manual attendance change.
type AuditEntry struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	StudentID  string    `json:"student_id"`
	LecturerID string    `json:"lecturer_id"`
	Action     string    `json:"action"`
	Reason     string    `json:"reason,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Dispute is a student-initiated challenge of a session's attendance outcome.
// Only one pending dispute may exist per (session, student).
type Dispute struct {
	ID             string     `json:"id"`
	SessionID      string     `json:"session_id"`
	CourseID       string     `json:"course_id"`
	StudentID      string     `json:"student_id"`
	Type           string     `json:"dispute_type"`
	Status         string     `json:"status"`
	Reason         string     `json:"reason,omitempty"`
	ResolutionNote string     `json:"resolution_note,omitempty"`
	ResolverID     string     `json:"resolver_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}

// EmbeddingMeta is the database-side record of a stored embedding artifact.
// The vector itself lives both in the filesystem artifact (the gallery's
// source of truth) and replicated in the row for durability.
type EmbeddingMeta struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	ViewType  string    `json:"view_type"`
	Path      string    `json:"embedding_path"`
	Model     string    `json:"model_name"`
	Dim       int       `json:"dim"`
	CreatedAt time.Time `json:"created_at"`
}
