package attend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ignisattend/ignis/internal/store"
)

// MarkRequest commits attendance for a list of recognized (or manually
// chosen) students against the course's active session.
type MarkRequest struct {
	LecturerID string
	CourseID   string
	Method     string
	StudentIDs []string

	// Confidence applies to every student unless Confidences has a
	// per-student entry.
	Confidence  *float64
	Confidences map[string]float64
}

// MarkedStudent is one committed record.
type MarkedStudent struct {
	StudentID    string    `json:"student_id"`
	AttendanceID string    `json:"attendance_id"`
	Timestamp    time.Time `json:"timestamp"`
	Method       string    `json:"method"`
}

// MarkResult reports committed records and structured skips.
type MarkResult struct {
	CourseID     string          `json:"course_id"`
	SessionID    string          `json:"session_id"`
	MarkedCount  int             `json:"marked_count"`
	SkippedCount int             `json:"skipped_count"`
	Marked       []MarkedStudent `json:"marked"`
	Skipped      []Skip          `json:"skipped"`
}

// Mark applies the attendance state machine per student: existence and role,
// enrollment, cooldown, then a conditional insert. The database's unique
// constraint is the final arbiter; a suppressed insert surfaces as a
// duplicate skip, which makes Mark idempotent per (session, student).
func (s *Service) Mark(ctx context.Context, req MarkRequest) (*MarkResult, error) {
	if req.Method != store.MethodImageUpload && req.Method != store.MethodLiveVideo {
		return nil, fmt.Errorf("method must be %q or %q", store.MethodImageUpload, store.MethodLiveVideo)
	}

	ids := normalizeIDs(req.StudentIDs)
	if len(ids) == 0 {
		return nil, errors.New("student_ids must contain at least one valid id")
	}

	course, session, err := s.activeCourseSession(ctx, req.LecturerID, req.CourseID)
	if err != nil {
		return nil, err
	}

	result := &MarkResult{
		CourseID:  course.ID,
		SessionID: session.ID,
		Marked:    []MarkedStudent{},
		Skipped:   []Skip{},
	}

	for _, sid := range ids {
		student, err := s.store.Users.GetUser(ctx, sid)
		if errors.Is(err, store.ErrNotFound) || (err == nil && student.Role != store.RoleStudent) {
			result.Skipped = append(result.Skipped, Skip{StudentID: sid, Reason: SkipStudentNotFound})
			continue
		}
		if err != nil {
			return nil, err
		}

		enrolled, err := s.store.Enrollments.IsEnrolled(ctx, student.ID, course.ID)
		if err != nil {
			return nil, err
		}
		if !enrolled {
			result.Skipped = append(result.Skipped, Skip{StudentID: student.ID, Reason: SkipNotEnrolled})
			continue
		}

		cooling, err := s.inCooldown(ctx, session.ID, student.ID, course.ID)
		if err != nil {
			return nil, err
		}
		if cooling {
			result.Skipped = append(result.Skipped, Skip{StudentID: student.ID, Reason: SkipCooldown})
			continue
		}

		rec := store.AttendanceRecord{
			SessionID: session.ID,
			StudentID: student.ID,
			Timestamp: s.now().UTC(),
			Method:    req.Method,
		}
		if conf, ok := req.Confidences[student.ID]; ok {
			rec.Confidence = &conf
		} else if req.Confidence != nil {
			rec.Confidence = req.Confidence
		}

		inserted, err := s.store.Attendance.Insert(ctx, &rec)
		if err != nil {
			return nil, fmt.Errorf("insert attendance for %s: %w", student.ID, err)
		}
		if !inserted {
			result.Skipped = append(result.Skipped, Skip{StudentID: student.ID, Reason: SkipDuplicate})
			continue
		}
		result.Marked = append(result.Marked, MarkedStudent{
			StudentID:    student.ID,
			AttendanceID: rec.ID,
			Timestamp:    rec.Timestamp,
			Method:       rec.Method,
		})
	}

	result.MarkedCount = len(result.Marked)
	result.SkippedCount = len(result.Skipped)
	return result, nil
}

// OverrideRequest is a lecturer's manual mark or unmark for one student.
type OverrideRequest struct {
	LecturerID string
	SessionID  string
	StudentID  string
	Action     string
	Reason     string
}

// ManualOverride applies a manual mark or unmark and appends an audit entry.
// Overrides work on any session the lecturer owns, active or ended.
func (s *Service) ManualOverride(ctx context.Context, req OverrideRequest) error {
	if req.Action != store.ActionMark && req.Action != store.ActionUnmark {
		return fmt.Errorf("action must be %q or %q", store.ActionMark, store.ActionUnmark)
	}

	lecturer, err := s.requireLecturer(ctx, req.LecturerID)
	if err != nil {
		return err
	}

	session, err := s.store.Sessions.GetSession(ctx, req.SessionID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("session %s: %w", req.SessionID, store.ErrNotFound)
	}
	if err != nil {
		return err
	}
	if session.LecturerID != lecturer.ID {
		return ErrNotSessionOwner
	}

	student, err := s.requireStudent(ctx, req.StudentID)
	if err != nil {
		return err
	}

	enrolled, err := s.store.Enrollments.IsEnrolled(ctx, student.ID, session.CourseID)
	if err != nil {
		return err
	}
	if !enrolled {
		return ErrNotEnrolled
	}

	switch req.Action {
	case store.ActionMark:
		rec := store.AttendanceRecord{
			SessionID: session.ID,
			StudentID: student.ID,
			Timestamp: s.now().UTC(),
			Method:    store.MethodManual,
		}
		// Existing record wins; the constraint keeps this idempotent.
		if _, err := s.store.Attendance.Insert(ctx, &rec); err != nil {
			return fmt.Errorf("manual mark: %w", err)
		}
	case store.ActionUnmark:
		if _, err := s.store.Attendance.Delete(ctx, session.ID, student.ID); err != nil {
			return fmt.Errorf("manual unmark: %w", err)
		}
	}

	return s.store.Audit.Append(ctx, &store.AuditEntry{
		SessionID:  session.ID,
		StudentID:  student.ID,
		LecturerID: lecturer.ID,
		Action:     req.Action,
		Reason:     req.Reason,
		Timestamp:  s.now().UTC(),
	})
}

// SessionAttendance lists a session's records.
func (s *Service) SessionAttendance(ctx context.Context, sessionID string) ([]store.AttendanceRecord, error) {
	if _, err := s.store.Sessions.GetSession(ctx, sessionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("session %s: %w", sessionID, store.ErrNotFound)
		}
		return nil, err
	}
	return s.store.Attendance.ListBySession(ctx, sessionID)
}

func normalizeIDs(ids []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
