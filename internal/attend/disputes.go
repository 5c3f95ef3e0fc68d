package attend

import (
	"context"
	"errors"
	"fmt"

	"github.com/ignisattend/ignis/internal/store"
)

// DisputeRequest opens a student dispute against a session's outcome.
type DisputeRequest struct {
	StudentID string
	SessionID string
	Type      string
	Reason    string
}

// OpenDispute creates a pending dispute. At most one pending dispute may
// exist per (session, student); a second attempt returns
// store.ErrDisputePending.
func (s *Service) OpenDispute(ctx context.Context, req DisputeRequest) (*store.Dispute, error) {
	if req.Type != store.DisputeMissing && req.Type != store.DisputeIncorrect {
		return nil, fmt.Errorf("dispute_type must be %q or %q", store.DisputeMissing, store.DisputeIncorrect)
	}

	student, err := s.requireStudent(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}

	session, err := s.store.Sessions.GetSession(ctx, req.SessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("session %s: %w", req.SessionID, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	enrolled, err := s.store.Enrollments.IsEnrolled(ctx, student.ID, session.CourseID)
	if err != nil {
		return nil, err
	}
	if !enrolled {
		return nil, ErrNotEnrolled
	}

	d := store.Dispute{
		SessionID: session.ID,
		CourseID:  session.CourseID,
		StudentID: student.ID,
		Type:      req.Type,
		Status:    store.DisputePending,
		Reason:    req.Reason,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Disputes.Create(ctx, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// ResolveRequest is a lecturer's decision on a pending dispute.
type ResolveRequest struct {
	LecturerID string
	DisputeID  string
	Approve    bool
	Note       string
}

// ResolveDispute closes a pending dispute. Approving a "missing" dispute
// marks the student; approving an "incorrect" dispute unmarks them. Both
// corrections are audited as manual actions.
func (s *Service) ResolveDispute(ctx context.Context, req ResolveRequest) (*store.Dispute, error) {
	lecturer, err := s.requireLecturer(ctx, req.LecturerID)
	if err != nil {
		return nil, err
	}

	dispute, err := s.store.Disputes.Get(ctx, req.DisputeID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("dispute %s: %w", req.DisputeID, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	session, err := s.store.Sessions.GetSession(ctx, dispute.SessionID)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", dispute.SessionID, err)
	}
	if session.LecturerID != lecturer.ID {
		return nil, ErrNotSessionOwner
	}
	if dispute.Status != store.DisputePending {
		return nil, ErrDisputeResolved
	}

	status := store.DisputeRejected
	if req.Approve {
		status = store.DisputeApproved
		if err := s.applyDisputeFix(ctx, dispute, lecturer.ID); err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	if err := s.store.Disputes.Resolve(ctx, dispute.ID, status, req.Note, lecturer.ID, now); err != nil {
		return nil, err
	}

	dispute.Status = status
	dispute.ResolutionNote = req.Note
	dispute.ResolverID = lecturer.ID
	dispute.ResolvedAt = &now
	return dispute, nil
}

func (s *Service) applyDisputeFix(ctx context.Context, dispute *store.Dispute, lecturerID string) error {
	var action string
	switch dispute.Type {
	case store.DisputeMissing:
		action = store.ActionMark
		rec := store.AttendanceRecord{
			SessionID: dispute.SessionID,
			StudentID: dispute.StudentID,
			Timestamp: s.now().UTC(),
			Method:    store.MethodManual,
		}
		if _, err := s.store.Attendance.Insert(ctx, &rec); err != nil {
			return fmt.Errorf("apply dispute mark: %w", err)
		}
	case store.DisputeIncorrect:
		action = store.ActionUnmark
		if _, err := s.store.Attendance.Delete(ctx, dispute.SessionID, dispute.StudentID); err != nil {
			return fmt.Errorf("apply dispute unmark: %w", err)
		}
	default:
		return fmt.Errorf("unknown dispute type %q", dispute.Type)
	}

	return s.store.Audit.Append(ctx, &store.AuditEntry{
		SessionID:  dispute.SessionID,
		StudentID:  dispute.StudentID,
		LecturerID: lecturerID,
		Action:     action,
		Reason:     "dispute approved: " + dispute.Type,
		Timestamp:  s.now().UTC(),
	})
}

// StudentDisputes lists a student's disputes, newest first.
func (s *Service) StudentDisputes(ctx context.Context, studentID string) ([]store.Dispute, error) {
	if _, err := s.requireStudent(ctx, studentID); err != nil {
		return nil, err
	}
	return s.store.Disputes.ListByStudent(ctx, studentID)
}

// CourseDisputes lists a course's disputes, optionally filtered by status.
func (s *Service) CourseDisputes(ctx context.Context, courseID, status string) ([]store.Dispute, error) {
	if _, err := s.store.Courses.GetCourse(ctx, courseID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("course %s: %w", courseID, store.ErrNotFound)
		}
		return nil, err
	}
	switch status {
	case "", store.DisputePending, store.DisputeApproved, store.DisputeRejected:
	default:
		status = ""
	}
	return s.store.Disputes.ListByCourse(ctx, courseID, status)
}
