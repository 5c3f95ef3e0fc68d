package attend

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/ignisattend/ignis/internal/store"
)

// AttendanceRate computes a course-level rate as the share of possible marks
// actually made, as a percentage rounded to two decimals. A course with no
// students or no sessions has a rate of 0.
func AttendanceRate(enrolled, sessions, marked int) float64 {
	possible := enrolled * sessions
	if possible <= 0 {
		return 0
	}
	return math.Round(float64(marked)/float64(possible)*100*100) / 100
}

// CourseStats summarizes a course's attendance.
type CourseStats struct {
	CourseID       string  `json:"course_id"`
	EnrolledCount  int     `json:"enrolled_count"`
	SessionCount   int     `json:"session_count"`
	TotalMarked    int     `json:"total_marked"`
	AttendanceRate float64 `json:"attendance_rate"`
}

// CourseAttendanceRate aggregates the course's counters and derives the rate.
func (s *Service) CourseAttendanceRate(ctx context.Context, courseID string) (*CourseStats, error) {
	if _, err := s.store.Courses.GetCourse(ctx, courseID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("course %s: %w", courseID, store.ErrNotFound)
		}
		return nil, err
	}

	enrolled, err := s.store.Courses.CountEnrolled(ctx, courseID)
	if err != nil {
		return nil, err
	}
	sessions, err := s.store.Sessions.CountByCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	marked, err := s.store.Attendance.CountByCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}

	return &CourseStats{
		CourseID:       courseID,
		EnrolledCount:  enrolled,
		SessionCount:   sessions,
		TotalMarked:    marked,
		AttendanceRate: AttendanceRate(enrolled, sessions, marked),
	}, nil
}
