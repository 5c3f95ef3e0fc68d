package attend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignisattend/ignis/internal/config"
	"github.com/ignisattend/ignis/internal/faceengine"
	"github.com/ignisattend/ignis/internal/gallery"
	"github.com/ignisattend/ignis/internal/liveness"
	"github.com/ignisattend/ignis/internal/store"
)

// Service wires the face engine, gallery, liveness verifier and persistence
// into the attendance operations.
type Service struct {
	cfg       *config.Config
	engine    *faceengine.Engine
	gallery   *gallery.Cache
	artifacts *gallery.Store
	verifier  *liveness.Verifier
	store     *store.Store

	// now is swappable for cooldown tests.
	now func() time.Time
}

func New(
	cfg *config.Config,
	engine *faceengine.Engine,
	cache *gallery.Cache,
	artifacts *gallery.Store,
	verifier *liveness.Verifier,
	st *store.Store,
) *Service {
	return &Service{
		cfg:       cfg,
		engine:    engine,
		gallery:   cache,
		artifacts: artifacts,
		verifier:  verifier,
		store:     st,
		now:       time.Now,
	}
}

// SetClock overrides the service clock.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// requireLecturer loads a user and checks the lecturer role.
func (s *Service) requireLecturer(ctx context.Context, id string) (*store.User, error) {
	u, err := s.store.Users.GetUser(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("lecturer %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if u.Role != store.RoleLecturer {
		return nil, ErrNotLecturer
	}
	return u, nil
}

// requireStudent loads a user and checks the student role.
func (s *Service) requireStudent(ctx context.Context, id string) (*store.User, error) {
	u, err := s.store.Users.GetUser(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("student %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if u.Role != store.RoleStudent {
		return nil, ErrNotStudent
	}
	return u, nil
}

// activeCourseSession resolves the lecturer's course and its active session.
func (s *Service) activeCourseSession(ctx context.Context, lecturerID, courseID string) (*store.Course, *store.Session, error) {
	lecturer, err := s.requireLecturer(ctx, lecturerID)
	if err != nil {
		return nil, nil, err
	}

	course, err := s.store.Courses.GetCourse(ctx, courseID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, fmt.Errorf("course %s: %w", courseID, store.ErrNotFound)
	}
	if err != nil {
		return nil, nil, err
	}
	if course.LecturerID != lecturer.ID {
		return nil, nil, ErrNotCourseOwner
	}

	session, err := s.store.Sessions.ActiveSession(ctx, course.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, ErrNoActiveSession
	}
	if err != nil {
		return nil, nil, err
	}
	return course, session, nil
}

// inCooldown reports whether a student should be skipped: either a record
// already exists for this session, or the most recent mark in the course is
// within the cooldown window. Cooldown is scoped to (student, course), so a
// mark in one session suppresses marks in another session of the same course
// until the window passes.
func (s *Service) inCooldown(ctx context.Context, sessionID, studentID, courseID string) (bool, error) {
	if _, err := s.store.Attendance.Get(ctx, sessionID, studentID); err == nil {
		return true, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return false, err
	}

	if s.cfg.Cooldown <= 0 {
		return false, nil
	}
	last, err := s.store.Attendance.LastMark(ctx, studentID, courseID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return s.now().Sub(last.Timestamp) < s.cfg.Cooldown, nil
}
