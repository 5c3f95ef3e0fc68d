package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ignisattend/ignis/internal/store"
)

// UserRepository provides PostgreSQL-backed user lookups.
type UserRepository struct {
	pool *Pool
}

func NewUserRepository(pool *Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) GetUser(ctx context.Context, id string) (*store.User, error) {
	query := `
		SELECT id, first_name, last_name, identifier, role, department, created_at
		FROM users
		WHERE id = $1
	`

	var u store.User
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&u.ID, &u.FirstName, &u.LastName, &u.Identifier, &u.Role, &u.Department, &u.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

// CourseRepository provides PostgreSQL-backed course lookups.
type CourseRepository struct {
	pool *Pool
}

func NewCourseRepository(pool *Pool) *CourseRepository {
	return &CourseRepository{pool: pool}
}

func (r *CourseRepository) GetCourse(ctx context.Context, id string) (*store.Course, error) {
	query := `
		SELECT id, course_code, course_title, lecturer_id, created_at
		FROM courses
		WHERE id = $1
	`

	var c store.Course
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.Code, &c.Title, &c.LecturerID, &c.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query course: %w", err)
	}
	return &c, nil
}

func (r *CourseRepository) CountEnrolled(ctx context.Context, courseID string) (int, error) {
	var count int
	err := r.pool.QueryRow(
		ctx, "SELECT COUNT(*) FROM enrollments WHERE course_id = $1", courseID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count enrollments: %w", err)
	}
	return count, nil
}

// EnrollmentRepository answers the enrollment predicate from PostgreSQL.
type EnrollmentRepository struct {
	pool *Pool
}

func NewEnrollmentRepository(pool *Pool) *EnrollmentRepository {
	return &EnrollmentRepository{pool: pool}
}

func (r *EnrollmentRepository) IsEnrolled(ctx context.Context, studentID, courseID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(
		ctx,
		"SELECT EXISTS(SELECT 1 FROM enrollments WHERE student_id = $1 AND course_id = $2)",
		studentID, courseID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return exists, nil
}
