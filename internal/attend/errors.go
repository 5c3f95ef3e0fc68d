// Package attend is the attendance decision core. It runs the scan pipeline
// (decode, detect, quality filter, embed, match), commits attendance marks
// under enrollment, session and cooldown rules, and handles enrollment
// captures, manual overrides and disputes.
package attend

import "errors"

// Request-level errors. These abort the whole request; per-face conditions
// are reported as skip reasons instead.
var (
	ErrNoActiveSession = errors.New("no active session for this course")
	ErrNotCourseOwner  = errors.New("lecturer does not own this course")
	ErrNotSessionOwner = errors.New("lecturer does not own this session")
	ErrNotLecturer     = errors.New("user is not a lecturer")
	ErrNotStudent      = errors.New("user is not a student")
	ErrNotEnrolled     = errors.New("student is not enrolled in this course")
	ErrNoFaceDetected  = errors.New("no face detected in image")
	ErrTooBlurry       = errors.New("image too blurry")
	ErrLivenessFailed  = errors.New("liveness check failed")
	ErrLivenessUnknown = errors.New("liveness check unavailable")
	ErrDisputeResolved = errors.New("dispute already resolved")
)

// Skip reasons attached to faces or candidate students that were not turned
// into attendance records.
const (
	SkipLowDetScore         = "low_det_score"
	SkipUnusableCrop        = "unusable_crop"
	SkipBlurry              = "blurry"
	SkipLivenessFail        = "liveness_fail"
	SkipLivenessUnavailable = "liveness_unavailable"
	SkipNoMatch             = "no_match"
	SkipNotEnrolled         = "not_enrolled"
	SkipCooldown            = "cooldown"
	SkipDuplicate           = "duplicate"
	SkipStudentNotFound     = "student_not_found"
)

// Skip is a structured non-fatal explanation for a dropped face or student.
type Skip struct {
	StudentID string `json:"student_id,omitempty"`
	Reason    string `json:"reason"`
}
