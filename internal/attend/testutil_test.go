package attend

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/ignisattend/ignis/internal/config"
	"github.com/ignisattend/ignis/internal/faceengine"
	"github.com/ignisattend/ignis/internal/gallery"
	"github.com/ignisattend/ignis/internal/liveness"
	"github.com/ignisattend/ignis/internal/store"
	"github.com/ignisattend/ignis/internal/store/mock"
)

// stubDetector returns a fixed set of detections.
type stubDetector struct {
	dets []faceengine.Detection
	err  error
}

func (d *stubDetector) Detect(ctx context.Context, frame *faceengine.Frame) ([]faceengine.Detection, error) {
	if d.err != nil {
		return nil, d.err
	}
	out := make([]faceengine.Detection, len(d.dets))
	copy(out, d.dets)
	return out, nil
}

// stubEmbedder returns a fixed vector and counts calls, so tests can prove
// which faces reached the embedder.
type stubEmbedder struct {
	mu    sync.Mutex
	vec   []float32
	err   error
	calls int
}

func (e *stubEmbedder) Embed(ctx context.Context, crop image.Image) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return append([]float32(nil), e.vec...), nil
}

func (e *stubEmbedder) Dim() int { return len(e.vec) }

func (e *stubEmbedder) Name() string { return "stub" }

func (e *stubEmbedder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func (e *stubEmbedder) setVector(v []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vec = v
}

// fixture bundles a service with every seam a test may need to reach.
type fixture struct {
	service   *Service
	cfg       *config.Config
	detector  *stubDetector
	embedder  *stubEmbedder
	artifacts *gallery.Store
	mocks     *mock.Fixture
	clock     time.Time
}

func testConfig() *config.Config {
	return &config.Config{
		Match: config.MatchConfig{
			Threshold:     0.80,
			BlurThreshold: 80.0,
			DetThreshold:  0.6,
		},
		Liveness: config.LivenessConfig{
			MinScore:        0.67,
			MinFaceRatio:    0.03,
			MinEyeDistRatio: 0.25,
			ChallengeShift:  0.08,
		},
		Face:     config.FaceConfig{CropPad: 12},
		Cooldown: 5 * time.Minute,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := testConfig()
	detector := &stubDetector{}
	embedder := &stubEmbedder{vec: []float32{1, 0, 0, 0}}
	artifacts := gallery.NewStore(t.TempDir())
	st, mocks := mock.New()

	f := &fixture{
		cfg:       cfg,
		detector:  detector,
		embedder:  embedder,
		artifacts: artifacts,
		mocks:     mocks,
		clock:     time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	}
	f.service = New(
		cfg,
		&faceengine.Engine{Detector: detector, Embedder: embedder},
		gallery.NewCache(artifacts),
		artifacts,
		liveness.NewVerifier(cfg.Liveness, cfg.Match.BlurThreshold),
		st,
	)
	f.service.SetClock(func() time.Time { return f.clock })
	return f
}

// advance moves the service clock forward.
func (f *fixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

// seedCourse seeds a lecturer, their course, and an active session, linked so
// course-scoped attendance queries work.
func (f *fixture) seedCourse(lecturerID, courseID, sessionID string) {
	f.mocks.Users.AddUser(store.User{ID: lecturerID, Role: store.RoleLecturer})
	f.mocks.Courses.AddCourse(store.Course{ID: courseID, LecturerID: lecturerID})
	f.mocks.Sessions.AddSession(store.Session{
		ID:         sessionID,
		CourseID:   courseID,
		LecturerID: lecturerID,
		StartTime:  f.clock,
		Status:     store.SessionActive,
	})
	f.mocks.Attendance.LinkSession(sessionID, courseID)
}

// endSession flips a session to ended and opens a fresh active one.
func (f *fixture) rotateSession(courseID, oldID, newID, lecturerID string) {
	end := f.clock
	f.mocks.Sessions.AddSession(store.Session{
		ID:         oldID,
		CourseID:   courseID,
		LecturerID: lecturerID,
		StartTime:  end.Add(-time.Hour),
		EndTime:    &end,
		Status:     store.SessionEnded,
	})
	f.mocks.Sessions.AddSession(store.Session{
		ID:         newID,
		CourseID:   courseID,
		LecturerID: lecturerID,
		StartTime:  f.clock,
		Status:     store.SessionActive,
	})
	f.mocks.Attendance.LinkSession(newID, courseID)
}

// seedStudent seeds an enrolled student.
func (f *fixture) seedStudent(studentID, courseID string) {
	f.mocks.Users.AddUser(store.User{ID: studentID, Role: store.RoleStudent})
	f.mocks.Enrollments.Enroll(studentID, courseID)
}

// enrollVector stores a gallery artifact for a student.
func (f *fixture) enrollVector(t *testing.T, studentID, view string, vec []float32) {
	t.Helper()
	err := f.artifacts.Put(gallery.Artifact{
		StudentID: studentID,
		ViewType:  view,
		Model:     "stub",
		Vector:    vec,
		CreatedAt: f.clock,
	})
	if err != nil {
		t.Fatalf("enroll vector for %s: %v", studentID, err)
	}
}

// sharpPNG encodes a checkerboard image whose faces clear the blur gate.
func sharpPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.Gray{Y: 0}
			if (x+y)%2 == 0 {
				c = color.Gray{Y: 255}
			}
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// flatPNG encodes a featureless image that fails the blur gate.
func flatPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.Gray{Y: 128})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// faceAt builds a detection covering the given box.
func faceAt(x1, y1, x2, y2 int, score float64) faceengine.Detection {
	return faceengine.Detection{BBox: image.Rect(x1, y1, x2, y2), Score: score}
}

func lecturer(id string) store.User {
	return store.User{ID: id, Role: store.RoleLecturer}
}

func student(id string) store.User {
	return store.User{ID: id, Role: store.RoleStudent}
}

func course(id, lecturerID string) store.Course {
	return store.Course{ID: id, LecturerID: lecturerID}
}
