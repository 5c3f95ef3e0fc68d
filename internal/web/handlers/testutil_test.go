package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ignisattend/ignis/internal/attend"
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
}

func (d *stubDetector) Detect(ctx context.Context, frame *faceengine.Frame) ([]faceengine.Detection, error) {
	out := make([]faceengine.Detection, len(d.dets))
	copy(out, d.dets)
	return out, nil
}

// stubEmbedder returns a fixed vector.
type stubEmbedder struct {
	mu  sync.Mutex
	vec []float32
}

func (e *stubEmbedder) Embed(ctx context.Context, crop image.Image) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]float32(nil), e.vec...), nil
}

func (e *stubEmbedder) Dim() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.vec)
}

func (e *stubEmbedder) Name() string { return "stub" }

// testEnv bundles the handlers with the seams handler tests need.
type testEnv struct {
	attendance *AttendanceHandler
	embeddings *EmbeddingsHandler
	disputes   *DisputesHandler
	liveness   *LivenessHandler

	service   *attend.Service
	cfg       *config.Config
	detector  *stubDetector
	embedder  *stubEmbedder
	artifacts *gallery.Store
	mocks     *mock.Fixture
	clock     time.Time
}

// testConfig creates a minimal config for testing
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

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := testConfig()
	detector := &stubDetector{}
	embedder := &stubEmbedder{vec: []float32{1, 0, 0, 0}}
	artifacts := gallery.NewStore(t.TempDir())
	st, mocks := mock.New()

	env := &testEnv{
		cfg:       cfg,
		detector:  detector,
		embedder:  embedder,
		artifacts: artifacts,
		mocks:     mocks,
		clock:     time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	}
	env.service = attend.New(
		cfg,
		&faceengine.Engine{Detector: detector, Embedder: embedder},
		gallery.NewCache(artifacts),
		artifacts,
		liveness.NewVerifier(cfg.Liveness, cfg.Match.BlurThreshold),
		st,
	)
	env.service.SetClock(func() time.Time { return env.clock })

	env.attendance = NewAttendanceHandler(env.service)
	env.embeddings = NewEmbeddingsHandler(env.service)
	env.disputes = NewDisputesHandler(env.service)
	env.liveness = NewLivenessHandler(env.service)
	return env
}

// seedCourse seeds a lecturer, their course, and an active session.
func (env *testEnv) seedCourse(lecturerID, courseID, sessionID string) {
	env.mocks.Users.AddUser(store.User{ID: lecturerID, Role: store.RoleLecturer})
	env.mocks.Courses.AddCourse(store.Course{ID: courseID, LecturerID: lecturerID})
	env.mocks.Sessions.AddSession(store.Session{
		ID:         sessionID,
		CourseID:   courseID,
		LecturerID: lecturerID,
		StartTime:  env.clock,
		Status:     store.SessionActive,
	})
	env.mocks.Attendance.LinkSession(sessionID, courseID)
}

// seedStudent seeds an enrolled student.
func (env *testEnv) seedStudent(studentID, courseID string) {
	env.mocks.Users.AddUser(store.User{ID: studentID, Role: store.RoleStudent})
	env.mocks.Enrollments.Enroll(studentID, courseID)
}

// enrollVector stores a gallery artifact for a student.
func (env *testEnv) enrollVector(t *testing.T, studentID, view string, vec []float32) {
	t.Helper()
	err := env.artifacts.Put(gallery.Artifact{
		StudentID: studentID,
		ViewType:  view,
		Model:     "stub",
		Vector:    vec,
		CreatedAt: env.clock,
	})
	if err != nil {
		t.Fatalf("enroll vector for %s: %v", studentID, err)
	}
}

// faceAt builds a detection covering the given box.
func faceAt(x1, y1, x2, y2 int, score float64) faceengine.Detection {
	return faceengine.Detection{BBox: image.Rect(x1, y1, x2, y2), Score: score}
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

// jsonRequest creates a POST request with a JSON body
func jsonRequest(t *testing.T, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// filePart is one uploaded file in a multipart request.
type filePart struct {
	field string
	name  string
	data  []byte
}

// multipartRequest creates a POST request with form fields and file uploads
func multipartRequest(t *testing.T, path string, fields map[string]string, files ...filePart) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("failed to write form field %s: %v", key, err)
		}
	}
	for _, f := range files {
		part, err := writer.CreateFormFile(f.field, f.name)
		if err != nil {
			t.Fatalf("failed to create form file %s: %v", f.field, err)
		}
		if _, err := io.Copy(part, bytes.NewReader(f.data)); err != nil {
			t.Fatalf("failed to write form file %s: %v", f.field, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if ok, _ := result["ok"].(bool); ok {
		t.Errorf("expected ok=false in error response, body: %s", recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%v'", expectedMessage, result["error"])
	}
}
