package attend

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/ignisattend/ignis/internal/gallery"
	"github.com/ignisattend/ignis/internal/store"
)

func TestAddEmbeddingStoresArtifactAndMeta(t *testing.T) {
	f := newFixture(t)
	f.seedCourse("lec-1", "course-1", "sess-1")
	f.seedStudent("stu-1", "course-1")
	f.detector.dets = append(f.detector.dets, faceAt(40, 40, 120, 120, 0.95))

	result, err := f.service.AddEmbedding(context.Background(), EnrollRequest{
		StudentID: "stu-1",
		ViewType:  gallery.ViewFront,
		Image:     sharpPNG(t, 200, 200),
	})
	if err != nil {
		t.Fatalf("AddEmbedding() error = %v", err)
	}

	if result.Model != "stub" || result.Dim != 4 {
		t.Errorf("model/dim = %s/%d, want stub/4", result.Model, result.Dim)
	}
	if result.Completed {
		t.Error("Completed = true after a single view")
	}
	if len(result.MissingViews) != 2 {
		t.Errorf("MissingViews = %v, want left and right", result.MissingViews)
	}

	if _, err := os.Stat(f.artifacts.ArtifactPath("stu-1", gallery.ViewFront)); err != nil {
		t.Errorf("artifact file missing: %v", err)
	}
	if vec := f.mocks.Embeddings.Vector("stu-1", gallery.ViewFront); len(vec) != 4 {
		t.Errorf("replicated vector = %v, want 4 dims", vec)
	}
}

func TestAddEmbeddingCompletesAfterAllViews(t *testing.T) {
	f := newFixture(t)
	f.seedCourse("lec-1", "course-1", "sess-1")
	f.seedStudent("stu-1", "course-1")
	f.detector.dets = append(f.detector.dets, faceAt(40, 40, 120, 120, 0.95))

	for i, view := range gallery.AllViews {
		result, err := f.service.AddEmbedding(context.Background(), EnrollRequest{
			StudentID: "stu-1",
			ViewType:  view,
			Image:     sharpPNG(t, 200, 200),
		})
		if err != nil {
			t.Fatalf("AddEmbedding(%s) error = %v", view, err)
		}
		wantDone := i == len(gallery.AllViews)-1
		if result.Completed != wantDone {
			t.Errorf("after %s: Completed = %v, want %v", view, result.Completed, wantDone)
		}
	}

	status, err := f.service.FaceSetup(context.Background(), "stu-1")
	if err != nil {
		t.Fatalf("FaceSetup() error = %v", err)
	}
	if !status.Completed || len(status.Embeddings) != 3 {
		t.Errorf("status = %+v, want completed with 3 embeddings", status)
	}
}

func TestAddEmbeddingReplacesView(t *testing.T) {
	f := newFixture(t)
	f.seedCourse("lec-1", "course-1", "sess-1")
	f.seedStudent("stu-1", "course-1")
	f.detector.dets = append(f.detector.dets, faceAt(40, 40, 120, 120, 0.95))
	ctx := context.Background()

	if _, err := f.service.AddEmbedding(ctx, EnrollRequest{
		StudentID: "stu-1", ViewType: gallery.ViewFront, Image: sharpPNG(t, 200, 200),
	}); err != nil {
		t.Fatalf("AddEmbedding() error = %v", err)
	}

	f.embedder.setVector([]float32{0, 1, 0, 0})
	if _, err := f.service.AddEmbedding(ctx, EnrollRequest{
		StudentID: "stu-1", ViewType: gallery.ViewFront, Image: sharpPNG(t, 200, 200),
	}); err != nil {
		t.Fatalf("re-upload error = %v, re-enrolling a view must replace it", err)
	}

	vec := f.mocks.Embeddings.Vector("stu-1", gallery.ViewFront)
	if len(vec) != 4 || vec[0] != 0 || vec[1] != 1 {
		t.Errorf("stored vector = %v, want the replacement [0 1 0 0]", vec)
	}

	rows, err := f.mocks.Embeddings.ListByStudent(ctx, "stu-1")
	if err != nil || len(rows) != 1 {
		t.Errorf("meta rows = %v (%v), want exactly 1", rows, err)
	}
}

func TestAddEmbeddingInvalidView(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.AddEmbedding(context.Background(), EnrollRequest{
		StudentID: "stu-1",
		ViewType:  "back",
		Image:     sharpPNG(t, 50, 50),
	})
	if err == nil {
		t.Error("AddEmbedding() with invalid view returned nil error")
	}
}

func TestAddEmbeddingNoFace(t *testing.T) {
	f := newFixture(t)
	f.seedCourse("lec-1", "course-1", "sess-1")
	f.seedStudent("stu-1", "course-1")

	_, err := f.service.AddEmbedding(context.Background(), EnrollRequest{
		StudentID: "stu-1",
		ViewType:  gallery.ViewFront,
		Image:     sharpPNG(t, 200, 200),
	})
	if !errors.Is(err, ErrNoFaceDetected) {
		t.Errorf("error = %v, want ErrNoFaceDetected", err)
	}
}

func TestAddEmbeddingTooBlurry(t *testing.T) {
	f := newFixture(t)
	f.seedCourse("lec-1", "course-1", "sess-1")
	f.seedStudent("stu-1", "course-1")
	f.detector.dets = append(f.detector.dets, faceAt(40, 40, 120, 120, 0.95))

	_, err := f.service.AddEmbedding(context.Background(), EnrollRequest{
		StudentID: "stu-1",
		ViewType:  gallery.ViewFront,
		Image:     flatPNG(t, 200, 200),
	})
	if !errors.Is(err, ErrTooBlurry) {
		t.Errorf("error = %v, want ErrTooBlurry", err)
	}
	if f.embedder.callCount() != 0 {
		t.Errorf("embedder called %d times for a blurry capture, want 0", f.embedder.callCount())
	}
}

func TestAddEmbeddingLivenessRequired(t *testing.T) {
	f := newFixture(t)
	f.cfg.Liveness.Enabled = true
	f.cfg.Liveness.Required = true
	f.seedCourse("lec-1", "course-1", "sess-1")
	f.seedStudent("stu-1", "course-1")
	// Sharp but tiny face: clears the blur gate, fails the face-ratio floor.
	f.detector.dets = append(f.detector.dets, faceAt(0, 0, 14, 14, 0.95))

	_, err := f.service.AddEmbedding(context.Background(), EnrollRequest{
		StudentID: "stu-1",
		ViewType:  gallery.ViewFront,
		Image:     sharpPNG(t, 400, 400),
	})
	if !errors.Is(err, ErrLivenessFailed) {
		t.Errorf("error = %v, want ErrLivenessFailed", err)
	}
}

func TestAddEmbeddingLivenessAdvisory(t *testing.T) {
	f := newFixture(t)
	f.cfg.Liveness.Enabled = true
	f.cfg.Liveness.Required = false
	f.seedCourse("lec-1", "course-1", "sess-1")
	f.seedStudent("stu-1", "course-1")
	f.detector.dets = append(f.detector.dets, faceAt(0, 0, 14, 14, 0.95))

	result, err := f.service.AddEmbedding(context.Background(), EnrollRequest{
		StudentID: "stu-1",
		ViewType:  gallery.ViewFront,
		Image:     sharpPNG(t, 400, 400),
	})
	if err != nil {
		t.Fatalf("AddEmbedding() error = %v, advisory liveness must not block", err)
	}
	if !result.LivenessChecked || result.LivenessPass {
		t.Errorf("liveness checked/pass = %v/%v, want true/false",
			result.LivenessChecked, result.LivenessPass)
	}
}

func TestAddEmbeddingPicksBestScoringFace(t *testing.T) {
	f := newFixture(t)
	f.cfg.Liveness.Enabled = true
	f.cfg.Liveness.Required = true
	f.seedCourse("lec-1", "course-1", "sess-1")
	f.seedStudent("stu-1", "course-1")
	// The higher-scoring detection is the large, liveness-passing face. If
	// the selection took the first detection instead, liveness would fail.
	f.detector.dets = append(f.detector.dets,
		faceAt(0, 0, 14, 14, 0.7),
		faceAt(40, 40, 360, 360, 0.99),
	)

	if _, err := f.service.AddEmbedding(context.Background(), EnrollRequest{
		StudentID: "stu-1",
		ViewType:  gallery.ViewFront,
		Image:     sharpPNG(t, 400, 400),
	}); err != nil {
		t.Errorf("AddEmbedding() error = %v, want best-scoring face selected", err)
	}
}

func TestRemoveStudentEmbeddings(t *testing.T) {
	f := newFixture(t)
	f.seedCourse("lec-1", "course-1", "sess-1")
	f.seedStudent("stu-1", "course-1")
	f.detector.dets = append(f.detector.dets, faceAt(40, 40, 120, 120, 0.95))
	ctx := context.Background()

	for _, view := range []string{gallery.ViewFront, gallery.ViewLeft} {
		if _, err := f.service.AddEmbedding(ctx, EnrollRequest{
			StudentID: "stu-1", ViewType: view, Image: sharpPNG(t, 200, 200),
		}); err != nil {
			t.Fatalf("AddEmbedding(%s) error = %v", view, err)
		}
	}

	removed, err := f.service.RemoveStudentEmbeddings(ctx, "stu-1")
	if err != nil {
		t.Fatalf("RemoveStudentEmbeddings() error = %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	rows, _ := f.mocks.Embeddings.ListByStudent(ctx, "stu-1")
	if len(rows) != 0 {
		t.Errorf("meta rows remain after removal: %v", rows)
	}
	status, err := f.service.FaceSetup(ctx, "stu-1")
	if err != nil {
		t.Fatalf("FaceSetup() error = %v", err)
	}
	if status.Completed || len(status.MissingViews) != 3 {
		t.Errorf("status after removal = %+v, want everything missing", status)
	}
}

func TestFaceSetupUnknownStudent(t *testing.T) {
	f := newFixture(t)
	if _, err := f.service.FaceSetup(context.Background(), "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}
