package gallery

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(t.TempDir())
}

func putVec(t *testing.T, s *Store, studentID, view string, vec []float32) {
	t.Helper()
	err := s.Put(Artifact{
		StudentID: studentID,
		ViewType:  view,
		Model:     "flatten",
		Vector:    vec,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Put(%s/%s) error = %v", studentID, view, err)
	}
}

func TestValidView(t *testing.T) {
	for _, v := range AllViews {
		if !ValidView(v) {
			t.Errorf("ValidView(%q) = false", v)
		}
	}
	for _, v := range []string{"", "back", "FRONT", "profile"} {
		if ValidView(v) {
			t.Errorf("ValidView(%q) = true", v)
		}
	}
}

func TestPutRejectsInvalidInput(t *testing.T) {
	s := newTestStore(t)
	if err := s.Put(Artifact{StudentID: "s1", ViewType: "back", Vector: []float32{1}}); err == nil {
		t.Error("Put() with invalid view returned nil error")
	}
	if err := s.Put(Artifact{StudentID: "s1", ViewType: ViewFront}); err == nil {
		t.Error("Put() with empty vector returned nil error")
	}
}

func TestViewsAndMissingViews(t *testing.T) {
	s := newTestStore(t)

	missing, err := s.MissingViews("s1")
	if err != nil {
		t.Fatalf("MissingViews() error = %v", err)
	}
	if len(missing) != 3 {
		t.Fatalf("missing views = %v, want all 3", missing)
	}

	putVec(t, s, "s1", ViewFront, []float32{1, 0})
	putVec(t, s, "s1", ViewLeft, []float32{0, 1})

	views, err := s.Views("s1")
	if err != nil {
		t.Fatalf("Views() error = %v", err)
	}
	if !views[ViewFront] || !views[ViewLeft] || views[ViewRight] {
		t.Errorf("views = %v, want front and left only", views)
	}

	missing, err = s.MissingViews("s1")
	if err != nil {
		t.Fatalf("MissingViews() error = %v", err)
	}
	if len(missing) != 1 || missing[0] != ViewRight {
		t.Errorf("missing views = %v, want [right]", missing)
	}
}

func TestDeleteStudent(t *testing.T) {
	s := newTestStore(t)
	putVec(t, s, "s1", ViewFront, []float32{1, 0})
	putVec(t, s, "s1", ViewLeft, []float32{0, 1})
	putVec(t, s, "s2", ViewFront, []float32{1, 1})

	n, err := s.DeleteStudent("s1")
	if err != nil {
		t.Fatalf("DeleteStudent() error = %v", err)
	}
	if n != 2 {
		t.Errorf("DeleteStudent() removed = %d, want 2", n)
	}

	// Deleting again is a no-op.
	n, err = s.DeleteStudent("s1")
	if err != nil || n != 0 {
		t.Errorf("second DeleteStudent() = (%d, %v), want (0, nil)", n, err)
	}

	views, _ := s.Views("s2")
	if !views[ViewFront] {
		t.Error("other student's artifacts were removed")
	}
}

func TestSnapshotEmptyGallery(t *testing.T) {
	c := NewCache(newTestStore(t))

	snap, err := c.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.Len() != 0 || snap.Dim() != 0 {
		t.Errorf("empty snapshot Len/Dim = %d/%d, want 0/0", snap.Len(), snap.Dim())
	}

	match, best, err := snap.Match([]float32{1, 0}, 0.8)
	if err != nil {
		t.Fatalf("Match() on empty gallery error = %v", err)
	}
	if match != nil || best != 0 {
		t.Errorf("Match() on empty gallery = (%v, %v), want (nil, 0)", match, best)
	}
}

func TestMatchIdenticalVector(t *testing.T) {
	s := newTestStore(t)
	putVec(t, s, "s1", ViewFront, []float32{0.5, 0.5, 0.5, 0.5})

	snap, err := NewCache(s).Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	match, best, err := snap.Match([]float32{0.5, 0.5, 0.5, 0.5}, 0.80)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if match == nil {
		t.Fatal("Match() = nil for an identical vector")
	}
	if match.StudentID != "s1" || match.ViewType != ViewFront {
		t.Errorf("match = %s/%s, want s1/front", match.StudentID, match.ViewType)
	}
	if math.Abs(match.Similarity-1) > 1e-6 || math.Abs(best-1) > 1e-6 {
		t.Errorf("similarity = %v (best %v), want ~1.0", match.Similarity, best)
	}
}

func TestMatchBelowThreshold(t *testing.T) {
	s := newTestStore(t)
	putVec(t, s, "s1", ViewFront, []float32{1, 0})

	snap, err := NewCache(s).Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	// Query at cosine 0.79 against the stored vector: just under the cut.
	q := []float32{0.79, float32(math.Sqrt(1 - 0.79*0.79))}
	match, best, err := snap.Match(q, 0.80)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if match != nil {
		t.Errorf("Match() = %+v at similarity %v, want nil below threshold", match, best)
	}
	if math.Abs(best-0.79) > 1e-4 {
		t.Errorf("best similarity = %v, want ~0.79", best)
	}

	// The same query clears a lower threshold.
	match, _, err = snap.Match(q, 0.75)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if match == nil {
		t.Error("Match() = nil at threshold 0.75, want s1")
	}
}

func TestMatchTieKeepsLowestRow(t *testing.T) {
	s := newTestStore(t)
	// Rows load sorted by (student, view), so a-front precedes b-front.
	putVec(t, s, "bbb", ViewFront, []float32{1, 0, 0})
	putVec(t, s, "aaa", ViewFront, []float32{1, 0, 0})

	snap, err := NewCache(s).Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	match, _, err := snap.Match([]float32{1, 0, 0}, 0.8)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if match == nil || match.StudentID != "aaa" {
		t.Errorf("tie resolved to %+v, want student aaa", match)
	}
}

func TestMatchDeterministic(t *testing.T) {
	s := newTestStore(t)
	putVec(t, s, "s1", ViewFront, []float32{1, 2, 3})
	putVec(t, s, "s2", ViewFront, []float32{3, 2, 1})

	snap, err := NewCache(s).Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	q := []float32{2, 2, 2}
	first, firstBest, err := snap.Match(q, 0.5)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	for i := 0; i < 10; i++ {
		got, gotBest, err := snap.Match(q, 0.5)
		if err != nil {
			t.Fatalf("Match() error = %v", err)
		}
		if got.StudentID != first.StudentID || gotBest != firstBest {
			t.Fatalf("run %d: match = %v/%v, first run = %v/%v",
				i, got.StudentID, gotBest, first.StudentID, firstBest)
		}
	}
}

func TestMatchDimensionMismatch(t *testing.T) {
	s := newTestStore(t)
	putVec(t, s, "s1", ViewFront, []float32{1, 0, 0})

	snap, err := NewCache(s).Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	if _, _, err := snap.Match([]float32{1, 0}, 0.8); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Match() error = %v, want ErrDimensionMismatch", err)
	}
}

func TestSnapshotMixedDimensions(t *testing.T) {
	s := newTestStore(t)
	putVec(t, s, "s1", ViewFront, []float32{1, 0, 0})
	putVec(t, s, "s2", ViewFront, []float32{1, 0})

	if _, err := NewCache(s).Snapshot(); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Snapshot() error = %v, want ErrDimensionMismatch", err)
	}
}

func TestTopK(t *testing.T) {
	s := newTestStore(t)
	putVec(t, s, "s1", ViewFront, []float32{1, 0})
	putVec(t, s, "s2", ViewFront, []float32{0, 1})
	putVec(t, s, "s3", ViewFront, []float32{1, 1})

	snap, err := NewCache(s).Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	top, err := snap.TopK([]float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("TopK() error = %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("len(TopK) = %d, want 2", len(top))
	}
	if top[0].StudentID != "s1" {
		t.Errorf("top[0] = %s, want s1", top[0].StudentID)
	}
	if top[1].StudentID != "s3" {
		t.Errorf("top[1] = %s, want s3", top[1].StudentID)
	}
	if top[0].Similarity < top[1].Similarity {
		t.Errorf("TopK not descending: %v", top)
	}

	// k larger than the gallery truncates.
	top, err = snap.TopK([]float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("TopK() error = %v", err)
	}
	if len(top) != 3 {
		t.Errorf("len(TopK) = %d, want 3", len(top))
	}
}

func TestSnapshotRebuildsOnNewArtifact(t *testing.T) {
	s := newTestStore(t)
	c := NewCache(s)
	putVec(t, s, "s1", ViewFront, []float32{1, 0})

	snap, err := c.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", snap.Len())
	}

	putVec(t, s, "s2", ViewFront, []float32{0, 1})

	snap2, err := c.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() after add error = %v", err)
	}
	if snap2.Len() != 2 {
		t.Errorf("Len() after add = %d, want 2", snap2.Len())
	}
	// The old snapshot is untouched.
	if snap.Len() != 1 {
		t.Errorf("old snapshot mutated: Len() = %d", snap.Len())
	}
}

func TestSnapshotCachedWhenUnchanged(t *testing.T) {
	s := newTestStore(t)
	c := NewCache(s)
	putVec(t, s, "s1", ViewFront, []float32{1, 0})

	a, err := c.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	b, err := c.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if a != b {
		t.Error("unchanged store produced a rebuilt snapshot")
	}

	c.Invalidate()
	d, err := c.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() after Invalidate error = %v", err)
	}
	if d.Len() != 1 {
		t.Errorf("Len() after Invalidate = %d, want 1", d.Len())
	}
}

func TestPutReplacesView(t *testing.T) {
	s := newTestStore(t)
	c := NewCache(s)
	putVec(t, s, "s1", ViewFront, []float32{1, 0})
	putVec(t, s, "s1", ViewFront, []float32{0, 1})

	snap, err := c.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.Len() != 1 {
		t.Fatalf("Len() = %d after re-enrolling the same view, want 1", snap.Len())
	}

	// The replacement vector is live: the new direction matches, the old does not.
	match, _, err := snap.Match([]float32{0, 1}, 0.9)
	if err != nil || match == nil {
		t.Fatalf("Match() new direction = (%v, %v), want a hit", match, err)
	}
	match, _, err = snap.Match([]float32{1, 0}, 0.9)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if match != nil {
		t.Errorf("old vector still matches after replacement: %+v", match)
	}
}

func TestCorruptArtifactSkipped(t *testing.T) {
	s := newTestStore(t)
	putVec(t, s, "s1", ViewFront, []float32{1, 0})

	dir := filepath.Join(s.root, "s2")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "front.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	snap, err := NewCache(s).Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.Len() != 1 {
		t.Errorf("Len() = %d, want 1 (corrupt artifact skipped)", snap.Len())
	}
}

func TestArtifactPath(t *testing.T) {
	s := NewStore("/data/embeddings")
	want := filepath.Join("/data/embeddings", "s1", "front.json")
	if got := s.ArtifactPath("s1", ViewFront); got != want {
		t.Errorf("ArtifactPath() = %q, want %q", got, want)
	}
}
