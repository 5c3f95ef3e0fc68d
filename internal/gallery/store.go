// Package gallery owns the enrolled-embedding matrix: a filesystem artifact
// store (one file per student view), a cached in-memory gallery rebuilt when
// the artifacts change, and a vectorized cosine-similarity matcher over it.
package gallery

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// View types accepted for enrollment captures.
const (
	ViewFront = "front"
	ViewLeft  = "left"
	ViewRight = "right"
)

// AllViews lists the capture views required for a complete face setup.
var AllViews = []string{ViewFront, ViewLeft, ViewRight}

// ValidView reports whether v names a known capture view.
func ValidView(v string) bool {
	return v == ViewFront || v == ViewLeft || v == ViewRight
}

// Artifact is one persisted embedding: a single vector for a
// (student, view) pair. Re-enrolling a view replaces the prior artifact.
type Artifact struct {
	StudentID string    `json:"student_id"`
	ViewType  string    `json:"view_type"`
	Model     string    `json:"model"`
	Dim       int       `json:"dim"`
	Vector    []float32 `json:"vector"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists artifacts under root/<student_id>/<view>.json. Each file is
// independently mtime-tracked, which the cache uses to detect staleness.
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: root}
}

func (s *Store) path(studentID, viewType string) string {
	return filepath.Join(s.root, studentID, viewType+".json")
}

// ArtifactPath returns where the artifact for a (student, view) pair lives,
// whether or not it exists yet.
func (s *Store) ArtifactPath(studentID, viewType string) string {
	return s.path(studentID, viewType)
}

// Put writes an artifact, replacing any prior vector for the same view.
// The write goes through a temp file and rename so readers never observe a
// partially written artifact.
func (s *Store) Put(a Artifact) error {
	if !ValidView(a.ViewType) {
		return fmt.Errorf("invalid view type %q", a.ViewType)
	}
	if len(a.Vector) == 0 {
		return errors.New("empty embedding vector")
	}
	a.Dim = len(a.Vector)

	dir := filepath.Join(s.root, a.StudentID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create student dir: %w", err)
	}

	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}

	tmp, err := os.CreateTemp(dir, a.ViewType+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(a.StudentID, a.ViewType)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("publish artifact: %w", err)
	}
	return nil
}

// Views returns the set of views already stored for a student.
func (s *Store) Views(studentID string) (map[string]bool, error) {
	views := make(map[string]bool)
	entries, err := os.ReadDir(filepath.Join(s.root, studentID))
	if errors.Is(err, os.ErrNotExist) {
		return views, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read student dir: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if view, ok := strings.CutSuffix(name, ".json"); ok && ValidView(view) {
			views[view] = true
		}
	}
	return views, nil
}

// MissingViews returns the sorted list of views a student has not captured yet.
func (s *Store) MissingViews(studentID string) ([]string, error) {
	have, err := s.Views(studentID)
	if err != nil {
		return nil, err
	}
	var missing []string
	for _, v := range AllViews {
		if !have[v] {
			missing = append(missing, v)
		}
	}
	sort.Strings(missing)
	return missing, nil
}

// DeleteStudent removes every artifact for a student. Returns the number of
// files removed.
func (s *Store) DeleteStudent(studentID string) (int, error) {
	dir := filepath.Join(s.root, studentID)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read student dir: %w", err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return 0, fmt.Errorf("remove student dir: %w", err)
	}
	return len(entries), nil
}

// loadAll reads every artifact, sorted by (student, view) so gallery row
// order is deterministic across rebuilds.
func (s *Store) loadAll() ([]Artifact, error) {
	var out []Artifact

	students, err := os.ReadDir(s.root)
	if errors.Is(err, os.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read embeddings root: %w", err)
	}

	for _, st := range students {
		if !st.IsDir() {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(s.root, st.Name()))
		if err != nil {
			continue
		}
		for _, e := range entries {
			view, ok := strings.CutSuffix(e.Name(), ".json")
			if !ok || !ValidView(view) {
				continue
			}
			data, err := os.ReadFile(s.path(st.Name(), view))
			if err != nil {
				continue
			}
			var a Artifact
			if err := json.Unmarshal(data, &a); err != nil || len(a.Vector) == 0 {
				// Corrupt artifacts are skipped, not fatal.
				continue
			}
			out = append(out, a)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].StudentID != out[j].StudentID {
			return out[i].StudentID < out[j].StudentID
		}
		return out[i].ViewType < out[j].ViewType
	})
	return out, nil
}

// fingerprint summarizes the on-disk state: newest artifact mtime plus the
// artifact count. The count catches removals whose mtime would not advance.
type fingerprint struct {
	latest time.Time
	count  int
}

func (s *Store) fingerprint() (fingerprint, error) {
	var fp fingerprint

	students, err := os.ReadDir(s.root)
	if errors.Is(err, os.ErrNotExist) {
		return fp, nil
	}
	if err != nil {
		return fp, fmt.Errorf("read embeddings root: %w", err)
	}

	for _, st := range students {
		if !st.IsDir() {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(s.root, st.Name()))
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !strings.HasSuffix(e.Name(), ".json") {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			fp.count++
			if info.ModTime().After(fp.latest) {
				fp.latest = info.ModTime()
			}
		}
	}
	return fp, nil
}
