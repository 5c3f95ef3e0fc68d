package attend

import (
	"context"
	"errors"
	"fmt"

	"github.com/ignisattend/ignis/internal/faceengine"
	"github.com/ignisattend/ignis/internal/gallery"
	"github.com/ignisattend/ignis/internal/imaging"
	"github.com/ignisattend/ignis/internal/liveness"
	"github.com/ignisattend/ignis/internal/store"
)

// EnrollRequest is one face-setup capture.
type EnrollRequest struct {
	StudentID string
	ViewType  string
	Image     []byte

	// BlurThreshold overrides the configured default when > 0.
	BlurThreshold float64
}

// EnrollResult reports a stored capture and the remaining setup state.
type EnrollResult struct {
	StudentID    string   `json:"student_id"`
	ViewType     string   `json:"view_type"`
	Model        string   `json:"model_name"`
	Dim          int      `json:"embedding_dim"`
	BlurScore    float64  `json:"blur_score"`
	Completed    bool     `json:"completed"`
	MissingViews []string `json:"missing_views"`

	LivenessChecked bool    `json:"liveness_checked"`
	LivenessScore   float64 `json:"liveness_score"`
	LivenessPass    bool    `json:"liveness_pass"`
}

// AddEmbedding captures one enrollment view: detect the best face, gate on
// blur and liveness, embed, and replace the stored artifact for that view.
// Re-uploading a view overwrites the prior vector.
func (s *Service) AddEmbedding(ctx context.Context, req EnrollRequest) (*EnrollResult, error) {
	if !gallery.ValidView(req.ViewType) {
		return nil, fmt.Errorf("view_type must be one of front, left, right; got %q", req.ViewType)
	}
	blurThreshold := req.BlurThreshold
	if blurThreshold <= 0 {
		blurThreshold = s.cfg.Match.BlurThreshold
	}

	student, err := s.requireStudent(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}

	img, err := imaging.Decode(req.Image)
	if err != nil {
		return nil, err
	}
	frame := &faceengine.Frame{Img: img, Raw: req.Image}

	detections, err := s.engine.Detector.Detect(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}
	if len(detections) == 0 {
		return nil, ErrNoFaceDetected
	}

	best := detections[0]
	for _, det := range detections[1:] {
		if det.Score > best.Score {
			best = det
		}
	}

	crop, ok := imaging.CropPad(img, best.BBox, s.cfg.Face.CropPad)
	if !ok {
		return nil, ErrNoFaceDetected
	}

	result := &EnrollResult{
		StudentID: student.ID,
		ViewType:  req.ViewType,
		BlurScore: imaging.BlurScore(imaging.ToGray(crop)),
	}
	if result.BlurScore < blurThreshold {
		return nil, fmt.Errorf("%w: score %.2f below threshold %.2f",
			ErrTooBlurry, result.BlurScore, blurThreshold)
	}

	if s.cfg.Liveness.Enabled {
		res := s.verifier.Static(liveness.FromDetection(img, best))
		result.LivenessChecked = res.Checked
		result.LivenessScore = res.Score
		result.LivenessPass = res.Pass
		if s.cfg.Liveness.Required {
			if !res.Checked {
				return nil, ErrLivenessUnknown
			}
			if !res.Pass {
				return nil, ErrLivenessFailed
			}
		}
	}

	emb := best.Embedding
	if emb == nil {
		emb, err = s.engine.Embedder.Embed(ctx, crop)
		if err != nil {
			return nil, fmt.Errorf("embed face: %w", err)
		}
	}
	result.Model = s.engine.Embedder.Name()
	result.Dim = len(emb)

	if err := s.artifacts.Put(gallery.Artifact{
		StudentID: student.ID,
		ViewType:  req.ViewType,
		Model:     result.Model,
		Vector:    emb,
		CreatedAt: s.now().UTC(),
	}); err != nil {
		return nil, fmt.Errorf("store embedding artifact: %w", err)
	}

	meta := store.EmbeddingMeta{
		StudentID: student.ID,
		ViewType:  req.ViewType,
		Path:      s.artifacts.ArtifactPath(student.ID, req.ViewType),
		Model:     result.Model,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Embeddings.Upsert(ctx, &meta, emb); err != nil {
		return nil, fmt.Errorf("record embedding: %w", err)
	}

	missing, err := s.artifacts.MissingViews(student.ID)
	if err != nil {
		return nil, err
	}
	result.MissingViews = missing
	result.Completed = len(missing) == 0
	return result, nil
}

// FaceSetupStatus describes a student's stored captures.
type FaceSetupStatus struct {
	StudentID    string                `json:"student_id"`
	Embeddings   []store.EmbeddingMeta `json:"embeddings"`
	Completed    bool                  `json:"completed"`
	MissingViews []string              `json:"missing_views"`
}

// FaceSetup returns the student's enrollment capture state.
func (s *Service) FaceSetup(ctx context.Context, studentID string) (*FaceSetupStatus, error) {
	if _, err := s.requireStudent(ctx, studentID); err != nil {
		return nil, err
	}

	rows, err := s.store.Embeddings.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	missing, err := s.artifacts.MissingViews(studentID)
	if err != nil {
		return nil, err
	}

	if rows == nil {
		rows = []store.EmbeddingMeta{}
	}
	return &FaceSetupStatus{
		StudentID:    studentID,
		Embeddings:   rows,
		Completed:    len(missing) == 0,
		MissingViews: missing,
	}, nil
}

// RemoveStudentEmbeddings deletes a student's artifacts and metadata rows,
// returning the number of artifacts removed.
func (s *Service) RemoveStudentEmbeddings(ctx context.Context, studentID string) (int, error) {
	if _, err := s.requireStudent(ctx, studentID); err != nil {
		return 0, err
	}

	removed, err := s.artifacts.DeleteStudent(studentID)
	if err != nil {
		return 0, fmt.Errorf("remove embedding artifacts: %w", err)
	}
	if _, err := s.store.Embeddings.DeleteByStudent(ctx, studentID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return removed, fmt.Errorf("remove embedding rows: %w", err)
	}
	return removed, nil
}
