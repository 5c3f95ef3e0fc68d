package attend

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/ignisattend/ignis/internal/faceengine"
	"github.com/ignisattend/ignis/internal/gallery"
	"github.com/ignisattend/ignis/internal/imaging"
	"github.com/ignisattend/ignis/internal/liveness"
)

// ScanRequest is one attendance scan: a class photo or camera frame uploaded
// by the course's lecturer.
type ScanRequest struct {
	LecturerID string
	CourseID   string
	Image      []byte

	// Threshold and BlurThreshold override the configured defaults when > 0.
	Threshold     float64
	BlurThreshold float64
	// Liveness overrides the configured per-scan liveness toggle when set.
	Liveness *bool
	// TopK enables per-face nearest-neighbor diagnostics when > 0.
	TopK int
}

// FaceReport describes one detected face's journey through the pipeline.
// SkipReason is empty for faces that produced a candidate.
type FaceReport struct {
	BBox       [4]int                  `json:"bbox"`
	DetScore   float64                 `json:"det_score"`
	BlurScore  float64                 `json:"blur_score,omitempty"`
	Liveness   *liveness.StaticResult  `json:"liveness,omitempty"`
	StudentID  string                  `json:"student_id,omitempty"`
	Similarity float64                 `json:"similarity,omitempty"`
	TopK       []gallery.Match         `json:"top_k,omitempty"`
	SkipReason string                  `json:"skip_reason,omitempty"`
}

// CandidateMatch is an accepted identity from a scan.
type CandidateMatch struct {
	StudentID  string  `json:"student_id"`
	Similarity float64 `json:"similarity"`

	LivenessChecked bool    `json:"liveness_checked"`
	LivenessScore   float64 `json:"liveness_score"`
	LivenessPass    bool    `json:"liveness_pass"`
}

// Timings breaks a scan down by pipeline phase, in milliseconds.
type Timings struct {
	Decode float64 `json:"decode"`
	Detect float64 `json:"detect_embed"`
	Match  float64 `json:"match"`
	Total  float64 `json:"total"`
}

// ScanResult is the outcome of a scan. A result with zero matches is normal,
// not an error.
type ScanResult struct {
	SessionID     string           `json:"session_id"`
	CourseID      string           `json:"course_id"`
	DetectedFaces int              `json:"detected_faces"`
	MatchedCount  int              `json:"matched_count"`
	StudentIDs    []string         `json:"student_ids"`
	Matches       []CandidateMatch `json:"matches"`
	Faces         []FaceReport     `json:"faces"`
	Timings       Timings          `json:"timings_ms"`
}

// Scan runs the full recognition pipeline against the course's active
// session. Candidates that fail enrollment or cooldown checks are reported
// as skips; they are not committed here. Mark commits the surviving IDs.
func (s *Service) Scan(ctx context.Context, req ScanRequest) (*ScanResult, error) {
	course, session, err := s.activeCourseSession(ctx, req.LecturerID, req.CourseID)
	if err != nil {
		return nil, err
	}

	threshold := req.Threshold
	if threshold <= 0 {
		threshold = s.cfg.Match.Threshold
	}
	blurThreshold := req.BlurThreshold
	if blurThreshold <= 0 {
		blurThreshold = s.cfg.Match.BlurThreshold
	}
	livenessEnabled := s.cfg.Liveness.Enabled && s.cfg.Liveness.AttendanceEnabled
	if req.Liveness != nil {
		livenessEnabled = *req.Liveness
	}

	t0 := time.Now()
	img, err := imaging.Decode(req.Image)
	if err != nil {
		return nil, err
	}
	frame := &faceengine.Frame{Img: img, Raw: req.Image}
	tDecode := time.Now()

	snap, err := s.gallery.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("load gallery: %w", err)
	}

	detections, err := s.engine.Detector.Detect(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}
	tDetect := time.Now()

	result := &ScanResult{
		SessionID:  session.ID,
		CourseID:   course.ID,
		StudentIDs: []string{},
		Matches:    []CandidateMatch{},
	}
	result.DetectedFaces = len(detections)

	seen := make(map[string]bool)
	for _, det := range detections {
		report := FaceReport{
			BBox:     [4]int{det.BBox.Min.X, det.BBox.Min.Y, det.BBox.Max.X, det.BBox.Max.Y},
			DetScore: det.Score,
		}

		face, ok := s.evaluateFace(ctx, img, det, blurThreshold, livenessEnabled, &report)
		if ok {
			if err := s.matchCandidate(ctx, snap, face, threshold, req.TopK, course.ID, session.ID, seen, result, &report); err != nil {
				return nil, err
			}
		}
		result.Faces = append(result.Faces, report)
	}

	tMatch := time.Now()
	result.MatchedCount = len(result.StudentIDs)
	result.Timings = Timings{
		Decode: durMS(t0, tDecode),
		Detect: durMS(tDecode, tDetect),
		Match:  durMS(tDetect, tMatch),
		Total:  durMS(t0, tMatch),
	}
	return result, nil
}

// evaluatedFace is a detection that survived the quality and liveness gates.
type evaluatedFace struct {
	det      faceengine.Detection
	crop     image.Image
	liveness liveness.StaticResult
	checked  bool
}

// evaluateFace applies the det-score, crop, blur and liveness gates. The
// embedder is never consulted here; blurry faces must not reach it.
func (s *Service) evaluateFace(
	ctx context.Context,
	img image.Image,
	det faceengine.Detection,
	blurThreshold float64,
	livenessEnabled bool,
	report *FaceReport,
) (*evaluatedFace, bool) {
	if det.Score < s.cfg.Match.DetThreshold {
		report.SkipReason = SkipLowDetScore
		return nil, false
	}

	crop, ok := imaging.CropPad(img, det.BBox, s.cfg.Face.CropPad)
	if !ok {
		// Box fell entirely outside the frame after clamping.
		report.SkipReason = SkipUnusableCrop
		return nil, false
	}

	blur := imaging.BlurScore(imaging.ToGray(crop))
	report.BlurScore = blur
	if blur < blurThreshold {
		report.SkipReason = SkipBlurry
		return nil, false
	}

	face := &evaluatedFace{det: det, crop: crop}
	if livenessEnabled {
		res := s.verifier.Static(liveness.FromDetection(img, det))
		report.Liveness = &res
		face.liveness = res
		face.checked = true
		if !res.Checked && s.cfg.Liveness.Required {
			report.SkipReason = SkipLivenessUnavailable
			return nil, false
		}
		if res.Checked && !res.Pass {
			report.SkipReason = SkipLivenessFail
			return nil, false
		}
	}
	return face, true
}

// matchCandidate embeds (unless the detector already did), matches against
// the gallery, and applies enrollment and cooldown checks. A dimension
// mismatch between the query and the gallery aborts the whole scan; it is a
// configuration fault, not a per-face condition.
func (s *Service) matchCandidate(
	ctx context.Context,
	snap *gallery.Snapshot,
	face *evaluatedFace,
	threshold float64,
	topK int,
	courseID, sessionID string,
	seen map[string]bool,
	result *ScanResult,
	report *FaceReport,
) error {
	emb := face.det.Embedding
	if emb == nil {
		var err error
		emb, err = s.engine.Embedder.Embed(ctx, face.crop)
		if err != nil {
			return fmt.Errorf("embed face: %w", err)
		}
	}

	match, best, err := snap.Match(emb, threshold)
	if err != nil {
		return err
	}
	report.Similarity = best
	if topK > 0 {
		if tk, err := snap.TopK(emb, topK); err == nil {
			report.TopK = tk
		}
	}
	if match == nil {
		report.SkipReason = SkipNoMatch
		return nil
	}
	report.StudentID = match.StudentID
	report.Similarity = match.Similarity

	enrolled, err := s.store.Enrollments.IsEnrolled(ctx, match.StudentID, courseID)
	if err != nil {
		return err
	}
	if !enrolled {
		report.SkipReason = SkipNotEnrolled
		return nil
	}

	cooling, err := s.inCooldown(ctx, sessionID, match.StudentID, courseID)
	if err != nil {
		return err
	}
	if cooling {
		report.SkipReason = SkipCooldown
		return nil
	}

	if !seen[match.StudentID] {
		seen[match.StudentID] = true
		result.StudentIDs = append(result.StudentIDs, match.StudentID)
		cm := CandidateMatch{
			StudentID:  match.StudentID,
			Similarity: match.Similarity,
		}
		if face.checked {
			cm.LivenessChecked = face.liveness.Checked
			cm.LivenessScore = face.liveness.Score
			cm.LivenessPass = face.liveness.Pass
		}
		result.Matches = append(result.Matches, cm)
	}
	return nil
}

// DetectedFace is one face from DetectAndEmbed.
type DetectedFace struct {
	BBox      [4]int    `json:"bbox"`
	DetScore  float64   `json:"det_score"`
	BlurScore float64   `json:"blur_score"`
	QualityOK bool      `json:"quality_ok"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// DetectAndEmbed runs detection and embedding without any attendance logic.
// Faces failing the blur gate come back with QualityOK false and no
// embedding.
func (s *Service) DetectAndEmbed(ctx context.Context, imageBytes []byte, blurThreshold float64) ([]DetectedFace, error) {
	if blurThreshold <= 0 {
		blurThreshold = s.cfg.Match.BlurThreshold
	}

	img, err := imaging.Decode(imageBytes)
	if err != nil {
		return nil, err
	}
	frame := &faceengine.Frame{Img: img, Raw: imageBytes}

	detections, err := s.engine.Detector.Detect(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}

	out := make([]DetectedFace, 0, len(detections))
	for _, det := range detections {
		face := DetectedFace{
			BBox:     [4]int{det.BBox.Min.X, det.BBox.Min.Y, det.BBox.Max.X, det.BBox.Max.Y},
			DetScore: det.Score,
		}

		crop, ok := imaging.CropPad(img, det.BBox, s.cfg.Face.CropPad)
		if !ok {
			continue
		}
		face.BlurScore = imaging.BlurScore(imaging.ToGray(crop))
		if face.BlurScore >= blurThreshold {
			face.QualityOK = true
			emb := det.Embedding
			if emb == nil {
				emb, err = s.engine.Embedder.Embed(ctx, crop)
				if err != nil {
					return nil, fmt.Errorf("embed face: %w", err)
				}
			}
			face.Embedding = emb
		}
		out = append(out, face)
	}
	return out, nil
}

// Match scores a single embedding against the current gallery.
func (s *Service) Match(ctx context.Context, embedding []float32, threshold float64) (*gallery.Match, error) {
	if threshold <= 0 {
		threshold = s.cfg.Match.Threshold
	}
	snap, err := s.gallery.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("load gallery: %w", err)
	}
	match, _, err := snap.Match(embedding, threshold)
	if err != nil {
		return nil, err
	}
	return match, nil
}

func durMS(from, to time.Time) float64 {
	return float64(to.Sub(from).Microseconds()) / 1000
}
