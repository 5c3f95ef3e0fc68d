// Package liveness implements heuristic anti-spoofing checks: a static
// per-image score based on face size, eye distance and sharpness, and a
// multi-frame challenge that tracks nose position across head turns. Neither
// mode requires depth sensing; both are advisory unless LIVENESS_REQUIRED is
// set.
package liveness

import (
	"image"
	"math"

	"github.com/ignisattend/ignis/internal/config"
	"github.com/ignisattend/ignis/internal/faceengine"
	"github.com/ignisattend/ignis/internal/imaging"
)

// Verifier evaluates liveness heuristics with configured thresholds.
type Verifier struct {
	cfg           config.LivenessConfig
	blurThreshold float64
}

func NewVerifier(cfg config.LivenessConfig, blurThreshold float64) *Verifier {
	return &Verifier{cfg: cfg, blurThreshold: blurThreshold}
}

// Input carries one face observation for the static check. Construct it with
// WithLandmarks or WithoutLandmarks so the eye-distance component is decided
// up front instead of nil-checked mid-scoring.
type Input struct {
	img          image.Image
	bbox         image.Rectangle
	landmarks    []faceengine.Point
	hasLandmarks bool
}

// WithLandmarks builds a static-check input from a detection that carries at
// least the two eye landmarks.
func WithLandmarks(img image.Image, bbox image.Rectangle, landmarks []faceengine.Point) Input {
	return Input{img: img, bbox: bbox, landmarks: landmarks, hasLandmarks: len(landmarks) >= 2}
}

// WithoutLandmarks builds a static-check input for detectors that only
// produce bounding boxes. The eye-distance component is skipped, not failed.
func WithoutLandmarks(img image.Image, bbox image.Rectangle) Input {
	return Input{img: img, bbox: bbox}
}

// FromDetection picks the input variant matching what the detector produced.
func FromDetection(img image.Image, det faceengine.Detection) Input {
	if len(det.Landmarks) >= 2 {
		return WithLandmarks(img, det.BBox, det.Landmarks)
	}
	return WithoutLandmarks(img, det.BBox)
}

// StaticResult reports the static liveness verdict plus the raw measurements
// that produced it.
type StaticResult struct {
	// Checked is false when the measurements could not be computed at all
	// (degenerate image or face box), leaving no verdict.
	Checked   bool    `json:"checked"`
	Score     float64 `json:"score"`
	Pass      bool    `json:"pass"`
	FaceRatio float64 `json:"face_ratio"`
	EyeRatio  float64 `json:"eye_ratio,omitempty"`
	BlurScore float64 `json:"blur_score"`
	Landmarks bool    `json:"landmarks_used"`
}

// Static scores a single face observation. The score is the mean of the
// normalized face-size, eye-distance and sharpness components, each capped at
// 1.0. Without landmarks the eye component is dropped and the mean is taken
// over the remaining two. Passing requires the score threshold plus hard
// floors on face ratio and, when measured, eye ratio.
func (v *Verifier) Static(in Input) StaticResult {
	res := StaticResult{Landmarks: in.hasLandmarks}

	bounds := in.img.Bounds()
	imgArea := bounds.Dx() * bounds.Dy()
	if imgArea <= 0 {
		return res
	}
	faceArea := max(0, in.bbox.Dx()) * max(0, in.bbox.Dy())
	res.FaceRatio = float64(faceArea) / float64(imgArea)

	crop, ok := imaging.CropPad(in.img, in.bbox, 0)
	if !ok {
		return res
	}
	res.Checked = true
	res.BlurScore = imaging.BlurScore(imaging.ToGray(crop))

	faceScore := clamp01(res.FaceRatio / floor(v.cfg.MinFaceRatio))
	blurScore := clamp01(res.BlurScore / floor(v.blurThreshold))

	eyeOK := true
	if in.hasLandmarks {
		eyeDist := dist(in.landmarks[faceengine.LandmarkLeftEye], in.landmarks[faceengine.LandmarkRightEye])
		res.EyeRatio = eyeDist / math.Max(1, float64(in.bbox.Dx()))
		eyeScore := clamp01(res.EyeRatio / floor(v.cfg.MinEyeDistRatio))
		res.Score = (faceScore + eyeScore + blurScore) / 3
		eyeOK = res.EyeRatio >= v.cfg.MinEyeDistRatio
	} else {
		res.Score = (faceScore + blurScore) / 2
	}

	res.Pass = res.Score >= v.cfg.MinScore &&
		res.FaceRatio >= v.cfg.MinFaceRatio &&
		eyeOK
	return res
}

func clamp01(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}

// floor guards threshold divisors against zero or negative config values.
func floor(v float64) float64 {
	return math.Max(1e-6, v)
}

func dist(a, b faceengine.Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
