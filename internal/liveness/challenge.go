package liveness

import (
	"fmt"
	"image"
	"math"

	"github.com/ignisattend/ignis/internal/faceengine"
)

// ChallengeType names a requested head movement.
type ChallengeType string

const (
	ChallengeTurnLeft  ChallengeType = "turn_left"
	ChallengeTurnRight ChallengeType = "turn_right"
	ChallengeLeftRight ChallengeType = "left_right"
)

// ParseChallengeType validates a wire-level challenge name.
func ParseChallengeType(s string) (ChallengeType, error) {
	switch ChallengeType(s) {
	case ChallengeTurnLeft, ChallengeTurnRight, ChallengeLeftRight:
		return ChallengeType(s), nil
	}
	return "", fmt.Errorf("invalid challenge type %q", s)
}

// ChallengeFrame is one observation in a challenge sequence: a face bounding
// box plus its landmarks. Frames without usable landmarks contribute nothing.
type ChallengeFrame struct {
	BBox      image.Rectangle
	Landmarks []faceengine.Point
}

// ChallengeResult reports the challenge verdict. Shift is the largest
// horizontal nose displacement achieved in the required direction, relative
// to face width; for left_right it is the smaller of the two directions,
// since that one decides the outcome.
type ChallengeResult struct {
	OK     bool    `json:"ok"`
	Pass   bool    `json:"pass"`
	Shift  float64 `json:"computed_shift"`
	Reason string  `json:"reason,omitempty"`

	Left   bool      `json:"left"`
	Right  bool      `json:"right"`
	Center bool      `json:"center"`
	Ratios []float64 `json:"ratios,omitempty"`
}

// Challenge evaluates a 2-3 frame head-turn sequence. Each frame's nose
// position is reduced to a ratio across the face box (0 = left edge,
// 0.5 = centered, 1 = right edge); a direction counts as seen when some
// frame's ratio deviates from center by at least the configured shift.
func (v *Verifier) Challenge(challenge ChallengeType, frames []ChallengeFrame) ChallengeResult {
	if len(frames) == 0 {
		return ChallengeResult{Reason: "no_frames"}
	}

	shift := v.cfg.ChallengeShift
	var ratios []float64
	for _, f := range frames {
		if r, ok := noseRatio(f); ok {
			ratios = append(ratios, r)
		}
	}
	if len(ratios) < 2 {
		return ChallengeResult{Reason: "no_landmarks"}
	}

	res := ChallengeResult{OK: true, Ratios: ratios}
	var leftShift, rightShift float64
	for _, r := range ratios {
		leftShift = math.Max(leftShift, 0.5-r)
		rightShift = math.Max(rightShift, r-0.5)
		if math.Abs(r-0.5) <= shift {
			res.Center = true
		}
	}
	res.Left = leftShift >= shift
	res.Right = rightShift >= shift

	switch challenge {
	case ChallengeTurnLeft:
		res.Pass = res.Left && res.Center
		res.Shift = leftShift
	case ChallengeTurnRight:
		res.Pass = res.Right && res.Center
		res.Shift = rightShift
	case ChallengeLeftRight:
		res.Pass = res.Left && res.Right && res.Center
		res.Shift = math.Min(leftShift, rightShift)
	default:
		return ChallengeResult{Reason: "invalid_challenge"}
	}
	return res
}

// noseRatio positions the nose landmark within the face box width.
func noseRatio(f ChallengeFrame) (float64, bool) {
	if len(f.Landmarks) <= faceengine.LandmarkNose {
		return 0, false
	}
	w := math.Max(1, float64(f.BBox.Dx()))
	return (f.Landmarks[faceengine.LandmarkNose].X - float64(f.BBox.Min.X)) / w, true
}
