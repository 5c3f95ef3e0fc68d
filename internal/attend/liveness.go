package attend

import (
	"context"
	"errors"
	"fmt"

	"github.com/ignisattend/ignis/internal/faceengine"
	"github.com/ignisattend/ignis/internal/imaging"
	"github.com/ignisattend/ignis/internal/liveness"
)

// LivenessStatic scores a single uploaded image: detect the best face, then
// run the static heuristic on it.
func (s *Service) LivenessStatic(ctx context.Context, imageBytes []byte) (*liveness.StaticResult, error) {
	img, err := imaging.Decode(imageBytes)
	if err != nil {
		return nil, err
	}
	frame := &faceengine.Frame{Img: img, Raw: imageBytes}

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

	res := s.verifier.Static(liveness.FromDetection(img, best))
	return &res, nil
}

// LivenessChallenge evaluates a head-turn challenge over 2-5 uploaded
// frames. Frames that fail to decode or contain no face are ignored; the
// verifier reports failure when too few usable frames remain.
func (s *Service) LivenessChallenge(ctx context.Context, challengeType string, frames [][]byte) (*liveness.ChallengeResult, error) {
	ct, err := liveness.ParseChallengeType(challengeType)
	if err != nil {
		return nil, err
	}
	if len(frames) < 2 {
		return nil, errors.New("provide at least 2 frames")
	}

	var observed []liveness.ChallengeFrame
	for _, data := range frames {
		img, err := imaging.Decode(data)
		if err != nil {
			continue
		}
		frame := &faceengine.Frame{Img: img, Raw: data}
		detections, err := s.engine.Detector.Detect(ctx, frame)
		if err != nil || len(detections) == 0 {
			continue
		}

		best := detections[0]
		for _, det := range detections[1:] {
			if det.Score > best.Score {
				best = det
			}
		}
		observed = append(observed, liveness.ChallengeFrame{
			BBox:      best.BBox,
			Landmarks: best.Landmarks,
		})
	}

	res := s.verifier.Challenge(ct, observed)
	return &res, nil
}
