package faceengine

import (
	"context"
	"fmt"
	"image"
	"os"

	pigo "github.com/esimov/pigo/core"
)

// Fallback detector tuning. The quality cutoff keeps pigo's weakest cluster
// candidates out; detections that survive it are reported with score 1.0
// since pigo's quality scale is not comparable with the service det_score.
const (
	pigoMinSize     = 60
	pigoMaxSize     = 1200
	pigoShiftFactor = 0.1
	pigoScaleFactor = 1.1
	pigoIoU         = 0.2
	pigoMinQuality  = 5.0
)

// PigoDetector is the pure-Go fallback face detector. It provides bounding
// boxes only: no landmarks, no embeddings.
type PigoDetector struct {
	classifier *pigo.Pigo
}

// NewPigoDetector loads the binary cascade file and prepares the classifier.
func NewPigoDetector(cascadePath string) (*PigoDetector, error) {
	data, err := os.ReadFile(cascadePath)
	if err != nil {
		return nil, fmt.Errorf("read cascade %s: %w", cascadePath, err)
	}

	classifier, err := pigo.NewPigo().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack cascade: %w", err)
	}
	return &PigoDetector{classifier: classifier}, nil
}

// Detect runs the cascade over the grayscale frame and returns clustered
// detections. Landmarks and embeddings are always nil on this path.
func (d *PigoDetector) Detect(ctx context.Context, frame *Frame) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src := pigo.ImgToNRGBA(frame.Img)
	bounds := src.Bounds()
	cols, rows := bounds.Dx(), bounds.Dy()

	params := pigo.CascadeParams{
		MinSize:     pigoMinSize,
		MaxSize:     pigoMaxSize,
		ShiftFactor: pigoShiftFactor,
		ScaleFactor: pigoScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pigo.RgbToGrayscale(src),
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	dets := d.classifier.RunCascade(params, 0.0)
	dets = d.classifier.ClusterDetections(dets, pigoIoU)

	out := make([]Detection, 0, len(dets))
	for _, det := range dets {
		if det.Q < pigoMinQuality {
			continue
		}
		half := det.Scale / 2
		out = append(out, Detection{
			BBox:  image.Rect(det.Col-half, det.Row-half, det.Col+half, det.Row+half),
			Score: 1.0,
		})
	}
	return out, nil
}
