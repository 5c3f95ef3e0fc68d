// Package faceengine locates faces in images and turns face crops into
// normalized embedding vectors. Two engines exist: a primary one backed by an
// external detection/embedding service, and a pure-Go fallback (pigo cascade
// detector plus a grayscale-flatten embedder) used when the primary is
// unavailable at startup. The fallback provides no landmarks, which downstream
// liveness checks must tolerate.
package faceengine

import (
	"context"
	"image"
	"math"
)

// Point is a landmark coordinate in image space.
type Point struct {
	X float64
	Y float64
}

// Landmark indices within Detection.Landmarks.
const (
	LandmarkLeftEye = iota
	LandmarkRightEye
	LandmarkNose
	LandmarkMouthLeft
	LandmarkMouthRight
)

// Detection is a single located face.
type Detection struct {
	// BBox is the face bounding box in pixel coordinates.
	BBox image.Rectangle
	// Score is the detector confidence. The fallback detector reports 1.0.
	Score float64
	// Landmarks holds the five-point layout (eyes, nose, mouth corners),
	// or nil when the active detector cannot provide them.
	Landmarks []Point
	// Embedding is set when the detector computes embeddings inline
	// (the service engine does); nil means the caller must run the
	// Embedder on the crop.
	Embedding []float32
}

// Frame is a decoded image together with its original encoded bytes.
// The raw bytes are kept so the service engine can forward the upload
// without a lossy re-encode.
type Frame struct {
	Img image.Image
	Raw []byte
}

// Detector locates faces in a frame. An empty result means zero faces were
// found; that is a valid outcome, not an error.
type Detector interface {
	Detect(ctx context.Context, frame *Frame) ([]Detection, error)
}

// Embedder converts a face crop into a fixed-length L2-normalized vector.
// All gallery vectors and all query vectors in a deployment must come from
// the same embedder; mixing dimensions is a fatal configuration error.
type Embedder interface {
	Embed(ctx context.Context, crop image.Image) ([]float32, error)
	Dim() int
	Name() string
}

// Normalize scales v to unit L2 norm in place and returns it. The epsilon
// guarantees no division by zero for degenerate all-zero vectors, at the cost
// of producing a near-zero vector that will never win a similarity match.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum) + 1e-8
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}
