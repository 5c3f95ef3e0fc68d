package faceengine

import (
	"context"
	"image"

	"github.com/ignisattend/ignis/internal/imaging"
)

const flattenSize = 64

// FlattenEmbedder is the fallback embedder: resize the crop to 64x64
// grayscale and flatten the pixels into a normalized 4096-dim vector.
// Much weaker than a learned model, but dimension-fixed and dependency-free.
type FlattenEmbedder struct{}

func (FlattenEmbedder) Name() string { return "flatten" }

func (FlattenEmbedder) Dim() int { return flattenSize * flattenSize }

func (FlattenEmbedder) Embed(ctx context.Context, crop image.Image) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	gray := imaging.ToGray(imaging.Resize(crop, flattenSize, flattenSize))
	b := gray.Bounds()

	vec := make([]float32, 0, flattenSize*flattenSize)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			vec = append(vec, float32(gray.GrayAt(x, y).Y))
		}
	}
	return Normalize(vec), nil
}
