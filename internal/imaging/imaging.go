// Package imaging provides the pixel-level helpers shared by face detection,
// quality filtering, and the fallback embedder: decoding, grayscale
// conversion, resizing, padded cropping, and a Laplacian-variance blur score.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"gonum.org/v1/gonum/stat"
)

// ErrDecode indicates the uploaded bytes are not a decodable image.
// This is a request-fatal condition, never a per-face skip.
var ErrDecode = errors.New("undecodable image")

// Decode parses image bytes (JPEG, PNG, GIF, BMP).
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, nil
}

// ToGray converts an image to 8-bit grayscale using the standard luma weights.
func ToGray(img image.Image) *image.Gray {
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	draw.Draw(gray, bounds, img, bounds.Min, draw.Src)
	return gray
}

// Resize scales an image to the given dimensions with bilinear interpolation.
func Resize(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// CropPad cuts out a face box expanded by a symmetric pad and clamped to the
// image bounds. The second return value is false when the clamped box has
// zero area; such crops are discarded silently by callers.
func CropPad(img image.Image, box image.Rectangle, pad int) (image.Image, bool) {
	b := img.Bounds()
	x1 := max(b.Min.X, box.Min.X-pad)
	y1 := max(b.Min.Y, box.Min.Y-pad)
	x2 := min(b.Max.X, box.Max.X+pad)
	y2 := min(b.Max.Y, box.Max.Y+pad)

	if x2 <= x1 || y2 <= y1 {
		return nil, false
	}

	r := image.Rect(x1, y1, x2, y2)
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst, true
}

// BlurScore computes the variance of the Laplacian over the grayscale crop.
// Low values indicate an unusable, blurry face.
func BlurScore(img image.Image) float64 {
	gray := ToGray(img)
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 3 || h < 3 {
		return 0
	}

	// 4-neighbour Laplacian kernel; border pixels are excluded.
	vals := make([]float64, 0, (w-2)*(h-2))
	for y := b.Min.Y + 1; y < b.Max.Y-1; y++ {
		for x := b.Min.X + 1; x < b.Max.X-1; x++ {
			c := float64(gray.GrayAt(x, y).Y)
			lap := float64(gray.GrayAt(x-1, y).Y) +
				float64(gray.GrayAt(x+1, y).Y) +
				float64(gray.GrayAt(x, y-1).Y) +
				float64(gray.GrayAt(x, y+1).Y) - 4*c
			vals = append(vals, lap)
		}
	}

	// Population variance, matching the conventional Laplacian sharpness metric.
	mean := stat.Mean(vals, nil)
	return stat.MomentAbout(2, vals, mean, nil)
}
