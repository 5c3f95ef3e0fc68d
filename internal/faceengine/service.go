package faceengine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

const defaultServiceModel = "insightface"

// ServiceClient talks to the face detection/embedding service. One request
// returns every detected face with its bounding box, five landmarks, and a
// ready embedding. Fields are fixed after Ping; the client is shared across
// request goroutines without locking.
type ServiceClient struct {
	baseURL string
	model   string
	dim     int
	client  *http.Client
}

// NewServiceClient creates a client for the face service.
func NewServiceClient(baseURL string) *ServiceClient {
	return &ServiceClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   defaultServiceModel,
		dim:     512,
		client:  &http.Client{},
	}
}

// serviceFace mirrors one face entry in the service response.
type serviceFace struct {
	FaceIndex int         `json:"face_index"`
	Dim       int         `json:"dim"`
	Embedding []float32   `json:"embedding"`
	BBox      []float64   `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64     `json:"det_score"`
	Landmarks [][]float64 `json:"landmarks,omitempty"` // five [x, y] points
}

type serviceResponse struct {
	FacesCount int           `json:"faces_count"`
	Faces      []serviceFace `json:"faces"`
	Model      string        `json:"model"`
	Dim        int           `json:"dim"`
}

// healthResponse mirrors the face service health payload. Model and dim are
// optional; services that omit them keep the client defaults.
type healthResponse struct {
	Status string `json:"status"`
	Model  string `json:"model"`
	Dim    int    `json:"dim"`
}

// Ping verifies the service is reachable and captures the model identity it
// advertises. Called once at startup, before the client is shared across
// request goroutines; no field is written after it returns.
func (c *ServiceClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("face service unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("face service health returned status %d", resp.StatusCode)
	}

	var health healthResponse
	if body, err := io.ReadAll(resp.Body); err == nil && json.Unmarshal(body, &health) == nil {
		if health.Model != "" {
			c.model = health.Model
		}
		if health.Dim > 0 {
			c.dim = health.Dim
		}
	}
	return nil
}

// Detect posts the frame's original bytes and converts the response into
// detections with inline embeddings.
func (c *ServiceClient) Detect(ctx context.Context, frame *Frame) ([]Detection, error) {
	body, err := c.postMultipartImage(ctx, "/embed/face", frame.Raw)
	if err != nil {
		return nil, err
	}

	var faceResp serviceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	out := make([]Detection, 0, len(faceResp.Faces))
	for _, f := range faceResp.Faces {
		if len(f.BBox) != 4 {
			continue
		}
		det := Detection{
			BBox: image.Rect(
				int(f.BBox[0]), int(f.BBox[1]),
				int(f.BBox[2]), int(f.BBox[3]),
			),
			Score:     f.DetScore,
			Embedding: Normalize(f.Embedding),
		}
		if len(f.Landmarks) == 5 {
			det.Landmarks = make([]Point, 5)
			for i, lm := range f.Landmarks {
				if len(lm) == 2 {
					det.Landmarks[i] = Point{X: lm[0], Y: lm[1]}
				}
			}
		}
		out = append(out, det)
	}
	return out, nil
}

// Embed computes an embedding for a single crop. Used for crops the detector
// did not embed inline; the best-scoring face in the crop wins.
func (c *ServiceClient) Embed(ctx context.Context, crop image.Image) ([]float32, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, crop, &jpeg.Options{Quality: 95}); err != nil {
		return nil, fmt.Errorf("failed to encode crop: %w", err)
	}

	dets, err := c.Detect(ctx, &Frame{Img: crop, Raw: buf.Bytes()})
	if err != nil {
		return nil, err
	}
	if len(dets) == 0 {
		return nil, errors.New("no face found in crop")
	}

	best := dets[0]
	for _, d := range dets[1:] {
		if d.Score > best.Score {
			best = d
		}
	}
	if len(best.Embedding) == 0 {
		return nil, errors.New("empty embedding returned")
	}
	return best.Embedding, nil
}

// Dim returns the embedding dimension reported by the service.
func (c *ServiceClient) Dim() int {
	return c.dim
}

// Name returns the model name reported by the service.
func (c *ServiceClient) Name() string {
	return c.model
}

// postMultipartImage constructs a multipart form with the image data and
// posts it to the given endpoint, with an explicit Content-Type header based
// on magic byte detection.
func (c *ServiceClient) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", detectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("face service error (status %d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// detectMIMEType detects the MIME type from image data.
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	// GIF: 47 49 46 38
	if data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x38 {
		return "image/gif"
	}
	return "application/octet-stream"
}
