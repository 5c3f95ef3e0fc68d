package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/ignisattend/ignis/internal/attend"
)

// LivenessHandler serves the anti-spoofing endpoints.
type LivenessHandler struct {
	service *attend.Service
}

func NewLivenessHandler(service *attend.Service) *LivenessHandler {
	return &LivenessHandler{service: service}
}

// Static handles POST /liveness/static: heuristic single-image liveness.
func (h *LivenessHandler) Static(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	image, err := readFormFile(r, "image")
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing file field: image")
		return
	}

	result, err := h.service.LivenessStatic(r.Context(), image)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"score":   result.Score,
		"pass":    result.Pass,
		"details": result,
	})
}

// Challenge handles POST /liveness/challenge: a 2-5 frame head-turn
// challenge uploaded as repeated "frames" file fields.
func (h *LivenessHandler) Challenge(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	challenge := strings.ToLower(strings.TrimSpace(r.FormValue("challenge")))
	if challenge == "" {
		challenge = "left_right"
	}

	var frames [][]byte
	if r.MultipartForm != nil {
		for _, header := range r.MultipartForm.File["frames"] {
			f, err := header.Open()
			if err != nil {
				continue
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err == nil {
				frames = append(frames, data)
			}
		}
	}
	if len(frames) < 2 {
		respondError(w, http.StatusBadRequest, "provide at least 2 frames")
		return
	}

	result, err := h.service.LivenessChallenge(r.Context(), challenge, frames)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if !result.OK {
		respondError(w, http.StatusBadRequest, result.Reason)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"ok":             true,
		"pass":           result.Pass,
		"computed_shift": result.Shift,
		"details":        result,
	})
}
