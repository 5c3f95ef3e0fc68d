package handlers

import (
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/ignisattend/ignis/internal/attend"
)

// EmbeddingsHandler serves enrollment capture endpoints.
type EmbeddingsHandler struct {
	service *attend.Service
}

func NewEmbeddingsHandler(service *attend.Service) *EmbeddingsHandler {
	return &EmbeddingsHandler{service: service}
}

// Add handles POST /embeddings/add: one enrollment capture for a
// (student, view) pair. Re-uploading a view replaces the stored vector.
func (h *EmbeddingsHandler) Add(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	studentID := strings.TrimSpace(r.FormValue("student_id"))
	if studentID == "" {
		respondError(w, http.StatusBadRequest, "missing form field: student_id")
		return
	}
	viewType := strings.ToLower(strings.TrimSpace(r.FormValue("view_type")))
	if viewType == "" {
		viewType = "front"
	}

	image, err := readFormFile(r, "image")
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing file field: image")
		return
	}

	result, err := h.service.AddEmbedding(r.Context(), attend.EnrollRequest{
		StudentID:     studentID,
		ViewType:      viewType,
		Image:         image,
		BlurThreshold: formFloat(r, "blur_threshold"),
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	log.Printf("enrollment capture: student=%s view=%s completed=%t",
		sanitizeForLog(studentID), sanitizeForLog(viewType), result.Completed)
	respondJSON(w, http.StatusOK, map[string]any{
		"ok":               true,
		"student_id":       result.StudentID,
		"view_type":        result.ViewType,
		"model_name":       result.Model,
		"embedding_dim":    result.Dim,
		"blur_score":       result.BlurScore,
		"liveness_checked": result.LivenessChecked,
		"liveness_score":   result.LivenessScore,
		"liveness_pass":    result.LivenessPass,
		"completed":        result.Completed,
		"missing_views":    result.MissingViews,
	})
}

// List handles GET /embeddings/{studentID}.
func (h *EmbeddingsHandler) List(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "studentID")

	status, err := h.service.FaceSetup(r.Context(), studentID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"ok":            true,
		"count":         len(status.Embeddings),
		"embeddings":    status.Embeddings,
		"completed":     status.Completed,
		"missing_views": status.MissingViews,
	})
}

// Delete handles DELETE /embeddings/{studentID}: drop every stored view so
// the student can redo face setup.
func (h *EmbeddingsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "studentID")

	removed, err := h.service.RemoveStudentEmbeddings(r.Context(), studentID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"removed": removed,
	})
}
