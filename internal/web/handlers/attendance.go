package handlers

import (
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/ignisattend/ignis/internal/attend"
)

// AttendanceHandler serves scan, mark, manual-override and reporting
// endpoints.
type AttendanceHandler struct {
	service *attend.Service
}

func NewAttendanceHandler(service *attend.Service) *AttendanceHandler {
	return &AttendanceHandler{service: service}
}

// Scan handles POST /attendance/scan. The lecturer uploads one class photo
// or camera frame; the response lists recognized candidates and per-face
// skip reasons.
func (h *AttendanceHandler) Scan(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	req := attend.ScanRequest{
		LecturerID:    strings.TrimSpace(r.FormValue("lecturer_id")),
		CourseID:      strings.TrimSpace(r.FormValue("course_id")),
		Threshold:     formFloat(r, "threshold"),
		BlurThreshold: formFloat(r, "blur_threshold"),
		Liveness:      formBoolPtr(r, "liveness"),
		TopK:          int(formFloat(r, "top_k")),
	}
	if req.LecturerID == "" {
		respondError(w, http.StatusBadRequest, "missing form field: lecturer_id")
		return
	}
	if req.CourseID == "" {
		respondError(w, http.StatusBadRequest, "missing form field: course_id")
		return
	}

	image, err := readFormFile(r, "image")
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing file field: image")
		return
	}
	req.Image = image

	result, err := h.service.Scan(r.Context(), req)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	log.Printf("scan: course=%s session=%s faces=%d matched=%d",
		sanitizeForLog(req.CourseID), result.SessionID, result.DetectedFaces, result.MatchedCount)
	respondJSON(w, http.StatusOK, map[string]any{
		"ok":             true,
		"session_id":     result.SessionID,
		"course_id":      result.CourseID,
		"detected_faces": result.DetectedFaces,
		"matched_count":  result.MatchedCount,
		"student_ids":    result.StudentIDs,
		"matches":        result.Matches,
		"faces":          result.Faces,
		"timings_ms":     result.Timings,
	})
}

type markRequest struct {
	LecturerID  string             `json:"lecturer_id"`
	CourseID    string             `json:"course_id"`
	Method      string             `json:"method"`
	StudentIDs  []string           `json:"student_ids"`
	Confidence  *float64           `json:"confidence"`
	Confidences map[string]float64 `json:"confidences"`
}

// Mark handles POST /attendance/mark.
func (h *AttendanceHandler) Mark(w http.ResponseWriter, r *http.Request) {
	var req markRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Method == "" {
		req.Method = "image_upload"
	}

	result, err := h.service.Mark(r.Context(), attend.MarkRequest{
		LecturerID:  strings.TrimSpace(req.LecturerID),
		CourseID:    strings.TrimSpace(req.CourseID),
		Method:      req.Method,
		StudentIDs:  req.StudentIDs,
		Confidence:  req.Confidence,
		Confidences: req.Confidences,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"ok":            true,
		"course_id":     result.CourseID,
		"session_id":    result.SessionID,
		"marked_count":  result.MarkedCount,
		"skipped_count": result.SkippedCount,
		"marked":        result.Marked,
		"skipped":       result.Skipped,
	})
}

type manualRequest struct {
	LecturerID string `json:"lecturer_id"`
	SessionID  string `json:"session_id"`
	StudentID  string `json:"student_id"`
	Action     string `json:"action"`
	Reason     string `json:"reason"`
}

// Manual handles POST /attendance/manual.
func (h *AttendanceHandler) Manual(w http.ResponseWriter, r *http.Request) {
	var req manualRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	err := h.service.ManualOverride(r.Context(), attend.OverrideRequest{
		LecturerID: strings.TrimSpace(req.LecturerID),
		SessionID:  strings.TrimSpace(req.SessionID),
		StudentID:  strings.TrimSpace(req.StudentID),
		Action:     strings.ToLower(strings.TrimSpace(req.Action)),
		Reason:     strings.TrimSpace(req.Reason),
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"action":     req.Action,
		"session_id": req.SessionID,
		"student_id": req.StudentID,
	})
}

// SessionRecords handles GET /attendance/session/{sessionID}.
func (h *AttendanceHandler) SessionRecords(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	records, err := h.service.SessionAttendance(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"count":   len(records),
		"records": records,
	})
}

// CourseStats handles GET /attendance/course/{courseID}/stats.
func (h *AttendanceHandler) CourseStats(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseID")

	stats, err := h.service.CourseAttendanceRate(r.Context(), courseID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"ok":    true,
		"stats": stats,
	})
}
