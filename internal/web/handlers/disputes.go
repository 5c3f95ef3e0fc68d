package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/ignisattend/ignis/internal/attend"
)

// DisputesHandler serves the attendance dispute endpoints.
type DisputesHandler struct {
	service *attend.Service
}

func NewDisputesHandler(service *attend.Service) *DisputesHandler {
	return &DisputesHandler{service: service}
}

type openDisputeRequest struct {
	StudentID   string `json:"student_id"`
	SessionID   string `json:"session_id"`
	DisputeType string `json:"dispute_type"`
	Reason      string `json:"reason"`
}

// Open handles POST /disputes.
func (h *DisputesHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req openDisputeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	dispute, err := h.service.OpenDispute(r.Context(), attend.DisputeRequest{
		StudentID: strings.TrimSpace(req.StudentID),
		SessionID: strings.TrimSpace(req.SessionID),
		Type:      strings.ToLower(strings.TrimSpace(req.DisputeType)),
		Reason:    strings.TrimSpace(req.Reason),
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"ok":      true,
		"dispute": dispute,
	})
}

type resolveDisputeRequest struct {
	LecturerID     string `json:"lecturer_id"`
	DisputeID      string `json:"dispute_id"`
	Action         string `json:"action"`
	ResolutionNote string `json:"resolution_note"`
}

// Resolve handles POST /disputes/resolve.
func (h *DisputesHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveDisputeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	action := strings.ToLower(strings.TrimSpace(req.Action))
	if action != "approve" && action != "reject" {
		respondError(w, http.StatusBadRequest, "action must be 'approve' or 'reject'")
		return
	}

	dispute, err := h.service.ResolveDispute(r.Context(), attend.ResolveRequest{
		LecturerID: strings.TrimSpace(req.LecturerID),
		DisputeID:  strings.TrimSpace(req.DisputeID),
		Approve:    action == "approve",
		Note:       strings.TrimSpace(req.ResolutionNote),
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"dispute_id": dispute.ID,
		"status":     dispute.Status,
	})
}

// ListByStudent handles GET /disputes/student/{studentID}.
func (h *DisputesHandler) ListByStudent(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "studentID")

	disputes, err := h.service.StudentDisputes(r.Context(), studentID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"count":    len(disputes),
		"disputes": disputes,
	})
}

// ListByCourse handles GET /disputes/course/{courseID}?status=pending.
func (h *DisputesHandler) ListByCourse(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseID")
	status := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status")))

	disputes, err := h.service.CourseDisputes(r.Context(), courseID, status)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"count":    len(disputes),
		"disputes": disputes,
	})
}
