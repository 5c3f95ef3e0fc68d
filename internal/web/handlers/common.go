// Package handlers implements the HTTP endpoints over the attendance core.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ignisattend/ignis/internal/attend"
	"github.com/ignisattend/ignis/internal/imaging"
	"github.com/ignisattend/ignis/internal/store"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// maxUploadBytes caps multipart uploads (class photos and capture frames).
const maxUploadBytes = 32 << 20

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]any{"ok": false, "error": message})
}

// respondServiceError maps core errors onto HTTP statuses.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, attend.ErrNoActiveSession),
		errors.Is(err, attend.ErrNotCourseOwner),
		errors.Is(err, attend.ErrNotSessionOwner),
		errors.Is(err, attend.ErrNotLecturer),
		errors.Is(err, attend.ErrNotStudent),
		errors.Is(err, attend.ErrNotEnrolled):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, store.ErrDisputePending),
		errors.Is(err, attend.ErrDisputeResolved):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, imaging.ErrDecode),
		errors.Is(err, attend.ErrNoFaceDetected),
		errors.Is(err, attend.ErrTooBlurry),
		errors.Is(err, attend.ErrLivenessFailed),
		errors.Is(err, attend.ErrLivenessUnknown):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// decodeJSON parses a JSON request body into dst.
func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst)
}

// readFormFile reads one uploaded file from an already-parsed multipart form.
func readFormFile(r *http.Request, field string) ([]byte, error) {
	file, _, err := r.FormFile(field)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

// formFloat parses an optional float form value; 0 means "not provided".
func formFloat(r *http.Request, field string) float64 {
	s := strings.TrimSpace(r.FormValue(field))
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// formBoolPtr parses an optional tri-state boolean form value.
func formBoolPtr(r *http.Request, field string) *bool {
	v := true
	switch strings.ToLower(strings.TrimSpace(r.FormValue(field))) {
	case "1", "true", "yes", "on":
		return &v
	case "0", "false", "no", "off":
		v = false
		return &v
	}
	return nil
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
