package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ignisattend/ignis/internal/faceengine"
)

func TestLivenessStatic(t *testing.T) {
	env := newTestEnv(t)
	env.detector.dets = []faceengine.Detection{faceAt(10, 10, 90, 90, 0.99)}

	req := multipartRequest(t, "/liveness/static", nil,
		filePart{field: "image", name: "selfie.png", data: sharpPNG(t, 100, 100)},
	)
	recorder := httptest.NewRecorder()
	env.liveness.Static(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var result map[string]any
	parseJSONResponse(t, recorder, &result)
	if result["pass"] != true {
		t.Errorf("pass = %v, want true for a sharp, face-filling capture", result["pass"])
	}
	score, _ := result["score"].(float64)
	if score < 0.67 {
		t.Errorf("score = %v, want >= 0.67", score)
	}
}

func TestLivenessStaticMissingImage(t *testing.T) {
	env := newTestEnv(t)

	req := multipartRequest(t, "/liveness/static", map[string]string{"unused": "1"})
	recorder := httptest.NewRecorder()
	env.liveness.Static(recorder, req)

	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, "missing file field: image")
}

func TestLivenessChallengeTooFewFrames(t *testing.T) {
	env := newTestEnv(t)

	req := multipartRequest(t, "/liveness/challenge",
		map[string]string{"challenge": "turn_left"},
		filePart{field: "frames", name: "frame0.png", data: sharpPNG(t, 100, 100)},
	)
	recorder := httptest.NewRecorder()
	env.liveness.Challenge(recorder, req)

	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, "provide at least 2 frames")
}

func TestLivenessChallengeWithoutLandmarks(t *testing.T) {
	env := newTestEnv(t)
	env.detector.dets = []faceengine.Detection{faceAt(10, 10, 90, 90, 0.99)}

	req := multipartRequest(t, "/liveness/challenge",
		map[string]string{"challenge": "turn_left"},
		filePart{field: "frames", name: "frame0.png", data: sharpPNG(t, 100, 100)},
		filePart{field: "frames", name: "frame1.png", data: sharpPNG(t, 100, 100)},
	)
	recorder := httptest.NewRecorder()
	env.liveness.Challenge(recorder, req)

	// Frames without landmarks cannot prove a head turn.
	assertStatusCode(t, recorder, http.StatusBadRequest)
}
