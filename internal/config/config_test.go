package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Match.Threshold != 0.80 {
		t.Errorf("Match.Threshold = %v, want 0.80", cfg.Match.Threshold)
	}
	if cfg.Match.BlurThreshold != 80.0 {
		t.Errorf("Match.BlurThreshold = %v, want 80", cfg.Match.BlurThreshold)
	}
	if cfg.Match.DetThreshold != 0.6 {
		t.Errorf("Match.DetThreshold = %v, want 0.6", cfg.Match.DetThreshold)
	}
	if cfg.Cooldown != 5*time.Minute {
		t.Errorf("Cooldown = %v, want 5m", cfg.Cooldown)
	}
	if !cfg.Liveness.Enabled {
		t.Error("Liveness.Enabled = false, want true by default")
	}
	if cfg.Liveness.Required {
		t.Error("Liveness.Required = true, want false by default")
	}
	if cfg.Database.MaxOpenConns != 25 || cfg.Database.MaxIdleConns != 5 {
		t.Errorf("pool sizes = %d/%d, want 25/5",
			cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MATCH_THRESHOLD", "0.9")
	t.Setenv("COOLDOWN_MINUTES", "10")
	t.Setenv("LIVENESS_REQUIRED", "true")
	t.Setenv("EMBEDDINGS_DIR", "/tmp/test-embeddings")

	cfg := Load()
	if cfg.Match.Threshold != 0.9 {
		t.Errorf("Match.Threshold = %v, want 0.9", cfg.Match.Threshold)
	}
	if cfg.Cooldown != 10*time.Minute {
		t.Errorf("Cooldown = %v, want 10m", cfg.Cooldown)
	}
	if !cfg.Liveness.Required {
		t.Error("Liveness.Required = false, want true")
	}
	if cfg.Storage.EmbeddingsDir != "/tmp/test-embeddings" {
		t.Errorf("EmbeddingsDir = %q", cfg.Storage.EmbeddingsDir)
	}
}

func TestLoadIgnoresInvalidEnv(t *testing.T) {
	t.Setenv("COOLDOWN_MINUTES", "not-a-number")
	t.Setenv("MATCH_THRESHOLD", "")

	cfg := Load()
	if cfg.Cooldown != 5*time.Minute {
		t.Errorf("Cooldown = %v, want default 5m", cfg.Cooldown)
	}
	if cfg.Match.Threshold != 0.80 {
		t.Errorf("Match.Threshold = %v, want default 0.80", cfg.Match.Threshold)
	}
}

func TestModelDim(t *testing.T) {
	cfg := Load()
	if dim := cfg.ModelDim("flatten"); dim != 4096 {
		t.Errorf("ModelDim(flatten) = %d, want 4096", dim)
	}
	if dim := cfg.ModelDim("unknown-model"); dim != 0 {
		t.Errorf("ModelDim(unknown) = %d, want 0", dim)
	}
}

func TestCheckModelDim(t *testing.T) {
	cfg := Load()

	tests := []struct {
		model   string
		dim     int
		wantErr bool
	}{
		{"flatten", 4096, false},
		{"sface", 128, false},
		{"arcface", 512, false},
		{"flatten", 512, true},
		{"arcface", 128, true},
		{"unknown-model", 999, false},
	}
	for _, tc := range tests {
		err := cfg.CheckModelDim(tc.model, tc.dim)
		if tc.wantErr && err == nil {
			t.Errorf("CheckModelDim(%s, %d) = nil, want error", tc.model, tc.dim)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("CheckModelDim(%s, %d) = %v, want nil", tc.model, tc.dim, err)
		}
	}
}
