package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed models.yaml
var modelsYAML []byte

type Config struct {
	Match    MatchConfig
	Liveness LivenessConfig
	Face     FaceConfig
	Storage  StorageConfig
	Database DatabaseConfig
	Models   ModelsConfig
	Cooldown time.Duration
}

type MatchConfig struct {
	Threshold     float64 // minimum cosine similarity to accept an identity
	BlurThreshold float64 // minimum Laplacian variance to accept a crop
	DetThreshold  float64 // minimum detector confidence to keep a face
}

type LivenessConfig struct {
	Enabled           bool
	Required          bool // failing liveness blocks enrollment instead of annotating it
	AttendanceEnabled bool // run liveness during attendance scans (off for large class photos)
	MinScore          float64
	MinFaceRatio      float64
	MinEyeDistRatio   float64
	ChallengeShift    float64
}

type FaceConfig struct {
	ServiceURL  string // face detection/embedding service (e.g. http://localhost:8000)
	CascadePath string // pigo cascade file for the fallback detector
	CropPad     int    // symmetric padding around detected boxes before cropping
}

type StorageConfig struct {
	EmbeddingsDir string // one artifact per (student, view) lives under this root
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // default 25
	MaxIdleConns int    // default 5
}

// ModelsConfig maps embedder model names to their output dimensions.
// Loaded from the embedded models.yaml and used to reject mixed-dimension
// deployments at startup instead of at match time.
type ModelsConfig struct {
	Models map[string]ModelInfo `yaml:"models"`
}

type ModelInfo struct {
	Dim int `yaml:"dim"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return defaultVal
}

// envBool reads an environment variable as a boolean flag.
func envBool(key string, defaultVal bool) bool {
	switch os.Getenv(key) {
	case "1", "true", "TRUE", "True", "yes", "on":
		return true
	case "0", "false", "FALSE", "False", "no", "off":
		return false
	}
	return defaultVal
}

// envOr returns the env value or a default when unset.
func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func Load() *Config {
	var models ModelsConfig
	if err := yaml.Unmarshal(modelsYAML, &models); err != nil {
		// Embedded file, so this should never happen in practice.
		panic("failed to unmarshal embedded models.yaml: " + err.Error())
	}

	return &Config{
		Match: MatchConfig{
			Threshold:     envFloat("MATCH_THRESHOLD", 0.80),
			BlurThreshold: envFloat("BLUR_THRESHOLD", 80.0),
			DetThreshold:  envFloat("DET_THRESHOLD", 0.6),
		},
		Liveness: LivenessConfig{
			Enabled:           envBool("LIVENESS_ENABLED", true),
			Required:          envBool("LIVENESS_REQUIRED", false),
			AttendanceEnabled: envBool("LIVENESS_ATTENDANCE_ENABLED", false),
			MinScore:          envFloat("LIVENESS_MIN_SCORE", 0.67),
			MinFaceRatio:      envFloat("LIVENESS_MIN_FACE_RATIO", 0.03),
			MinEyeDistRatio:   envFloat("LIVENESS_MIN_EYE_DIST_RATIO", 0.25),
			ChallengeShift:    envFloat("LIVENESS_CHALLENGE_SHIFT", 0.08),
		},
		Face: FaceConfig{
			ServiceURL:  os.Getenv("FACE_SERVICE_URL"),
			CascadePath: envOr("FACE_CASCADE_PATH", "models/facefinder"),
			CropPad:     envInt("FACE_CROP_PAD", 12),
		},
		Storage: StorageConfig{
			EmbeddingsDir: envOr("EMBEDDINGS_DIR", "embeddings/students"),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Models:   models,
		Cooldown: time.Duration(envInt("COOLDOWN_MINUTES", 5)) * time.Minute,
	}
}

// ModelDim returns the known output dimension for a model name, or 0 if unknown.
func (c *Config) ModelDim(modelName string) int {
	if info, ok := c.Models.Models[modelName]; ok {
		return info.Dim
	}
	return 0
}

// CheckModelDim verifies an embedder's reported dimension against the
// embedded model registry. Models the registry does not know pass; a known
// model with the wrong dimension is a deployment fault and must fail startup
// rather than surface as per-request dimension mismatches.
func (c *Config) CheckModelDim(modelName string, dim int) error {
	want := c.ModelDim(modelName)
	if want > 0 && want != dim {
		return fmt.Errorf("model %s reports dim %d, registry expects %d", modelName, dim, want)
	}
	return nil
}
