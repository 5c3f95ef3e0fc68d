package faceengine

import (
	"context"
	"log"

	"github.com/ignisattend/ignis/internal/config"
)

// Engine bundles the detector/embedder pair selected at startup.
type Engine struct {
	Detector Detector
	Embedder Embedder
	// Fallback reports whether the degraded pure-Go engine is active.
	Fallback bool
}

// Select picks the engine once at startup: the service engine when a face
// service is configured and reachable, the pigo+flatten fallback otherwise.
// There is no per-call branching after this point.
func Select(ctx context.Context, cfg config.FaceConfig) (*Engine, error) {
	if cfg.ServiceURL != "" {
		client := NewServiceClient(cfg.ServiceURL)
		if err := client.Ping(ctx); err == nil {
			log.Printf("face engine: service at %s", cfg.ServiceURL)
			return &Engine{Detector: client, Embedder: client}, nil
		} else {
			log.Printf("face engine: service at %s unavailable (%v), falling back", cfg.ServiceURL, err)
		}
	}

	detector, err := NewPigoDetector(cfg.CascadePath)
	if err != nil {
		return nil, err
	}
	log.Printf("face engine: fallback (pigo cascade %s, flatten embedder)", cfg.CascadePath)
	return &Engine{Detector: detector, Embedder: FlattenEmbedder{}, Fallback: true}, nil
}
