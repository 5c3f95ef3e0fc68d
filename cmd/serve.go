package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignisattend/ignis/internal/attend"
	"github.com/ignisattend/ignis/internal/config"
	"github.com/ignisattend/ignis/internal/faceengine"
	"github.com/ignisattend/ignis/internal/gallery"
	"github.com/ignisattend/ignis/internal/liveness"
	"github.com/ignisattend/ignis/internal/store/postgres"
	"github.com/ignisattend/ignis/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the attendance API server",
	Long: `Start the Ignis HTTP API.
The API accepts attendance scans, enrollment captures, liveness checks,
dispute filings and manual overrides.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
}

// resolveServeHostPort resolves port and host from flags and environment variables.
func resolveServeHostPort(cmd *cobra.Command) (int, string) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	if envPort := os.Getenv("WEB_PORT"); envPort != "" {
		fmt.Sscanf(envPort, "%d", &port)
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" {
		host = envHost
	}
	return port, host
}

// buildService wires the full attendance stack from configuration. The caller
// owns the returned pool and must close it.
func buildService(ctx context.Context, cfg *config.Config) (*attend.Service, *postgres.Pool, error) {
	if cfg.Database.URL == "" {
		return nil, nil, errors.New("DATABASE_URL environment variable is required")
	}

	fmt.Printf("Connecting to PostgreSQL database...\n")
	st, pool, err := postgres.Initialize(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}

	engine, err := faceengine.Select(ctx, cfg.Face)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("selecting face engine: %w", err)
	}
	if err := cfg.CheckModelDim(engine.Embedder.Name(), engine.Embedder.Dim()); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("face engine: %w", err)
	}

	artifacts := gallery.NewStore(cfg.Storage.EmbeddingsDir)
	cache := gallery.NewCache(artifacts)
	verifier := liveness.NewVerifier(cfg.Liveness, cfg.Match.BlurThreshold)

	return attend.New(cfg, engine, cache, artifacts, verifier, st), pool, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()

	service, pool, err := buildService(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	port, host := resolveServeHostPort(cmd)
	server := web.NewServer(cfg, host, port, service)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Ignis API on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
