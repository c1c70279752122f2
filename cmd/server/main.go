// Package main boots the echominds chat service and serves its HTTP API.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/easeaico/echominds/internal/bootstrap"
	"github.com/easeaico/echominds/internal/config"
	"github.com/easeaico/echominds/internal/httpapi"
)

const version = "1.0.0"

func main() {
	cfg := config.Load()
	slog.SetDefault(bootstrap.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat))
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	slog.Info("configuration loaded",
		"storage", cfg.StorageBackend,
		"retriever", cfg.RetrieverBackend,
		"provider", cfg.LLMProvider,
		"chat_model", cfg.ChatModel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize engine: %v", err)
	}
	defer app.Close()

	if cfg.SeedDir != "" {
		res, err := app.Personas.ImportSeeds(ctx, cfg.SeedDir)
		if err != nil {
			log.Fatalf("failed to import seed characters: %v", err)
		}
		slog.Info("seed characters processed", "imported", res.Imported, "skipped", res.Skipped)
	}

	server := httpapi.NewServer(app.Orchestrator, app.Personas, app.Memories, httpapi.Config{
		Params:         cfg.GenerationParams(),
		Provider:       cfg.LLMProvider,
		TopK:           cfg.TopK,
		Version:        version,
		AllowedOrigins: cfg.CORSOrigins,
		Models:         app.Generator,
		Checks:         app.HealthChecks,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server failed: %v", err)
		}
	case <-ctx.Done():
		slog.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shut down http server", "error", err.Error())
	}
	slog.Info("server shutdown complete")
}
