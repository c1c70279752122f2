// Package bootstrap wires the configured backends into running services.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/easeaico/echominds/internal/agent"
	"github.com/easeaico/echominds/internal/config"
	"github.com/easeaico/echominds/internal/httpapi"
	"github.com/easeaico/echominds/internal/memory"
	"github.com/easeaico/echominds/internal/models"
	"github.com/easeaico/echominds/internal/persona"
	"github.com/easeaico/echominds/internal/retrieval"
	"github.com/easeaico/echominds/internal/storage"
)

// NewLogger returns a slog logger backed by charmbracelet/log.
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	opts := log.Options{
		Level:           lvl,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	}
	if format == "json" {
		opts.Formatter = log.JSONFormatter
	}
	return slog.New(log.NewWithOptions(w, opts))
}

// App holds the wired services.
type App struct {
	Personas     *persona.Service
	Memories     *memory.Service
	Orchestrator *agent.Orchestrator
	Generator    *models.Generator
	// Store is nil unless a postgres backend is configured.
	Store *storage.Store
	// HealthChecks cover the character store, the memory store and, once
	// the engine is wired, the vector index.
	HealthChecks []httpapi.HealthCheck
}

// Close drains background work and releases resources.
func (a *App) Close() {
	if a.Orchestrator != nil {
		a.Orchestrator.Wait()
	}
	if a.Personas != nil {
		a.Personas.Close()
	}
	if a.Store != nil {
		a.Store.Close()
	}
}

// NewCatalog wires only the persona and memory services. It is enough for
// operator tasks that never call a model.
func NewCatalog(ctx context.Context, cfg config.Config) (*App, error) {
	app := &App{}
	var (
		repo  persona.Repository
		units memory.UnitStore
	)

	if cfg.StorageBackend == config.StoragePostgres || cfg.RetrieverBackend == config.RetrieverPGVector {
		store, err := storage.NewStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		app.Store = store
	}

	switch cfg.StorageBackend {
	case config.StoragePostgres:
		repo = app.Store.Characters
		units = app.Store.MemoryUnits
		app.HealthChecks = append(app.HealthChecks,
			httpapi.HealthCheck{Name: "character_store", Check: app.Store.Ping},
			httpapi.HealthCheck{Name: "memory_store", Check: app.Store.Ping},
		)
	default:
		characters := storage.NewFileCharacterRepo(filepath.Join(cfg.DataDir, "characters"))
		unitStore := storage.NewFileUnitStore(filepath.Join(cfg.DataDir, "memories"))
		repo, units = characters, unitStore
		app.HealthChecks = append(app.HealthChecks,
			httpapi.HealthCheck{Name: "character_store", Check: characters.Ping},
			httpapi.HealthCheck{Name: "memory_store", Check: unitStore.Ping},
		)
	}

	personas, err := persona.NewService(repo, cfg.PersonaCacheSize)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Personas = personas
	app.Memories = memory.NewService(units)
	slog.Info("catalog ready", "storage", cfg.StorageBackend)
	return app, nil
}

// New wires the full engine: catalog, retriever, model and orchestrator.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	app, err := NewCatalog(ctx, cfg)
	if err != nil {
		return nil, err
	}

	retriever, err := newRetriever(ctx, cfg, app.Store)
	if err != nil {
		app.Close()
		return nil, err
	}

	llm, err := models.NewLLM(ctx, models.ProviderConfig{
		Provider: cfg.LLMProvider,
		Model:    cfg.ChatModel,
		APIKey:   cfg.ProviderAPIKey(),
		BaseURL:  baseURLFor(cfg),
	})
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to create llm: %w", err)
	}
	generator := models.NewGenerator(llm)
	app.Generator = generator
	app.HealthChecks = append(app.HealthChecks, httpapi.HealthCheck{Name: "vector_db", Check: retriever.Ping})

	deps := agent.Deps{
		Personas:  app.Personas,
		Memory:    app.Memories,
		Retriever: retriever,
		Generator: generator,
	}
	if cfg.AutoMemory {
		deps.Extractor = memory.NewExtractor(generator, app.Memories, 0)
	}
	orch, err := agent.NewOrchestrator(deps, agent.Options{
		HistoryLimit:     cfg.HistoryLimit,
		MemoryLimit:      cfg.MemoryLimit,
		TopK:             cfg.TopK,
		MinRelevance:     cfg.SimilarityThreshold,
		MaxMessageLength: cfg.MaxMessageLength,
		AutoMemory:       cfg.AutoMemory,
	})
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Orchestrator = orch
	slog.Info("engine ready", "retriever", cfg.RetrieverBackend, "embedding", cfg.EmbeddingBackend, "provider", cfg.LLMProvider, "model", llm.Name())
	return app, nil
}

// indexRetriever is a retriever whose backing index can be health checked.
type indexRetriever interface {
	agent.Retriever
	Ping(ctx context.Context) error
}

func newRetriever(ctx context.Context, cfg config.Config, store *storage.Store) (indexRetriever, error) {
	var embedder retrieval.Embedder
	switch cfg.EmbeddingBackend {
	case config.EmbeddingGenAI:
		e, err := retrieval.NewGenAIEmbedder(ctx, cfg.GoogleAPIKey, cfg.EmbeddingModel, storage.EmbeddingDimensions)
		if err != nil {
			return nil, err
		}
		embedder = e
	default:
		embedder = retrieval.NewHashEmbedder(storage.EmbeddingDimensions)
	}

	if cfg.RetrieverBackend == config.RetrieverPGVector {
		return retrieval.NewPGRetriever(store.Turns, embedder)
	}
	return retrieval.NewChromemRetriever(cfg.ChromemPath, embedder)
}

// baseURLFor keeps the hosted providers on their own endpoints unless the
// configured URL was changed from the local default.
func baseURLFor(cfg config.Config) string {
	switch cfg.LLMProvider {
	case models.ProviderOpenRouter, models.ProviderGrok:
		if cfg.OpenAIBaseURL == config.DefaultOpenAIBaseURL {
			return ""
		}
	}
	return cfg.OpenAIBaseURL
}
