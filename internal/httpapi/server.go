// Package httpapi exposes the engine over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi"
	"github.com/rs/cors"

	"github.com/easeaico/echominds/internal/memory"
	"github.com/easeaico/echominds/internal/persona"
	"github.com/easeaico/echominds/internal/types"
)

// ChatService processes turns.
type ChatService interface {
	Chat(ctx context.Context, req types.ChatRequest, params types.GenerationParams) (*types.ChatResponse, error)
	ClearConversation(ctx context.Context, pair types.Pair) error
}

// PersonaService is the persona catalog.
type PersonaService interface {
	Get(ctx context.Context, id string) (*types.Character, error)
	List(ctx context.Context) ([]types.Character, error)
	Create(ctx context.Context, req persona.CreateRequest) (*types.Character, error)
	Update(ctx context.Context, id string, req persona.UpdateRequest) (*types.Character, error)
	Recompile(ctx context.Context, id string) (*types.Character, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// MemoryService manages long-term memories.
type MemoryService interface {
	Create(ctx context.Context, req memory.CreateRequest) (*types.MemoryEntry, error)
	List(ctx context.Context, pair types.Pair, filter memory.ListFilter) ([]types.MemoryEntry, error)
	Get(ctx context.Context, pair types.Pair, id string) (*types.MemoryEntry, error)
	Update(ctx context.Context, pair types.Pair, id string, req memory.UpdateRequest) (*types.MemoryEntry, error)
	Pin(ctx context.Context, pair types.Pair, id string, pinned bool) (*types.MemoryEntry, error)
	Delete(ctx context.Context, pair types.Pair, id string) (bool, error)
	Statistics(ctx context.Context, pair types.Pair) (*types.MemoryStats, error)
}

// ModelCatalog lists the models the configured provider serves.
type ModelCatalog interface {
	ListModels(ctx context.Context) ([]string, error)
}

// HealthCheck reports on one backend component; a nil error means healthy.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Config carries the server settings. Models and Checks are optional.
type Config struct {
	// Params are the default sampling settings for chat turns.
	Params         types.GenerationParams
	Provider       string
	TopK           int
	Version        string
	AllowedOrigins []string
	Models         ModelCatalog
	Checks         []HealthCheck
}

// Server holds the handlers' collaborators.
type Server struct {
	chat      ChatService
	personas  PersonaService
	memories  MemoryService
	models    ModelCatalog
	checks    []HealthCheck
	provider  string
	topK      int
	version   string
	origins   []string
	startedAt time.Time

	mu     sync.RWMutex
	params types.GenerationParams
}

// NewServer returns a Server.
func NewServer(chat ChatService, personas PersonaService, memories MemoryService, cfg Config) *Server {
	return &Server{
		chat:      chat,
		personas:  personas,
		memories:  memories,
		models:    cfg.Models,
		checks:    cfg.Checks,
		provider:  cfg.Provider,
		topK:      cfg.TopK,
		version:   cfg.Version,
		origins:   cfg.AllowedOrigins,
		startedAt: time.Now(),
		params:    cfg.Params,
	}
}

// Router builds the chi router with CORS enabled.
func (s *Server) Router() *chi.Mux {
	router := chi.NewRouter()
	router.Use(cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedHeaders: []string{"Authorization", "Content-Type", "Accept"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
	}).Handler)

	router.Get("/health", s.handleHealth)

	router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/models", s.handleListModels)
		r.Get("/config", s.handleGetConfig)
		r.Put("/config", s.handleUpdateConfig)

		r.Post("/chat", s.handleChat)
		r.Delete("/conversations/{characterID}/{userID}", s.handleClearConversation)
		r.Delete("/chat/{characterID}/{userID}", s.handleClearConversation)

		r.Get("/characters", s.handleListCharacters)
		r.Post("/characters", s.handleCreateCharacter)
		r.Get("/characters/{id}", s.handleGetCharacter)
		r.Put("/characters/{id}", s.handleUpdateCharacter)
		r.Delete("/characters/{id}", s.handleDeleteCharacter)
		r.Post("/characters/{id}/recompile", s.handleRecompileCharacter)

		r.Get("/memories/{characterID}/{userID}", s.handleListMemories)
		r.Post("/memories/{characterID}/{userID}", s.handleCreateMemory)
		r.Get("/memories/{characterID}/{userID}/stats", s.handleMemoryStats)
		r.Get("/memories/{characterID}/{userID}/{memoryID}", s.handleGetMemory)
		r.Put("/memories/{characterID}/{userID}/{memoryID}", s.handleUpdateMemory)
		r.Patch("/memories/{characterID}/{userID}/{memoryID}", s.handleUpdateMemory)
		r.Delete("/memories/{characterID}/{userID}/{memoryID}", s.handleDeleteMemory)
		r.Post("/memories/{characterID}/{userID}/{memoryID}/pin", s.handlePinMemory)
	})
	return router
}

func (s *Server) generationParams() types.GenerationParams {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err.Error())
	}
}

// writeError maps engine errors onto HTTP status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, types.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, types.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, types.ErrDuplicateName):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err.Error())
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return types.Validationf("invalid request body: %v", err)
	}
	return nil
}

func pairFromURL(r *http.Request) types.Pair {
	return types.NewPair(chi.URLParam(r, "characterID"), chi.URLParam(r, "userID"))
}
