package httpapi

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/easeaico/echominds/internal/types"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
	statusDown     = "down"

	healthCheckTimeout = 5 * time.Second
)

type healthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version,omitempty"`
	Timestamp  string            `json:"timestamp"`
	Components map[string]string `json:"components"`
	LLM        llmHealth         `json:"llm"`
	Metrics    healthMetrics     `json:"metrics"`
}

type llmHealth struct {
	Provider        string `json:"provider"`
	Model           string `json:"model"`
	AvailableModels int    `json:"available_models"`
}

type healthMetrics struct {
	Characters    int     `json:"characters"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// handleHealth always answers 200; failing components turn the status to degraded.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	params := s.generationParams()
	resp := healthResponse{
		Status:     statusHealthy,
		Version:    s.version,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Components: make(map[string]string, len(s.checks)+1),
		LLM:        llmHealth{Provider: s.provider, Model: params.Model},
		Metrics: healthMetrics{
			UptimeSeconds: math.Round(time.Since(s.startedAt).Seconds()*10) / 10,
		},
	}

	if s.models != nil {
		available, err := s.models.ListModels(ctx)
		switch {
		case err != nil:
			slog.Warn("health check failed", "component", "llm", "error", err.Error())
			resp.Components["llm"] = statusDown
		case len(available) == 0:
			resp.Components["llm"] = statusDown
		default:
			resp.Components["llm"] = statusHealthy
		}
		resp.LLM.AvailableModels = len(available)
	}
	for _, check := range s.checks {
		if err := check.Check(ctx); err != nil {
			slog.Warn("health check failed", "component", check.Name, "error", err.Error())
			resp.Components[check.Name] = statusDown
			continue
		}
		resp.Components[check.Name] = statusHealthy
	}

	if characters, err := s.personas.List(ctx); err != nil {
		slog.Warn("failed to count characters", "error", err.Error())
	} else {
		resp.Metrics.Characters = len(characters)
	}

	for _, status := range resp.Components {
		if status != statusHealthy {
			resp.Status = statusDegraded
			break
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type modelsResponse struct {
	Models []string `json:"models"`
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	if s.models == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "model listing is not available"})
		return
	}
	available, err := s.models.ListModels(r.Context())
	if err != nil {
		slog.Error("failed to list models", "error", err.Error())
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "LLM service not available"})
		return
	}
	if available == nil {
		available = []string{}
	}
	writeJSON(w, http.StatusOK, modelsResponse{Models: available})
}

type modelConfig struct {
	Provider    string  `json:"provider"`
	ModelName   string  `json:"model_name"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	TopP        float64 `json:"top_p"`
	TopK        int     `json:"top_k"`
}

func (s *Server) currentConfig() modelConfig {
	params := s.generationParams()
	return modelConfig{
		Provider:    s.provider,
		ModelName:   params.Model,
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
		TopP:        params.TopP,
		TopK:        s.topK,
	}
}

func (s *Server) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.currentConfig())
}

type modelConfigUpdate struct {
	ModelName   *string  `json:"model_name,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
}

func (u modelConfigUpdate) validate() error {
	if u.ModelName != nil && strings.TrimSpace(*u.ModelName) == "" {
		return types.Validationf("model_name must not be empty")
	}
	if u.Temperature != nil && (*u.Temperature < 0 || *u.Temperature > 2) {
		return types.Validationf("temperature must be within [0, 2], got %v", *u.Temperature)
	}
	if u.MaxTokens != nil && (*u.MaxTokens < 50 || *u.MaxTokens > 4096) {
		return types.Validationf("max_tokens must be within [50, 4096], got %d", *u.MaxTokens)
	}
	if u.TopP != nil && (*u.TopP <= 0 || *u.TopP > 1) {
		return types.Validationf("top_p must be within (0, 1], got %v", *u.TopP)
	}
	return nil
}

// handleUpdateConfig changes the sampling settings of later chat turns.
// Changes are not persisted across restarts.
func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var update modelConfigUpdate
	if err := decodeJSON(r, &update); err != nil {
		writeError(w, r, err)
		return
	}
	if err := update.validate(); err != nil {
		writeError(w, r, err)
		return
	}

	s.mu.Lock()
	if update.ModelName != nil {
		s.params.Model = strings.TrimSpace(*update.ModelName)
	}
	if update.Temperature != nil {
		s.params.Temperature = *update.Temperature
	}
	if update.MaxTokens != nil {
		s.params.MaxTokens = *update.MaxTokens
	}
	if update.TopP != nil {
		s.params.TopP = *update.TopP
	}
	params := s.params
	s.mu.Unlock()

	slog.Info("generation settings updated", "model", params.Model, "temperature", params.Temperature, "max_tokens", params.MaxTokens, "top_p", params.TopP)
	writeJSON(w, http.StatusOK, s.currentConfig())
}
