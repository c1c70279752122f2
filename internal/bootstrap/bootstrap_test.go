package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/easeaico/echominds/internal/config"
	"github.com/easeaico/echominds/internal/models"
	"github.com/easeaico/echominds/internal/persona"
	"github.com/easeaico/echominds/internal/types"
)

func fileConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		StorageBackend:   config.StorageFile,
		DataDir:          t.TempDir(),
		RetrieverBackend: config.RetrieverChromem,
		EmbeddingBackend: config.EmbeddingHash,
		LLMProvider:      models.ProviderOllama,
		OpenAIBaseURL:    config.DefaultOpenAIBaseURL,
		ChatModel:        "llama3.2:3b",
		TopK:             5,
		HistoryLimit:     6,
		MemoryLimit:      10,
		MaxMessageLength: 2000,
		PersonaCacheSize: 16,
	}
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "debug", "json")
	logger.Debug("hello", "character_id", "luna")

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("expected a json line, got %q: %v", buf.String(), err)
	}
	if line["msg"] != "hello" || line["character_id"] != "luna" {
		t.Fatalf("unexpected fields: %v", line)
	}
}

func TestNewLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "warn", "text")
	logger.Info("quiet")
	logger.Warn("loud")
	if strings.Contains(buf.String(), "quiet") || !strings.Contains(buf.String(), "loud") {
		t.Fatalf("level filter not applied: %q", buf.String())
	}
}

func TestBaseURLFor(t *testing.T) {
	cfg := config.Config{LLMProvider: models.ProviderOpenRouter, OpenAIBaseURL: config.DefaultOpenAIBaseURL}
	if got := baseURLFor(cfg); got != "" {
		t.Fatalf("hosted provider must use its own endpoint, got %q", got)
	}
	cfg.OpenAIBaseURL = "https://proxy.example/v1"
	if got := baseURLFor(cfg); got != "https://proxy.example/v1" {
		t.Fatalf("explicit url must be kept, got %q", got)
	}
	cfg.LLMProvider = models.ProviderOllama
	cfg.OpenAIBaseURL = config.DefaultOpenAIBaseURL
	if got := baseURLFor(cfg); got != config.DefaultOpenAIBaseURL {
		t.Fatalf("local provider keeps the default url, got %q", got)
	}
}

func TestNewWiresFileBackends(t *testing.T) {
	ctx := context.Background()
	app, err := New(ctx, fileConfig(t))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer app.Close()

	if app.Store != nil {
		t.Fatalf("file backend must not open a database")
	}
	c, err := app.Personas.Create(ctx, persona.CreateRequest{
		Name:        "Luna",
		Description: "A night-owl artist who paints the sky.",
		Personality: "Dreamy and curious, a little clumsy.",
		PolicyAxes:  types.PolicyAxes{Language: "en"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := app.Orchestrator.ClearConversation(ctx, types.Pair{CharacterID: c.ID, UserID: "u1"}); err != nil {
		t.Fatalf("clear: %v", err)
	}

	names := make([]string, 0, len(app.HealthChecks))
	for _, check := range app.HealthChecks {
		if err := check.Check(ctx); err != nil {
			t.Fatalf("%s check failed: %v", check.Name, err)
		}
		names = append(names, check.Name)
	}
	if strings.Join(names, ",") != "character_store,memory_store,vector_db" {
		t.Fatalf("unexpected health checks %v", names)
	}
	if app.Generator == nil {
		t.Fatalf("generator not exposed")
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	cfg := fileConfig(t)
	cfg.LLMProvider = "pigeon"
	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatalf("expected provider error")
	}
}
