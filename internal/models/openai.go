// Package models adapts chat providers to the adk model.LLM interface.
package models

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"runtime"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

// openaiModel wraps any OpenAI-compatible chat endpoint (OpenAI, Ollama,
// OpenRouter, x.ai).
type openaiModel struct {
	client             *openai.Client
	name               string
	provider           string
	versionHeaderValue string
}

// NewOpenAIModel returns an OpenAI-compatible model. An empty baseURL uses
// the official endpoint.
func NewOpenAIModel(modelName, apiKey, baseURL string) (model.LLM, error) {
	return newOpenAICompatible(ProviderOpenAI, modelName, apiKey, baseURL)
}

func newOpenAICompatible(provider, modelName, apiKey, baseURL string) (*openaiModel, error) {
	if modelName == "" {
		return nil, fmt.Errorf("model name cannot be empty")
	}
	// Local servers such as Ollama accept any key but the client requires one.
	if apiKey == "" && baseURL == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if apiKey == "" {
		apiKey = "ollama"
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)

	return &openaiModel{
		name:     modelName,
		provider: provider,
		client:   &client,
		versionHeaderValue: fmt.Sprintf("echominds-%s/%s go/%s",
			provider, "1.0.0", strings.TrimPrefix(runtime.Version(), "go")),
	}, nil
}

func (m *openaiModel) Name() string {
	return m.name
}

// ListModels returns the model ids the endpoint serves.
func (m *openaiModel) ListModels(ctx context.Context) ([]string, error) {
	page, err := m.client.Models.List(ctx, option.WithHeader("user-agent", m.versionHeaderValue))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s models: %w", m.provider, err)
	}
	ids := make([]string, 0, len(page.Data))
	for _, info := range page.Data {
		ids = append(ids, info.ID)
	}
	return ids, nil
}

// GenerateContent performs one completion. Streaming is not used by the
// engine, so a stream request yields the whole reply as one final chunk.
func (m *openaiModel) GenerateContent(ctx context.Context, req *model.LLMRequest, stream bool) iter.Seq2[*model.LLMResponse, error] {
	return func(yield func(*model.LLMResponse, error) bool) {
		resp, err := m.generate(ctx, req)
		if resp != nil {
			resp.TurnComplete = true
		}
		yield(resp, err)
	}
}

func (m *openaiModel) generate(ctx context.Context, req *model.LLMRequest) (*model.LLMResponse, error) {
	params := buildOpenAIParams(req, m.name)
	resp, err := m.client.Chat.Completions.New(ctx, params, option.WithHeader("user-agent", m.versionHeaderValue))
	if err != nil {
		slog.Error("failed to call llm API", "provider", m.provider, "model", params.Model, "error", err.Error())
		return nil, fmt.Errorf("failed to call %s API: %w", m.provider, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return &model.LLMResponse{}, nil
	}

	content := &genai.Content{Role: string(genai.RoleModel)}
	if text := resp.Choices[0].Message.Content; text != "" {
		content.Parts = append(content.Parts, &genai.Part{Text: text})
	}
	slog.Debug("llm call finished", "provider", m.provider, "model", params.Model, "total_tokens", resp.Usage.TotalTokens)
	return &model.LLMResponse{Content: content}, nil
}
