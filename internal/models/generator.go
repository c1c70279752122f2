package models

import (
	"context"
	"fmt"

	"google.golang.org/adk/model"
	"google.golang.org/genai"

	"github.com/easeaico/echominds/internal/types"
	"github.com/easeaico/echominds/internal/utils"
)

// Generator runs single-shot text generation on an adk model.
type Generator struct {
	llm model.LLM
}

// NewGenerator wraps llm.
func NewGenerator(llm model.LLM) *Generator {
	return &Generator{llm: llm}
}

// ModelName reports the underlying model name.
func (g *Generator) ModelName() string {
	return g.llm.Name()
}

// modelLister is implemented by providers that can enumerate their models.
type modelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// ListModels asks the provider for its models. Providers without a listing
// API report only the configured model.
func (g *Generator) ListModels(ctx context.Context) ([]string, error) {
	lister, ok := g.llm.(modelLister)
	if !ok {
		return []string{g.llm.Name()}, nil
	}
	return lister.ListModels(ctx)
}

// Generate sends instruction as the system instruction, followed by history
// and userTurn, and returns the reply text.
func (g *Generator) Generate(ctx context.Context, instruction string, history []types.HistoryMessage, userTurn string, params types.GenerationParams) (string, error) {
	req := buildRequest(instruction, history, userTurn, params)

	var (
		text string
		err  error
	)
	for resp, e := range g.llm.GenerateContent(ctx, req, false) {
		if e != nil {
			err = e
			break
		}
		if resp == nil || resp.Partial {
			continue
		}
		text += utils.ExtractContentText(resp.Content)
	}
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	return text, nil
}

func buildRequest(instruction string, history []types.HistoryMessage, userTurn string, params types.GenerationParams) *model.LLMRequest {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, msg := range history {
		role := genai.RoleUser
		if msg.Role == types.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}
	contents = append(contents, genai.NewContentFromText(userTurn, genai.RoleUser))

	cfg := &genai.GenerateContentConfig{
		// Zero is a valid temperature and is always forwarded.
		Temperature: genai.Ptr(float32(params.Temperature)),
	}
	if instruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(instruction, "system")
	}
	if params.TopP > 0 {
		cfg.TopP = genai.Ptr(float32(params.TopP))
	}
	if params.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(params.MaxTokens)
	}
	return &model.LLMRequest{
		Model:    params.Model,
		Contents: contents,
		Config:   cfg,
	}
}
