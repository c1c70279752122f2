package models

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"google.golang.org/adk/model"
	"google.golang.org/genai"

	"github.com/easeaico/echominds/internal/utils"
)

const defaultAnthropicMaxTokens = 1024

type anthropicModel struct {
	client *anthropic.Client
	name   string
}

// NewAnthropicModel returns a Claude model behind the adk LLM interface.
func NewAnthropicModel(modelName, apiKey string) (model.LLM, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if modelName == "" {
		return nil, fmt.Errorf("model name cannot be empty")
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &anthropicModel{client: &client, name: modelName}, nil
}

func (m *anthropicModel) Name() string {
	return m.name
}

func (m *anthropicModel) ListModels(ctx context.Context) ([]string, error) {
	var ids []string
	pager := m.client.Models.ListAutoPaging(ctx, anthropic.ModelListParams{})
	for pager.Next() {
		ids = append(ids, pager.Current().ID)
	}
	if err := pager.Err(); err != nil {
		return nil, fmt.Errorf("failed to list anthropic models: %w", err)
	}
	return ids, nil
}

func (m *anthropicModel) GenerateContent(ctx context.Context, req *model.LLMRequest, stream bool) iter.Seq2[*model.LLMResponse, error] {
	return func(yield func(*model.LLMResponse, error) bool) {
		resp, err := m.generate(ctx, req)
		if resp != nil {
			resp.TurnComplete = true
		}
		yield(resp, err)
	}
}

func (m *anthropicModel) generate(ctx context.Context, req *model.LLMRequest) (*model.LLMResponse, error) {
	params := buildAnthropicParams(req, m.name)
	msg, err := m.client.Messages.New(ctx, params)
	if err != nil {
		slog.Error("failed to call llm API", "provider", ProviderAnthropic, "model", params.Model, "error", err.Error())
		return nil, fmt.Errorf("failed to call anthropic API: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	content := &genai.Content{Role: string(genai.RoleModel)}
	if sb.Len() > 0 {
		content.Parts = append(content.Parts, &genai.Part{Text: sb.String()})
	}
	slog.Debug("llm call finished", "provider", ProviderAnthropic, "input_tokens", msg.Usage.InputTokens, "output_tokens", msg.Usage.OutputTokens)
	return &model.LLMResponse{Content: content}, nil
}

// buildAnthropicParams maps an adk request onto the Messages API. Claude
// requires alternating turns starting with the user, so consecutive turns of
// the same role are merged and a leading assistant turn is dropped.
func buildAnthropicParams(req *model.LLMRequest, defaultModel string) anthropic.MessageNewParams {
	name := req.Model
	if name == "" {
		name = defaultModel
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(name),
		MaxTokens: defaultAnthropicMaxTokens,
	}

	if cfg := req.Config; cfg != nil {
		if system := utils.ExtractContentText(cfg.SystemInstruction); system != "" {
			params.System = []anthropic.TextBlockParam{{Text: system}}
		}
		if cfg.Temperature != nil {
			params.Temperature = anthropic.Float(float64(*cfg.Temperature))
		}
		if cfg.TopP != nil {
			params.TopP = anthropic.Float(float64(*cfg.TopP))
		}
		if cfg.MaxOutputTokens > 0 {
			params.MaxTokens = int64(cfg.MaxOutputTokens)
		}
	}

	type turn struct {
		assistant bool
		text      string
	}
	var turns []turn
	for _, content := range req.Contents {
		text := utils.ExtractContentText(content)
		if content == nil || text == "" {
			continue
		}
		assistant := content.Role == string(genai.RoleModel)
		if len(turns) == 0 && assistant {
			continue
		}
		if n := len(turns); n > 0 && turns[n-1].assistant == assistant {
			turns[n-1].text += "\n\n" + text
			continue
		}
		turns = append(turns, turn{assistant: assistant, text: text})
	}
	for _, t := range turns {
		if t.assistant {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(t.text)))
		} else {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(t.text)))
		}
	}
	return params
}
