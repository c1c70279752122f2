package models

import (
	"context"
	"errors"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"google.golang.org/adk/model"
	"google.golang.org/genai"

	"github.com/easeaico/echominds/internal/types"
)

type fakeLLM struct {
	lastReq *model.LLMRequest
	replies []*model.LLMResponse
	err     error
}

func (f *fakeLLM) Name() string { return "fake" }

func (f *fakeLLM) GenerateContent(_ context.Context, req *model.LLMRequest, _ bool) iter.Seq2[*model.LLMResponse, error] {
	f.lastReq = req
	return func(yield func(*model.LLMResponse, error) bool) {
		if f.err != nil {
			yield(nil, f.err)
			return
		}
		for _, r := range f.replies {
			if !yield(r, nil) {
				return
			}
		}
	}
}

func textResponse(text string, partial bool) *model.LLMResponse {
	return &model.LLMResponse{Content: genai.NewContentFromText(text, genai.RoleModel), Partial: partial}
}

var sampleHistory = []types.HistoryMessage{
	{Role: types.RoleUser, Content: "hi"},
	{Role: types.RoleAssistant, Content: "hello!"},
}

func TestGeneratorBuildsRequest(t *testing.T) {
	llm := &fakeLLM{replies: []*model.LLMResponse{
		textResponse("ignored partial", true),
		textResponse(`"Nice to see you" *waves*`, false),
	}}
	g := NewGenerator(llm)

	params := types.GenerationParams{Model: "m1", Temperature: 0.7, MaxTokens: 256, TopP: 0.9}
	got, err := g.Generate(context.Background(), "You are Luna.", sampleHistory, "how are you?", params)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got != `"Nice to see you" *waves*` {
		t.Fatalf("unexpected reply: %q", got)
	}

	req := llm.lastReq
	if req.Model != "m1" {
		t.Fatalf("model not forwarded: %q", req.Model)
	}
	roles := make([]string, 0, len(req.Contents))
	for _, c := range req.Contents {
		roles = append(roles, c.Role)
	}
	if strings.Join(roles, ",") != "user,model,user" {
		t.Fatalf("unexpected roles: %v", roles)
	}
	if req.Contents[2].Parts[0].Text != "how are you?" {
		t.Fatalf("user turn must be last")
	}
	cfg := req.Config
	if cfg.SystemInstruction == nil || cfg.SystemInstruction.Parts[0].Text != "You are Luna." {
		t.Fatalf("system instruction not set")
	}
	if cfg.Temperature == nil || *cfg.Temperature != float32(0.7) || cfg.TopP == nil || *cfg.TopP != float32(0.9) || cfg.MaxOutputTokens != 256 {
		t.Fatalf("sampling params not forwarded: %+v", cfg)
	}
}

func TestZeroTemperatureIsForwarded(t *testing.T) {
	req := buildRequest("", nil, "hi", types.GenerationParams{Model: "m1", Temperature: 0})
	if req.Config.Temperature == nil || *req.Config.Temperature != 0 {
		t.Fatalf("temperature 0 must be sent, got %v", req.Config.Temperature)
	}
	if req.Config.TopP != nil || req.Config.MaxOutputTokens != 0 {
		t.Fatalf("unset params must stay unset: %+v", req.Config)
	}

	openaiParams := buildOpenAIParams(req, "m1")
	if !openaiParams.Temperature.Valid() || openaiParams.Temperature.Value != 0 {
		t.Fatalf("openai request lost temperature 0: %+v", openaiParams.Temperature)
	}
	anthropicParams := buildAnthropicParams(req, "m1")
	if !anthropicParams.Temperature.Valid() || anthropicParams.Temperature.Value != 0 {
		t.Fatalf("anthropic request lost temperature 0: %+v", anthropicParams.Temperature)
	}
}

func TestGeneratorWrapsErrors(t *testing.T) {
	boom := errors.New("boom")
	g := NewGenerator(&fakeLLM{err: boom})
	if _, err := g.Generate(context.Background(), "", nil, "hi", types.GenerationParams{}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestBuildOpenAIParams(t *testing.T) {
	req := buildRequest("You are Luna.", sampleHistory, "how are you?", types.GenerationParams{Temperature: 0.5, MaxTokens: 64})
	params := buildOpenAIParams(req, "llama3.2:3b")

	if params.Model != "llama3.2:3b" {
		t.Fatalf("expected default model, got %q", params.Model)
	}
	if len(params.Messages) != 4 {
		t.Fatalf("expected system plus three messages, got %d", len(params.Messages))
	}
	if sys := params.Messages[0].OfSystem; sys == nil || sys.Content.OfString.Value != "You are Luna." {
		t.Fatalf("system message must come first")
	}
	if params.Messages[1].OfUser == nil || params.Messages[2].OfAssistant == nil || params.Messages[3].OfUser == nil {
		t.Fatalf("unexpected message roles")
	}
	if params.Temperature.Value != 0.5 || params.MaxTokens.Value != 64 {
		t.Fatalf("sampling params not mapped")
	}
}

func TestBuildAnthropicParamsAlternatesTurns(t *testing.T) {
	history := []types.HistoryMessage{
		{Role: types.RoleAssistant, Content: "greeting from before"},
		{Role: types.RoleUser, Content: "first"},
		{Role: types.RoleUser, Content: "second"},
		{Role: types.RoleAssistant, Content: "reply"},
	}
	req := buildRequest("You are Luna.", history, "third", types.GenerationParams{MaxTokens: 300, Model: "claude-x"})
	params := buildAnthropicParams(req, "unused")

	if string(params.Model) != "claude-x" || params.MaxTokens != 300 {
		t.Fatalf("model settings not mapped: %s %d", params.Model, params.MaxTokens)
	}
	if len(params.System) != 1 || params.System[0].Text != "You are Luna." {
		t.Fatalf("system prompt not mapped")
	}
	want := []struct {
		role anthropic.MessageParamRole
		text string
	}{
		{anthropic.MessageParamRoleUser, "first\n\nsecond"},
		{anthropic.MessageParamRoleAssistant, "reply"},
		{anthropic.MessageParamRoleUser, "third"},
	}
	if len(params.Messages) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(params.Messages))
	}
	for i, w := range want {
		m := params.Messages[i]
		if m.Role != w.role || m.Content[0].OfText == nil || m.Content[0].OfText.Text != w.text {
			t.Fatalf("message %d: got %s %+v", i, m.Role, m.Content[0].OfText)
		}
	}
}

func TestNewLLMProviders(t *testing.T) {
	ctx := context.Background()
	llm, err := NewLLM(ctx, ProviderConfig{Provider: "ollama", Model: "llama3.2:3b"})
	if err != nil {
		t.Fatalf("ollama should not need a key: %v", err)
	}
	if llm.Name() != "llama3.2:3b" {
		t.Fatalf("unexpected name %q", llm.Name())
	}
	if _, err := NewLLM(ctx, ProviderConfig{Provider: "anthropic", Model: "claude"}); err == nil {
		t.Fatalf("anthropic without a key must fail")
	}
	if _, err := NewLLM(ctx, ProviderConfig{Provider: "carrier-pigeon", Model: "x"}); err == nil {
		t.Fatalf("unknown provider must fail")
	}
}

func TestGeneratorListModelsFallsBackToName(t *testing.T) {
	models, err := NewGenerator(&fakeLLM{}).ListModels(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(models) != 1 || models[0] != "fake" {
		t.Fatalf("expected the configured model, got %v", models)
	}
}

func TestOpenAICompatibleListModels(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"llama3.2:3b","object":"model","created":0,"owned_by":"library"},{"id":"qwen2.5:7b","object":"model","created":0,"owned_by":"library"}]}`))
	}))
	defer ts.Close()

	llm, err := newOpenAICompatible(ProviderOllama, "llama3.2:3b", "", ts.URL)
	if err != nil {
		t.Fatalf("new model: %v", err)
	}
	models, err := NewGenerator(llm).ListModels(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if strings.Join(models, ",") != "llama3.2:3b,qwen2.5:7b" {
		t.Fatalf("unexpected models %v", models)
	}
}
