package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easeaico/echominds/internal/memory"
	"github.com/easeaico/echominds/internal/persona"
	"github.com/easeaico/echominds/internal/storage"
	"github.com/easeaico/echominds/internal/types"
)

type stubChat struct {
	lastReq    types.ChatRequest
	lastParams types.GenerationParams
	cleared    []types.Pair
	err        error
}

func (s *stubChat) Chat(_ context.Context, req types.ChatRequest, params types.GenerationParams) (*types.ChatResponse, error) {
	s.lastReq, s.lastParams = req, params
	if s.err != nil {
		return nil, s.err
	}
	return &types.ChatResponse{Response: "hi there", CharacterName: "Luna", ConversationID: "conv-1"}, nil
}

func (s *stubChat) ClearConversation(_ context.Context, pair types.Pair) error {
	s.cleared = append(s.cleared, pair)
	return nil
}

type stubModels struct {
	models []string
	err    error
}

func (s *stubModels) ListModels(context.Context) ([]string, error) {
	return s.models, s.err
}

func newTestServer(t *testing.T) (*httptest.Server, *stubChat) {
	t.Helper()
	ts, chat, _ := newTestServerWith(t, nil)
	return ts, chat
}

// newTestServerWith builds a server over file stores; checks are appended to
// the store checks.
func newTestServerWith(t *testing.T, modelList *stubModels, checks ...HealthCheck) (*httptest.Server, *stubChat, *persona.Service) {
	t.Helper()
	characters := storage.NewFileCharacterRepo(t.TempDir())
	units := storage.NewFileUnitStore(t.TempDir())
	personas, err := persona.NewService(characters, 16)
	require.NoError(t, err)
	t.Cleanup(personas.Close)
	memories := memory.NewService(units)

	cfg := Config{
		Params:         types.GenerationParams{Model: "m", Temperature: 0.7, MaxTokens: 512, TopP: 0.9},
		Provider:       "ollama",
		TopK:           5,
		Version:        "1.0.0",
		AllowedOrigins: []string{"http://app.test"},
		Checks: append([]HealthCheck{
			{Name: "character_store", Check: characters.Ping},
			{Name: "memory_store", Check: units.Ping},
		}, checks...),
	}
	if modelList != nil {
		cfg.Models = modelList
	}
	chat := &stubChat{}
	ts := httptest.NewServer(NewServer(chat, personas, memories, cfg).Router())
	t.Cleanup(ts.Close)
	return ts, chat, personas
}

func do(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	buf := new(bytes.Buffer)
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

var lunaBody = map[string]any{
	"name":             "Luna",
	"avatar":           "🌙",
	"description":      "A night-owl artist who paints the sky.",
	"personality":      "Dreamy and curious, a little clumsy.",
	"language":         "en",
	"relationshipType": "friend",
}

func TestHealth(t *testing.T) {
	ts, _, personas := newTestServerWith(t, &stubModels{models: []string{"m", "other"}},
		HealthCheck{Name: "vector_db", Check: func(context.Context) error { return nil }})
	_, err := personas.Create(context.Background(), persona.CreateRequest{
		Name:        "Luna",
		Description: "A night-owl artist who paints the sky.",
		Personality: "Dreamy and curious, a little clumsy.",
		PolicyAxes:  types.PolicyAxes{Language: "en"},
	})
	require.NoError(t, err)

	for _, path := range []string{"/api/health", "/health"} {
		resp, body := do(t, http.MethodGet, ts.URL+path, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
		var health healthResponse
		require.NoError(t, json.Unmarshal(body, &health))
		assert.Equal(t, "healthy", health.Status, path)
		assert.Equal(t, map[string]string{
			"llm":             "healthy",
			"vector_db":       "healthy",
			"memory_store":    "healthy",
			"character_store": "healthy",
		}, health.Components)
		assert.Equal(t, llmHealth{Provider: "ollama", Model: "m", AvailableModels: 2}, health.LLM)
		assert.Equal(t, 1, health.Metrics.Characters)
		assert.Equal(t, "1.0.0", health.Version)
	}
}

func TestHealthDegradedWhenComponentDown(t *testing.T) {
	ts, _, _ := newTestServerWith(t, &stubModels{err: fmt.Errorf("connection refused")},
		HealthCheck{Name: "vector_db", Check: func(context.Context) error { return fmt.Errorf("index offline") }})

	resp, body := do(t, http.MethodGet, ts.URL+"/api/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var health healthResponse
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "degraded", health.Status)
	assert.Equal(t, "down", health.Components["llm"])
	assert.Equal(t, "down", health.Components["vector_db"])
	assert.Equal(t, "healthy", health.Components["memory_store"])
}

func TestModelsRoute(t *testing.T) {
	ts, _, _ := newTestServerWith(t, &stubModels{models: []string{"llama3.2:3b"}})
	resp, body := do(t, http.MethodGet, ts.URL+"/api/models", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"models":["llama3.2:3b"]}`, string(body))

	ts, _, _ = newTestServerWith(t, &stubModels{err: fmt.Errorf("connection refused")})
	resp, _ = do(t, http.MethodGet, ts.URL+"/api/models", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	ts, _ = newTestServer(t)
	resp, _ = do(t, http.MethodGet, ts.URL+"/api/models", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestConfigRoutes(t *testing.T) {
	ts, chat := newTestServer(t)

	resp, body := do(t, http.MethodGet, ts.URL+"/api/config", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"provider":"ollama","model_name":"m","temperature":0.7,"max_tokens":512,"top_p":0.9,"top_k":5}`, string(body))

	resp, body = do(t, http.MethodPut, ts.URL+"/api/config", map[string]any{"model_name": "qwen2.5:7b", "temperature": 0})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), `"model_name":"qwen2.5:7b"`)
	assert.Contains(t, string(body), `"temperature":0,`)

	resp, body = do(t, http.MethodPost, ts.URL+"/api/chat", map[string]any{"characterId": "luna", "userId": "sam", "message": "hello"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, "qwen2.5:7b", chat.lastParams.Model)
	assert.Equal(t, 0.0, chat.lastParams.Temperature)
	assert.Equal(t, 512, chat.lastParams.MaxTokens)

	for _, bad := range []map[string]any{
		{"temperature": 2.5},
		{"max_tokens": 10},
		{"top_p": 0},
		{"model_name": "  "},
	} {
		resp, _ = do(t, http.MethodPut, ts.URL+"/api/config", bad)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, bad)
	}
}

func TestCharacterLifecycle(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, body := do(t, http.MethodPost, ts.URL+"/api/characters", lunaBody)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var created types.Character
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, "Luna", created.Name)
	assert.Contains(t, created.SystemPrompt, "You are Luna.")

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/characters", map[string]any{
		"name": "luna", "description": "Another painter of night skies.", "personality": "Quiet and observant.", "language": "en",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/characters", map[string]any{"name": "X", "description": "short"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/characters", map[string]any{"nmae": "typo"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	extra := map[string]any{"clientVersion": "web-1.4"}
	for k, v := range lunaBody {
		extra[k] = v
	}
	extra["name"] = "Nova"
	resp, body = do(t, http.MethodPost, ts.URL+"/api/characters", extra)
	assert.Equal(t, http.StatusCreated, resp.StatusCode, "unknown fields must be ignored: %s", body)

	resp, body = do(t, http.MethodPut, ts.URL+"/api/characters/"+created.ID, map[string]any{"personality": "Bold and loud explorer."})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = do(t, http.MethodPost, ts.URL+"/api/characters/"+created.ID+"/recompile", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), "Bold and loud explorer.")

	resp, body = do(t, http.MethodGet, ts.URL+"/api/characters", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var all []types.Character
	require.NoError(t, json.Unmarshal(body, &all))
	assert.Len(t, all, 2)

	resp, _ = do(t, http.MethodDelete, ts.URL+"/api/characters/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = do(t, http.MethodGet, ts.URL+"/api/characters/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = do(t, http.MethodDelete, ts.URL+"/api/characters/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestChatRoutes(t *testing.T) {
	ts, chat := newTestServer(t)

	resp, body := do(t, http.MethodPost, ts.URL+"/api/chat", map[string]any{"characterId": "luna", "userId": "sam", "message": "hello"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, "hello", chat.lastReq.Message)
	assert.Equal(t, "m", chat.lastParams.Model)
	assert.Contains(t, string(body), `"conversationId":"conv-1"`)

	cases := []struct {
		err  error
		want int
	}{
		{types.Validationf("message must not be empty"), http.StatusBadRequest},
		{types.NotFoundf("character ghost"), http.StatusNotFound},
		{fmt.Errorf("%w: model offline", types.ErrGeneration), http.StatusInternalServerError},
		{fmt.Errorf("%w: index offline", types.ErrRetrieval), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		chat.err = tc.err
		resp, _ := do(t, http.MethodPost, ts.URL+"/api/chat", map[string]any{"characterId": "luna", "message": "hello"})
		assert.Equal(t, tc.want, resp.StatusCode, tc.err.Error())
	}

	for _, path := range []string{"/api/conversations/luna/sam", "/api/chat/luna/sam"} {
		resp, body = do(t, http.MethodDelete, ts.URL+path, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.JSONEq(t, `{"message":"Conversation cleared successfully"}`, string(body))
	}
	require.Len(t, chat.cleared, 2)
	assert.Equal(t, types.NewPair("luna", "sam"), chat.cleared[0])
	assert.Equal(t, chat.cleared[0], chat.cleared[1])
}

func TestMemoryRoutes(t *testing.T) {
	ts, _ := newTestServer(t)
	base := ts.URL + "/api/memories/luna/sam"

	resp, body := do(t, http.MethodPost, base, map[string]any{"content": "Birthday is May 3", "memoryType": "factual"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var entry types.MemoryEntry
	require.NoError(t, json.Unmarshal(body, &entry))
	assert.Equal(t, 0.5, entry.Importance)

	resp, _ = do(t, http.MethodPost, base, map[string]any{"content": "x", "memoryType": "gossip"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = do(t, http.MethodPost, base+"/"+entry.ID+"/pin", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), `"isPinned":true`)

	resp, body = do(t, http.MethodGet, base+"?pinned=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pinned []types.MemoryEntry
	require.NoError(t, json.Unmarshal(body, &pinned))
	assert.Len(t, pinned, 1)

	resp, _ = do(t, http.MethodGet, base+"?type=gossip", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = do(t, http.MethodPut, base+"/"+entry.ID, map[string]any{"importance": 0.9})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), `"importance":0.9`)

	resp, body = do(t, http.MethodPatch, base+"/"+entry.ID, map[string]any{"content": "Birthday is May 4"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), `"content":"Birthday is May 4"`)

	resp, body = do(t, http.MethodGet, base+"/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats types.MemoryStats
	require.NoError(t, json.Unmarshal(body, &stats))
	assert.Equal(t, 1, stats.TotalCount)
	assert.Equal(t, 1, stats.PinnedCount)

	resp, _ = do(t, http.MethodGet, base+"/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = do(t, http.MethodPut, base+"/missing", map[string]any{"importance": 0.2})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, http.MethodDelete, base+"/"+entry.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = do(t, http.MethodDelete, base+"/"+entry.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	ts, _ := newTestServer(t)
	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/chat", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://app.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "http://app.test", resp.Header.Get("Access-Control-Allow-Origin"))
}
