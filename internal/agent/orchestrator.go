// Package agent runs one conversational turn end to end: it resolves the
// persona, gathers memories and prior context, assembles the instruction,
// calls the model, persists the exchange and parses the reply.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/easeaico/echominds/internal/prompt"
	"github.com/easeaico/echominds/internal/types"
	"github.com/easeaico/echominds/internal/utils"
)

// PersonaSource resolves personas by id.
type PersonaSource interface {
	Get(ctx context.Context, id string) (*types.Character, error)
}

// MemorySource returns the long-term memories to show the model.
type MemorySource interface {
	RelevantSubset(ctx context.Context, pair types.Pair, limit int) ([]types.MemoryEntry, error)
}

// Retriever stores conversation turns and finds relevant or recent ones.
type Retriever interface {
	Store(ctx context.Context, pair types.Pair, role, text string, metadata map[string]string) (string, error)
	RetrieveRelevant(ctx context.Context, pair types.Pair, query string, topK int, minRelevance float64) ([]types.ContextItem, error)
	RetrieveRecent(ctx context.Context, pair types.Pair, limit int) ([]types.HistoryMessage, error)
	Clear(ctx context.Context, pair types.Pair) error
}

// Generator produces the reply text.
type Generator interface {
	Generate(ctx context.Context, instruction string, history []types.HistoryMessage, userTurn string, params types.GenerationParams) (string, error)
}

// MemoryExtractor turns a finished exchange into stored memories.
type MemoryExtractor interface {
	ExtractExchange(ctx context.Context, pair types.Pair, userTurn, reply string, params types.GenerationParams) ([]types.MemoryEntry, error)
}

// Deps are the collaborators of an Orchestrator. Extractor is optional.
type Deps struct {
	Personas  PersonaSource
	Memory    MemorySource
	Retriever Retriever
	Generator Generator
	Extractor MemoryExtractor
}

// Options tunes context assembly.
type Options struct {
	HistoryLimit         int
	MemoryLimit          int
	TopK                 int
	MinRelevance         float64
	MaxMessageLength     int
	ContextPreviewItems  int
	ContextPreviewLength int
	AutoMemory           bool
}

// DefaultOptions returns the standard assembly settings.
func DefaultOptions() Options {
	return Options{
		HistoryLimit:         6,
		MemoryLimit:          10,
		TopK:                 5,
		MinRelevance:         0.3,
		MaxMessageLength:     2000,
		ContextPreviewItems:  prompt.DefaultBuildOptions.ContextItems,
		ContextPreviewLength: prompt.DefaultBuildOptions.PreviewLength,
	}
}

// Orchestrator processes chat turns.
type Orchestrator struct {
	deps       Deps
	opts       Options
	nowFunc    func() time.Time
	background sync.WaitGroup
}

// NewOrchestrator validates deps and returns an Orchestrator.
func NewOrchestrator(deps Deps, opts Options) (*Orchestrator, error) {
	if deps.Personas == nil || deps.Memory == nil || deps.Retriever == nil || deps.Generator == nil {
		return nil, fmt.Errorf("personas, memory, retriever and generator are required")
	}
	def := DefaultOptions()
	if opts.MaxMessageLength <= 0 {
		opts.MaxMessageLength = def.MaxMessageLength
	}
	if opts.ContextPreviewItems <= 0 {
		opts.ContextPreviewItems = def.ContextPreviewItems
	}
	if opts.ContextPreviewLength <= 0 {
		opts.ContextPreviewLength = def.ContextPreviewLength
	}
	if opts.AutoMemory && deps.Extractor == nil {
		return nil, fmt.Errorf("auto memory requires an extractor")
	}
	return &Orchestrator{
		deps:    deps,
		opts:    opts,
		nowFunc: time.Now,
	}, nil
}

// Chat handles one user turn.
func (o *Orchestrator) Chat(ctx context.Context, req types.ChatRequest, params types.GenerationParams) (*types.ChatResponse, error) {
	start := o.nowFunc()

	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, types.Validationf("message must not be empty")
	}
	if n := utf8.RuneCountInString(message); n > o.opts.MaxMessageLength {
		return nil, types.Validationf("message must be at most %d characters, got %d", o.opts.MaxMessageLength, n)
	}
	pair := types.NewPair(req.CharacterID, req.UserID)
	if err := pair.Validate(); err != nil {
		return nil, err
	}

	character, err := o.deps.Personas.Get(ctx, pair.CharacterID)
	if err != nil {
		return nil, err
	}

	memories, contextItems, err := o.gatherKnowledge(ctx, pair, message)
	if err != nil {
		return nil, err
	}
	history, err := o.deps.Retriever.RetrieveRecent(ctx, pair, o.opts.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load recent history: %w", types.ErrRetrieval, err)
	}

	instruction, err := prompt.BuildInstruction(character.SystemPrompt, memories, contextItems, prompt.BuildOptions{
		ContextItems:  o.opts.ContextPreviewItems,
		PreviewLength: o.opts.ContextPreviewLength,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build instruction: %w", err)
	}

	conversationID := strings.TrimSpace(req.ConversationID)
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	reply, err := o.deps.Generator.Generate(ctx, instruction, history, message, params)
	if err != nil {
		slog.Error("failed to generate reply", "character_id", pair.CharacterID, "user_id", pair.UserID, "error", err.Error())
		return nil, fmt.Errorf("%w: %w", types.ErrGeneration, err)
	}

	if err := o.persistExchange(ctx, pair, conversationID, message, reply); err != nil {
		return nil, err
	}

	if o.opts.AutoMemory {
		o.extractInBackground(ctx, pair, message, reply, params)
	}

	return &types.ChatResponse{
		Response:       reply,
		CharacterName:  character.Name,
		ConversationID: conversationID,
		ContextUsed:    contextItems,
		Metadata: types.ResponseMetadata{
			ResponseTime: o.nowFunc().Sub(start).Seconds(),
			TokenCount:   utils.CountTokens(reply),
			Model:        o.modelName(params),
			ContextUsed:  len(contextItems),
		},
		Structured: utils.ParseStructuredReply(reply),
	}, nil
}

// ClearConversation forgets the stored turns of the pair.
func (o *Orchestrator) ClearConversation(ctx context.Context, pair types.Pair) error {
	if err := pair.Validate(); err != nil {
		return err
	}
	if err := o.deps.Retriever.Clear(ctx, pair); err != nil {
		return fmt.Errorf("%w: failed to clear conversation: %w", types.ErrRetrieval, err)
	}
	slog.Info("conversation cleared", "character_id", pair.CharacterID, "user_id", pair.UserID)
	return nil
}

// Wait blocks until background memory extraction has finished.
func (o *Orchestrator) Wait() {
	o.background.Wait()
}

func (o *Orchestrator) gatherKnowledge(ctx context.Context, pair types.Pair, message string) ([]types.MemoryEntry, []types.ContextItem, error) {
	var (
		memories []types.MemoryEntry
		items    []types.ContextItem
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		memories, err = o.deps.Memory.RelevantSubset(gctx, pair, o.opts.MemoryLimit)
		if err != nil {
			return fmt.Errorf("%w: failed to load memories: %w", types.ErrRetrieval, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		items, err = o.deps.Retriever.RetrieveRelevant(gctx, pair, message, o.opts.TopK, o.opts.MinRelevance)
		if err != nil {
			return fmt.Errorf("%w: failed to retrieve context: %w", types.ErrRetrieval, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return memories, items, nil
}

// persistExchange stores the user turn before the assistant turn.
func (o *Orchestrator) persistExchange(ctx context.Context, pair types.Pair, conversationID, message, reply string) error {
	for _, turn := range []struct{ role, text string }{
		{types.RoleUser, message},
		{types.RoleAssistant, reply},
	} {
		metadata := map[string]string{
			"conversation_id": conversationID,
			"timestamp":       o.nowFunc().UTC().Format(time.RFC3339),
			"role":            turn.role,
		}
		if _, err := o.deps.Retriever.Store(ctx, pair, turn.role, turn.text, metadata); err != nil {
			slog.Error("failed to store turn", "role", turn.role, "conversation_id", conversationID, "error", err.Error())
			return fmt.Errorf("%w: failed to store %s turn: %w", types.ErrRetrieval, turn.role, err)
		}
	}
	return nil
}

func (o *Orchestrator) extractInBackground(ctx context.Context, pair types.Pair, message, reply string, params types.GenerationParams) {
	ctx = context.WithoutCancel(ctx)
	o.background.Add(1)
	go func() {
		defer o.background.Done()
		saved, err := o.deps.Extractor.ExtractExchange(ctx, pair, message, reply, params)
		if err != nil {
			slog.Warn("failed to extract memories", "character_id", pair.CharacterID, "user_id", pair.UserID, "error", err.Error())
			return
		}
		if len(saved) > 0 {
			slog.Info("auto memories saved", "character_id", pair.CharacterID, "user_id", pair.UserID, "count", len(saved))
		}
	}()
}

func (o *Orchestrator) modelName(params types.GenerationParams) string {
	if params.Model != "" {
		return params.Model
	}
	if named, ok := o.deps.Generator.(interface{ ModelName() string }); ok {
		return named.ModelName()
	}
	return ""
}
