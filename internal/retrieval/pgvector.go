package retrieval

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/easeaico/echominds/internal/storage"
	"github.com/easeaico/echominds/internal/types"
)

// PGRetriever stores turns in PostgreSQL and searches them with pgvector.
type PGRetriever struct {
	turns    *storage.TurnRepo
	embedder Embedder
	nowFunc  func() time.Time
}

// NewPGRetriever returns a retriever over the chat_turns table. The
// embedder must produce storage.EmbeddingDimensions wide vectors.
func NewPGRetriever(turns *storage.TurnRepo, embedder Embedder) (*PGRetriever, error) {
	if embedder.Dimensions() != storage.EmbeddingDimensions {
		return nil, fmt.Errorf("embedder produces %d dimensions, pgvector column needs %d", embedder.Dimensions(), storage.EmbeddingDimensions)
	}
	return &PGRetriever{
		turns:    turns,
		embedder: embedder,
		nowFunc:  func() time.Time { return time.Now().UTC() },
	}, nil
}

// Ping checks the database behind the index.
func (r *PGRetriever) Ping(ctx context.Context) error {
	return r.turns.Ping(ctx)
}

func (r *PGRetriever) Store(ctx context.Context, pair types.Pair, role, text string, metadata map[string]string) (string, error) {
	embedding, err := r.embedder.EmbedDocument(ctx, text)
	if err != nil {
		return "", fmt.Errorf("failed to embed turn: %w", err)
	}
	meta := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	meta[metaRole] = role

	turn := storage.Turn{
		ID:          uuid.NewString(),
		CharacterID: pair.CharacterID,
		UserID:      pair.UserID,
		Role:        role,
		Content:     text,
		Metadata:    meta,
		Embedding:   embedding,
		CreatedAt:   r.nowFunc(),
	}
	if err := r.turns.Add(ctx, turn); err != nil {
		return "", err
	}
	return turn.ID, nil
}

func (r *PGRetriever) RetrieveRelevant(ctx context.Context, pair types.Pair, query string, topK int, minRelevance float64) ([]types.ContextItem, error) {
	if topK <= 0 {
		return nil, nil
	}
	embedding, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	scored, err := r.turns.SearchSimilar(ctx, pair, embedding, topK, minRelevance)
	if err != nil {
		return nil, err
	}
	items := make([]types.ContextItem, 0, len(scored))
	for _, s := range scored {
		items = append(items, types.ContextItem{
			Role:      s.Role,
			Content:   s.Content,
			Relevance: s.Similarity,
			Metadata:  s.Metadata,
		})
	}
	return items, nil
}

func (r *PGRetriever) RetrieveRecent(ctx context.Context, pair types.Pair, limit int) ([]types.HistoryMessage, error) {
	turns, err := r.turns.Recent(ctx, pair, limit)
	if err != nil {
		return nil, err
	}
	history := make([]types.HistoryMessage, 0, len(turns))
	for _, t := range turns {
		history = append(history, types.HistoryMessage{Role: t.Role, Content: t.Content})
	}
	return history, nil
}

func (r *PGRetriever) Clear(ctx context.Context, pair types.Pair) error {
	_, err := r.turns.DeleteByPair(ctx, pair)
	return err
}
