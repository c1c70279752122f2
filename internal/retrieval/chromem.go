package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"

	"github.com/easeaico/echominds/internal/storage"
	"github.com/easeaico/echominds/internal/types"
)

const (
	metaRole = "role"
	metaSeq  = "seq"
)

// ChromemRetriever keeps one embedded chromem collection per
// character/user pair. Every document carries a per-pair sequence number
// so recent history can be returned in insertion order.
type ChromemRetriever struct {
	db       *chromem.DB
	path     string
	embedder Embedder
	mu       sync.Mutex
	nowFunc  func() time.Time
}

// NewChromemRetriever opens a persistent database at path, or an in-memory
// one when path is empty.
func NewChromemRetriever(path string, embedder Embedder) (*ChromemRetriever, error) {
	db := chromem.NewDB()
	if path != "" {
		var err error
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("failed to open chromem db: %w", err)
		}
	}
	return &ChromemRetriever{
		db:       db,
		path:     path,
		embedder: embedder,
		nowFunc:  func() time.Time { return time.Now().UTC() },
	}, nil
}

// Ping reports whether the persistence directory is usable. An in-memory
// database is always available.
func (r *ChromemRetriever) Ping(_ context.Context) error {
	if r.path == "" {
		return nil
	}
	return storage.EnsureDir(r.path)
}

func collectionName(pair types.Pair) string {
	return "echominds_" + pair.Key()
}

func (r *ChromemRetriever) collection(pair types.Pair) (*chromem.Collection, error) {
	col, err := r.db.GetOrCreateCollection(collectionName(pair), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection: %w", err)
	}
	return col, nil
}

// Store embeds text and appends it to the pair's collection.
func (r *ChromemRetriever) Store(ctx context.Context, pair types.Pair, role, text string, metadata map[string]string) (string, error) {
	embedding, err := r.embedder.EmbedDocument(ctx, text)
	if err != nil {
		return "", fmt.Errorf("failed to embed turn: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	col, err := r.collection(pair)
	if err != nil {
		return "", err
	}
	meta := make(map[string]string, len(metadata)+4)
	for k, v := range metadata {
		meta[k] = v
	}
	meta[metaRole] = role
	meta[metaSeq] = strconv.Itoa(col.Count() + 1)
	meta["character_id"] = pair.CharacterID
	meta["user_id"] = pair.UserID
	if _, ok := meta["timestamp"]; !ok {
		meta["timestamp"] = r.nowFunc().Format(time.RFC3339)
	}

	id := uuid.NewString()
	if err := col.AddDocument(ctx, chromem.Document{
		ID:        id,
		Content:   text,
		Embedding: embedding,
		Metadata:  meta,
	}); err != nil {
		return "", fmt.Errorf("failed to add document: %w", err)
	}
	return id, nil
}

// RetrieveRelevant returns up to topK stored turns whose similarity to
// query is at least minRelevance, most similar first.
func (r *ChromemRetriever) RetrieveRelevant(ctx context.Context, pair types.Pair, query string, topK int, minRelevance float64) ([]types.ContextItem, error) {
	if topK <= 0 {
		return nil, nil
	}
	col, err := r.collection(pair)
	if err != nil {
		return nil, err
	}
	n := min(topK, col.Count())
	if n == 0 {
		return nil, nil
	}
	embedding, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	results, err := col.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}

	items := make([]types.ContextItem, 0, len(results))
	for _, res := range results {
		relevance := float64(res.Similarity)
		if relevance < minRelevance {
			continue
		}
		items = append(items, types.ContextItem{
			Role:      res.Metadata[metaRole],
			Content:   res.Content,
			Relevance: relevance,
			Metadata:  res.Metadata,
		})
	}
	slog.Debug("retrieved context", "pair", pair.Key(), "candidates", len(results), "kept", len(items))
	return items, nil
}

// RetrieveRecent returns the pair's last limit turns, oldest first.
func (r *ChromemRetriever) RetrieveRecent(ctx context.Context, pair types.Pair, limit int) ([]types.HistoryMessage, error) {
	if limit <= 0 {
		return nil, nil
	}
	col, err := r.collection(pair)
	if err != nil {
		return nil, err
	}
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	// chromem has no listing API; a full-width query returns every document.
	results, err := col.QueryEmbedding(ctx, uniformVector(r.embedder.Dimensions()), count, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list collection: %w", err)
	}
	sort.Slice(results, func(i, j int) bool {
		return seqOf(results[i]) < seqOf(results[j])
	})
	if len(results) > limit {
		results = results[len(results)-limit:]
	}
	history := make([]types.HistoryMessage, 0, len(results))
	for _, res := range results {
		history = append(history, types.HistoryMessage{Role: res.Metadata[metaRole], Content: res.Content})
	}
	return history, nil
}

// Clear drops the pair's collection.
func (r *ChromemRetriever) Clear(_ context.Context, pair types.Pair) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.db.DeleteCollection(collectionName(pair)); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return nil
}

func seqOf(res chromem.Result) int {
	n, err := strconv.Atoi(res.Metadata[metaSeq])
	if err != nil {
		return 0
	}
	return n
}

func uniformVector(dims int) []float32 {
	if dims <= 0 {
		dims = 1
	}
	v := make([]float32, dims)
	val := float32(1 / math.Sqrt(float64(dims)))
	for i := range v {
		v[i] = val
	}
	return v
}
