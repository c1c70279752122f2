package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/easeaico/echominds/internal/types"
)

// EmbeddingDimensions is the width of the chat_turns embedding column.
const EmbeddingDimensions = 768

// turnModel maps to the chat_turns table.
type turnModel struct {
	ID          string `gorm:"primaryKey;size:36"`
	Seq         int64  `gorm:"autoIncrement;not null;index"`
	CharacterID string `gorm:"size:64;not null;index:idx_chat_turns_pair"`
	UserID      string `gorm:"size:64;not null;index:idx_chat_turns_pair"`
	Role        string `gorm:"size:16"`
	Content     string `gorm:"type:text;not null"`
	// Metadata holds conversation_id, timestamp and other string tags.
	Metadata  json.RawMessage  `gorm:"type:jsonb"`
	Embedding *pgvector.Vector `gorm:"type:vector(768)"`
	CreatedAt time.Time        `gorm:"index"`
}

func (turnModel) TableName() string {
	return "chat_turns"
}

// Turn is one persisted conversation message.
type Turn struct {
	ID          string
	CharacterID string
	UserID      string
	Role        string
	Content     string
	Metadata    map[string]string
	Embedding   []float32
	CreatedAt   time.Time
}

// ScoredTurn is a Turn with its cosine similarity to a query.
type ScoredTurn struct {
	Turn
	Similarity float64
}

// TurnRepo stores conversation turns with pgvector embeddings.
type TurnRepo struct {
	db *gorm.DB
}

// NewTurnRepo returns a TurnRepo.
func NewTurnRepo(db *gorm.DB) *TurnRepo {
	return &TurnRepo{db: db}
}

func (r *TurnRepo) Ping(ctx context.Context) error {
	return ping(ctx, r.db)
}

func (r *TurnRepo) Add(ctx context.Context, turn Turn) error {
	var vector *pgvector.Vector
	if len(turn.Embedding) > 0 {
		v := pgvector.NewVector(turn.Embedding)
		vector = &v
	}
	metadata, err := marshalJSON(turn.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode turn metadata: %w", err)
	}
	record := turnModel{
		ID:          turn.ID,
		CharacterID: turn.CharacterID,
		UserID:      turn.UserID,
		Role:        turn.Role,
		Content:     turn.Content,
		Metadata:    metadata,
		Embedding:   vector,
		CreatedAt:   turn.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to insert chat turn: %w", err)
	}
	return nil
}

// SearchSimilar returns up to topK turns of the pair whose cosine similarity reaches threshold.
func (r *TurnRepo) SearchSimilar(ctx context.Context, pair types.Pair, embedding []float32, topK int, threshold float64) ([]ScoredTurn, error) {
	if len(embedding) == 0 || topK <= 0 {
		return nil, nil
	}
	query := `
		SELECT id, character_id, user_id, role, content, metadata, created_at,
		       1 - (embedding <=> $1) AS similarity
		FROM chat_turns
		WHERE character_id = $2 AND user_id = $3
		  AND embedding IS NOT NULL AND 1 - (embedding <=> $1) >= $4
		ORDER BY embedding <=> $1 ASC
		LIMIT $5`

	var rows []scoredTurnRow
	if err := r.db.WithContext(ctx).
		Raw(query, pgvector.NewVector(embedding), pair.CharacterID, pair.UserID, threshold, topK).
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to search similar turns: %w", err)
	}
	out := make([]ScoredTurn, 0, len(rows))
	for _, row := range rows {
		out = append(out, ScoredTurn{Turn: row.turn(), Similarity: row.Similarity})
	}
	return out, nil
}

// Recent returns the pair's last limit turns, oldest first.
func (r *TurnRepo) Recent(ctx context.Context, pair types.Pair, limit int) ([]Turn, error) {
	if limit <= 0 {
		return nil, nil
	}
	var records []turnModel
	if err := r.db.WithContext(ctx).
		Where("character_id = ? AND user_id = ?", pair.CharacterID, pair.UserID).
		Order("created_at DESC, seq DESC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query recent turns: %w", err)
	}
	out := make([]Turn, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		out = append(out, turnFromModel(records[i]))
	}
	return out, nil
}

// DeleteByPair removes every turn of the pair.
func (r *TurnRepo) DeleteByPair(ctx context.Context, pair types.Pair) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("character_id = ? AND user_id = ?", pair.CharacterID, pair.UserID).
		Delete(&turnModel{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete chat turns: %w", res.Error)
	}
	return res.RowsAffected, nil
}

type scoredTurnRow struct {
	ID          string
	CharacterID string
	UserID      string
	Role        string
	Content     string
	Metadata    json.RawMessage
	CreatedAt   time.Time
	Similarity  float64
}

func (row scoredTurnRow) turn() Turn {
	return turnFromModel(turnModel{
		ID:          row.ID,
		CharacterID: row.CharacterID,
		UserID:      row.UserID,
		Role:        row.Role,
		Content:     row.Content,
		Metadata:    row.Metadata,
		CreatedAt:   row.CreatedAt,
	})
}

func turnFromModel(model turnModel) Turn {
	var metadata map[string]string
	if err := unmarshalJSON(model.Metadata, &metadata); err != nil {
		slog.Warn("failed to decode chat turn metadata", "turn_id", model.ID, "error", err.Error())
		metadata = nil
	}
	return Turn{
		ID:          model.ID,
		CharacterID: model.CharacterID,
		UserID:      model.UserID,
		Role:        model.Role,
		Content:     model.Content,
		Metadata:    metadata,
		CreatedAt:   model.CreatedAt,
	}
}

// marshalJSON encodes a value into JSONB, returning nil for empty values.
func marshalJSON(value any) (json.RawMessage, error) {
	if value == nil {
		return nil, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	return json.RawMessage(raw), nil
}

// unmarshalJSON decodes JSONB into the provided target.
func unmarshalJSON(data json.RawMessage, target any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, target)
}
