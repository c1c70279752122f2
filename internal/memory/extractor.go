package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/easeaico/echominds/internal/types"
)

// extractionInstruction asks the model for durable facts as a JSON object only.
const extractionInstruction = `You are a memory extractor for a long-running companion chat.
Read the latest exchange and pick out facts worth remembering about the user or the relationship.

Keep only:
1. Personal details the user revealed (name, preferences, habits, important dates)
2. Promises or plans made by either side
3. Clear emotional moments or shifts in the relationship

Output requirements:
- Return a JSON object: {"memories":[{"content":"...","type":"factual|emotional","importance":0.0}]}
- Each content is one short third-person sentence
- Return {"memories":[]} when nothing is worth keeping
- Do not include any text outside the JSON object`

// TextGenerator is the generation call the extractor needs.
type TextGenerator interface {
	Generate(ctx context.Context, instruction string, history []types.HistoryMessage, userTurn string, params types.GenerationParams) (string, error)
}

type extractedMemory struct {
	Content    string   `json:"content"`
	Type       string   `json:"type"`
	Importance *float64 `json:"importance"`
}

type extraction struct {
	Memories []extractedMemory `json:"memories"`
}

// Extractor turns a finished exchange into auto memories.
type Extractor struct {
	generator TextGenerator
	memories  *Service
	maxItems  int
}

// NewExtractor returns an Extractor storing at most maxItems memories per exchange.
func NewExtractor(generator TextGenerator, memories *Service, maxItems int) *Extractor {
	if maxItems <= 0 {
		maxItems = 3
	}
	return &Extractor{generator: generator, memories: memories, maxItems: maxItems}
}

// ExtractExchange stores durable facts from one user/assistant exchange as auto memories.
func (e *Extractor) ExtractExchange(ctx context.Context, pair types.Pair, userTurn, reply string, params types.GenerationParams) ([]types.MemoryEntry, error) {
	exchange := fmt.Sprintf("User: %s\nCharacter: %s", userTurn, reply)
	raw, err := e.generator.Generate(ctx, extractionInstruction, nil, exchange, params)
	if err != nil {
		return nil, fmt.Errorf("failed to extract memories: %w", err)
	}
	parsed, err := parseExtractionJSON(raw)
	if err != nil {
		return nil, err
	}

	var stored []types.MemoryEntry
	for _, item := range parsed.Memories {
		if len(stored) >= e.maxItems {
			break
		}
		content := strings.TrimSpace(item.Content)
		if content == "" {
			continue
		}
		importance := computeImportance(item)
		entry, err := e.memories.Create(ctx, CreateRequest{
			CharacterID: pair.CharacterID,
			UserID:      pair.UserID,
			Content:     truncateRunes(content, MaxContentLength),
			MemoryType:  string(types.MemoryTypeAuto),
			Importance:  &importance,
			Metadata:    map[string]any{"source": "auto", "kind": normalizeKind(item.Type)},
		})
		if err != nil {
			slog.Warn("failed to store extracted memory", "pair", pair.Key(), "error", err.Error())
			continue
		}
		stored = append(stored, *entry)
	}
	return stored, nil
}

// computeImportance scores an extracted memory in [0,1]. A model-supplied
// score wins when present; otherwise emotional items and longer statements rank higher.
func computeImportance(item extractedMemory) float64 {
	if item.Importance != nil {
		return clampScore(*item.Importance)
	}
	score := 0.4
	if normalizeKind(item.Type) == string(types.MemoryTypeEmotional) {
		score += 0.15
	}
	switch n := utf8.RuneCountInString(item.Content); {
	case n >= 120:
		score += 0.10
	case n >= 60:
		score += 0.05
	}
	return clampScore(score)
}

// parseExtractionJSON 从模型输出中提取 JSON 并解码。
func parseExtractionJSON(raw string) (extraction, error) {
	clean := strings.TrimSpace(raw)
	start := strings.Index(clean, "{")
	end := strings.LastIndex(clean, "}")
	if start >= 0 && end > start {
		clean = clean[start : end+1]
	}
	var out extraction
	if err := json.Unmarshal([]byte(clean), &out); err != nil {
		return extraction{}, fmt.Errorf("failed to parse extraction json: %w", err)
	}
	return out, nil
}

func normalizeKind(kind string) string {
	if strings.EqualFold(strings.TrimSpace(kind), string(types.MemoryTypeEmotional)) {
		return string(types.MemoryTypeEmotional)
	}
	return string(types.MemoryTypeFactual)
}

func clampScore(score float64) float64 {
	if score != score || score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
