package types

import (
	"strings"
	"time"
	"unicode/utf8"
)

// MemoryType classifies a long-term memory entry.
type MemoryType string

const (
	MemoryTypeFactual   MemoryType = "factual"
	MemoryTypeEmotional MemoryType = "emotional"
	MemoryTypePinned    MemoryType = "pinned"
	MemoryTypeAuto      MemoryType = "auto"
)

// MemoryTypes lists every valid memory type in display order.
var MemoryTypes = []MemoryType{MemoryTypeFactual, MemoryTypeEmotional, MemoryTypePinned, MemoryTypeAuto}

// ParseMemoryType validates a raw memory type value.
func ParseMemoryType(raw string) (MemoryType, error) {
	t := MemoryType(strings.ToLower(strings.TrimSpace(raw)))
	switch t {
	case MemoryTypeFactual, MemoryTypeEmotional, MemoryTypePinned, MemoryTypeAuto:
		return t, nil
	}
	return "", Validationf("invalid memory type %q", raw)
}

// MemoryEntry is one long-term fact about a user or relationship.
type MemoryEntry struct {
	ID          string         `json:"id"`
	CharacterID string         `json:"characterId"`
	UserID      string         `json:"userId"`
	Content     string         `json:"content"`
	MemoryType  MemoryType     `json:"memoryType"`
	Importance  float64        `json:"importance"`
	IsPinned    bool           `json:"isPinned"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// MemoryUnit is the durable per-pair record rewritten on every mutation.
type MemoryUnit struct {
	CharacterID string        `json:"characterId"`
	UserID      string        `json:"userId"`
	LastUpdated time.Time     `json:"lastUpdated"`
	Memories    []MemoryEntry `json:"memories"`
}

// MemoryStats summarizes a pair's memories.
type MemoryStats struct {
	TotalCount    int                `json:"totalCount"`
	PinnedCount   int                `json:"pinnedCount"`
	ByType        map[MemoryType]int `json:"byType"`
	AvgImportance float64            `json:"avgImportance"`
}

// DefaultUserID is used when a caller does not identify the user.
const DefaultUserID = "default"

// Pair identifies the (character, user) owner of memories and conversation turns.
type Pair struct {
	CharacterID string
	UserID      string
}

// NewPair normalizes an empty user id to DefaultUserID.
func NewPair(characterID, userID string) Pair {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		userID = DefaultUserID
	}
	return Pair{CharacterID: strings.TrimSpace(characterID), UserID: userID}
}

// MaxIDLength bounds character and user ids in characters.
const MaxIDLength = 64

var keyEscaper = strings.NewReplacer("%", "%25", "_", "%5F")

// Key is the flat identifier used for files, locks and collections. Both ids
// are escaped so the separator never occurs inside a part and distinct pairs
// never share a key.
func (p Pair) Key() string {
	return keyEscaper.Replace(p.CharacterID) + "_" + keyEscaper.Replace(p.UserID)
}

// Validate rejects pairs without a character id or with oversized ids.
func (p Pair) Validate() error {
	if p.CharacterID == "" {
		return Validationf("character id is required")
	}
	if n := utf8.RuneCountInString(p.CharacterID); n > MaxIDLength {
		return Validationf("character id must be at most %d characters, got %d", MaxIDLength, n)
	}
	if n := utf8.RuneCountInString(p.UserID); n > MaxIDLength {
		return Validationf("user id must be at most %d characters, got %d", MaxIDLength, n)
	}
	return nil
}
