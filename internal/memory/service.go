// Package memory owns the per-pair long-term memory store and its ranking policy.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/easeaico/echominds/internal/types"
)

const (
	// MaxContentLength bounds a memory's content in characters.
	MaxContentLength = 500
	// DefaultImportance applies when a create request leaves importance unset.
	DefaultImportance = 0.5
)

// UnitStore persists one whole memory unit per pair.
type UnitStore interface {
	// Load returns nil, nil when the pair has no unit yet.
	Load(ctx context.Context, pair types.Pair) (*types.MemoryUnit, error)
	Save(ctx context.Context, unit *types.MemoryUnit) error
	Delete(ctx context.Context, pair types.Pair) error
}

// CreateRequest describes a new memory entry.
type CreateRequest struct {
	CharacterID string
	UserID      string
	Content     string
	MemoryType  string
	Importance  *float64
	IsPinned    bool
	Metadata    map[string]any
}

// UpdateRequest is a partial update; nil fields are left untouched.
type UpdateRequest struct {
	Content    *string         `json:"content,omitempty"`
	MemoryType *string         `json:"memoryType,omitempty"`
	Importance *float64        `json:"importance,omitempty"`
	IsPinned   *bool           `json:"isPinned,omitempty"`
	Metadata   *map[string]any `json:"metadata,omitempty"`
}

// ListFilter narrows List results before ordering.
type ListFilter struct {
	Type       *types.MemoryType
	PinnedOnly bool
}

// Service implements create/list/update/delete and relevance selection over a UnitStore.
type Service struct {
	store   UnitStore
	locks   *keyedMutex
	nowFunc func() time.Time
	newID   func() string
}

// NewService returns a memory Service.
func NewService(store UnitStore) *Service {
	return &Service{
		store:   store,
		locks:   newKeyedMutex(),
		nowFunc: func() time.Time { return time.Now().UTC() },
		newID:   func() string { return uuid.NewString()[:8] },
	}
}

// Create validates and appends a new entry to the pair's unit.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*types.MemoryEntry, error) {
	pair := types.NewPair(req.CharacterID, req.UserID)
	if err := pair.Validate(); err != nil {
		return nil, err
	}
	content, err := validateContent(req.Content)
	if err != nil {
		return nil, err
	}
	memType := types.MemoryTypeFactual
	if strings.TrimSpace(req.MemoryType) != "" {
		if memType, err = types.ParseMemoryType(req.MemoryType); err != nil {
			return nil, err
		}
	}
	importance := DefaultImportance
	if req.Importance != nil {
		importance = *req.Importance
	}
	if err := validateImportance(importance); err != nil {
		return nil, err
	}

	var created types.MemoryEntry
	err = s.mutate(ctx, pair, func(unit *types.MemoryUnit) (bool, error) {
		now := s.nowFunc()
		created = types.MemoryEntry{
			ID:          s.uniqueID(unit),
			CharacterID: pair.CharacterID,
			UserID:      pair.UserID,
			Content:     content,
			MemoryType:  memType,
			Importance:  importance,
			IsPinned:    req.IsPinned,
			CreatedAt:   now,
			UpdatedAt:   now,
			Metadata:    req.Metadata,
		}
		unit.Memories = append(unit.Memories, created)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	slog.Debug("memory created", "pair", pair.Key(), "memory_id", created.ID, "type", created.MemoryType)
	return &created, nil
}

// List returns the pair's entries filtered, then ordered by (isPinned, importance, createdAt) descending.
func (s *Service) List(ctx context.Context, pair types.Pair, filter ListFilter) ([]types.MemoryEntry, error) {
	entries, err := s.entries(ctx, pair)
	if err != nil {
		return nil, err
	}
	entries = lo.Filter(entries, func(e types.MemoryEntry, _ int) bool {
		if filter.Type != nil && e.MemoryType != *filter.Type {
			return false
		}
		return !filter.PinnedOnly || e.IsPinned
	})
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.IsPinned != b.IsPinned {
			return a.IsPinned
		}
		if a.Importance != b.Importance {
			return a.Importance > b.Importance
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	return entries, nil
}

// Get returns nil, nil when id is unknown.
func (s *Service) Get(ctx context.Context, pair types.Pair, id string) (*types.MemoryEntry, error) {
	entries, err := s.entries(ctx, pair)
	if err != nil {
		return nil, err
	}
	entry, _, ok := lo.FindIndexOf(entries, func(e types.MemoryEntry) bool { return e.ID == id })
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

// Update applies the non-nil fields of req and advances UpdatedAt.
// It returns nil, nil when id is unknown.
func (s *Service) Update(ctx context.Context, pair types.Pair, id string, req UpdateRequest) (*types.MemoryEntry, error) {
	if err := pair.Validate(); err != nil {
		return nil, err
	}
	var content string
	if req.Content != nil {
		c, err := validateContent(*req.Content)
		if err != nil {
			return nil, err
		}
		content = c
	}
	var memType types.MemoryType
	if req.MemoryType != nil {
		t, err := types.ParseMemoryType(*req.MemoryType)
		if err != nil {
			return nil, err
		}
		memType = t
	}
	if req.Importance != nil {
		if err := validateImportance(*req.Importance); err != nil {
			return nil, err
		}
	}

	var updated *types.MemoryEntry
	err := s.mutate(ctx, pair, func(unit *types.MemoryUnit) (bool, error) {
		_, idx, ok := lo.FindIndexOf(unit.Memories, func(e types.MemoryEntry) bool { return e.ID == id })
		if !ok {
			return false, nil
		}
		entry := unit.Memories[idx]
		if req.Content != nil {
			entry.Content = content
		}
		if req.MemoryType != nil {
			entry.MemoryType = memType
		}
		if req.Importance != nil {
			entry.Importance = *req.Importance
		}
		if req.IsPinned != nil {
			entry.IsPinned = *req.IsPinned
		}
		if req.Metadata != nil {
			entry.Metadata = *req.Metadata
		}
		entry.UpdatedAt = s.advance(entry.UpdatedAt)
		unit.Memories[idx] = entry
		updated = &entry
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Pin sets or clears the pinned flag only.
func (s *Service) Pin(ctx context.Context, pair types.Pair, id string, pinned bool) (*types.MemoryEntry, error) {
	return s.Update(ctx, pair, id, UpdateRequest{IsPinned: &pinned})
}

// Delete reports whether an entry was removed.
func (s *Service) Delete(ctx context.Context, pair types.Pair, id string) (bool, error) {
	if err := pair.Validate(); err != nil {
		return false, err
	}
	removed := false
	err := s.mutate(ctx, pair, func(unit *types.MemoryUnit) (bool, error) {
		kept := lo.Filter(unit.Memories, func(e types.MemoryEntry, _ int) bool { return e.ID != id })
		removed = len(kept) != len(unit.Memories)
		unit.Memories = kept
		return removed, nil
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

// RelevantSubset selects at most limit entries: every pinned entry first, in
// stored order, then non-pinned entries by importance. Query text plays no part.
func (s *Service) RelevantSubset(ctx context.Context, pair types.Pair, limit int) ([]types.MemoryEntry, error) {
	if limit <= 0 {
		return []types.MemoryEntry{}, nil
	}
	entries, err := s.entries(ctx, pair)
	if err != nil {
		return nil, err
	}
	pinned := lo.Filter(entries, func(e types.MemoryEntry, _ int) bool { return e.IsPinned })
	regular := lo.Filter(entries, func(e types.MemoryEntry, _ int) bool { return !e.IsPinned })
	sort.SliceStable(regular, func(i, j int) bool { return regular[i].Importance > regular[j].Importance })

	budget := max(0, limit-len(pinned))
	result := append(pinned, regular[:min(budget, len(regular))]...)
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Statistics summarizes the pair's entries.
func (s *Service) Statistics(ctx context.Context, pair types.Pair) (*types.MemoryStats, error) {
	entries, err := s.entries(ctx, pair)
	if err != nil {
		return nil, err
	}
	stats := &types.MemoryStats{
		TotalCount:  len(entries),
		PinnedCount: lo.CountBy(entries, func(e types.MemoryEntry) bool { return e.IsPinned }),
		ByType:      make(map[types.MemoryType]int, len(types.MemoryTypes)),
	}
	for _, t := range types.MemoryTypes {
		stats.ByType[t] = lo.CountBy(entries, func(e types.MemoryEntry) bool { return e.MemoryType == t })
	}
	if len(entries) > 0 {
		stats.AvgImportance = lo.SumBy(entries, func(e types.MemoryEntry) float64 { return e.Importance }) / float64(len(entries))
	}
	return stats, nil
}

// Clear drops the pair's whole unit.
func (s *Service) Clear(ctx context.Context, pair types.Pair) error {
	if err := pair.Validate(); err != nil {
		return err
	}
	unlock := s.locks.Lock(pair.Key())
	defer unlock()
	if err := s.store.Delete(ctx, pair); err != nil {
		return fmt.Errorf("failed to clear memories: %w", err)
	}
	return nil
}

func (s *Service) entries(ctx context.Context, pair types.Pair) ([]types.MemoryEntry, error) {
	if err := pair.Validate(); err != nil {
		return nil, err
	}
	unit, err := s.store.Load(ctx, pair)
	if err != nil {
		return nil, fmt.Errorf("failed to load memories: %w", err)
	}
	if unit == nil {
		return []types.MemoryEntry{}, nil
	}
	out := make([]types.MemoryEntry, len(unit.Memories))
	copy(out, unit.Memories)
	return out, nil
}

// mutate runs fn on a fresh copy of the unit under the pair lock and saves
// the whole unit when fn reports a change.
func (s *Service) mutate(ctx context.Context, pair types.Pair, fn func(unit *types.MemoryUnit) (bool, error)) error {
	unlock := s.locks.Lock(pair.Key())
	defer unlock()

	unit, err := s.store.Load(ctx, pair)
	if err != nil {
		return fmt.Errorf("failed to load memories: %w", err)
	}
	if unit == nil {
		unit = &types.MemoryUnit{CharacterID: pair.CharacterID, UserID: pair.UserID}
	}
	changed, err := fn(unit)
	if err != nil || !changed {
		return err
	}
	unit.LastUpdated = s.nowFunc()
	if err := s.store.Save(ctx, unit); err != nil {
		slog.Error("failed to save memory unit", "pair", pair.Key(), "error", err.Error())
		return fmt.Errorf("failed to save memories: %w", err)
	}
	return nil
}

func (s *Service) uniqueID(unit *types.MemoryUnit) string {
	for {
		id := s.newID()
		if !lo.ContainsBy(unit.Memories, func(e types.MemoryEntry) bool { return e.ID == id }) {
			return id
		}
	}
}

// advance returns a timestamp strictly after prev.
func (s *Service) advance(prev time.Time) time.Time {
	now := s.nowFunc()
	if !now.After(prev) {
		now = prev.Add(time.Microsecond)
	}
	return now
}

func validateContent(raw string) (string, error) {
	content := strings.TrimSpace(raw)
	if content == "" {
		return "", types.Validationf("memory content is required")
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return "", types.Validationf("memory content exceeds %d characters", MaxContentLength)
	}
	return content, nil
}

func validateImportance(v float64) error {
	if v != v || v < 0 || v > 1 {
		return types.Validationf("importance must be between 0 and 1, got %v", v)
	}
	return nil
}
