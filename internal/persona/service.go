// Package persona manages the persona catalog: validation, compilation, caching and persistence.
package persona

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/dgraph-io/ristretto"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/easeaico/echominds/internal/prompt"
	"github.com/easeaico/echominds/internal/types"
)

// Repository is the durable persona storage.
type Repository interface {
	// GetByID returns nil, nil when the persona does not exist.
	GetByID(ctx context.Context, id string) (*types.Character, error)
	List(ctx context.Context) ([]types.Character, error)
	Create(ctx context.Context, c *types.Character) error
	Update(ctx context.Context, c *types.Character) error
	Delete(ctx context.Context, id string) (bool, error)
}

// CreateRequest carries a new persona and its policy axes.
type CreateRequest struct {
	ID                   string                  `json:"id,omitempty" yaml:"id"`
	Name                 string                  `json:"name" yaml:"name"`
	Avatar               string                  `json:"avatar" yaml:"avatar"`
	Description          string                  `json:"description" yaml:"description"`
	Personality          string                  `json:"personality" yaml:"personality"`
	Background           string                  `json:"background,omitempty" yaml:"background"`
	ExampleDialogues     []types.DialogueExample `json:"exampleDialogues,omitempty" yaml:"exampleDialogues"`
	Greeting             string                  `json:"greeting,omitempty" yaml:"greeting"`
	SystemPromptOverride string                  `json:"systemPromptOverride,omitempty" yaml:"systemPromptOverride"`
	types.PolicyAxes     `yaml:",inline"`
}

// UpdateRequest is a partial update of descriptive fields. The stored
// instruction text only changes through Recompile or an explicit SystemPrompt.
type UpdateRequest struct {
	Name             *string                  `json:"name,omitempty"`
	Avatar           *string                  `json:"avatar,omitempty"`
	Description      *string                  `json:"description,omitempty"`
	Personality      *string                  `json:"personality,omitempty"`
	Background       *string                  `json:"background,omitempty"`
	ExampleDialogues *[]types.DialogueExample `json:"exampleDialogues,omitempty"`
	Greeting         *string                  `json:"greeting,omitempty"`
	SystemPrompt     *string                  `json:"systemPrompt,omitempty"`
	Axes             *types.PolicyAxes        `json:"axes,omitempty"`
}

// Service is the persona catalog with a read-through cache keyed by id.
type Service struct {
	repo    Repository
	cache   *ristretto.Cache
	writeMu sync.RWMutex
	nowFunc func() time.Time
}

// NewService returns a catalog caching up to cacheSize personas.
func NewService(repo Repository, cacheSize int64) (*Service, error) {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cacheSize * 10,
		MaxCost:     cacheSize,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create persona cache: %w", err)
	}
	return &Service{
		repo:    repo,
		cache:   cache,
		nowFunc: func() time.Time { return time.Now().UTC() },
	}, nil
}

// Close releases the cache.
func (s *Service) Close() {
	s.cache.Close()
}

// Get returns the persona or an ErrNotFound error.
func (s *Service) Get(ctx context.Context, id string) (*types.Character, error) {
	if v, ok := s.cache.Get(id); ok {
		c := v.(types.Character)
		return &c, nil
	}
	// Hold the read lock so a concurrent write cannot be shadowed by a stale fill.
	s.writeMu.RLock()
	defer s.writeMu.RUnlock()
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, types.NotFoundf("character %s", id)
	}
	s.remember(*c)
	return c, nil
}

func (s *Service) List(ctx context.Context) ([]types.Character, error) {
	return s.repo.List(ctx)
}

// Create validates req, rejects case-insensitive name collisions, compiles
// the instruction text and derives a greeting unless one is given.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*types.Character, error) {
	req = applyDefaults(req)
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.ensureUniqueName(ctx, req.Name, ""); err != nil {
		return nil, err
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.NewString()
	} else if existing, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, fmt.Errorf("%w: id %s already exists", types.ErrDuplicateName, id)
	}

	now := s.nowFunc()
	c := &types.Character{
		ID:               id,
		Name:             strings.TrimSpace(req.Name),
		Avatar:           strings.TrimSpace(req.Avatar),
		Description:      strings.TrimSpace(req.Description),
		Personality:      strings.TrimSpace(req.Personality),
		Background:       strings.TrimSpace(req.Background),
		ExampleDialogues: req.ExampleDialogues,
		Axes:             req.PolicyAxes,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	c.SystemPrompt = strings.TrimSpace(req.SystemPromptOverride)
	if c.SystemPrompt == "" {
		c.SystemPrompt = prompt.Compile(prompt.DefinitionOf(c), c.Axes)
	}
	c.Greeting = strings.TrimSpace(req.Greeting)
	if c.Greeting == "" {
		c.Greeting = prompt.DeriveGreeting(c.Name, c.Axes)
	}

	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	s.remember(*c)
	slog.Info("character created", "character_id", c.ID, "name", c.Name)
	return c, nil
}

// Update applies the non-nil fields of req.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (*types.Character, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, types.NotFoundf("character %s", id)
	}

	if req.Name != nil {
		if err := s.ensureUniqueName(ctx, *req.Name, id); err != nil {
			return nil, err
		}
		c.Name = strings.TrimSpace(*req.Name)
	}
	setIf(&c.Avatar, req.Avatar)
	setIf(&c.Description, req.Description)
	setIf(&c.Personality, req.Personality)
	setIf(&c.Background, req.Background)
	setIf(&c.Greeting, req.Greeting)
	setIf(&c.SystemPrompt, req.SystemPrompt)
	if req.ExampleDialogues != nil {
		c.ExampleDialogues = *req.ExampleDialogues
	}
	if req.Axes != nil {
		c.Axes = *req.Axes
	}
	if err := validateCharacter(c); err != nil {
		return nil, err
	}
	c.UpdatedAt = s.nowFunc()

	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}
	s.forget(id)
	return c, nil
}

// Recompile rebuilds the stored instruction text from the stored axes.
func (s *Service) Recompile(ctx context.Context, id string) (*types.Character, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, types.NotFoundf("character %s", id)
	}
	c.SystemPrompt = prompt.Compile(prompt.DefinitionOf(c), c.Axes)
	c.UpdatedAt = s.nowFunc()
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}
	s.forget(id)
	slog.Info("character recompiled", "character_id", id)
	return c, nil
}

// Delete reports whether the persona existed.
func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	removed, err := s.repo.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	s.forget(id)
	return removed, nil
}

func (s *Service) ensureUniqueName(ctx context.Context, name, selfID string) error {
	all, err := s.repo.List(ctx)
	if err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	clash := lo.ContainsBy(all, func(c types.Character) bool {
		return c.ID != selfID && strings.EqualFold(strings.TrimSpace(c.Name), name)
	})
	if clash {
		return fmt.Errorf("%w: a character named %q already exists", types.ErrDuplicateName, name)
	}
	return nil
}

func (s *Service) remember(c types.Character) {
	s.cache.Set(c.ID, c, 1)
	s.cache.Wait()
}

func (s *Service) forget(id string) {
	s.cache.Del(id)
}

func setIf(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

func applyDefaults(req CreateRequest) CreateRequest {
	def := func(v *string, fallback string) {
		if strings.TrimSpace(*v) == "" {
			*v = fallback
		}
	}
	def(&req.Avatar, "🤖")
	def(&req.Language, types.LanguageIndonesian)
	def(&req.ConversationStyle, "friendly")
	def(&req.RelationshipType, "friend")
	def(&req.RelationshipRole, "equal")
	def(&req.EmotionalTone, "warm")
	def(&req.Category, "supportive")
	return req
}

type bound struct {
	field    string
	value    string
	min, max int
}

func checkBounds(bounds ...bound) error {
	for _, b := range bounds {
		n := utf8.RuneCountInString(strings.TrimSpace(b.value))
		if n < b.min || n > b.max {
			if b.min > 0 {
				return types.Validationf("%s must be %d-%d characters, got %d", b.field, b.min, b.max, n)
			}
			return types.Validationf("%s must be at most %d characters, got %d", b.field, b.max, n)
		}
	}
	return nil
}

func validateCreate(req CreateRequest) error {
	if err := checkBounds(
		bound{"id", req.ID, 0, types.MaxIDLength},
		bound{"name", req.Name, 1, 50},
		bound{"avatar", req.Avatar, 1, 10},
		bound{"description", req.Description, 10, 200},
		bound{"personality", req.Personality, 10, 1000},
		bound{"background", req.Background, 0, 2000},
	); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(req.Language)) {
	case types.LanguageIndonesian, types.LanguageEnglish:
	default:
		return types.Validationf("language must be %q or %q", types.LanguageIndonesian, types.LanguageEnglish)
	}
	if len(req.ExampleDialogues) > 10 {
		return types.Validationf("at most 10 example dialogues are allowed")
	}
	return nil
}

func validateCharacter(c *types.Character) error {
	return checkBounds(
		bound{"name", c.Name, 1, 50},
		bound{"avatar", c.Avatar, 1, 10},
		bound{"description", c.Description, 10, 200},
		bound{"personality", c.Personality, 10, 1000},
		bound{"background", c.Background, 0, 2000},
	)
}
