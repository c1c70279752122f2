package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/easeaico/echominds/internal/types"
)

type characterModel struct {
	ID               string                  `gorm:"primaryKey;size:64"`
	Name             string                  `gorm:"size:50;not null"`
	Avatar           string                  `gorm:"size:32"`
	Description      string                  `gorm:"type:text"`
	Personality      string                  `gorm:"type:text"`
	Background       string                  `gorm:"type:text"`
	ExampleDialogues []types.DialogueExample `gorm:"serializer:json;type:jsonb"`
	Greeting         string                  `gorm:"type:text"`
	SystemPrompt     string                  `gorm:"type:text"`
	Axes             types.PolicyAxes        `gorm:"serializer:json;type:jsonb"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (characterModel) TableName() string {
	return "characters"
}

// CharacterRepo accesses the characters table.
type CharacterRepo struct {
	db *gorm.DB
}

// NewCharacterRepo returns a CharacterRepo.
func NewCharacterRepo(db *gorm.DB) *CharacterRepo {
	return &CharacterRepo{db: db}
}

// GetByID returns nil, nil when the character does not exist.
func (r *CharacterRepo) GetByID(ctx context.Context, id string) (*types.Character, error) {
	var model characterModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get character by id: %w", err)
	}
	return characterFromModel(model), nil
}

func (r *CharacterRepo) List(ctx context.Context) ([]types.Character, error) {
	var models []characterModel
	if err := r.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list characters: %w", err)
	}
	out := make([]types.Character, 0, len(models))
	for _, m := range models {
		out = append(out, *characterFromModel(m))
	}
	return out, nil
}

func (r *CharacterRepo) Create(ctx context.Context, c *types.Character) error {
	model := characterToModel(c)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("failed to insert character: %w", err)
	}
	return nil
}

func (r *CharacterRepo) Update(ctx context.Context, c *types.Character) error {
	model := characterToModel(c)
	res := r.db.WithContext(ctx).Model(&characterModel{ID: c.ID}).Select("*").Omit("created_at").Updates(&model)
	if res.Error != nil {
		return fmt.Errorf("failed to update character: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return types.NotFoundf("character %s", c.ID)
	}
	return nil
}

func (r *CharacterRepo) Delete(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&characterModel{})
	if res.Error != nil {
		return false, fmt.Errorf("failed to delete character: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func characterToModel(c *types.Character) characterModel {
	return characterModel{
		ID:               c.ID,
		Name:             c.Name,
		Avatar:           c.Avatar,
		Description:      c.Description,
		Personality:      c.Personality,
		Background:       c.Background,
		ExampleDialogues: c.ExampleDialogues,
		Greeting:         c.Greeting,
		SystemPrompt:     c.SystemPrompt,
		Axes:             c.Axes,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}

func characterFromModel(model characterModel) *types.Character {
	return &types.Character{
		ID:               model.ID,
		Name:             model.Name,
		Avatar:           model.Avatar,
		Description:      model.Description,
		Personality:      model.Personality,
		Background:       model.Background,
		ExampleDialogues: model.ExampleDialogues,
		Greeting:         model.Greeting,
		SystemPrompt:     model.SystemPrompt,
		Axes:             model.Axes,
		CreatedAt:        model.CreatedAt,
		UpdatedAt:        model.UpdatedAt,
	}
}
