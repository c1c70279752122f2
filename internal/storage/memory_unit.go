package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/easeaico/echominds/internal/types"
)

// memoryUnitModel maps to the memory_units table, one row per pair.
type memoryUnitModel struct {
	CharacterID string          `gorm:"primaryKey;size:64"`
	UserID      string          `gorm:"primaryKey;size:64"`
	Entries     json.RawMessage `gorm:"type:jsonb;not null"`
	LastUpdated time.Time
}

func (memoryUnitModel) TableName() string {
	return "memory_units"
}

// GormUnitStore keeps each pair's memory unit as a jsonb row.
type GormUnitStore struct {
	db *gorm.DB
}

// NewGormUnitStore returns a GormUnitStore.
func NewGormUnitStore(db *gorm.DB) *GormUnitStore {
	return &GormUnitStore{db: db}
}

func (s *GormUnitStore) Load(ctx context.Context, pair types.Pair) (*types.MemoryUnit, error) {
	var model memoryUnitModel
	err := s.db.WithContext(ctx).
		Where("character_id = ? AND user_id = ?", pair.CharacterID, pair.UserID).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load memory unit: %w", err)
	}
	return memoryUnitFromModel(model)
}

// Save replaces the whole row inside one transaction.
func (s *GormUnitStore) Save(ctx context.Context, unit *types.MemoryUnit) error {
	entries, err := json.Marshal(unit.Memories)
	if err != nil {
		return fmt.Errorf("failed to encode memory entries: %w", err)
	}
	record := memoryUnitModel{
		CharacterID: unit.CharacterID,
		UserID:      unit.UserID,
		Entries:     entries,
		LastUpdated: unit.LastUpdated,
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "character_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"entries", "last_updated"}),
		}).Create(&record).Error; err != nil {
			return fmt.Errorf("failed to upsert memory unit: %w", err)
		}
		return nil
	})
}

func (s *GormUnitStore) Delete(ctx context.Context, pair types.Pair) error {
	if err := s.db.WithContext(ctx).
		Where("character_id = ? AND user_id = ?", pair.CharacterID, pair.UserID).
		Delete(&memoryUnitModel{}).Error; err != nil {
		return fmt.Errorf("failed to delete memory unit: %w", err)
	}
	return nil
}

func memoryUnitFromModel(model memoryUnitModel) (*types.MemoryUnit, error) {
	unit := &types.MemoryUnit{
		CharacterID: model.CharacterID,
		UserID:      model.UserID,
		LastUpdated: model.LastUpdated,
		Memories:    []types.MemoryEntry{},
	}
	if len(model.Entries) > 0 {
		if err := json.Unmarshal(model.Entries, &unit.Memories); err != nil {
			return nil, fmt.Errorf("failed to decode memory entries: %w", err)
		}
	}
	return unit, nil
}
