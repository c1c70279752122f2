// Package storage holds the durable backends: PostgreSQL via gorm and plain files.
package storage

import (
	"context"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store holds the DB handle and repositories.
type Store struct {
	db          *gorm.DB
	Characters  *CharacterRepo
	MemoryUnits *GormUnitStore
	Turns       *TurnRepo
}

// NewStore opens PostgreSQL and builds the repositories.
func NewStore(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		db:          db,
		Characters:  NewCharacterRepo(db),
		MemoryUnits: NewGormUnitStore(db),
		Turns:       NewTurnRepo(db),
	}, nil
}

// Migrate enables pgvector and creates or updates the application tables.
func (s *Store) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return fmt.Errorf("failed to enable pgvector extension: %w", err)
	}
	if err := db.AutoMigrate(&characterModel{}, &memoryUnitModel{}, &turnModel{}); err != nil {
		return fmt.Errorf("failed to auto migrate: %w", err)
	}
	// Turns used to be keyed by a joined pair string that was not unique per pair.
	if db.Migrator().HasColumn(&turnModel{}, "pair_key") {
		if err := db.Migrator().DropColumn(&turnModel{}, "pair_key"); err != nil {
			return fmt.Errorf("failed to drop chat_turns.pair_key: %w", err)
		}
	}
	return nil
}

// HasVectorExtension reports whether pgvector is installed.
func (s *Store) HasVectorExtension(ctx context.Context) (bool, error) {
	var exists bool
	if err := s.db.WithContext(ctx).
		Raw("SELECT EXISTS(SELECT 1 FROM pg_extension WHERE extname = 'vector')").
		Scan(&exists).Error; err != nil {
		return false, fmt.Errorf("failed to check pgvector extension: %w", err)
	}
	return exists, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return ping(ctx, s.db)
}

func ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) Close() {
	if s.db == nil {
		return
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return
	}
	_ = sqlDB.Close()
}
