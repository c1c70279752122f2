package storage

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/easeaico/echominds/internal/types"
)

// FileUnitStore keeps one JSON file per pair named after Pair.Key,
// <dir>/<characterId>_<userId>.json for ids without "_" or "%".
type FileUnitStore struct {
	dir string
}

// NewFileUnitStore returns a FileUnitStore rooted at dir.
func NewFileUnitStore(dir string) *FileUnitStore {
	return &FileUnitStore{dir: dir}
}

func (s *FileUnitStore) Ping(_ context.Context) error {
	return EnsureDir(s.dir)
}

func (s *FileUnitStore) path(pair types.Pair) (string, error) {
	if err := safeName(pair.CharacterID); err != nil {
		return "", err
	}
	if err := safeName(pair.UserID); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, pair.Key()+".json"), nil
}

func (s *FileUnitStore) Load(_ context.Context, pair types.Pair) (*types.MemoryUnit, error) {
	path, err := s.path(pair)
	if err != nil {
		return nil, err
	}
	var unit types.MemoryUnit
	found, err := readJSON(path, &unit)
	if err != nil {
		return nil, fmt.Errorf("failed to load memory unit: %w", err)
	}
	if !found {
		return nil, nil
	}
	if unit.Memories == nil {
		unit.Memories = []types.MemoryEntry{}
	}
	return &unit, nil
}

func (s *FileUnitStore) Save(_ context.Context, unit *types.MemoryUnit) error {
	path, err := s.path(types.NewPair(unit.CharacterID, unit.UserID))
	if err != nil {
		return err
	}
	if unit.Memories == nil {
		unit.Memories = []types.MemoryEntry{}
	}
	return writeJSONAtomic(path, unit)
}

func (s *FileUnitStore) Delete(_ context.Context, pair types.Pair) error {
	path, err := s.path(pair)
	if err != nil {
		return err
	}
	_, err = removeIfExists(path)
	return err
}
