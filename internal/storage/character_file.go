package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/easeaico/echominds/internal/types"
)

// FileCharacterRepo keeps one JSON file per character under dir.
type FileCharacterRepo struct {
	dir string
	mu  sync.RWMutex
}

// NewFileCharacterRepo returns a FileCharacterRepo rooted at dir.
func NewFileCharacterRepo(dir string) *FileCharacterRepo {
	return &FileCharacterRepo{dir: dir}
}

// Ping reports whether the character directory is usable.
func (r *FileCharacterRepo) Ping(_ context.Context) error {
	return EnsureDir(r.dir)
}

func (r *FileCharacterRepo) path(id string) (string, error) {
	if err := safeName(id); err != nil {
		return "", err
	}
	return filepath.Join(r.dir, id+".json"), nil
}

func (r *FileCharacterRepo) GetByID(_ context.Context, id string) (*types.Character, error) {
	path, err := r.path(id)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var c types.Character
	found, err := readJSON(path, &c)
	if err != nil {
		return nil, fmt.Errorf("failed to get character by id: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &c, nil
}

func (r *FileCharacterRepo) List(_ context.Context) ([]types.Character, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries, err := os.ReadDir(r.dir)
	if os.IsNotExist(err) {
		return []types.Character{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list characters: %w", err)
	}
	out := make([]types.Character, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		var c types.Character
		if _, err := readJSON(filepath.Join(r.dir, name), &c); err != nil {
			return nil, fmt.Errorf("failed to list characters: %w", err)
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *FileCharacterRepo) Create(_ context.Context, c *types.Character) error {
	path, err := r.path(c.ID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("failed to insert character: id %s already exists", c.ID)
	}
	return writeJSONAtomic(path, c)
}

func (r *FileCharacterRepo) Update(_ context.Context, c *types.Character) error {
	path, err := r.path(c.ID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := os.Stat(path); err != nil {
		return types.NotFoundf("character %s", c.ID)
	}
	return writeJSONAtomic(path, c)
}

func (r *FileCharacterRepo) Delete(_ context.Context, id string) (bool, error) {
	path, err := r.path(id)
	if err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return removeIfExists(path)
}
