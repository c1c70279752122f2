package persona

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/easeaico/echominds/internal/types"
	"github.com/easeaico/echominds/internal/utils"
)

// ImportResult counts the outcome of a seed import.
type ImportResult struct {
	Imported int
	Skipped  int
}

// ImportSeeds creates a persona for every .json, .yaml or .yml file in dir.
// Files whose id or name already exists are skipped.
func (s *Service) ImportSeeds(ctx context.Context, dir string) (ImportResult, error) {
	var result ImportResult
	entries, err := os.ReadDir(dir)
	if err != nil {
		return result, fmt.Errorf("failed to read seed directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		req, ok, err := loadSeed(filepath.Join(dir, name))
		if err != nil {
			return result, err
		}
		if !ok {
			continue
		}
		c, err := s.Create(ctx, req)
		switch {
		case errors.Is(err, types.ErrDuplicateName):
			slog.Info("seed character already exists, skipping", "file", name, "name", req.Name)
			result.Skipped++
		case err != nil:
			return result, fmt.Errorf("failed to import %s: %w", name, err)
		default:
			slog.Info("seed character imported", "file", name, "character_id", c.ID)
			result.Imported++
		}
	}
	return result, nil
}

func loadSeed(path string) (CreateRequest, bool, error) {
	var req CreateRequest
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return req, false, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return req, false, fmt.Errorf("failed to read seed %s: %w", filepath.Base(path), err)
	}
	if ext == ".json" {
		err = json.Unmarshal(data, &req)
	} else {
		err = yaml.Unmarshal(data, &req)
	}
	if err != nil {
		return req, false, fmt.Errorf("failed to decode seed %s: %w", filepath.Base(path), err)
	}

	user := req.UserName
	if user == "" {
		user = "there"
	}
	req.Greeting = utils.NormalizePromptText(req.Greeting, req.Name, user)
	req.SystemPromptOverride = utils.NormalizePromptText(req.SystemPromptOverride, req.Name, user)
	return req, true, nil
}
