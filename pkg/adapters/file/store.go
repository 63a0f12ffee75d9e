package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/issueflow/pkg/domain"
	"github.com/aretw0/issueflow/pkg/ports"
)

// Store implements ports.SnapshotStore using the local filesystem.
// It stores one JSON file per workflow, named after WorkflowKey.ID.
type Store struct {
	BasePath string
}

// New creates a new Store with the given base path.
// If basePath is empty, it defaults to ".issueflow/workflows".
func New(basePath string) *Store {
	if basePath == "" {
		basePath = filepath.Join(".issueflow", "workflows")
	}
	return &Store{BasePath: basePath}
}

func (s *Store) path(key domain.WorkflowKey) string {
	return filepath.Join(s.BasePath, key.ID()+".json")
}

// Save persists the state to a JSON file atomically.
// It writes to a temporary file first, syncs via fsync, and then renames it to the destination.
func (s *Store) Save(ctx context.Context, state *domain.WorkflowState) error {
	if err := state.Key.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(s.BasePath, 0755); err != nil {
		return fmt.Errorf("failed to ensure workflow directory: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	// Same directory as the destination: rename is only atomic within one filesystem.
	tmpFile, err := os.CreateTemp(s.BasePath, "tmp-"+state.Key.ID()+"-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath) // no-op once renamed
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	// Windows cannot rename an open file.
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	destPath := s.path(state.Key)
	// On Windows, os.Rename fails if dest exists.
	if _, err := os.Stat(destPath); err == nil {
		if err := os.Remove(destPath); err != nil {
			return fmt.Errorf("failed to remove existing workflow file for overwrite: %w", err)
		}
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file to workflow file: %w", err)
	}
	return nil
}

// Load retrieves the state from its JSON file.
func (s *Store) Load(ctx context.Context, key domain.WorkflowKey) (*domain.WorkflowState, error) {
	return s.read(s.path(key))
}

func (s *Store) read(path string) (*domain.WorkflowState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.ErrWorkflowNotFound
		}
		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}

	var state domain.WorkflowState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow state: %w", err)
	}
	return &state, nil
}

// Delete removes the workflow file.
func (s *Store) Delete(ctx context.Context, key domain.WorkflowKey) error {
	err := os.Remove(s.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete workflow file: %w", err)
	}
	return nil
}

// List reads every workflow file and returns them newest first.
func (s *Store) List(ctx context.Context, opts ports.ListOptions) ([]domain.Snapshot, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []domain.Snapshot{}, nil
		}
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	var snaps []domain.Snapshot
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" || strings.HasPrefix(name, "tmp-") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		state, err := s.read(filepath.Join(s.BasePath, name))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		snaps = append(snaps, state.Snapshot())
	}
	return ports.Collect(snaps, opts), nil
}
