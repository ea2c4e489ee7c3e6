package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps one <id>.bin file per drawing under Dir, creating the
// directory lazily on first save.
type FileStore struct {
	Dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

func (s *FileStore) Load(_ context.Context, id string) ([]byte, error) {
	state, err := os.ReadFile(s.path(id))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load drawing %s: %w", id, err)
	}
	return state, nil
}

func (s *FileStore) Save(_ context.Context, id string, state []byte) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("save drawing %s: %w", id, err)
	}
	// Write-then-rename so a crash mid-write can never leave a truncated
	// snapshot in place of the previous good one.
	path := s.path(id)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, state, 0o644); err != nil {
		return fmt.Errorf("save drawing %s: %w", id, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("save drawing %s: %w", id, err)
	}
	return nil
}

func (s *FileStore) path(id string) string {
	// Ids come from client room names; keep them from escaping Dir.
	safe := strings.ReplaceAll(id, string(os.PathSeparator), "_")
	return filepath.Join(s.Dir, filepath.Base(safe)+".bin")
}
