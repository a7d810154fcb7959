package urlstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type mirrorFile struct {
	Query     string `json:"query"`
	UpdatedAt string `json:"updated_at"`
}

// FileStore persists the mirrored query string between CLI runs.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load returns the stored query string. ok is false when nothing was saved yet.
func (s *FileStore) Load() (string, bool, error) {
	if s == nil || s.path == "" {
		return "", false, nil
	}

	stat, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("stat state file: %w", err)
	}
	if stat.IsDir() {
		return "", false, fmt.Errorf("state path is a directory")
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return "", false, fmt.Errorf("read state file: %w", err)
	}

	var mf mirrorFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return "", false, fmt.Errorf("parse state file: %w", err)
	}
	return mf.Query, true, nil
}

// Save atomically replaces the stored query string.
func (s *FileStore) Save(query string) error {
	if s == nil || s.path == "" {
		return nil
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}

	data, err := json.Marshal(mirrorFile{
		Query:     query,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write state tmp: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename state file: %w", err)
	}
	return nil
}
