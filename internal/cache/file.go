package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps one JSON document per cache entry under
// <dir>/<stage>/<key>.json. Writes go to a temp file in the same directory
// followed by a rename, so readers never see a torn entry.
type FileStore struct {
	dir string
}

// NewFileStore creates a FileStore rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the store's root directory.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) entryPath(stage, key string) string {
	return filepath.Join(s.dir, stage, key+".json")
}

// Get reads the entry for (stage, key). A missing, unreadable, or corrupt
// file is reported as a miss rather than an error: the caller will simply
// regenerate and overwrite it.
func (s *FileStore) Get(_ context.Context, stage, key string) ([]byte, bool, error) {
	data, err := os.ReadFile(s.entryPath(stage, key))
	if err != nil {
		return nil, false, nil
	}
	if !json.Valid(data) {
		return nil, false, nil
	}
	return data, true, nil
}

// Set writes the entry for (stage, key) atomically.
func (s *FileStore) Set(_ context.Context, stage, key string, payload []byte) error {
	path := s.entryPath(stage, key)
	if err := writeAtomic(path, payload); err != nil {
		return fmt.Errorf("cache set %s/%s: %w", stage, key, err)
	}
	return nil
}

// Stats returns the number of entries per stage directory.
func (s *FileStore) Stats() (map[string]int, error) {
	stats := make(map[string]int)
	stages, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return stats, nil
		}
		return nil, fmt.Errorf("read dir %s: %w", s.dir, err)
	}
	for _, stage := range stages {
		if !stage.IsDir() {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(s.dir, stage.Name()))
		if err != nil {
			continue
		}
		count := 0
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
				count++
			}
		}
		stats[stage.Name()] = count
	}
	return stats, nil
}

// Clear removes every cached entry.
func (s *FileStore) Clear() error {
	stages, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read dir %s: %w", s.dir, err)
	}
	for _, stage := range stages {
		if err := os.RemoveAll(filepath.Join(s.dir, stage.Name())); err != nil {
			return fmt.Errorf("remove %s: %w", stage.Name(), err)
		}
	}
	return nil
}

// writeAtomic writes data to path by writing a temp file in the same
// directory, then renaming.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up temp file on any error path.
	defer func() {
		if tmpName != "" {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", tmpName, path, err)
	}
	tmpName = "" // prevent deferred removal
	return nil
}
