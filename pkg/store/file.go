package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/vango-go/antron/pkg/core/types"
)

// FileStore keeps the blob in <dir>/<key>.json.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates dir if needed. An empty dir means the working
// directory.
func NewFileStore(dir, key string) (*FileStore, error) {
	if dir == "" {
		dir = "."
	}
	if key == "" {
		key = DefaultKey
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &FileStore{path: filepath.Join(dir, key+".json")}, nil
}

// Path returns the blob file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load returns an empty list when the file does not exist.
func (s *FileStore) Load(ctx context.Context) ([]types.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []types.ChatSession{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sessions: %w", err)
	}
	return decode(data)
}

// Save replaces the file atomically.
func (s *FileStore) Save(ctx context.Context, sessions []types.ChatSession) error {
	data, err := encode(sessions)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write sessions: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync sessions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace sessions: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

// Ping checks that the store directory is still there.
func (s *FileStore) Ping(ctx context.Context) error {
	info, err := os.Stat(filepath.Dir(s.path))
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", filepath.Dir(s.path))
	}
	return nil
}
