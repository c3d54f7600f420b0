// Package handoff implements the shared text handoff: the single
// last-write-wins string that carries user intent (a selection, a control
// click, typed text) from the page session into the popup. It is written on
// intent, read once on popup open, and freely overwritten by the next write.
package handoff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/promptpolish/cli/internal/config"
)

// Key is the one namespaced key the handoff occupies. There is no history
// and no schema version; the value is a plain string.
const Key = "selectedText"

// Store is the handoff persistence contract. Get returns an empty string,
// not an error, when nothing has been written yet.
type Store interface {
	Set(ctx context.Context, text string) error
	Get(ctx context.Context) (string, error)
	Clear(ctx context.Context) error
}

// Open selects the backend: Redis when PROMPTPOLISH_REDIS_URL is set, else a
// file under the state directory.
func Open(cfg *config.Config) (Store, error) {
	if cfg.RedisURL != "" {
		return NewRedisStore(cfg.RedisURL)
	}
	dir, err := config.EnsureStateDir()
	if err != nil {
		return nil, err
	}
	return NewFileStore(dir), nil
}

const fileName = "handoff.json"

// FileStore keeps the handoff in a small JSON file, written atomically.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore builds a FileStore rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{path: filepath.Join(dir, fileName)}
}

// Path reports the backing file location.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Set(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(map[string]string{Key: text})
	if err != nil {
		return fmt.Errorf("failed to encode handoff: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write handoff: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace handoff: %w", err)
	}
	return nil
}

func (s *FileStore) Get(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read handoff: %w", err)
	}

	var blob map[string]string
	if err := json.Unmarshal(data, &blob); err != nil {
		// A corrupt handoff is not worth failing over; the value is
		// ephemeral and the next write replaces it.
		return "", nil
	}
	return blob[Key], nil
}

func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to clear handoff: %w", err)
	}
	return nil
}
