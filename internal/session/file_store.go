package session

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// FileStore writes one JSON file per session under a base directory.
type FileStore struct {
	dir    string
	mu     sync.Mutex
	logger *zap.Logger
}

// NewFileStore creates the base directory if needed.
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir, logger: logger}, nil
}

// Save writes s to <dir>/<name>.json atomically.
func (f *FileStore) Save(_ context.Context, s Session) error {
	if !validName(s.Name) {
		return ErrInvalidName
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tmp := f.path(s.Name) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, f.path(s.Name)); err != nil {
		os.Remove(tmp)
		return err
	}
	f.logger.Debug("session saved", zap.String("name", s.Name))
	return nil
}

// Load reads the named session.
func (f *FileStore) Load(_ context.Context, name string) (Session, error) {
	if !validName(name) {
		return Session{}, ErrInvalidName
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return Session{}, ErrNotFound
		}
		return Session{}, err
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, err
	}
	s.Name = name
	return s, nil
}

// List returns the saved session names, sorted.
func (f *FileStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(names)
	return names, nil
}

// Close is a no-op for the file store.
func (f *FileStore) Close() error { return nil }

func (f *FileStore) path(name string) string {
	return filepath.Join(f.dir, name+".json")
}

// validName rejects names that would escape the sessions directory.
func validName(name string) bool {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return false
	}
	return name == filepath.Base(name) && name != "." && name != ".."
}
