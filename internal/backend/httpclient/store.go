package httpclient

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/and161185/tasklist/internal/model"
)

// TokenStore persists the current session between runs.
type TokenStore interface {
	// Load returns the stored session, or nil when there is none.
	Load() (*model.Session, error)
	Save(s *model.Session) error
	Clear() error
}

// FileStore keeps the session as JSON in a single file readable only by the owner.
type FileStore struct {
	Path string
}

// NewFileStore returns a store writing to path.
func NewFileStore(path string) *FileStore { return &FileStore{Path: path} }

func (f *FileStore) Load() (*model.Session, error) {
	b, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s model.Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	if s.AccessToken == "" {
		return nil, nil
	}
	return &s, nil
}

func (f *FileStore) Save(s *model.Session) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.Path, b, 0o600)
}

func (f *FileStore) Clear() error {
	err := os.Remove(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// MemoryStore is a TokenStore that forgets everything on exit.
type MemoryStore struct {
	mu sync.Mutex
	s  *model.Session
}

func (m *MemoryStore) Load() (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.s == nil {
		return nil, nil
	}
	cp := *m.s
	return &cp, nil
}

func (m *MemoryStore) Save(s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.s = &cp
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = nil
	return nil
}
