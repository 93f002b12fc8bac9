// Package session holds the per-viewer side of a canvas session: the
// anonymous session id and the presence, cursor and reaction views built
// on a realtime transport.
package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Store persists a session id between runs.
type Store interface {
	Load() (string, error)
	Save(id string) error
	Clear() error
}

// Identity returns the stored session id, generating and saving a new
// one when none exists. Ids are random and carry no authority.
func Identity(store Store) (string, error) {
	id, err := store.Load()
	if err != nil {
		return "", fmt.Errorf("load session id: %w", err)
	}
	if id != "" {
		return id, nil
	}

	id = uuid.NewString()
	if err := store.Save(id); err != nil {
		return "", fmt.Errorf("save session id: %w", err)
	}

	return id, nil
}

// Clear forgets the stored session id.
func Clear(store Store) error {
	return store.Clear()
}

// FileStore keeps the session id in a file.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (s *FileStore) Load() (string, error) {
	b, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func (s *FileStore) Save(id string) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(s.Path, []byte(id+"\n"), 0o600)
}

func (s *FileStore) Clear() error {
	err := os.Remove(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

type MemoryStore struct {
	mu sync.Mutex
	id string
}

func (s *MemoryStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id, nil
}

func (s *MemoryStore) Save(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
	return nil
}

func (s *MemoryStore) Clear() error {
	return s.Save("")
}
