// Package prefs provides the injected preference store for small bits of
// client state, such as the last used assistant.
package prefs

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Store reads and writes client preferences. It is always injected, never
// accessed as ambient global state, so it can be substituted in tests.
type Store interface {
	// LastAssistant returns the most recently used assistant id, if set.
	LastAssistant() (string, bool)
	// SetLastAssistant records the assistant id for the next session.
	SetLastAssistant(id string) error
}

// MemoryStore is an in-memory Store for tests and one-off sessions.
type MemoryStore struct {
	mu            sync.Mutex
	lastAssistant string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) LastAssistant() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAssistant, s.lastAssistant != ""
}

func (s *MemoryStore) SetLastAssistant(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAssistant = id
	return nil
}

// filePrefs is the on-disk YAML shape.
type filePrefs struct {
	LastAssistant string `yaml:"last_assistant,omitempty"`
}

// FileStore persists preferences as YAML at a fixed path.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a store backed by the given file path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultPath returns the conventional prefs location under the user's
// home directory.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".lens", "prefs.yaml"), nil
}

func (s *FileStore) LastAssistant() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.load()
	if err != nil || p.LastAssistant == "" {
		return "", false
	}
	return p.LastAssistant, true
}

func (s *FileStore) SetLastAssistant(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, _ := s.load()
	p.LastAssistant = id
	return s.save(p)
}

func (s *FileStore) load() (filePrefs, error) {
	var p filePrefs
	data, err := os.ReadFile(s.path)
	if err != nil {
		return p, err
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return filePrefs{}, fmt.Errorf("failed to parse prefs file: %w", err)
	}
	return p, nil
}

func (s *FileStore) save(p filePrefs) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal prefs: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create prefs directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write prefs file: %w", err)
	}
	return nil
}
