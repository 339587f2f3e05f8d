package prefs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()

	_, ok := s.LastAssistant()
	assert.False(t, ok)

	require.NoError(t, s.SetLastAssistant("deep-agent"))
	id, ok := s.LastAssistant()
	assert.True(t, ok)
	assert.Equal(t, "deep-agent", id)
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "prefs.yaml")
	s := NewFileStore(path)

	_, ok := s.LastAssistant()
	assert.False(t, ok, "missing file reads as unset")

	require.NoError(t, s.SetLastAssistant("agent"))

	// A fresh store sees the persisted value.
	id, ok := NewFileStore(path).LastAssistant()
	assert.True(t, ok)
	assert.Equal(t, "agent", id)
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))

	s := NewFileStore(path)
	_, ok := s.LastAssistant()
	assert.False(t, ok)

	// A write replaces the corrupt file.
	require.NoError(t, s.SetLastAssistant("agent"))
	id, ok := s.LastAssistant()
	assert.True(t, ok)
	assert.Equal(t, "agent", id)
}
