// Package rules serves the game master instructions sent with every completion.
package rules

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Store loads the rules document once and serves it from memory.
type Store struct {
	path string
	once sync.Once
	text string
	err  error
}

// New creates a rules store backed by the file at path.
func New(path string) *Store {
	return &Store{path: path}
}

// Load returns the trimmed rules text, reading the file on the first call only.
// A missing file yields an empty document for the life of the process.
func (s *Store) Load() (string, error) {
	s.once.Do(s.read)
	return s.text, s.err
}

func (s *Store) read() {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Rules file not found, continuing without rules", "path", s.path)
		return
	}
	if err != nil {
		s.err = fmt.Errorf("read rules file: %w", err)
		return
	}

	s.text = strings.TrimSpace(string(data))
	slog.Info("Rules loaded", "path", s.path, "length", len(s.text))
}
