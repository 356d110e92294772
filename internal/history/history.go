// Package history persists the prompt/reply log of the running session
// as a JSON array in a single file.
package history

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/ashureev/worldlog/internal/domain"
)

// Store reads and rewrites the history log file.
// Every mutation rewrites the whole file.
type Store struct {
	path string
	mu   sync.Mutex
}

// New creates a history store backed by the file at path.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the location of the log file.
func (s *Store) Path() string {
	return s.path
}

// EnsureInitialized writes an empty array if the file is missing or empty.
func (s *Store) EnsureInitialized() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureInitializedLocked()
}

// ReadAll initializes the log if needed and returns every entry in append order.
func (s *Store) ReadAll() ([]domain.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureInitializedLocked(); err != nil {
		return nil, err
	}
	entries, err := s.loadLocked()
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []domain.HistoryEntry{}
	}
	return entries, nil
}

// Snapshot returns the current entries without creating the file.
// A missing file yields nil.
func (s *Store) Snapshot() ([]domain.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// Append adds entry to the end of the log and rewrites the file.
func (s *Store) Append(entry domain.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.loadLocked()
	if err != nil {
		return err
	}
	entries = append(entries, entry)
	return s.writeLocked(entries)
}

// Clear deletes the log file and reports whether one existed.
func (s *Store) Clear() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("remove history file: %w", err)
	}
	return true, nil
}

func (s *Store) ensureInitializedLocked() error {
	info, err := os.Stat(s.path)
	if err == nil && info.Size() > 0 {
		return nil
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat history file: %w", err)
	}
	return s.writeRaw([]byte("[]"))
}

// loadLocked parses the file. A missing or empty file yields nil.
func (s *Store) loadLocked() ([]domain.HistoryEntry, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var entries []domain.HistoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse history file: %w", err)
	}
	return entries, nil
}

func (s *Store) writeLocked(entries []domain.HistoryEntry) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	return s.writeRaw(bytes.TrimRight(buf.Bytes(), "\n"))
}

func (s *Store) writeRaw(data []byte) error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create history directory: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write history file: %w", err)
	}
	return nil
}
