// Package history tracks artifact identifiers that were already accepted in a
// previous cycle. The set lives in memory during a cycle and is written back
// as a whole at the end of it.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

// Set is an unordered collection of artifact identifiers.
type Set struct {
	ids map[string]struct{}
}

// NewSet returns a set holding ids.
func NewSet(ids ...string) *Set {
	s := &Set{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	return s
}

// Contains reports whether id was recorded.
func (s *Set) Contains(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Add records id and reports whether it was new.
func (s *Set) Add(id string) bool {
	if s.Contains(id) {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

// Remove forgets id and reports whether it was present.
func (s *Set) Remove(id string) bool {
	if !s.Contains(id) {
		return false
	}
	delete(s.ids, id)
	return true
}

// Len returns the number of identifiers.
func (s *Set) Len() int { return len(s.ids) }

// IDs returns the identifiers sorted ascending.
func (s *Set) IDs() []string {
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Store persists a Set as a JSON array of strings.
type Store struct {
	path   string
	logger *slog.Logger
}

// NewStore returns a store backed by the file at path.
func NewStore(path string, logger *slog.Logger) *Store {
	return &Store{path: path, logger: logger.With(slog.String("history_file", path))}
}

// Path returns the backing file location.
func (s *Store) Path() string { return s.path }

// Load reads the persisted set. A missing or unreadable file yields an empty
// set; it never fails the cycle.
func (s *Store) Load() *Set {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("History file unreadable, starting with empty history.", "error", err)
		} else {
			s.logger.Debug("No history file yet, starting with empty history.")
		}
		return NewSet()
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		s.logger.Warn("History file is corrupt, starting with empty history.", "error", err)
		return NewSet()
	}
	set := NewSet(ids...)
	s.logger.Debug("History loaded.", slog.Int("count", set.Len()))
	return set
}

// Persist overwrites the backing file with the full content of set. The write
// goes through a temporary file in the same directory followed by a rename.
func (s *Store) Persist(set *Set) error {
	data, err := json.Marshal(set.IDs())
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create history directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".history-*.json")
	if err != nil {
		return fmt.Errorf("create temp history file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close history: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace history file %s: %w", s.path, err)
	}
	s.logger.Debug("History persisted.", slog.Int("count", set.Len()))
	return nil
}
