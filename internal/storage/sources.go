package storage

import (
	"fmt"
	"strings"
	"time"
)

// Source is a markdown card source, either a local directory or a git
// repository URL, feeding a single deck.
type Source struct {
	ID          int64      `json:"id"`
	Path        string     `json:"path"`
	Type        string     `json:"type"`
	Deck        string     `json:"deck"`
	LastScanned *time.Time `json:"last_scanned,omitempty"`
}

const (
	SourceLocal = "local"
	SourceGit   = "git"
)

// SourceType guesses whether path names a git repository or a local directory.
func SourceType(path string) string {
	if strings.HasSuffix(path, ".git") || strings.HasPrefix(path, "git@") || strings.HasPrefix(path, "https://") || strings.HasPrefix(path, "http://") {
		return SourceGit
	}
	return SourceLocal
}

// Sources returns every registered source.
func (s *Store) Sources() []Source {
	s.metaMu.Lock()
	defer s.metaMu.Unlock()
	return s.readSources()
}

func (s *Store) readSources() []Source {
	var sources []Source
	if err := readJSON(s.file(sourcesFile), &sources); err != nil {
		if !isNotExist(err) {
			s.logger.Warn("Failed to read sources", "error", err)
		}
		return []Source{}
	}
	return sources
}

// AddSource registers path as a card source for deck.
func (s *Store) AddSource(path, deck string) (Source, error) {
	if path == "" {
		return Source{}, fmt.Errorf("failed to add source: empty path")
	}
	if _, err := s.deckPath(deck); err != nil {
		return Source{}, err
	}
	s.metaMu.Lock()
	defer s.metaMu.Unlock()

	sources := s.readSources()
	var next int64 = 1
	for _, src := range sources {
		if src.Path == path {
			return Source{}, fmt.Errorf("failed to add source %s: already registered", path)
		}
		if src.ID >= next {
			next = src.ID + 1
		}
	}
	src := Source{ID: next, Path: path, Type: SourceType(path), Deck: deck}
	if err := writeJSON(s.file(sourcesFile), append(sources, src)); err != nil {
		return Source{}, fmt.Errorf("failed to add source %s: %w", path, err)
	}
	return src, nil
}

// RemoveSource unregisters a source. Its deck is left untouched.
func (s *Store) RemoveSource(id int64) (bool, error) {
	s.metaMu.Lock()
	defer s.metaMu.Unlock()

	sources := s.readSources()
	for i, src := range sources {
		if src.ID == id {
			sources = append(sources[:i], sources[i+1:]...)
			if err := writeJSON(s.file(sourcesFile), sources); err != nil {
				return false, fmt.Errorf("failed to remove source %d: %w", id, err)
			}
			return true, nil
		}
	}
	return false, nil
}

// MarkSourceScanned records the time of the last successful sync.
func (s *Store) MarkSourceScanned(id int64, at time.Time) error {
	s.metaMu.Lock()
	defer s.metaMu.Unlock()

	sources := s.readSources()
	for i := range sources {
		if sources[i].ID == id {
			sources[i].LastScanned = &at
			if err := writeJSON(s.file(sourcesFile), sources); err != nil {
				return fmt.Errorf("failed to update last scanned for source ID %d: %w", id, err)
			}
			return nil
		}
	}
	return fmt.Errorf("failed to update last scanned: unknown source ID %d", id)
}
