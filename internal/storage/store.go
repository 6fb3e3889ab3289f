package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-playground/validator/v10"
)

const (
	// DeckExt is appended to every deck id.
	DeckExt = ".json"
	// DefaultCategory is the fallback category; it can never be deleted or renamed.
	DefaultCategory = "Uncategorized"
	// MaxHistory caps the review log; the oldest entries are dropped first.
	MaxHistory = 10000
)

const (
	historyFile    = "history.json"
	statsFile      = "stats.json"
	settingsFile   = "settings.json"
	categoriesFile = "categories.json"
	deckMetaFile   = "deck_meta.json"
	sourcesFile    = "sources.json"
)

var (
	ErrInvalidDeckName = errors.New("storage: deck name has no usable characters")
	ErrInvalidDeckID   = errors.New("storage: invalid deck id")
	ErrDeckExists      = errors.New("storage: deck already exists")
)

// Store is the file-backed home of decks, the review log and global state.
// All collections are JSON documents under a single root directory.
type Store struct {
	root     string
	logger   *slog.Logger
	validate *validator.Validate

	locksMu   sync.Mutex
	deckLocks map[string]*sync.Mutex

	historyMu sync.Mutex
	metaMu    sync.Mutex
	stateMu   sync.Mutex
}

// Open prepares the directory layout under root and returns a Store.
func Open(root string, logger *slog.Logger) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("failed to open store: empty data directory")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		root:      root,
		logger:    logger,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		deckLocks: make(map[string]*sync.Mutex),
	}
	for _, dir := range []string{root, s.DecksDir(), s.AssetsDir(), s.BackupsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return s, nil
}

// Root returns the data directory.
func (s *Store) Root() string { return s.root }

// DecksDir holds one JSON file per deck.
func (s *Store) DecksDir() string { return filepath.Join(s.root, "decks") }

// AssetsDir holds images and audio referenced by cards.
func (s *Store) AssetsDir() string { return filepath.Join(s.root, "assets") }

// BackupsDir holds backup archives.
func (s *Store) BackupsDir() string { return filepath.Join(s.root, "backups") }

// StateFiles lists the global JSON documents, relative to Root.
func StateFiles() []string {
	return []string{historyFile, statsFile, settingsFile, categoriesFile, deckMetaFile, sourcesFile}
}

func (s *Store) file(name string) string {
	return filepath.Join(s.root, name)
}

func (s *Store) deckPath(deck string) (string, error) {
	if deck == "" || filepath.Base(deck) != deck || filepath.Ext(deck) != DeckExt {
		return "", fmt.Errorf("%w: %q", ErrInvalidDeckID, deck)
	}
	return filepath.Join(s.DecksDir(), deck), nil
}

func (s *Store) deckLock(deck string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	mu, ok := s.deckLocks[deck]
	if !ok {
		mu = &sync.Mutex{}
		s.deckLocks[deck] = mu
	}
	return mu
}

// readJSON decodes the document at path into v. A missing file is reported
// as an error wrapping os.ErrNotExist.
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

// writeJSON replaces the document at path atomically: the data is written
// and synced to a temporary file that is then renamed over the target.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", filepath.Base(path), err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

// quarantine moves an unreadable document aside so the next write does not
// destroy it.
func (s *Store) quarantine(path string, cause error) {
	dest := path + ".corrupt"
	for i := 1; exists(dest); i++ {
		dest = fmt.Sprintf("%s.corrupt.%d", path, i)
	}
	if err := os.Rename(path, dest); err != nil {
		s.logger.Warn("Failed to move corrupt file aside", "path", path, "error", err)
		return
	}
	s.logger.Warn("Moved corrupt file aside", "path", path, "moved_to", dest, "cause", cause)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func isNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
