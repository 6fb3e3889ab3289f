// Package importer turns external card files into decks.
package importer

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/conorfennell/flipstack/internal/domain"
	"github.com/conorfennell/flipstack/internal/parser"
	"github.com/conorfennell/flipstack/internal/storage"
)

var (
	ErrNoCards     = errors.New("importer: no cards found")
	ErrUnsupported = errors.New("importer: unsupported file type")
)

// Extensions lists the file types ImportFile understands.
var Extensions = []string{".csv", ".xlsx", ".apkg", ".md"}

// Supported reports whether path has an importable extension.
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// Importer creates decks in a store from files.
type Importer struct {
	store  *storage.Store
	logger *slog.Logger
}

// New returns an Importer writing into store.
func New(store *storage.Store, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{store: store, logger: logger}
}

// ImportFile reads path according to its extension and saves the cards as a
// new deck called name in category. It returns the new deck id and the
// number of cards imported.
func (im *Importer) ImportFile(path, name, category string) (string, int, error) {
	cards, err := im.read(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to import %s: %w", filepath.Base(path), err)
	}
	if len(cards) == 0 {
		return "", 0, ErrNoCards
	}
	for i := range cards {
		if cards[i].ID == "" {
			cards[i].ID = uuid.NewString()
		}
		if cards[i].Tags == nil {
			cards[i].Tags = []string{}
		}
	}

	deck, err := im.store.CreateDeck(name, category)
	if err != nil {
		return "", 0, err
	}
	if err := im.store.SaveDeck(deck, cards); err != nil {
		return "", 0, err
	}
	im.logger.Info("Imported deck", "file", path, "deck", deck, "cards", len(cards))
	return deck, len(cards), nil
}

func (im *Importer) read(path string) ([]domain.Card, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ReadCSVFile(path)
	case ".xlsx":
		return ReadXLSX(path)
	case ".apkg":
		return im.readAPKG(path)
	case ".md":
		return parser.ParseFile(path)
	}
	return nil, ErrUnsupported
}

// NameFromPath derives a deck name from a file name.
func NameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
}

func newCard(front, back string) domain.Card {
	return domain.Card{Front: front, Back: back, Tags: []string{}}
}
