package storage

import (
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/conorfennell/flipstack/internal/domain"
)

// Slug turns a display name into a deck id: only letters, digits, spaces and
// underscores survive, the result is trimmed and lowercased, spaces become
// underscores and DeckExt is appended. It returns "" when nothing survives.
func Slug(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '_' {
			b.WriteRune(r)
		}
	}
	safe := strings.TrimSpace(b.String())
	if safe == "" {
		return ""
	}
	return strings.ReplaceAll(strings.ToLower(safe), " ", "_") + DeckExt
}

// DisplayName renders a deck id for humans: "spanish_verbs.json" -> "Spanish Verbs".
func DisplayName(deck string) string {
	name := strings.ReplaceAll(strings.TrimSuffix(deck, DeckExt), "_", " ")
	return cases.Title(language.Und).String(name)
}

// ListDecks returns the ids of all decks, sorted.
func (s *Store) ListDecks() []string {
	entries, err := os.ReadDir(s.DecksDir())
	if err != nil {
		s.logger.Warn("Failed to list decks", "dir", s.DecksDir(), "error", err)
		return []string{}
	}
	decks := []string{}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), DeckExt) {
			decks = append(decks, e.Name())
		}
	}
	return decks
}

// DeckExists reports whether a deck file is present.
func (s *Store) DeckExists(deck string) bool {
	path, err := s.deckPath(deck)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// ReadDeck returns the cards of deck or the error that prevented reading them.
func (s *Store) ReadDeck(deck string) ([]domain.Card, error) {
	path, err := s.deckPath(deck)
	if err != nil {
		return nil, err
	}
	var cards []domain.Card
	if err := readJSON(path, &cards); err != nil {
		return nil, err
	}
	for i := range cards {
		s.sanitizeCard(deck, &cards[i])
	}
	if cards == nil {
		cards = []domain.Card{}
	}
	return cards, nil
}

// LoadDeck is ReadDeck with every failure collapsed to an empty deck.
func (s *Store) LoadDeck(deck string) []domain.Card {
	cards, err := s.ReadDeck(deck)
	if err != nil {
		if !isNotExist(err) {
			s.logger.Warn("Treating unreadable deck as empty", "deck", deck, "error", err)
		}
		return []domain.Card{}
	}
	return cards
}

// SaveDeck overwrites the whole deck.
func (s *Store) SaveDeck(deck string, cards []domain.Card) error {
	mu := s.deckLock(deck)
	mu.Lock()
	defer mu.Unlock()
	return s.saveDeck(deck, cards)
}

func (s *Store) saveDeck(deck string, cards []domain.Card) error {
	path, err := s.deckPath(deck)
	if err != nil {
		return err
	}
	if cards == nil {
		cards = []domain.Card{}
	}
	if err := writeJSON(path, cards); err != nil {
		return fmt.Errorf("failed to save deck %s: %w", deck, err)
	}
	return nil
}

// UpdateDeck runs a load-mutate-save cycle while holding the deck's lock.
// The deck is only written when fn reports a change.
func (s *Store) UpdateDeck(deck string, fn func(cards []domain.Card) ([]domain.Card, bool)) error {
	mu := s.deckLock(deck)
	mu.Lock()
	defer mu.Unlock()

	updated, changed := fn(s.LoadDeck(deck))
	if !changed {
		return nil
	}
	return s.saveDeck(deck, updated)
}

// CreateDeck creates an empty deck named name in category and returns its id.
func (s *Store) CreateDeck(name, category string) (string, error) {
	deck := Slug(name)
	if deck == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidDeckName, name)
	}
	if s.DeckExists(deck) {
		return "", fmt.Errorf("%w: %s", ErrDeckExists, deck)
	}
	if err := s.SaveDeck(deck, []domain.Card{}); err != nil {
		return "", err
	}
	if category == "" {
		category = DefaultCategory
	}
	if err := s.SetDeckCategory(deck, category); err != nil {
		return "", err
	}
	s.logger.Info("Deck created", "deck", deck, "category", category)
	return deck, nil
}

// DeleteDeck removes the deck file, its category assignment and every
// review-log entry recorded against it.
func (s *Store) DeleteDeck(deck string) error {
	path, err := s.deckPath(deck)
	if err != nil {
		return err
	}
	mu := s.deckLock(deck)
	mu.Lock()
	defer mu.Unlock()

	if err := os.Remove(path); err != nil && !isNotExist(err) {
		return fmt.Errorf("failed to delete deck %s: %w", deck, err)
	}
	if err := s.unsetDeckCategory(deck); err != nil {
		return err
	}
	if err := s.dropHistoryDeck(deck); err != nil {
		return err
	}
	s.logger.Info("Deck deleted", "deck", deck)
	return nil
}

// RenameDeck gives deck a new display name. It returns the new id and
// ok=false when a deck with that id already exists. The category mapping and
// review log follow the rename so analytics stay continuous.
func (s *Store) RenameDeck(deck, newName string) (string, bool, error) {
	newDeck := Slug(newName)
	if newDeck == "" {
		return "", false, fmt.Errorf("%w: %q", ErrInvalidDeckName, newName)
	}
	if newDeck == deck {
		return deck, true, nil
	}
	oldPath, err := s.deckPath(deck)
	if err != nil {
		return "", false, err
	}
	newPath, err := s.deckPath(newDeck)
	if err != nil {
		return "", false, err
	}

	mu := s.deckLock(deck)
	mu.Lock()
	defer mu.Unlock()

	if _, err := os.Stat(newPath); err == nil {
		return "", false, nil
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		return "", false, fmt.Errorf("failed to rename deck %s: %w", deck, err)
	}
	if err := s.moveDeckCategory(deck, newDeck); err != nil {
		return "", false, err
	}
	if err := s.rewriteHistoryDeck(deck, newDeck); err != nil {
		return "", false, err
	}
	s.logger.Info("Deck renamed", "from", deck, "to", newDeck)
	return newDeck, true, nil
}

// sanitizeCard repairs cards that would otherwise break scheduling.
func (s *Store) sanitizeCard(deck string, card *domain.Card) {
	if card.NextReview != nil && card.NextReview.IsZero() {
		card.NextReview = nil
	}
	err := s.validate.Struct(card)
	if err == nil {
		return
	}
	s.logger.Warn("Repairing invalid card", "deck", deck, "id", card.ID, "error", err)
	if card.ID == "" {
		card.ID = uuid.NewString()
	}
	if card.Bucket < 0 {
		card.Bucket = 0
	}
	if card.MissStreak < 0 {
		card.MissStreak = 0
	}
}
