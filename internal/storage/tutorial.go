package storage

import (
	"fmt"

	"github.com/conorfennell/flipstack/internal/domain"
)

const (
	tutorialName     = "Welcome to FlipStack"
	tutorialCategory = "FlipStack Tutorial"
)

var tutorialCards = []struct {
	front, back, hint string
	tags              []string
}{
	{"**Welcome to FlipStack!**\n\nFlip this card, then rate how well you knew it.",
		"**Good**: you knew it.\n**Hard**: you struggled.\n**Miss**: you forgot it.", "", []string{"basics"}},
	{"What happens when you rate a card **Good**?",
		"It moves up one box and comes back after 2, 4, 8, 16... days.", "Boxes", []string{"scheduling"}},
	{"What happens when you rate a card **Miss**?",
		"It drops back to the first box and is due again today.", "", []string{"scheduling"}},
	{"What is a **Leech**?",
		"A card missed 8 times in a row. It is suspended until you unsuspend it in the deck editor.", "Suspended", []string{"scheduling"}},
	{"What is **Cram Mode**?",
		"Review every card in random order, ignoring due dates. Cram reviews are recorded in your history but never change the schedule.", "Storm", []string{"study-modes"}},
	{"How do you **Import** decks?",
		"Use the import command with a CSV, Excel, Anki (.apkg) or Markdown file.", "Import", []string{"data"}},
	{"How do you **Backup** your data?",
		"Run a backup; a ZIP of all decks and history lands in the backups folder.", "Backup", []string{"data"}},
	{"Where do you see **Performance Stats**?",
		"The stats view shows sessions, daily accuracy and the yearly heatmap.", "Graphs", []string{"stats"}},
}

// EnsureTutorialDeck creates the welcome deck on first run and returns its id.
// An existing tutorial deck is left untouched.
func (s *Store) EnsureTutorialDeck() (string, error) {
	deck := Slug(tutorialName)
	if s.DeckExists(deck) {
		return deck, nil
	}
	cards := make([]domain.Card, 0, len(tutorialCards))
	for i, c := range tutorialCards {
		cards = append(cards, domain.Card{
			ID:    fmt.Sprintf("tutorial_%d", i),
			Front: c.front,
			Back:  c.back,
			Hint:  c.hint,
			Tags:  c.tags,
		})
	}
	if err := s.SaveDeck(deck, cards); err != nil {
		return "", err
	}
	if err := s.SetDeckCategory(deck, tutorialCategory); err != nil {
		return "", err
	}
	return deck, nil
}
