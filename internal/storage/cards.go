package storage

import (
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/conorfennell/flipstack/internal/domain"
)

// CardInput carries the editable fields of a card. Image and Audio are
// either a stored asset name or a filesystem path to copy into the assets
// directory.
type CardInput struct {
	Front string
	Back  string
	Hint  string
	Tags  []string
	Image string
	Audio string
}

// AddCard appends a new card to deck and returns it.
func (s *Store) AddCard(deck string, in CardInput) (domain.Card, error) {
	image, err := s.resolveAsset(in.Image)
	if err != nil {
		return domain.Card{}, err
	}
	audio, err := s.resolveAsset(in.Audio)
	if err != nil {
		return domain.Card{}, err
	}
	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}
	card := domain.Card{
		ID:    uuid.NewString(),
		Front: in.Front,
		Back:  in.Back,
		Image: image,
		Audio: audio,
		Tags:  tags,
		Hint:  in.Hint,
	}
	err = s.UpdateDeck(deck, func(cards []domain.Card) ([]domain.Card, bool) {
		return append(cards, card), true
	})
	if err != nil {
		return domain.Card{}, err
	}
	return card, nil
}

// EditCard replaces the content of card id and sets its suspension flag.
// Clearing the flag also clears the miss streak. It reports whether the card
// was found.
func (s *Store) EditCard(deck, id string, in CardInput, suspended bool) (bool, error) {
	image, err := s.resolveAsset(in.Image)
	if err != nil {
		return false, err
	}
	audio, err := s.resolveAsset(in.Audio)
	if err != nil {
		return false, err
	}
	found := false
	err = s.UpdateDeck(deck, func(cards []domain.Card) ([]domain.Card, bool) {
		for i := range cards {
			c := &cards[i]
			if c.ID != id {
				continue
			}
			c.Front = in.Front
			c.Back = in.Back
			c.Image = image
			c.Audio = audio
			if in.Tags != nil {
				c.Tags = in.Tags
			}
			c.Hint = in.Hint
			c.Suspended = suspended
			if !suspended {
				c.MissStreak = 0
			}
			found = true
			break
		}
		return cards, found
	})
	return found, err
}

// DeleteCard removes card id from deck and reports whether it existed.
func (s *Store) DeleteCard(deck, id string) (bool, error) {
	found := false
	err := s.UpdateDeck(deck, func(cards []domain.Card) ([]domain.Card, bool) {
		kept := cards[:0]
		for _, c := range cards {
			if c.ID == id {
				found = true
				continue
			}
			kept = append(kept, c)
		}
		return kept, found
	})
	return found, err
}

// SearchResult is a card match from SearchCards.
type SearchResult struct {
	Deck     string `json:"deck"`
	DeckName string `json:"deck_name"`
	CardID   string `json:"card_id"`
	Front    string `json:"front"`
	Back     string `json:"back"`
}

// SearchCards does a case-insensitive substring search over front, back and
// tags of every card in every deck.
func (s *Store) SearchCards(query string) []SearchResult {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}
	var results []SearchResult
	for _, deck := range s.ListDecks() {
		for _, c := range s.LoadDeck(deck) {
			tags := strings.ToLower(strings.Join(c.Tags, " "))
			if strings.Contains(strings.ToLower(c.Front), query) ||
				strings.Contains(strings.ToLower(c.Back), query) ||
				strings.Contains(tags, query) {
				results = append(results, SearchResult{
					Deck:     deck,
					DeckName: DisplayName(deck),
					CardID:   c.ID,
					Front:    c.Front,
					Back:     c.Back,
				})
			}
		}
	}
	return results
}

// CardsByTag collects every card, across decks, carrying tag (case-insensitive).
func (s *Store) CardsByTag(tag string) []domain.Card {
	tag = strings.ToLower(strings.TrimSpace(tag))
	var out []domain.Card
	for _, deck := range s.ListDecks() {
		for _, c := range s.LoadDeck(deck) {
			for _, t := range c.Tags {
				if strings.ToLower(t) == tag {
					out = append(out, c)
					break
				}
			}
		}
	}
	return out
}

// Mastery is the share of cards in deck that have left bucket 0 and are not
// suspended.
func (s *Store) Mastery(deck string) float64 {
	cards := s.LoadDeck(deck)
	if len(cards) == 0 {
		return 0
	}
	learned := 0
	for _, c := range cards {
		if c.Bucket > 0 && !c.Suspended {
			learned++
		}
	}
	return float64(learned) / float64(len(cards))
}

func (s *Store) resolveAsset(ref string) (string, error) {
	if ref == "" || !strings.ContainsRune(ref, os.PathSeparator) {
		return ref, nil
	}
	return s.SaveAsset(ref)
}
