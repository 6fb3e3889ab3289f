package storage

import (
	"fmt"
	"slices"
)

// Categories returns the category list; DefaultCategory is always present
// and always first when it had to be added.
func (s *Store) Categories() []string {
	s.metaMu.Lock()
	defer s.metaMu.Unlock()
	return s.readCategories()
}

func (s *Store) readCategories() []string {
	var cats []string
	if err := readJSON(s.file(categoriesFile), &cats); err != nil {
		if !isNotExist(err) {
			s.logger.Warn("Failed to read categories", "error", err)
		}
		return []string{DefaultCategory}
	}
	if !slices.Contains(cats, DefaultCategory) {
		cats = append([]string{DefaultCategory}, cats...)
	}
	return cats
}

// AddCategory appends name if it is not already known.
func (s *Store) AddCategory(name string) error {
	if name == "" {
		return fmt.Errorf("failed to add category: empty name")
	}
	s.metaMu.Lock()
	defer s.metaMu.Unlock()

	cats := s.readCategories()
	if slices.Contains(cats, name) {
		return nil
	}
	return writeJSON(s.file(categoriesFile), append(cats, name))
}

// DeleteCategory removes name; its decks fall back to DefaultCategory.
// Deleting DefaultCategory is a no-op.
func (s *Store) DeleteCategory(name string) error {
	if name == DefaultCategory {
		return nil
	}
	s.metaMu.Lock()
	defer s.metaMu.Unlock()

	cats := s.readCategories()
	if i := slices.Index(cats, name); i >= 0 {
		if err := writeJSON(s.file(categoriesFile), slices.Delete(cats, i, i+1)); err != nil {
			return fmt.Errorf("failed to delete category %s: %w", name, err)
		}
	}

	meta := s.readDeckMeta()
	changed := false
	for deck, cat := range meta {
		if cat == name {
			delete(meta, deck)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return writeJSON(s.file(deckMetaFile), meta)
}

// RenameCategory renames a category in place and moves its decks along.
// It reports false when old is DefaultCategory or newName is already taken.
func (s *Store) RenameCategory(old, newName string) (bool, error) {
	if old == DefaultCategory || newName == "" || old == newName {
		return false, nil
	}
	s.metaMu.Lock()
	defer s.metaMu.Unlock()

	cats := s.readCategories()
	if slices.Contains(cats, newName) {
		return false, nil
	}
	if i := slices.Index(cats, old); i >= 0 {
		cats[i] = newName
		if err := writeJSON(s.file(categoriesFile), cats); err != nil {
			return false, fmt.Errorf("failed to rename category %s: %w", old, err)
		}
	}

	meta := s.readDeckMeta()
	changed := false
	for deck, cat := range meta {
		if cat == old {
			meta[deck] = newName
			changed = true
		}
	}
	if changed {
		if err := writeJSON(s.file(deckMetaFile), meta); err != nil {
			return false, fmt.Errorf("failed to rename category %s: %w", old, err)
		}
	}
	return true, nil
}

// DeckCategory returns the category of deck, DefaultCategory if unassigned.
func (s *Store) DeckCategory(deck string) string {
	s.metaMu.Lock()
	defer s.metaMu.Unlock()
	if cat, ok := s.readDeckMeta()[deck]; ok && cat != "" {
		return cat
	}
	return DefaultCategory
}

// SetDeckCategory assigns deck to category, registering the category if needed.
func (s *Store) SetDeckCategory(deck, category string) error {
	if category == "" {
		category = DefaultCategory
	}
	s.metaMu.Lock()
	defer s.metaMu.Unlock()

	cats := s.readCategories()
	if !slices.Contains(cats, category) {
		if err := writeJSON(s.file(categoriesFile), append(cats, category)); err != nil {
			return fmt.Errorf("failed to register category %s: %w", category, err)
		}
	}
	meta := s.readDeckMeta()
	meta[deck] = category
	if err := writeJSON(s.file(deckMetaFile), meta); err != nil {
		return fmt.Errorf("failed to set category of %s: %w", deck, err)
	}
	return nil
}

// DecksByCategory groups every deck under its category. Every known
// category appears, even when empty.
func (s *Store) DecksByCategory() map[string][]string {
	decks := s.ListDecks()
	s.metaMu.Lock()
	defer s.metaMu.Unlock()

	grouped := make(map[string][]string)
	for _, cat := range s.readCategories() {
		grouped[cat] = []string{}
	}
	meta := s.readDeckMeta()
	for _, deck := range decks {
		cat := meta[deck]
		if cat == "" {
			cat = DefaultCategory
		}
		grouped[cat] = append(grouped[cat], deck)
	}
	return grouped
}

func (s *Store) readDeckMeta() map[string]string {
	meta := map[string]string{}
	if err := readJSON(s.file(deckMetaFile), &meta); err != nil {
		if !isNotExist(err) {
			s.logger.Warn("Failed to read deck categories", "error", err)
		}
		return map[string]string{}
	}
	if meta == nil {
		meta = map[string]string{}
	}
	return meta
}

func (s *Store) unsetDeckCategory(deck string) error {
	s.metaMu.Lock()
	defer s.metaMu.Unlock()
	meta := s.readDeckMeta()
	if _, ok := meta[deck]; !ok {
		return nil
	}
	delete(meta, deck)
	return writeJSON(s.file(deckMetaFile), meta)
}

func (s *Store) moveDeckCategory(from, to string) error {
	s.metaMu.Lock()
	defer s.metaMu.Unlock()
	meta := s.readDeckMeta()
	cat, ok := meta[from]
	if !ok {
		return nil
	}
	delete(meta, from)
	meta[to] = cat
	if err := writeJSON(s.file(deckMetaFile), meta); err != nil {
		return fmt.Errorf("failed to move category of %s: %w", from, err)
	}
	return nil
}
