package storage

import (
	"encoding/json"
	"fmt"

	"github.com/conorfennell/flipstack/internal/domain"
)

// AppendReview adds entry to the review log, keeps only the newest
// MaxHistory entries and syncs the file before returning.
func (s *Store) AppendReview(entry domain.ReviewEntry) error {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	hist := s.loadHistory()
	hist = append(hist, entry)
	if len(hist) > MaxHistory {
		hist = hist[len(hist)-MaxHistory:]
	}
	if err := writeJSON(s.file(historyFile), hist); err != nil {
		return fmt.Errorf("failed to append review: %w", err)
	}
	return nil
}

// ReadHistory returns the whole review log. Individual entries that cannot
// be decoded are skipped; a file that is not a JSON list is an error.
func (s *Store) ReadHistory() ([]domain.ReviewEntry, error) {
	hist, skipped, err := s.readHistory()
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		s.logger.Warn("Skipped unreadable review entries", "count", skipped)
	}
	return hist, nil
}

func (s *Store) readHistory() ([]domain.ReviewEntry, int, error) {
	var raw []json.RawMessage
	if err := readJSON(s.file(historyFile), &raw); err != nil {
		return nil, 0, err
	}
	hist := make([]domain.ReviewEntry, 0, len(raw))
	skipped := 0
	for _, r := range raw {
		var e domain.ReviewEntry
		if err := json.Unmarshal(r, &e); err != nil {
			skipped++
			continue
		}
		hist = append(hist, e)
	}
	return hist, skipped, nil
}

// History is ReadHistory with failures collapsed to an empty log.
func (s *Store) History() []domain.ReviewEntry {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	hist, err := s.ReadHistory()
	if err != nil {
		if !isNotExist(err) {
			s.logger.Warn("Treating unreadable review log as empty", "error", err)
		}
		return []domain.ReviewEntry{}
	}
	return hist
}

// DeckHistory returns the entries recorded against deck, in log order.
func (s *Store) DeckHistory(deck string) []domain.ReviewEntry {
	var out []domain.ReviewEntry
	for _, e := range s.History() {
		if e.Deck == deck {
			out = append(out, e)
		}
	}
	return out
}

// DayCounts counts reviews per calendar day (YYYY-MM-DD) across all decks.
func (s *Store) DayCounts() map[string]int {
	counts := make(map[string]int)
	for _, e := range s.History() {
		counts[e.Day().String()]++
	}
	return counts
}

// loadHistory is used on write paths: a corrupt log, or one holding entries
// that would be dropped by the rewrite, is moved aside rather than silently
// overwritten. Caller holds historyMu.
func (s *Store) loadHistory() []domain.ReviewEntry {
	hist, skipped, err := s.readHistory()
	if err == nil {
		if skipped > 0 {
			s.quarantine(s.file(historyFile), fmt.Errorf("%d unreadable review entries", skipped))
		}
		return hist
	}
	if !isNotExist(err) {
		s.quarantine(s.file(historyFile), err)
	}
	return []domain.ReviewEntry{}
}

func (s *Store) rewriteHistoryDeck(from, to string) error {
	return s.editHistory(func(hist []domain.ReviewEntry) ([]domain.ReviewEntry, bool) {
		changed := false
		for i := range hist {
			if hist[i].Deck == from {
				hist[i].Deck = to
				changed = true
			}
		}
		return hist, changed
	})
}

func (s *Store) dropHistoryDeck(deck string) error {
	return s.editHistory(func(hist []domain.ReviewEntry) ([]domain.ReviewEntry, bool) {
		kept := hist[:0]
		for _, e := range hist {
			if e.Deck != deck {
				kept = append(kept, e)
			}
		}
		return kept, len(kept) != len(hist)
	})
}

func (s *Store) editHistory(fn func([]domain.ReviewEntry) ([]domain.ReviewEntry, bool)) error {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	hist, skipped, err := s.readHistory()
	if err != nil {
		if isNotExist(err) {
			return nil
		}
		s.logger.Warn("Skipping review log update on unreadable log", "error", err)
		return nil
	}
	updated, changed := fn(hist)
	if !changed {
		return nil
	}
	if skipped > 0 {
		s.quarantine(s.file(historyFile), fmt.Errorf("%d unreadable review entries", skipped))
	}
	if err := writeJSON(s.file(historyFile), updated); err != nil {
		return fmt.Errorf("failed to update review log: %w", err)
	}
	return nil
}
