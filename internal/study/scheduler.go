package study

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/flipstack/internal/domain"
	"github.com/conorfennell/flipstack/internal/leitner"
)

var ErrInvalidRating = errors.New("study: invalid rating")

// Mode selects which cards a study session sees.
type Mode int

const (
	// Normal shows due, non-suspended cards and schedules them.
	Normal Mode = iota
	// Cram shows every card in random order and never touches the schedule.
	Cram
)

func (m Mode) String() string {
	if m == Cram {
		return "cram"
	}
	return "normal"
}

// ParseMode accepts "normal" (or "") and "cram".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "normal":
		return Normal, nil
	case "cram":
		return Cram, nil
	}
	return Normal, fmt.Errorf("unknown study mode %q", s)
}

// Store is the persistence the scheduler needs.
type Store interface {
	LoadDeck(deck string) []domain.Card
	UpdateDeck(deck string, fn func(cards []domain.Card) ([]domain.Card, bool)) error
	AppendReview(entry domain.ReviewEntry) error
}

// StreakRecorder is told about every scheduled review.
type StreakRecorder interface {
	RecordStudyToday() (domain.Stats, error)
}

// Review is one grading action from the user.
type Review struct {
	CardID    string        `json:"card_id"`
	Rating    domain.Rating `json:"rating"`
	SessionID string        `json:"session_id,omitempty"`
	HintUsed  bool          `json:"hint_used"`
}

// Result describes the outcome of Grade. Found is false when the card was
// not in the deck, in which case nothing was written.
type Result struct {
	Found          bool        `json:"found"`
	LeechTriggered bool        `json:"leech_triggered"`
	Card           domain.Card `json:"card"`
}

// Scheduler selects due cards and applies grades.
type Scheduler struct {
	store  Store
	streak StreakRecorder
	params *leitner.Params
	now    func() time.Time
	logger *slog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithRand fixes the random source used for cram ordering.
func WithRand(r *rand.Rand) Option {
	return func(s *Scheduler) { s.rng = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// New returns a Scheduler. A nil params means leitner.DefaultParams.
func New(store Store, streak StreakRecorder, params *leitner.Params, opts ...Option) *Scheduler {
	if params == nil {
		params = leitner.DefaultParams()
	}
	s := &Scheduler{
		store:  store,
		streak: streak,
		params: params,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(s.now().UnixNano()))
	}
	return s
}

// Today is the scheduler's current calendar day.
func (s *Scheduler) Today() domain.Date {
	return domain.DateOf(s.now())
}

// NewSessionID returns a fresh opaque session token.
func NewSessionID() string {
	return uuid.NewString()
}

// DueCards snapshots deck and returns the cards to study in mode.
func (s *Scheduler) DueCards(deck string, mode Mode) []domain.Card {
	cards := s.store.LoadDeck(deck)
	if mode == Cram {
		s.rngMu.Lock()
		s.rng.Shuffle(len(cards), func(i, j int) { cards[i], cards[j] = cards[j], cards[i] })
		s.rngMu.Unlock()
		return cards
	}
	return DueSet(cards, s.Today())
}

// DueCount is the size of the normal-mode due set.
func (s *Scheduler) DueCount(deck string) int {
	return len(DueSet(s.store.LoadDeck(deck), s.Today()))
}

// DueSet filters cards to those due on today, ordered by next review with
// never-reviewed cards first. Ties keep deck order.
func DueSet(cards []domain.Card, today domain.Date) []domain.Card {
	due := make([]domain.Card, 0, len(cards))
	for _, c := range cards {
		if c.IsDue(today) {
			due = append(due, c)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		a, b := due[i].NextReview, due[j].NextReview
		if a == nil || b == nil {
			return a == nil && b != nil
		}
		return a.Before(*b)
	})
	return due
}

// Grade applies r to a card of deck: the card's schedule is updated and
// saved, the review is logged and the streak advanced, all before returning.
// Grading a card that is no longer in the deck is a silent no-op.
func (s *Scheduler) Grade(deck string, r Review) (Result, error) {
	if !r.Rating.IsValid() {
		return Result{}, fmt.Errorf("%w: %d", ErrInvalidRating, int(r.Rating))
	}
	now := s.now()
	today := domain.DateOf(now)

	var result Result
	err := s.store.UpdateDeck(deck, func(cards []domain.Card) ([]domain.Card, bool) {
		for i := range cards {
			if cards[i].ID != r.CardID {
				continue
			}
			result.Found = true
			result.LeechTriggered = s.params.Apply(&cards[i], r.Rating, today)
			result.Card = cards[i]
			return cards, true
		}
		return cards, false
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to grade card %s: %w", r.CardID, err)
	}
	if !result.Found {
		s.logger.Debug("Ignoring grade for unknown card", "deck", deck, "card", r.CardID)
		return result, nil
	}

	if err := s.store.AppendReview(s.entry(deck, r, now)); err != nil {
		return result, err
	}
	if _, err := s.streak.RecordStudyToday(); err != nil {
		return result, err
	}
	if result.LeechTriggered {
		s.logger.Info("Card suspended as a leech", "deck", deck, "card", r.CardID, "misses", result.Card.MissStreak)
	}
	return result, nil
}

// RecordCram logs a cram-mode review. The card's schedule, suspension and
// miss streak are left alone and the streak does not advance; the entry
// still counts towards history, accuracy and the heatmap. Unknown cards are
// ignored.
func (s *Scheduler) RecordCram(deck string, r Review) error {
	if !r.Rating.IsValid() {
		return fmt.Errorf("%w: %d", ErrInvalidRating, int(r.Rating))
	}
	found := false
	for _, c := range s.store.LoadDeck(deck) {
		if c.ID == r.CardID {
			found = true
			break
		}
	}
	if !found {
		s.logger.Debug("Ignoring cram review for unknown card", "deck", deck, "card", r.CardID)
		return nil
	}
	return s.store.AppendReview(s.entry(deck, r, s.now()))
}

// Submit routes a review to Grade or RecordCram depending on mode.
func (s *Scheduler) Submit(deck string, mode Mode, r Review) (Result, error) {
	if mode == Cram {
		return Result{}, s.RecordCram(deck, r)
	}
	return s.Grade(deck, r)
}

// Unsuspend clears a card's leech flag and miss streak. It reports whether
// the card was found.
func (s *Scheduler) Unsuspend(deck, cardID string) (bool, error) {
	found := false
	err := s.store.UpdateDeck(deck, func(cards []domain.Card) ([]domain.Card, bool) {
		for i := range cards {
			if cards[i].ID == cardID {
				cards[i].Suspended = false
				cards[i].MissStreak = 0
				found = true
				break
			}
		}
		return cards, found
	})
	return found, err
}

func (s *Scheduler) entry(deck string, r Review, at time.Time) domain.ReviewEntry {
	return domain.ReviewEntry{
		Timestamp: at,
		Deck:      deck,
		Rating:    r.Rating,
		SessionID: r.SessionID,
		HintUsed:  r.HintUsed,
	}
}
