// Package analytics aggregates the review log into per-day counts and
// accuracy scores.
package analytics

import (
	"sort"

	"github.com/conorfennell/flipstack/internal/domain"
)

// DefaultAccuracyDays is how many active days DailyAccuracy reports by default.
const DefaultAccuracyDays = 7

// Level is the intensity class of a heatmap day.
type Level string

const (
	LevelNone   Level = "none"
	LevelLight  Level = "light"
	LevelNormal Level = "normal"
	LevelHeavy  Level = "heavy"
	LevelHeroic Level = "heroic"
	LevelFuture Level = "future"
)

// Classify returns the heatmap level for a day with n reviews.
func Classify(day, today domain.Date, n int) Level {
	switch {
	case day.After(today):
		return LevelFuture
	case n > 100:
		return LevelHeroic
	case n > 50:
		return LevelHeavy
	case n >= 30:
		return LevelNormal
	case n > 0:
		return LevelLight
	}
	return LevelNone
}

// HeatmapDay is one cell of the yearly heatmap.
type HeatmapDay struct {
	Date  domain.Date `json:"date"`
	Count int         `json:"count"`
	Level Level       `json:"level"`
}

// Heatmap returns one entry per calendar day of year. counts is keyed by
// YYYY-MM-DD. Days after today report LevelFuture and a zero count.
func Heatmap(year int, counts map[string]int, today domain.Date) []HeatmapDay {
	start := domain.Date{Year: year, Month: 1, Day: 1}
	end := domain.Date{Year: year + 1, Month: 1, Day: 1}
	days := make([]HeatmapDay, 0, end.DaysSince(start))
	for d := start; d.Before(end); d = d.AddDays(1) {
		n := counts[d.String()]
		level := Classify(d, today, n)
		if level == LevelFuture {
			n = 0
		}
		days = append(days, HeatmapDay{Date: d, Count: n, Level: level})
	}
	return days
}

// Score is the weight of one review in accuracy figures: good counts fully,
// hard counts fully unless the hint was shown, miss counts nothing.
func Score(e domain.ReviewEntry) float64 {
	switch e.Rating {
	case domain.Good:
		return 1
	case domain.Hard:
		if e.HintUsed {
			return 0.5
		}
		return 1
	}
	return 0
}

// Accuracy is the mean Score of entries, or 0 when there are none.
func Accuracy(entries []domain.ReviewEntry) float64 {
	if len(entries) == 0 {
		return 0
	}
	var sum float64
	for _, e := range entries {
		sum += Score(e)
	}
	return sum / float64(len(entries))
}

// DayAccuracy is the accuracy of a single day.
type DayAccuracy struct {
	Date     domain.Date `json:"date"`
	Reviews  int         `json:"reviews"`
	Accuracy float64     `json:"accuracy"`
}

// DailyAccuracy scores entries per day and returns the most recent lastN days
// that have reviews, oldest first. Callers filter entries to a deck first.
func DailyAccuracy(entries []domain.ReviewEntry, lastN int) []DayAccuracy {
	if lastN <= 0 {
		lastN = DefaultAccuracyDays
	}
	byDay := map[domain.Date][]domain.ReviewEntry{}
	for _, e := range entries {
		d := e.Day()
		byDay[d] = append(byDay[d], e)
	}

	days := make([]domain.Date, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	if len(days) > lastN {
		days = days[len(days)-lastN:]
	}

	out := make([]DayAccuracy, len(days))
	for i, d := range days {
		out[i] = DayAccuracy{Date: d, Reviews: len(byDay[d]), Accuracy: Accuracy(byDay[d])}
	}
	return out
}

// DeckSummary is an overview of one deck.
type DeckSummary struct {
	TotalCards      int     `json:"total_cards"`
	NewCards        int     `json:"new_cards"`
	CardsDue        int     `json:"cards_due"`
	CardsSuspended  int     `json:"cards_suspended"`
	CardsLearned    int     `json:"cards_learned"`
	Mastery         float64 `json:"mastery"`
	TotalReviews    int     `json:"total_reviews"`
	OverallAccuracy float64 `json:"overall_accuracy"`
}

// Summarize builds a DeckSummary from a deck's cards and its log entries.
func Summarize(cards []domain.Card, entries []domain.ReviewEntry, today domain.Date) DeckSummary {
	s := DeckSummary{
		TotalCards:      len(cards),
		TotalReviews:    len(entries),
		OverallAccuracy: Accuracy(entries),
	}
	for _, c := range cards {
		if c.NextReview == nil {
			s.NewCards++
		}
		if c.IsDue(today) {
			s.CardsDue++
		}
		if c.Suspended {
			s.CardsSuspended++
		} else if c.Bucket > 0 {
			s.CardsLearned++
		}
	}
	if s.TotalCards > 0 {
		s.Mastery = float64(s.CardsLearned) / float64(s.TotalCards)
	}
	return s
}
