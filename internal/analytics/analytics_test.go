package analytics

import (
	"math"
	"testing"
	"time"

	"github.com/conorfennell/flipstack/internal/domain"
)

func day(y int, m time.Month, d int) domain.Date {
	return domain.Date{Year: y, Month: m, Day: d}
}

func at(d domain.Date, hour int) time.Time {
	return time.Date(d.Year, d.Month, d.Day, hour, 0, 0, 0, time.Local)
}

func TestClassify(t *testing.T) {
	today := day(2024, 6, 15)
	testCases := []struct {
		name  string
		day   domain.Date
		count int
		want  Level
	}{
		{"future wins over count", today.AddDays(1), 500, LevelFuture},
		{"heroic", today, 101, LevelHeroic},
		{"exactly 100 is heavy", today, 100, LevelHeavy},
		{"heavy", today, 51, LevelHeavy},
		{"exactly 50 is normal", today, 50, LevelNormal},
		{"normal lower bound", today, 30, LevelNormal},
		{"light", today, 29, LevelLight},
		{"one review", today, 1, LevelLight},
		{"none", today.AddDays(-3), 0, LevelNone},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.day, today, tc.count); got != tc.want {
				t.Errorf("Expected %s, but got %s", tc.want, got)
			}
		})
	}
}

func TestHeatmap(t *testing.T) {
	today := day(2024, 3, 1)
	counts := map[string]int{"2024-02-29": 35, "2024-03-01": 2, "2024-03-02": 9, "2023-12-31": 4}

	days := Heatmap(2024, counts, today)
	if len(days) != 366 {
		t.Fatalf("Expected 366 days in a leap year, but got %d", len(days))
	}
	if days[0].Date != day(2024, 1, 1) || days[365].Date != day(2024, 12, 31) {
		t.Errorf("Unexpected range %s..%s", days[0].Date, days[365].Date)
	}
	if d := days[59]; d.Date != day(2024, 2, 29) || d.Count != 35 || d.Level != LevelNormal {
		t.Errorf("Unexpected leap day cell %+v", d)
	}
	if d := days[60]; d.Count != 2 || d.Level != LevelLight {
		t.Errorf("Unexpected today cell %+v", d)
	}
	if d := days[61]; d.Level != LevelFuture || d.Count != 0 {
		t.Errorf("Expected future cell, got %+v", d)
	}
}

func TestDailyAccuracy(t *testing.T) {
	d1 := day(2024, 5, 1)
	d2 := day(2024, 5, 3)
	entries := []domain.ReviewEntry{
		{Timestamp: at(d2, 9), Rating: domain.Good},
		{Timestamp: at(d1, 9), Rating: domain.Good},
		{Timestamp: at(d1, 10), Rating: domain.Hard, HintUsed: true},
		{Timestamp: at(d1, 11), Rating: domain.Miss},
	}

	got := DailyAccuracy(entries, 7)
	if len(got) != 2 {
		t.Fatalf("Expected 2 active days, but got %d", len(got))
	}
	if got[0].Date != d1 || math.Abs(got[0].Accuracy-0.5) > 1e-9 || got[0].Reviews != 3 {
		t.Errorf("Expected 0.5 accuracy over 3 reviews on %s, got %+v", d1, got[0])
	}
	if got[1].Date != d2 || got[1].Accuracy != 1 {
		t.Errorf("Expected perfect accuracy on %s, got %+v", d2, got[1])
	}

	if last := DailyAccuracy(entries, 1); len(last) != 1 || last[0].Date != d2 {
		t.Errorf("Expected only the most recent active day, got %+v", last)
	}
	if empty := DailyAccuracy(nil, 7); len(empty) != 0 {
		t.Errorf("Expected no days for an empty log, got %+v", empty)
	}
}

func TestScore(t *testing.T) {
	testCases := []struct {
		entry domain.ReviewEntry
		want  float64
	}{
		{domain.ReviewEntry{Rating: domain.Good}, 1},
		{domain.ReviewEntry{Rating: domain.Good, HintUsed: true}, 1},
		{domain.ReviewEntry{Rating: domain.Hard}, 1},
		{domain.ReviewEntry{Rating: domain.Hard, HintUsed: true}, 0.5},
		{domain.ReviewEntry{Rating: domain.Miss}, 0},
	}
	for _, tc := range testCases {
		if got := Score(tc.entry); got != tc.want {
			t.Errorf("Score(%+v) = %f, want %f", tc.entry, got, tc.want)
		}
	}
}

func TestSummarize(t *testing.T) {
	today := day(2024, 1, 10)
	past := today.AddDays(-1)
	future := today.AddDays(4)
	cards := []domain.Card{
		{ID: "new"},
		{ID: "due", Bucket: 1, NextReview: &past},
		{ID: "later", Bucket: 3, NextReview: &future},
		{ID: "leech", Bucket: 0, NextReview: &past, Suspended: true, MissStreak: 8},
	}
	entries := []domain.ReviewEntry{{Rating: domain.Good}, {Rating: domain.Miss}}

	s := Summarize(cards, entries, today)
	want := DeckSummary{
		TotalCards:      4,
		NewCards:        1,
		CardsDue:        2,
		CardsSuspended:  1,
		CardsLearned:    2,
		Mastery:         0.5,
		TotalReviews:    2,
		OverallAccuracy: 0.5,
	}
	if s != want {
		t.Errorf("Expected %+v, but got %+v", want, s)
	}
}
