package streak

import (
	"fmt"
	"sync"
	"time"

	"github.com/conorfennell/flipstack/internal/domain"
)

// StatsStore persists the global streak record.
type StatsStore interface {
	LoadStats() domain.Stats
	SaveStats(domain.Stats) error
}

// Advance applies one day of study to stats. Studying again on the same day
// changes nothing; studying the day after the last study extends the streak;
// any longer gap, or no prior study, restarts it at 1.
func Advance(stats domain.Stats, today domain.Date) (domain.Stats, bool) {
	last := stats.LastStudyDate
	if last != nil && *last == today {
		return stats, false
	}
	if last != nil && today.DaysSince(*last) == 1 {
		stats.Streak++
	} else {
		stats.Streak = 1
	}
	stats.LastStudyDate = &today
	return stats, true
}

// Tracker keeps the daily-activity streak.
type Tracker struct {
	mu    sync.Mutex
	store StatsStore
	now   func() time.Time
}

// NewTracker returns a Tracker over store. A nil clock means time.Now.
func NewTracker(store StatsStore, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{store: store, now: now}
}

// RecordStudyToday counts today as a study day and returns the updated record.
func (t *Tracker) RecordStudyToday() (domain.Stats, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats, changed := Advance(t.store.LoadStats(), domain.DateOf(t.now()))
	if !changed {
		return stats, nil
	}
	if err := t.store.SaveStats(stats); err != nil {
		return stats, fmt.Errorf("failed to record study day: %w", err)
	}
	return stats, nil
}

// Current returns the stored record.
func (t *Tracker) Current() domain.Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.store.LoadStats()
}

// FormatStreak returns a human-readable streak label.
func FormatStreak(streak int) string {
	switch streak {
	case 0:
		return "No active streak"
	case 1:
		return "1 day streak"
	}
	return fmt.Sprintf("%d day streak", streak)
}
