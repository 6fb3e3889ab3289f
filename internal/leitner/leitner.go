package leitner

import (
	"github.com/conorfennell/flipstack/internal/domain"
)

// DefaultLeechThreshold is the number of consecutive misses that suspends a card.
const DefaultLeechThreshold = 8

// maxShift keeps 2^bucket well inside int range; beyond it the interval is
// clamped to domain.MaxDate anyway.
const maxShift = 30

// Params holds the tunables of the bucket scheme.
type Params struct {
	LeechThreshold  int // consecutive misses before a card is suspended
	MaxIntervalDays int // 0 means uncapped
}

// DefaultParams returns the stock scheme: leech at 8 misses, no interval cap.
func DefaultParams() *Params {
	return &Params{
		LeechThreshold:  DefaultLeechThreshold,
		MaxIntervalDays: 0,
	}
}

// Apply grades card in place and reports whether this review turned it into
// a leech. Rules run in order: miss-streak bookkeeping, bucket transition,
// next-review computation.
func (p *Params) Apply(card *domain.Card, rating domain.Rating, today domain.Date) bool {
	leech := false

	if rating == domain.Miss {
		// A suspended card keeps its streak; it already tripped the threshold.
		if !card.Suspended {
			card.MissStreak++
			if card.MissStreak >= p.threshold() {
				card.Suspended = true
				leech = true
			}
		}
	} else {
		card.MissStreak = 0
	}

	switch rating {
	case domain.Good:
		card.Bucket++
	case domain.Miss:
		card.Bucket = 0
	case domain.Hard:
		if card.Bucket == 0 {
			card.Bucket = 1
		}
	}

	next := NextDueDate(today, p.IntervalDays(card.Bucket))
	card.NextReview = &next
	return leech
}

// IntervalDays returns the review interval for a bucket: 0 for bucket 0,
// otherwise 2^bucket days, optionally capped by MaxIntervalDays.
func (p *Params) IntervalDays(bucket int) int {
	if bucket <= 0 {
		return 0
	}
	shift := bucket
	if shift > maxShift {
		shift = maxShift
	}
	days := 1 << shift
	if p.MaxIntervalDays > 0 && days > p.MaxIntervalDays {
		days = p.MaxIntervalDays
	}
	return days
}

func (p *Params) threshold() int {
	if p.LeechThreshold <= 0 {
		return DefaultLeechThreshold
	}
	return p.LeechThreshold
}

// NextDueDate returns today plus days, clamped to the last representable date.
func NextDueDate(today domain.Date, days int) domain.Date {
	if days > domain.MaxDate.DaysSince(today) {
		return domain.MaxDate
	}
	return today.AddDays(days)
}
