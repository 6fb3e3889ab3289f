package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Card is a single flashcard. Field names match the on-disk deck format.
type Card struct {
	ID         string   `json:"id" validate:"required"`
	Front      string   `json:"front"`
	Back       string   `json:"back"`
	Image      string   `json:"image"`
	Audio      string   `json:"audio"`
	Tags       []string `json:"tags"`
	Hint       string   `json:"hint"`
	Bucket     int      `json:"bucket" validate:"gte=0"`
	NextReview *Date    `json:"next_review"`
	MissStreak int      `json:"miss_streak" validate:"gte=0"`
	Suspended  bool     `json:"suspended"`
}

// IsDue reports whether a non-suspended card should be shown on today.
func (c Card) IsDue(today Date) bool {
	if c.Suspended {
		return false
	}
	return c.NextReview == nil || !c.NextReview.After(today)
}

// Rating is the self-graded recall of a review.
type Rating int

const (
	Miss Rating = 1
	Hard Rating = 2
	Good Rating = 3
)

// IsValid reports whether r is Miss, Hard or Good.
func (r Rating) IsValid() bool {
	return r >= Miss && r <= Good
}

func (r Rating) String() string {
	switch r {
	case Miss:
		return "miss"
	case Hard:
		return "hard"
	case Good:
		return "good"
	}
	return fmt.Sprintf("Rating(%d)", int(r))
}

// ParseRating accepts a rating name or its numeric form.
func ParseRating(s string) (Rating, error) {
	switch s {
	case "miss", "1":
		return Miss, nil
	case "hard", "2":
		return Hard, nil
	case "good", "3":
		return Good, nil
	}
	return 0, fmt.Errorf("unknown rating %q", s)
}

// ReviewEntry records a single graded review. An empty SessionID is written
// as null and marks a legacy, untagged entry.
type ReviewEntry struct {
	Timestamp time.Time
	Deck      string
	Rating    Rating
	SessionID string
	HintUsed  bool
}

type reviewEntryJSON struct {
	Timestamp string  `json:"timestamp,omitempty"`
	Date      string  `json:"date,omitempty"`
	Deck      string  `json:"deck"`
	Rating    Rating  `json:"rating"`
	SessionID *string `json:"session_id"`
	HintUsed  bool    `json:"hint_used"`
}

// MarshalJSON implements json.Marshaler.
func (e ReviewEntry) MarshalJSON() ([]byte, error) {
	raw := reviewEntryJSON{
		Timestamp: e.Timestamp.Format(time.RFC3339Nano),
		Deck:      e.Deck,
		Rating:    e.Rating,
		HintUsed:  e.HintUsed,
	}
	if e.SessionID != "" {
		sid := e.SessionID
		raw.SessionID = &sid
	}
	return json.Marshal(raw)
}

// UnmarshalJSON implements json.Unmarshaler. Entries carrying only a legacy
// "date" field are placed at noon of that day.
func (e *ReviewEntry) UnmarshalJSON(data []byte) error {
	var raw reviewEntryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ts := raw.Timestamp
	if ts == "" && raw.Date != "" {
		ts = raw.Date + "T12:00:00"
	}
	parsed, err := ParseTimestamp(ts)
	if err != nil {
		return err
	}
	*e = ReviewEntry{
		Timestamp: parsed,
		Deck:      raw.Deck,
		Rating:    raw.Rating,
		HintUsed:  raw.HintUsed,
	}
	if raw.SessionID != nil {
		e.SessionID = *raw.SessionID
	}
	return nil
}

// Day returns the calendar day the review happened on, in local time.
func (e ReviewEntry) Day() Date {
	return DateOf(e.Timestamp.In(time.Local))
}

var zonelessLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp parses RFC 3339 timestamps and the zone-less ISO form,
// which is interpreted in local time.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range zonelessLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("failed to parse timestamp %q", s)
}

// Stats is the global study streak record.
type Stats struct {
	Streak        int   `json:"streak"`
	LastStudyDate *Date `json:"last_study_date"`
}

// Settings holds presentation preferences handed to whichever component
// needs them.
type Settings struct {
	SoundEnabled bool   `json:"sound_enabled" koanf:"sound_enabled"`
	Theme        string `json:"theme" koanf:"theme" validate:"oneof=light dark system"`
	FontFamily   string `json:"font_family" koanf:"font_family"`
	FontSize     int    `json:"font_size" koanf:"font_size" validate:"gte=8,lte=48"`
}

// DefaultSettings mirrors a fresh install.
func DefaultSettings() Settings {
	return Settings{
		SoundEnabled: true,
		Theme:        "system",
		FontFamily:   "Sans",
		FontSize:     16,
	}
}
