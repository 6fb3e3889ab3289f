// Package sessions rebuilds discrete study sittings from the flat review log.
package sessions

import (
	"sort"
	"time"

	"github.com/conorfennell/flipstack/internal/domain"
)

const (
	// LegacyGap splits untagged entries into separate sessions.
	LegacyGap = 2 * time.Minute
	// liveWindow bounds the count-match fallback used when a live session
	// has no id.
	liveWindow = 10 * time.Minute
)

// Session is a derived view over review entries; it is never persisted.
type Session struct {
	ID    string    `json:"id,omitempty"`
	Start time.Time `json:"start"`
	Count int       `json:"count"`
	Good  int       `json:"good"`
	Hard  int       `json:"hard"`
	Miss  int       `json:"miss"`
}

func (s *Session) add(e domain.ReviewEntry) {
	s.Count++
	switch e.Rating {
	case domain.Good:
		s.Good++
	case domain.Hard:
		s.Hard++
	case domain.Miss:
		s.Miss++
	}
}

// Reconstruct groups entries into sessions ordered by start time. Entries
// with a session id are grouped by it; the rest are sorted and split on gaps
// longer than LegacyGap.
func Reconstruct(entries []domain.ReviewEntry) []Session {
	var tagged []Session
	index := map[string]int{}
	var legacy []domain.ReviewEntry

	for _, e := range entries {
		if e.SessionID == "" {
			legacy = append(legacy, e)
			continue
		}
		i, ok := index[e.SessionID]
		if !ok {
			i = len(tagged)
			index[e.SessionID] = i
			tagged = append(tagged, Session{ID: e.SessionID, Start: e.Timestamp})
		}
		if e.Timestamp.Before(tagged[i].Start) {
			tagged[i].Start = e.Timestamp
		}
		tagged[i].add(e)
	}

	out := append(tagged, groupLegacy(legacy)...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

func groupLegacy(entries []domain.ReviewEntry) []Session {
	if len(entries) == 0 {
		return nil
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Timestamp.Before(entries[j].Timestamp) })

	var out []Session
	cur := Session{Start: entries[0].Timestamp}
	last := entries[0].Timestamp
	for _, e := range entries {
		if e.Timestamp.Sub(last) > LegacyGap {
			out = append(out, cur)
			cur = Session{Start: e.Timestamp}
		}
		cur.add(e)
		last = e.Timestamp
	}
	return append(out, cur)
}

// Live is an in-memory session that may not be visible in the log yet.
type Live struct {
	ID    string    `json:"id,omitempty"`
	Start time.Time `json:"start"`
	Good  int       `json:"good"`
	Hard  int       `json:"hard"`
	Miss  int       `json:"miss"`
}

// Count is the number of reviews in the live session.
func (l Live) Count() int { return l.Good + l.Hard + l.Miss }

// Record tallies one rating.
func (l *Live) Record(r domain.Rating) {
	switch r {
	case domain.Good:
		l.Good++
	case domain.Hard:
		l.Hard++
	case domain.Miss:
		l.Miss++
	}
}

// Session converts the tally to a Session.
func (l Live) Session() Session {
	return Session{ID: l.ID, Start: l.Start, Count: l.Count(), Good: l.Good, Hard: l.Hard, Miss: l.Miss}
}

// InjectLive appends live to sessions unless it is empty or already present.
// A live session with an id is a duplicate when any session shares the id.
// Without an id, it is a duplicate when the latest session has the same
// count and started within ten minutes of now.
func InjectLive(sessions []Session, live Live, now time.Time) []Session {
	if live.Count() == 0 || isDuplicate(sessions, live, now) {
		return sessions
	}
	return append(sessions, live.Session())
}

func isDuplicate(sessions []Session, live Live, now time.Time) bool {
	if live.ID != "" {
		for _, s := range sessions {
			if s.ID == live.ID {
				return true
			}
		}
		return false
	}
	if len(sessions) == 0 {
		return false
	}
	latest := sessions[len(sessions)-1]
	return latest.Count == live.Count() && now.Sub(latest.Start) < liveWindow
}
