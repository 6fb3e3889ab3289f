package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/conorfennell/flipstack/internal/analytics"
	"github.com/conorfennell/flipstack/internal/domain"
	"github.com/conorfennell/flipstack/internal/sessions"
	"github.com/conorfennell/flipstack/internal/storage"
	"github.com/conorfennell/flipstack/internal/streak"
	"github.com/conorfennell/flipstack/internal/study"
)

var testNow = time.Date(2024, 1, 2, 10, 0, 0, 0, time.Local)

func newTestServer(t *testing.T) (*Server, *storage.Store) {
	t.Helper()
	store, err := storage.Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("storage.Open() returned an unexpected error: %v", err)
	}
	clock := func() time.Time { return testNow }
	tracker := streak.NewTracker(store, clock)
	scheduler := study.New(store, tracker, nil, study.WithClock(clock))
	s := NewServer(store, scheduler, tracker, nil, nil)
	s.now = clock
	return s, store
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rr.Body.String(), err)
	}
}

func TestDeckLifecycle(t *testing.T) {
	s, _ := newTestServer(t)

	rr := do(t, s, http.MethodPost, "/decks", `{"name":"Spanish Verbs","category":"Languages"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, but got %d: %s", rr.Code, rr.Body)
	}
	if rr := do(t, s, http.MethodPost, "/decks", `{"name":"spanish verbs"}`); rr.Code != http.StatusConflict {
		t.Errorf("Expected 409 for a duplicate deck, but got %d", rr.Code)
	}
	if rr := do(t, s, http.MethodPost, "/decks", `{"name":"!!!"}`); rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for an unusable name, but got %d", rr.Code)
	}

	rr = do(t, s, http.MethodGet, "/decks", "")
	var decks []deckInfo
	decodeBody(t, rr, &decks)
	if len(decks) != 1 || decks[0].ID != "spanish_verbs.json" || decks[0].Category != "Languages" || decks[0].Name != "Spanish Verbs" {
		t.Fatalf("Unexpected deck list %+v", decks)
	}

	rr = do(t, s, http.MethodPost, "/decks/spanish_verbs.json/rename", `{"name":"Verbs"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, but got %d: %s", rr.Code, rr.Body)
	}
	if rr := do(t, s, http.MethodDelete, "/decks/verbs.json", ""); rr.Code != http.StatusNoContent {
		t.Errorf("Expected 204, but got %d", rr.Code)
	}
	if rr := do(t, s, http.MethodGet, "/decks/verbs.json/due", ""); rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for a deleted deck, but got %d", rr.Code)
	}
}

func TestGradeFlow(t *testing.T) {
	s, store := newTestServer(t)
	if err := store.SaveDeck("d.json", []domain.Card{{ID: "a", Front: "Q", Back: "A"}, {ID: "b", Front: "Q2", Back: "A2"}}); err != nil {
		t.Fatal(err)
	}

	rr := do(t, s, http.MethodGet, "/decks/d.json/due", "")
	var due struct {
		Mode      string        `json:"mode"`
		SessionID string        `json:"session_id"`
		Cards     []domain.Card `json:"cards"`
	}
	decodeBody(t, rr, &due)
	if due.Mode != "normal" || len(due.Cards) != 2 || due.SessionID == "" {
		t.Fatalf("Unexpected due response %+v", due)
	}

	rr = do(t, s, http.MethodPost, "/decks/d.json/grade", `{"card_id":"a","rating":3,"session_id":"`+due.SessionID+`"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, but got %d: %s", rr.Code, rr.Body)
	}
	var result study.Result
	decodeBody(t, rr, &result)
	if !result.Found || result.Card.Bucket != 1 {
		t.Errorf("Expected the card to move to bucket 1, got %+v", result)
	}

	if rr := do(t, s, http.MethodPost, "/decks/d.json/grade", `{"card_id":"b","rating":9}`); rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for an invalid rating, but got %d", rr.Code)
	}
	if rr := do(t, s, http.MethodPost, "/decks/d.json/grade", `{"card_id":"b","rating":1,"mode":"cram"}`); rr.Code != http.StatusOK {
		t.Errorf("Expected 200 for a cram review, but got %d", rr.Code)
	}
	if cards := store.LoadDeck("d.json"); cards[1].MissStreak != 0 || cards[1].NextReview != nil {
		t.Errorf("Expected cram review to leave the card alone, got %+v", cards[1])
	}

	rr = do(t, s, http.MethodGet, "/stats", "")
	var stats struct {
		Streak int `json:"streak"`
	}
	decodeBody(t, rr, &stats)
	if stats.Streak != 1 {
		t.Errorf("Expected a streak of 1, but got %d", stats.Streak)
	}

	rr = do(t, s, http.MethodGet, "/decks/d.json/sessions", "")
	var got []sessions.Session
	decodeBody(t, rr, &got)
	if len(got) != 2 {
		t.Errorf("Expected a tagged and an untagged session, got %+v", got)
	}

	rr = do(t, s, http.MethodGet, "/decks/d.json/accuracy", "")
	var acc []analytics.DayAccuracy
	decodeBody(t, rr, &acc)
	if len(acc) != 1 || acc[0].Reviews != 2 || acc[0].Accuracy != 0.5 {
		t.Errorf("Unexpected accuracy %+v", acc)
	}
}

func TestSessionsInjectLive(t *testing.T) {
	s, store := newTestServer(t)
	if err := store.SaveDeck("d.json", []domain.Card{{ID: "a"}}); err != nil {
		t.Fatal(err)
	}
	start := testNow.Add(-time.Minute).Format(time.RFC3339)

	testCases := []struct {
		name  string
		query string
		code  int
		want  int
	}{
		{"no live session", "", http.StatusOK, 0},
		{"live session injected", "?live_id=x&live_start=" + start + "&live_good=2", http.StatusOK, 1},
		{"empty live session skipped", "?live_id=x&live_start=" + start, http.StatusOK, 0},
		{"bad start", "?live_start=yesterday&live_good=1", http.StatusBadRequest, 0},
		{"negative count", "?live_good=-1", http.StatusBadRequest, 0},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(t, s, http.MethodGet, "/decks/d.json/sessions"+tc.query, "")
			if rr.Code != tc.code {
				t.Fatalf("Expected status %d, but got %d", tc.code, rr.Code)
			}
			if tc.code != http.StatusOK {
				return
			}
			var got []sessions.Session
			decodeBody(t, rr, &got)
			if len(got) != tc.want {
				t.Errorf("Expected %d sessions, but got %d", tc.want, len(got))
			}
		})
	}
}

func TestUnsuspend(t *testing.T) {
	s, store := newTestServer(t)
	if err := store.SaveDeck("d.json", []domain.Card{{ID: "a", Suspended: true, MissStreak: 8}}); err != nil {
		t.Fatal(err)
	}
	if rr := do(t, s, http.MethodPost, "/decks/d.json/cards/a/unsuspend", ""); rr.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, but got %d", rr.Code)
	}
	if c := store.LoadDeck("d.json")[0]; c.Suspended || c.MissStreak != 0 {
		t.Errorf("Expected card to be unsuspended, got %+v", c)
	}
	if rr := do(t, s, http.MethodPost, "/decks/d.json/cards/zzz/unsuspend", ""); rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for an unknown card, but got %d", rr.Code)
	}
}

func TestHeatmap(t *testing.T) {
	s, store := newTestServer(t)
	if err := store.AppendReview(domain.ReviewEntry{Timestamp: testNow, Deck: "d.json", Rating: domain.Good}); err != nil {
		t.Fatal(err)
	}

	rr := do(t, s, http.MethodGet, "/heatmap", "")
	var days []analytics.HeatmapDay
	decodeBody(t, rr, &days)
	if len(days) != 366 {
		t.Fatalf("Expected 366 days for 2024, but got %d", len(days))
	}
	if days[1].Count != 1 || days[1].Level != analytics.LevelLight || days[2].Level != analytics.LevelFuture {
		t.Errorf("Unexpected cells %+v %+v", days[1], days[2])
	}

	if rr := do(t, s, http.MethodGet, "/heatmap?year=abc", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for a bad year, but got %d", rr.Code)
	}
	rr = do(t, s, http.MethodGet, "/heatmap.html?year=2023", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "echarts") {
		t.Errorf("Expected a rendered chart, got %d", rr.Code)
	}
}

func TestSources(t *testing.T) {
	s, store := newTestServer(t)
	if _, err := store.CreateDeck("Notes", ""); err != nil {
		t.Fatal(err)
	}
	rr := do(t, s, http.MethodPost, "/sources", `{"path":"https://example.com/notes.git","deck":"notes.json"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected 201, but got %d: %s", rr.Code, rr.Body)
	}
	var src storage.Source
	decodeBody(t, rr, &src)
	if src.Type != storage.SourceGit {
		t.Errorf("Expected a git source, got %+v", src)
	}
	if rr := do(t, s, http.MethodDelete, "/sources/abc", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, but got %d", rr.Code)
	}
	if rr := do(t, s, http.MethodDelete, "/sources/1", ""); rr.Code != http.StatusNoContent {
		t.Errorf("Expected 204, but got %d", rr.Code)
	}
	if rr := do(t, s, http.MethodPost, "/sync", ""); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 without a syncer, but got %d", rr.Code)
	}
}

func TestSessionsLiveStartDefaultsToNow(t *testing.T) {
	s, store := newTestServer(t)
	if err := store.SaveDeck("d.json", []domain.Card{{ID: "a"}}); err != nil {
		t.Fatal(err)
	}
	if err := store.AppendReview(domain.ReviewEntry{Timestamp: testNow.Add(-time.Hour), Deck: "d.json", Rating: domain.Good, SessionID: "old"}); err != nil {
		t.Fatal(err)
	}

	rr := do(t, s, http.MethodGet, "/decks/d.json/sessions?live_id=L&live_good=2", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, but got %d", rr.Code)
	}
	var got []sessions.Session
	decodeBody(t, rr, &got)
	if len(got) != 2 {
		t.Fatalf("Expected the logged and the live session, got %+v", got)
	}
	live := got[1]
	if live.ID != "L" || live.Count != 2 || !live.Start.Equal(testNow) {
		t.Errorf("Expected live session L starting at %v, but got %+v", testNow, live)
	}
}
