package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	testCases := []struct {
		input   string
		want    Date
		wantErr bool
	}{
		{"2024-02-29", Date{2024, time.February, 29}, false},
		{"2024-03-01T10:11:12.5", Date{2024, time.March, 1}, false},
		{"2023-02-29", Date{}, true},
		{"yesterday", Date{}, true},
	}
	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseDate(tc.input)
			if (err != nil) != tc.wantErr {
				t.Fatalf("Expected error=%v, but got %v", tc.wantErr, err)
			}
			if got != tc.want {
				t.Errorf("Expected %v, but got %v", tc.want, got)
			}
		})
	}
}

func TestDateArithmetic(t *testing.T) {
	d := Date{2023, time.December, 30}
	if got := d.AddDays(3); got != (Date{2024, time.January, 2}) {
		t.Errorf("Expected 2024-01-02, but got %s", got)
	}
	if got := (Date{2024, time.March, 1}).DaysSince(Date{2024, time.February, 28}); got != 2 {
		t.Errorf("Expected 2 days across a leap day, but got %d", got)
	}
	if got := MaxDate.DaysSince(Date{2024, time.January, 2}); got != 2913172 {
		t.Errorf("Expected 2913172 days to the last date, but got %d", got)
	}
	if got := (Date{2024, time.January, 2}).DaysSince(MaxDate); got != -2913172 {
		t.Errorf("Expected -2913172 days back from the last date, but got %d", got)
	}
	if !d.Before(d.AddDays(1)) || d.After(d) {
		t.Error("Unexpected ordering")
	}
}

func TestCardJSON(t *testing.T) {
	due := Date{2024, time.January, 5}
	card := Card{ID: "c1", Front: "Q", Back: "A", Tags: []string{}, NextReview: &due, Bucket: 2}
	data, err := json.Marshal(card)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"next_review":"2024-01-05"`) {
		t.Errorf("Expected ISO next_review in %s", data)
	}

	var fresh Card
	if err := json.Unmarshal([]byte(`{"id":"x","front":"f","back":"b","next_review":null}`), &fresh); err != nil {
		t.Fatal(err)
	}
	if fresh.NextReview != nil {
		t.Errorf("Expected null next_review to stay nil, got %v", fresh.NextReview)
	}
}

func TestCardIsDue(t *testing.T) {
	today := Date{2024, time.January, 2}
	past, future := today.AddDays(-1), today.AddDays(1)
	testCases := []struct {
		name string
		card Card
		want bool
	}{
		{"never reviewed", Card{}, true},
		{"due yesterday", Card{NextReview: &past}, true},
		{"due today", Card{NextReview: &today}, true},
		{"due tomorrow", Card{NextReview: &future}, false},
		{"suspended", Card{Suspended: true}, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.card.IsDue(today); got != tc.want {
				t.Errorf("Expected %v, but got %v", tc.want, got)
			}
		})
	}
}

func TestReviewEntryJSON(t *testing.T) {
	ts := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	data, err := json.Marshal(ReviewEntry{Timestamp: ts, Deck: "d.json", Rating: Hard})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"session_id":null`) {
		t.Errorf("Expected null session_id in %s", data)
	}

	var back ReviewEntry
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if !back.Timestamp.Equal(ts) || back.Rating != Hard || back.SessionID != "" {
		t.Errorf("Unexpected decoded entry %+v", back)
	}

	var legacy ReviewEntry
	if err := json.Unmarshal([]byte(`{"date":"2023-12-31","deck":"d.json","rating":1}`), &legacy); err != nil {
		t.Fatal(err)
	}
	if got := legacy.Day(); got != (Date{2023, time.December, 31}) {
		t.Errorf("Expected legacy entry on 2023-12-31, got %s", got)
	}

	var bad ReviewEntry
	if err := json.Unmarshal([]byte(`{"timestamp":"soon","deck":"d.json","rating":1}`), &bad); err == nil {
		t.Error("Expected an error for an unparseable timestamp")
	}
}

func TestParseRating(t *testing.T) {
	for in, want := range map[string]Rating{"good": Good, "3": Good, "hard": Hard, "miss": Miss, "1": Miss} {
		got, err := ParseRating(in)
		if err != nil || got != want {
			t.Errorf("ParseRating(%q) = (%v, %v), want %v", in, got, err, want)
		}
	}
	if _, err := ParseRating("4"); err == nil {
		t.Error("Expected an error for rating 4")
	}
	if Rating(0).IsValid() || !Good.IsValid() {
		t.Error("Unexpected IsValid result")
	}
}
