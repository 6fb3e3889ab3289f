package fingerprint

import (
	"testing"

	"github.com/conorfennell/flipstack/internal/domain"
)

func TestNormalize(t *testing.T) {
	card := domain.Card{
		Front: "  What is HTMX? \r\n",
		Back:  "A library for\r\nAJAX.",
		Hint:  "Web Development",
	}
	expected := "what is htmx?\na library for\najax.\nweb development"
	if got := Normalize(card); got != expected {
		t.Errorf("Expected normalized string to be '%s', but got '%s'", expected, got)
	}
}

func TestOf(t *testing.T) {
	t.Run("generates correct hash", func(t *testing.T) {
		// SHA-256 of "q\na\nh"
		expected := "0e30639736b4f7d68024660c53465860bb2fafbb658572ccb2f6709135280841"
		if got := Of(domain.Card{Front: "Q", Back: "A", Hint: "H"}); got != expected {
			t.Errorf("Expected hash '%s', but got '%s'", expected, got)
		}
	})

	t.Run("ignores scheduling state", func(t *testing.T) {
		a := domain.Card{Front: "Test", Bucket: 4, Suspended: true}
		b := domain.Card{Front: "Test"}
		if Of(a) != Of(b) {
			t.Error("Expected scheduling fields not to affect the fingerprint")
		}
	})

	t.Run("normalization produces same hash", func(t *testing.T) {
		a := domain.Card{Front: "  what is go? ", Back: "A programming language."}
		b := domain.Card{Front: "What Is Go?", Back: "A programming language."}
		if Of(a) != Of(b) {
			t.Error("Expected hashes to be the same after normalization, but they were different.")
		}
	})

	t.Run("field boundaries matter", func(t *testing.T) {
		a := domain.Card{Front: "ab", Back: "c"}
		b := domain.Card{Front: "a", Back: "bc"}
		if Of(a) == Of(b) {
			t.Error("Expected shifted content to produce a different hash")
		}
	})
}

func TestAssign(t *testing.T) {
	cards := Assign([]domain.Card{
		{Front: "One", Back: "1"},
		{Front: "Two", Back: "2"},
		{Front: " one ", Back: "1"},
	})
	if len(cards) != 2 {
		t.Fatalf("Expected duplicate to be dropped, got %d cards", len(cards))
	}
	if cards[0].ID != Of(cards[0]) || cards[1].ID == "" {
		t.Errorf("Expected fingerprint ids, got %+v", cards)
	}
}
