package storage

import (
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"testing"
)

func TestCardLifecycle(t *testing.T) {
	s := openTestStore(t)
	deck, _ := s.CreateDeck("Capitals", "")

	card, err := s.AddCard(deck, CardInput{Front: "France", Back: "Paris", Tags: []string{"Europe"}})
	if err != nil {
		t.Fatalf("AddCard() returned an unexpected error: %v", err)
	}
	if card.ID == "" || card.Bucket != 0 || card.NextReview != nil {
		t.Errorf("Expected a fresh card, got %+v", card)
	}

	found, err := s.EditCard(deck, card.ID, CardInput{Front: "France?", Back: "Paris", Hint: "P..."}, true)
	if err != nil || !found {
		t.Fatalf("EditCard() = (%v, %v), want (true, nil)", found, err)
	}
	cards := s.LoadDeck(deck)
	if cards[0].Front != "France?" || !cards[0].Suspended || cards[0].Hint != "P..." {
		t.Errorf("Expected edit to apply, got %+v", cards[0])
	}
	if !reflect.DeepEqual(cards[0].Tags, []string{"Europe"}) {
		t.Errorf("Expected nil tags to leave existing tags, got %v", cards[0].Tags)
	}

	if found, _ := s.EditCard(deck, "nope", CardInput{}, false); found {
		t.Error("Expected EditCard on an unknown id to report not found")
	}

	if found, err := s.DeleteCard(deck, card.ID); err != nil || !found {
		t.Fatalf("DeleteCard() = (%v, %v), want (true, nil)", found, err)
	}
	if got := len(s.LoadDeck(deck)); got != 0 {
		t.Errorf("Expected empty deck after delete, got %d cards", got)
	}
}

func TestSearchAndTags(t *testing.T) {
	s := openTestStore(t)
	a, _ := s.CreateDeck("Alpha", "")
	b, _ := s.CreateDeck("Beta", "")
	s.AddCard(a, CardInput{Front: "What is Go?", Back: "A language", Tags: []string{"Programming"}})
	s.AddCard(b, CardInput{Front: "Capital of Peru", Back: "Lima", Tags: []string{"geo"}})
	s.AddCard(b, CardInput{Front: "Gopher", Back: "Mascot", Tags: []string{"programming"}})

	results := s.SearchCards("go")
	if len(results) != 2 {
		t.Fatalf("Expected 2 search results, got %d", len(results))
	}
	if results[0].DeckName != "Alpha" {
		t.Errorf("Expected display name 'Alpha', got '%s'", results[0].DeckName)
	}
	if got := s.SearchCards("   "); got != nil {
		t.Errorf("Expected no results for a blank query, got %v", got)
	}

	if got := len(s.CardsByTag("PROGRAMMING")); got != 2 {
		t.Errorf("Expected 2 cards tagged programming, got %d", got)
	}
}

func TestMastery(t *testing.T) {
	s := openTestStore(t)
	deck, _ := s.CreateDeck("M", "")
	if got := s.Mastery(deck); got != 0 {
		t.Errorf("Expected 0 mastery for an empty deck, got %f", got)
	}
	cards := []struct {
		bucket    int
		suspended bool
	}{{0, false}, {2, false}, {3, true}, {1, false}}
	for _, c := range cards {
		card, _ := s.AddCard(deck, CardInput{Front: "f", Back: "b"})
		all := s.LoadDeck(deck)
		for i := range all {
			if all[i].ID == card.ID {
				all[i].Bucket = c.bucket
				all[i].Suspended = c.suspended
			}
		}
		s.SaveDeck(deck, all)
	}
	if got := s.Mastery(deck); got != 0.5 {
		t.Errorf("Expected mastery 0.5, got %f", got)
	}
}

func TestCategories(t *testing.T) {
	s := openTestStore(t)
	if got := s.Categories(); !reflect.DeepEqual(got, []string{DefaultCategory}) {
		t.Errorf("Expected only the default category, got %v", got)
	}

	deck, _ := s.CreateDeck("Verbs", "Spanish")
	if !slices.Contains(s.Categories(), "Spanish") {
		t.Error("Expected deck category to be registered")
	}

	if ok, _ := s.RenameCategory(DefaultCategory, "Other"); ok {
		t.Error("Expected renaming the default category to be refused")
	}
	if ok, err := s.RenameCategory("Spanish", "Español"); !ok || err != nil {
		t.Fatalf("RenameCategory() = (%v, %v)", ok, err)
	}
	if got := s.DeckCategory(deck); got != "Español" {
		t.Errorf("Expected deck to follow the category rename, got '%s'", got)
	}

	if err := s.DeleteCategory(DefaultCategory); err != nil {
		t.Fatal(err)
	}
	if !slices.Contains(s.Categories(), DefaultCategory) {
		t.Error("Expected the default category to survive deletion")
	}
	if err := s.DeleteCategory("Español"); err != nil {
		t.Fatal(err)
	}
	if got := s.DeckCategory(deck); got != DefaultCategory {
		t.Errorf("Expected deck to fall back to the default category, got '%s'", got)
	}
	grouped := s.DecksByCategory()
	if !slices.Contains(grouped[DefaultCategory], deck) {
		t.Errorf("Expected %s under %s, got %v", deck, DefaultCategory, grouped)
	}
}

func TestSaveAsset(t *testing.T) {
	s := openTestStore(t)
	srcDir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(srcDir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		return p
	}

	first, err := s.SaveAsset(write("my photo!.png", "one"))
	if err != nil {
		t.Fatalf("SaveAsset() returned an unexpected error: %v", err)
	}
	if first != "my_photo.png" {
		t.Errorf("Expected 'my_photo.png', got '%s'", first)
	}

	same, _ := s.SaveAsset(write("again/my photo!.png", "one"))
	if same != first {
		t.Errorf("Expected identical file to be reused, got '%s'", same)
	}

	other, _ := s.SaveAsset(write("other/my photo!.png", "two"))
	if other != "my_photo_1.png" {
		t.Errorf("Expected collision suffix, got '%s'", other)
	}
	if _, err := os.Stat(s.AssetPath(other)); err != nil {
		t.Errorf("Expected stored asset to exist: %v", err)
	}
}

func TestSources(t *testing.T) {
	s := openTestStore(t)
	src, err := s.AddSource("https://example.com/cards.git", "cards.json")
	if err != nil {
		t.Fatalf("AddSource() returned an unexpected error: %v", err)
	}
	if src.ID != 1 || src.Type != SourceGit {
		t.Errorf("Unexpected source %+v", src)
	}
	if _, err := s.AddSource("https://example.com/cards.git", "cards.json"); err == nil {
		t.Error("Expected duplicate source to be rejected")
	}
	local, _ := s.AddSource("/home/me/notes", "notes.json")
	if local.ID != 2 || local.Type != SourceLocal {
		t.Errorf("Unexpected source %+v", local)
	}
	if ok, _ := s.RemoveSource(1); !ok {
		t.Error("Expected source 1 to be removed")
	}
	if got := s.Sources(); len(got) != 1 || got[0].ID != 2 {
		t.Errorf("Unexpected sources after removal: %+v", got)
	}
}

func TestEnsureTutorialDeck(t *testing.T) {
	s := openTestStore(t)
	deck, err := s.EnsureTutorialDeck()
	if err != nil {
		t.Fatalf("EnsureTutorialDeck() returned an unexpected error: %v", err)
	}
	if deck != "welcome_to_flipstack.json" {
		t.Errorf("Unexpected tutorial deck id '%s'", deck)
	}
	cards := s.LoadDeck(deck)
	if len(cards) == 0 {
		t.Fatal("Expected tutorial cards")
	}
	s.DeleteCard(deck, cards[0].ID)
	if _, err := s.EnsureTutorialDeck(); err != nil {
		t.Fatal(err)
	}
	if got := len(s.LoadDeck(deck)); got != len(cards)-1 {
		t.Errorf("Expected an existing tutorial deck to be left alone, got %d cards", got)
	}
}
