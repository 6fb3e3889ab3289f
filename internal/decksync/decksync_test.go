package decksync

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/conorfennell/flipstack/internal/domain"
	"github.com/conorfennell/flipstack/internal/fingerprint"
	"github.com/conorfennell/flipstack/internal/storage"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestReconcile(t *testing.T) {
	keep := domain.Card{Front: "Keep", Back: "me"}
	keep.ID = fingerprint.Of(keep)
	keep.Bucket = 3
	gone := domain.Card{ID: "orphan", Front: "Old", Back: "card"}

	parsed := []domain.Card{
		{Front: "keep", Back: "ME", Tags: []string{"new-tag"}},
		{Front: "Fresh", Back: "card"},
	}

	merged, added, kept, removed := Reconcile([]domain.Card{keep, gone}, parsed, true)
	if added != 1 || kept != 1 || removed != 1 || len(merged) != 2 {
		t.Fatalf("Expected 1 added, 1 kept, 1 removed; got %d/%d/%d with %d cards", added, kept, removed, len(merged))
	}
	if merged[0].Bucket != 3 || merged[0].Tags[0] != "new-tag" {
		t.Errorf("Expected scheduling state kept and tags refreshed, got %+v", merged[0])
	}

	merged, _, _, removed = Reconcile([]domain.Card{keep, gone}, parsed, false)
	if removed != 0 || len(merged) != 3 {
		t.Errorf("Expected orphans retained when removal is off, got %d cards", len(merged))
	}
}

func TestSyncLocalSource(t *testing.T) {
	store, err := storage.Open(t.TempDir(), slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "a.md"), "Q: One\nA: 1\n\nQ: Two\nA: 2\n")
	writeFile(t, filepath.Join(src, "nested", "b.MD"), "Q: Three\nA: 3\nT: x\n")
	writeFile(t, filepath.Join(src, "notes.txt"), "Q: ignored\nA: ignored\n")

	source, err := store.AddSource(src, "notes.json")
	if err != nil {
		t.Fatal(err)
	}
	syncer := New(store, t.TempDir(), nil)

	reports, err := syncer.RunAll(context.Background())
	if err != nil {
		t.Fatalf("RunAll() returned an unexpected error: %v", err)
	}
	if len(reports) != 1 || reports[0].Added != 3 {
		t.Fatalf("Expected 3 cards added, got %+v", reports)
	}

	// Grade one card, then change the source.
	err = store.UpdateDeck("notes.json", func(cards []domain.Card) ([]domain.Card, bool) {
		cards[0].Bucket = 4
		return cards, true
	})
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(src, "a.md"), "Q: One\nA: 1\n")

	report, err := syncer.SyncSource(context.Background(), source)
	if err != nil {
		t.Fatal(err)
	}
	if report.Kept != 2 || report.Removed != 1 || report.Added != 0 {
		t.Errorf("Unexpected report %+v", report)
	}
	cards := store.LoadDeck("notes.json")
	if len(cards) != 2 || cards[0].Front != "One" || cards[0].Bucket != 4 {
		t.Errorf("Expected graded card to survive resync, got %+v", cards)
	}
	if got := store.Sources()[0].LastScanned; got == nil {
		t.Error("Expected last scanned to be recorded")
	}
}

func TestSyncGitSourceUsesCheckout(t *testing.T) {
	store, err := storage.Open(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	source, err := store.AddSource("https://example.com/me/cards.git", "cards.json")
	if err != nil {
		t.Fatal(err)
	}

	reposDir := t.TempDir()
	syncer := New(store, reposDir, nil)
	var fetched string
	syncer.fetch = func(_ context.Context, url, localPath string, _ *slog.Logger) error {
		fetched = url
		writeFile(t, filepath.Join(localPath, "deck.md"), "Q: Remote\nA: card\n")
		return nil
	}

	report, err := syncer.SyncSource(context.Background(), source)
	if err != nil {
		t.Fatalf("SyncSource() returned an unexpected error: %v", err)
	}
	if fetched != source.Path || report.Added != 1 {
		t.Errorf("Expected fetch of %s and 1 card, got %q and %+v", source.Path, fetched, report)
	}
	if _, err := os.Stat(filepath.Join(reposDir, "example.com", "me", "cards", "deck.md")); err != nil {
		t.Errorf("Expected checkout under the repos dir: %v", err)
	}
}
