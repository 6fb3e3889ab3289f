// Package decksync reconciles markdown card sources into their decks.
package decksync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/conorfennell/flipstack/internal/domain"
	"github.com/conorfennell/flipstack/internal/fingerprint"
	"github.com/conorfennell/flipstack/internal/gitsource"
	"github.com/conorfennell/flipstack/internal/parser"
	"github.com/conorfennell/flipstack/internal/storage"
)

// Report summarises one source reconciliation.
type Report struct {
	SourceID int64  `json:"source_id"`
	Deck     string `json:"deck"`
	Parsed   int    `json:"parsed"`
	Added    int    `json:"added"`
	Kept     int    `json:"kept"`
	Removed  int    `json:"removed"`
	Errors   int    `json:"errors"`
}

// Syncer pulls git sources into reposDir and reconciles every source.
type Syncer struct {
	store    *storage.Store
	reposDir string
	logger   *slog.Logger
	now      func() time.Time
	fetch    func(ctx context.Context, url, localPath string, logger *slog.Logger) error
}

// New returns a Syncer checking out git sources below reposDir.
func New(store *storage.Store, reposDir string, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		store:    store,
		reposDir: reposDir,
		logger:   logger,
		now:      time.Now,
		fetch:    gitsource.Sync,
	}
}

// RunAll syncs every registered source. A failing source does not stop the
// others; all failures are joined into the returned error.
func (s *Syncer) RunAll(ctx context.Context) ([]Report, error) {
	sources := s.store.Sources()
	if len(sources) == 0 {
		s.logger.Info("No sources configured")
		return nil, nil
	}

	s.logger.Info("Starting sync", "sources", len(sources))
	var reports []Report
	var errs []error
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		report, err := s.SyncSource(ctx, src)
		if err != nil {
			s.logger.Error("Failed to sync source", "id", src.ID, "path", src.Path, "error", err)
			errs = append(errs, err)
			continue
		}
		reports = append(reports, report)
	}
	s.logger.Info("Sync complete", "synced", len(reports), "failed", len(errs))
	return reports, errors.Join(errs...)
}

// SyncSource fetches src if it is a git source, then reconciles its
// markdown files into src.Deck.
func (s *Syncer) SyncSource(ctx context.Context, src storage.Source) (Report, error) {
	dir := src.Path
	if src.Type == storage.SourceGit {
		local, err := gitsource.LocalPath(s.reposDir, src.Path)
		if err != nil {
			return Report{}, err
		}
		if err := s.fetch(ctx, src.Path, local, s.logger); err != nil {
			return Report{}, err
		}
		dir = local
	}

	parsed, parseErrs, err := parseDir(dir)
	if err != nil {
		return Report{}, fmt.Errorf("failed to walk source %s: %w", dir, err)
	}
	for _, e := range parseErrs {
		s.logger.Warn("Failed to parse source file", "source", src.ID, "error", e)
	}

	report := Report{SourceID: src.ID, Deck: src.Deck, Parsed: len(parsed), Errors: len(parseErrs)}
	err = s.store.UpdateDeck(src.Deck, func(existing []domain.Card) ([]domain.Card, bool) {
		// A file that failed to parse must not turn its cards into orphans.
		merged, added, kept, removed := Reconcile(existing, parsed, len(parseErrs) == 0)
		report.Added, report.Kept, report.Removed = added, kept, removed
		return merged, added > 0 || removed > 0 || !sameCards(existing, merged)
	})
	if err != nil {
		return report, err
	}

	if err := s.store.MarkSourceScanned(src.ID, s.now()); err != nil {
		s.logger.Warn("Failed to update last scanned for source", "source_id", src.ID, "error", err)
	}
	s.logger.Info("Reconciliation complete",
		"path", src.Path,
		"deck", src.Deck,
		"parsed_cards", report.Parsed,
		"added", report.Added,
		"orphaned_deleted", report.Removed,
		"errors", report.Errors,
	)
	return report, nil
}

// Reconcile merges freshly parsed cards into an existing deck. Cards are
// identified by content fingerprint: a parsed card matching an existing card
// keeps that card's scheduling state and takes the parsed tags; unmatched
// parsed cards are added fresh. Existing cards absent from parsed are
// dropped only when removeOrphans is set.
func Reconcile(existing, parsed []domain.Card, removeOrphans bool) (merged []domain.Card, added, kept, removed int) {
	byID := make(map[string]domain.Card, len(existing))
	for _, c := range existing {
		byID[c.ID] = c
	}

	seen := make(map[string]bool, len(parsed))
	merged = make([]domain.Card, 0, len(parsed))
	for _, c := range fingerprint.Assign(append([]domain.Card(nil), parsed...)) {
		seen[c.ID] = true
		if prev, ok := byID[c.ID]; ok {
			prev.Front, prev.Back, prev.Hint, prev.Tags = c.Front, c.Back, c.Hint, c.Tags
			merged = append(merged, prev)
			kept++
			continue
		}
		merged = append(merged, c)
		added++
	}

	for _, c := range existing {
		if seen[c.ID] {
			continue
		}
		if removeOrphans {
			removed++
			continue
		}
		merged = append(merged, c)
	}
	return merged, added, kept, removed
}

func parseDir(dir string) ([]domain.Card, []error, error) {
	var cards []domain.Card
	var parseErrs []error
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(d.Name()), ".md") {
			return nil
		}
		fileCards, err := parser.ParseFile(path)
		if err != nil {
			parseErrs = append(parseErrs, fmt.Errorf("parsing %s: %w", path, err))
			return nil
		}
		cards = append(cards, fileCards...)
		return nil
	})
	return cards, parseErrs, walkErr
}

func sameCards(a, b []domain.Card) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Front != b[i].Front || a[i].Back != b[i].Back || a[i].Hint != b[i].Hint ||
			strings.Join(a[i].Tags, ",") != strings.Join(b[i].Tags, ",") {
			return false
		}
	}
	return true
}
