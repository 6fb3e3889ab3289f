package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/conorfennell/flipstack/internal/analytics"
	"github.com/conorfennell/flipstack/internal/backup"
	"github.com/conorfennell/flipstack/internal/charts"
	"github.com/conorfennell/flipstack/internal/config"
	"github.com/conorfennell/flipstack/internal/decksync"
	"github.com/conorfennell/flipstack/internal/export"
	"github.com/conorfennell/flipstack/internal/importer"
	"github.com/conorfennell/flipstack/internal/inbox"
	"github.com/conorfennell/flipstack/internal/storage"
	"github.com/conorfennell/flipstack/internal/streak"
	"github.com/conorfennell/flipstack/internal/study"
	"github.com/conorfennell/flipstack/internal/web"
)

type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *storage.Store
	tracker   *streak.Tracker
	scheduler *study.Scheduler
}

type command struct {
	usage string
	flags func(fs *pflag.FlagSet)
	run   func(ctx context.Context, a *app, fs *pflag.FlagSet) error
}

var commands = map[string]command{
	"serve":   {usage: "serve                      run the HTTP API", run: runServe},
	"decks":   {usage: "decks                      list decks", run: runDecks},
	"create":  {usage: "create NAME                create an empty deck", flags: categoryFlag, run: runCreate},
	"rename":  {usage: "rename DECK NAME           rename a deck", run: runRename},
	"delete":  {usage: "delete DECK                delete a deck and its history", run: runDelete},
	"due":     {usage: "due DECK                   list the cards to study", flags: dueFlags, run: runDue},
	"import":  {usage: "import FILE                import a csv, xlsx, apkg or md file", flags: importFlags, run: runImport},
	"export":  {usage: "export DECK FILE           export a deck to csv or json", flags: exportFlags, run: runExport},
	"backup":  {usage: "backup [list]              create or list backups", run: runBackup},
	"restore": {usage: "restore ARCHIVE            restore a backup into the data dir", run: runRestore},
	"sources": {usage: "sources add|list|remove|sync", run: runSources},
	"stats":   {usage: "stats [DECK]               show the streak and deck summaries", run: runStats},
	"report":  {usage: "report [DECK]              render heatmap and accuracy charts", flags: reportFlags, run: runReport},
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}
	name := os.Args[1]
	cmd, ok := commands[name]
	if !ok {
		if name != "help" && name != "-h" && name != "--help" {
			fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
		}
		usage(os.Stderr)
		os.Exit(2)
	}

	// 1. Parse flags for the command
	fs := pflag.NewFlagSet("flipstack "+name, pflag.ContinueOnError)
	config.RegisterFlags(fs)
	if cmd.flags != nil {
		cmd.flags(fs)
	}
	if err := fs.Parse(os.Args[2:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	// 2. Load configuration
	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "flipstack: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	// 3. Open the data directory
	a, err := open(cfg, logger)
	if err != nil {
		logger.Error("Failed to open data directory", "dir", cfg.DataDir, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Run the command
	if err := cmd.run(ctx, a, fs); err != nil {
		logger.Error("Command failed", "command", name, "error", err)
		stop()
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: flipstack COMMAND [flags]")
	fmt.Fprintln(w)
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(w, "  %s\n", commands[n].usage)
	}
}

func newLogger(cfg config.Log, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func open(cfg *config.Config, logger *slog.Logger) (*app, error) {
	store, err := storage.Open(cfg.DataDir, logger)
	if err != nil {
		return nil, err
	}
	// A fresh data directory gets the configured settings and the tutorial deck.
	seeded, err := store.SeedSettings(cfg.Settings)
	if err != nil {
		return nil, err
	}
	if seeded {
		if _, err := store.EnsureTutorialDeck(); err != nil {
			logger.Warn("Failed to create tutorial deck", "error", err)
		}
	}
	tracker := streak.NewTracker(store, nil)
	return &app{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		tracker:   tracker,
		scheduler: study.New(store, tracker, cfg.Scheduler.Params(), study.WithLogger(logger)),
	}, nil
}

func (a *app) syncer() *decksync.Syncer {
	return decksync.New(a.store, filepath.Join(a.cfg.DataDir, "repos"), a.logger)
}

func (a *app) backups() *backup.Manager {
	return backup.New(a.cfg.DataDir, backup.Options{
		Keep:       a.cfg.Backup.Keep,
		Passphrase: a.cfg.Backup.Passphrase,
		Logger:     a.logger,
	})
}

func args(fs *pflag.FlagSet, n int, usage string) ([]string, error) {
	if fs.NArg() < n {
		return nil, fmt.Errorf("usage: flipstack %s", usage)
	}
	return fs.Args(), nil
}

func (a *app) existingDeck(deck string) (string, error) {
	if !a.store.DeckExists(deck) {
		if slug := storage.Slug(deck); slug != "" && a.store.DeckExists(slug) {
			return slug, nil
		}
		return "", fmt.Errorf("deck %q not found", deck)
	}
	return deck, nil
}

func runServe(ctx context.Context, a *app, _ *pflag.FlagSet) error {
	if a.cfg.Backup.Schedule != "" {
		sched, err := backup.Schedule(a.backups(), a.cfg.Backup.Schedule, time.Local)
		if err != nil {
			return err
		}
		defer sched.Stop()
		a.logger.Info("Next backup", "at", sched.NextRun())
	}

	if a.cfg.Inbox.Dir != "" {
		w := inbox.New(a.cfg.Inbox.Dir, importer.New(a.store, a.logger), a.logger)
		go func() {
			if err := w.Run(ctx); err != nil {
				a.logger.Error("Inbox watcher stopped", "error", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           web.NewServer(a.store, a.scheduler, a.tracker, a.syncer(), a.logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	a.logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runDecks(_ context.Context, a *app, _ *pflag.FlagSet) error {
	byCategory := a.store.DecksByCategory()
	for _, category := range a.store.Categories() {
		decks := byCategory[category]
		if len(decks) == 0 {
			continue
		}
		fmt.Printf("%s\n", category)
		for _, deck := range decks {
			fmt.Printf("  %-30s %-30s due %3d  mastery %3.0f%%\n", deck, storage.DisplayName(deck), a.scheduler.DueCount(deck), a.store.Mastery(deck)*100)
		}
	}
	return nil
}

func categoryFlag(fs *pflag.FlagSet) {
	fs.String("category", "", "deck category")
}

func runCreate(_ context.Context, a *app, fs *pflag.FlagSet) error {
	rest, err := args(fs, 1, "create NAME")
	if err != nil {
		return err
	}
	category, _ := fs.GetString("category")
	deck, err := a.store.CreateDeck(rest[0], category)
	if err != nil {
		return err
	}
	fmt.Println(deck)
	return nil
}

func runRename(_ context.Context, a *app, fs *pflag.FlagSet) error {
	rest, err := args(fs, 2, "rename DECK NAME")
	if err != nil {
		return err
	}
	deck, err := a.existingDeck(rest[0])
	if err != nil {
		return err
	}
	newDeck, ok, err := a.store.RenameDeck(deck, rest[1])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("a deck named %q already exists", rest[1])
	}
	fmt.Println(newDeck)
	return nil
}

func runDelete(_ context.Context, a *app, fs *pflag.FlagSet) error {
	rest, err := args(fs, 1, "delete DECK")
	if err != nil {
		return err
	}
	deck, err := a.existingDeck(rest[0])
	if err != nil {
		return err
	}
	return a.store.DeleteDeck(deck)
}

func dueFlags(fs *pflag.FlagSet) {
	fs.Bool("cram", false, "list every card in random order")
}

func runDue(_ context.Context, a *app, fs *pflag.FlagSet) error {
	rest, err := args(fs, 1, "due DECK")
	if err != nil {
		return err
	}
	deck, err := a.existingDeck(rest[0])
	if err != nil {
		return err
	}
	mode := study.Normal
	if cram, _ := fs.GetBool("cram"); cram {
		mode = study.Cram
	}
	cards := a.scheduler.DueCards(deck, mode)
	for _, c := range cards {
		next := "new"
		if c.NextReview != nil {
			next = c.NextReview.String()
		}
		fmt.Printf("%s  bucket %d  %-10s  %s\n", c.ID[:min(8, len(c.ID))], c.Bucket, next, c.Front)
	}
	fmt.Printf("%d card(s) %s\n", len(cards), mode)
	return nil
}

func importFlags(fs *pflag.FlagSet) {
	fs.String("name", "", "deck name (default: file name)")
	categoryFlag(fs)
}

func runImport(_ context.Context, a *app, fs *pflag.FlagSet) error {
	rest, err := args(fs, 1, "import FILE")
	if err != nil {
		return err
	}
	name, _ := fs.GetString("name")
	category, _ := fs.GetString("category")
	deck, n, err := importer.New(a.store, a.logger).ImportFile(rest[0], name, category)
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d cards into %s\n", n, deck)
	return nil
}

func exportFlags(fs *pflag.FlagSet) {
	fs.Bool("force", false, "overwrite an existing file")
	fs.Bool("history", false, "export the review log instead of a deck (export --history FILE)")
}

func runExport(_ context.Context, a *app, fs *pflag.FlagSet) error {
	force, _ := fs.GetBool("force")
	if history, _ := fs.GetBool("history"); history {
		rest, err := args(fs, 1, "export --history FILE")
		if err != nil {
			return err
		}
		if err := export.HistoryToFile(a.store.History(), rest[0], force); err != nil {
			return err
		}
		fmt.Printf("Exported review log to %s\n", rest[0])
		return nil
	}

	rest, err := args(fs, 2, "export DECK FILE")
	if err != nil {
		return err
	}
	deck, err := a.existingDeck(rest[0])
	if err != nil {
		return err
	}
	if err := export.DeckToFile(a.store.LoadDeck(deck), rest[1], force); err != nil {
		return err
	}
	fmt.Printf("Exported %s to %s\n", deck, rest[1])
	return nil
}

func runBackup(_ context.Context, a *app, fs *pflag.FlagSet) error {
	m := a.backups()
	if fs.Arg(0) == "list" {
		archives, err := m.List()
		if err != nil {
			return err
		}
		for _, ar := range archives {
			enc := ""
			if ar.Encrypted {
				enc = " (encrypted)"
			}
			fmt.Printf("%s  %s  %d bytes%s\n", ar.CreatedAt.Format(time.DateTime), ar.Name, ar.Size, enc)
		}
		return nil
	}
	path, err := m.Create()
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

func runRestore(_ context.Context, a *app, fs *pflag.FlagSet) error {
	rest, err := args(fs, 1, "restore ARCHIVE")
	if err != nil {
		return err
	}
	n, err := backup.Restore(rest[0], a.cfg.DataDir, a.cfg.Backup.Passphrase)
	if err != nil {
		return err
	}
	fmt.Printf("Restored %d files into %s\n", n, a.cfg.DataDir)
	return nil
}

func runSources(ctx context.Context, a *app, fs *pflag.FlagSet) error {
	switch fs.Arg(0) {
	case "add":
		rest, err := args(fs, 3, "sources add PATH DECK")
		if err != nil {
			return err
		}
		deck := rest[2]
		if !a.store.DeckExists(deck) {
			if deck, err = a.store.CreateDeck(rest[2], ""); err != nil {
				return err
			}
		}
		src, err := a.store.AddSource(rest[1], deck)
		if err != nil {
			return err
		}
		fmt.Printf("Added %s source %d: %s -> %s\n", src.Type, src.ID, src.Path, src.Deck)
	case "list", "":
		for _, src := range a.store.Sources() {
			scanned := "never"
			if src.LastScanned != nil {
				scanned = src.LastScanned.Format(time.DateTime)
			}
			fmt.Printf("%3d  %-5s  %-40s  %-25s  last scanned %s\n", src.ID, src.Type, src.Path, src.Deck, scanned)
		}
	case "remove":
		rest, err := args(fs, 2, "sources remove ID")
		if err != nil {
			return err
		}
		id, err := strconv.ParseInt(rest[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid source id %q", rest[1])
		}
		removed, err := a.store.RemoveSource(id)
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("source %d not found", id)
		}
	case "sync":
		reports, err := a.syncer().RunAll(ctx)
		for _, r := range reports {
			fmt.Printf("%s: %d parsed, %d added, %d kept, %d removed, %d errors\n", r.Deck, r.Parsed, r.Added, r.Kept, r.Removed, r.Errors)
		}
		return err
	default:
		return fmt.Errorf("usage: flipstack sources add|list|remove|sync")
	}
	return nil
}

func runStats(_ context.Context, a *app, fs *pflag.FlagSet) error {
	stats := a.tracker.Current()
	fmt.Println(streak.FormatStreak(stats.Streak))

	decks := a.store.ListDecks()
	if fs.NArg() > 0 {
		deck, err := a.existingDeck(fs.Arg(0))
		if err != nil {
			return err
		}
		decks = []string{deck}
	}
	today := a.scheduler.Today()
	for _, deck := range decks {
		s := analytics.Summarize(a.store.LoadDeck(deck), a.store.DeckHistory(deck), today)
		fmt.Printf("%s: %d cards, %d new, %d due, %d suspended, mastery %.0f%%, %d reviews, accuracy %.0f%%\n",
			deck, s.TotalCards, s.NewCards, s.CardsDue, s.CardsSuspended, s.Mastery*100, s.TotalReviews, s.OverallAccuracy*100)
	}
	return nil
}

func reportFlags(fs *pflag.FlagSet) {
	fs.Int("year", 0, "heatmap year (default: this year)")
	fs.Int("days", analytics.DefaultAccuracyDays, "active days in the accuracy chart")
	fs.String("out", ".", "directory for the rendered HTML files")
}

func runReport(_ context.Context, a *app, fs *pflag.FlagSet) error {
	year, _ := fs.GetInt("year")
	days, _ := fs.GetInt("days")
	out, _ := fs.GetString("out")
	today := a.scheduler.Today()
	if year == 0 {
		year = today.Year
	}

	heat := analytics.Heatmap(year, a.store.DayCounts(), today)
	total := 0
	for _, d := range heat {
		total += d.Count
	}
	cfg := charts.DefaultConfig()
	cfg.Title = charts.YearTitle(year, total)
	heatPath := filepath.Join(out, fmt.Sprintf("heatmap_%d.html", year))
	if err := charts.RenderFile(heatPath, func(w io.Writer) error { return charts.Heatmap(w, heat, cfg) }); err != nil {
		return err
	}
	fmt.Println(heatPath)

	if fs.NArg() == 0 {
		return nil
	}
	deck, err := a.existingDeck(fs.Arg(0))
	if err != nil {
		return err
	}
	acc := analytics.DailyAccuracy(a.store.DeckHistory(deck), days)
	cfg = charts.DefaultConfig()
	cfg.Title = storage.DisplayName(deck) + " accuracy"
	accPath := filepath.Join(out, "accuracy_"+strings.TrimSuffix(deck, storage.DeckExt)+".html")
	if err := charts.RenderFile(accPath, func(w io.Writer) error { return charts.Accuracy(w, acc, cfg) }); err != nil {
		return err
	}
	fmt.Println(accPath)
	return nil
}
