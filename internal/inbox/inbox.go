// Package inbox watches a directory and imports card files dropped into it.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conorfennell/flipstack/internal/importer"
)

const (
	importedDir = "imported"
	failedDir   = "failed"
	// DefaultSettle is how long a file must go without events before it is
	// considered fully written.
	DefaultSettle = time.Second
)

// Importer is the part of importer.Importer the watcher uses.
type Importer interface {
	ImportFile(path, name, category string) (string, int, error)
}

// Watcher imports files that appear in dir. Successful imports move to
// dir/imported, failures to dir/failed.
type Watcher struct {
	dir      string
	importer Importer
	logger   *slog.Logger
	settle   time.Duration
}

// New returns a Watcher over dir.
func New(dir string, imp Importer, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{dir: dir, importer: imp, logger: logger, settle: DefaultSettle}
}

// Run imports files already in the inbox, then watches for new ones until ctx
// is cancelled.
func (w *Watcher) Run(ctx context.Context) (err error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create inbox: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() {
		if closeErr := watcher.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch inbox: %w", err)
	}
	w.logger.Info("Watching inbox", "dir", w.dir)

	w.Scan()

	pending := map[string]time.Time{}
	ticker := time.NewTicker(w.settle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				if importer.Supported(event.Name) {
					pending[event.Name] = time.Now()
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("File watcher error", "error", err)
		case now := <-ticker.C:
			for path, last := range pending {
				if now.Sub(last) < w.settle {
					continue
				}
				delete(pending, path)
				w.Process(path)
			}
		}
	}
}

// Scan processes every supported file currently in the inbox.
func (w *Watcher) Scan() int {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("Failed to read inbox", "dir", w.dir, "error", err)
		return 0
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() || !importer.Supported(e.Name()) {
			continue
		}
		if w.Process(filepath.Join(w.dir, e.Name())) {
			n++
		}
	}
	return n
}

// Process imports one file and files it away. It reports whether the
// import succeeded.
func (w *Watcher) Process(path string) bool {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return false
	}
	deck, n, err := w.importer.ImportFile(path, importer.NameFromPath(path), "")
	target := importedDir
	if err != nil {
		w.logger.Warn("Inbox import failed", "file", path, "error", err)
		target = failedDir
	} else {
		w.logger.Info("Inbox import complete", "file", path, "deck", deck, "cards", n)
	}
	if moveErr := w.move(path, target); moveErr != nil {
		w.logger.Error("Failed to move inbox file", "file", path, "error", moveErr)
	}
	return err == nil
}

func (w *Watcher) move(path, sub string) error {
	dir := filepath.Join(w.dir, sub)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	dest := filepath.Join(dir, base)
	for n := 1; ; n++ {
		if _, err := os.Stat(dest); errors.Is(err, os.ErrNotExist) {
			break
		}
		dest = filepath.Join(dir, fmt.Sprintf("%s_%d%s", base[:len(base)-len(ext)], n, ext))
	}
	return os.Rename(path, dest)
}
