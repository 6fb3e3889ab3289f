package importer

import (
	"archive/zip"
	"database/sql"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	_ "modernc.org/sqlite" // Registers the sqlite driver

	"github.com/conorfennell/flipstack/internal/domain"
)

const ankiFieldSep = "\x1f"

var (
	imgSrcRe  = regexp.MustCompile(`<img src="([^"]+)"`)
	htmlTagRe = regexp.MustCompile(`<[^>]+>`)
)

// collectionNames are the database file names used by Anki package versions,
// newest first.
var collectionNames = []string{"collection.anki21", "collection.anki2"}

// readAPKG unpacks an Anki package: media files are copied into the store's
// assets and each note's first two fields become a card.
func (im *Importer) readAPKG(path string) ([]domain.Card, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open package: %w", err)
	}
	defer zr.Close()

	tmp, err := os.MkdirTemp("", "flipstack-apkg-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmp)

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	var dbPath string
	for _, name := range collectionNames {
		if f, ok := files[name]; ok {
			dbPath = filepath.Join(tmp, name)
			if err := extract(f, dbPath); err != nil {
				return nil, err
			}
			break
		}
	}
	if dbPath == "" {
		return nil, fmt.Errorf("package has no collection database")
	}

	media := im.importMedia(files, tmp)

	fields, err := readNoteFields(dbPath)
	if err != nil {
		return nil, err
	}

	var cards []domain.Card
	for _, flds := range fields {
		parts := strings.Split(flds, ankiFieldSep)
		if len(parts) < 2 {
			continue
		}
		front, back := stripHTML(parts[0]), stripHTML(parts[1])
		if front == "" || back == "" {
			continue
		}
		card := newCard(front, back)
		if m := imgSrcRe.FindStringSubmatch(parts[0] + parts[1]); m != nil {
			card.Image = m[1]
			if stored, ok := media[m[1]]; ok {
				card.Image = stored
			}
		}
		cards = append(cards, card)
	}
	return cards, nil
}

// importMedia copies package media into assets and returns a map from the
// name notes refer to to the stored asset name. Failures are logged and
// skipped.
func (im *Importer) importMedia(files map[string]*zip.File, tmp string) map[string]string {
	stored := map[string]string{}
	f, ok := files["media"]
	if !ok {
		return stored
	}
	rc, err := f.Open()
	if err != nil {
		im.logger.Warn("Failed to open media map", "error", err)
		return stored
	}
	var mediaMap map[string]string
	err = json.NewDecoder(rc).Decode(&mediaMap)
	rc.Close()
	if err != nil {
		im.logger.Warn("Failed to decode media map", "error", err)
		return stored
	}

	mediaDir := filepath.Join(tmp, "media")
	for key, name := range mediaMap {
		src, ok := files[key]
		if !ok || name != filepath.Base(name) {
			continue
		}
		dest := filepath.Join(mediaDir, name)
		if err := extract(src, dest); err != nil {
			im.logger.Warn("Failed to extract media", "file", name, "error", err)
			continue
		}
		asset, err := im.store.SaveAsset(dest)
		if err != nil {
			im.logger.Warn("Failed to store media", "file", name, "error", err)
			continue
		}
		stored[name] = asset
	}
	return stored
}

func readNoteFields(dbPath string) ([]string, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection: %w", err)
	}
	defer db.Close()

	rows, err := db.Query("SELECT flds FROM notes")
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var flds sql.NullString
		if err := rows.Scan(&flds); err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		if flds.Valid && flds.String != "" {
			out = append(out, flds.String)
		}
	}
	return out, rows.Err()
}

func extract(f *zip.File, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func stripHTML(s string) string {
	return strings.TrimSpace(html.UnescapeString(htmlTagRe.ReplaceAllString(s, "")))
}
