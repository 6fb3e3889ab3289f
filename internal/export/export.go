// Package export writes decks and the review log to portable files.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/conorfennell/flipstack/internal/domain"
)

// Format represents the export format.
type Format string

const (
	// FormatCSV writes front,back rows with no header, readable by the CSV
	// importer.
	FormatCSV Format = "csv"
	// FormatJSON writes the deck in its on-disk form.
	FormatJSON Format = "json"
)

var ErrExists = errors.New("export: destination exists")

// FormatFromPath picks a format from the destination's extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unsupported export format: %q", filepath.Ext(path))
}

// WriteDeck writes cards to w in format.
func WriteDeck(w io.Writer, cards []domain.Card, format Format) error {
	switch format {
	case FormatCSV:
		writer := csv.NewWriter(w)
		for i, c := range cards {
			if err := writer.Write([]string{c.Front, c.Back}); err != nil {
				return fmt.Errorf("failed to write CSV row %d: %w", i, err)
			}
		}
		writer.Flush()
		return writer.Error()
	case FormatJSON:
		if cards == nil {
			cards = []domain.Card{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(cards); err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		return nil
	}
	return fmt.Errorf("unsupported export format: %s", format)
}

// WriteHistory writes review entries as CSV with a header row.
func WriteHistory(w io.Writer, entries []domain.ReviewEntry) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"timestamp", "deck", "rating", "session_id", "hint_used"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for i, e := range entries {
		row := []string{
			e.Timestamp.Format(time.RFC3339),
			e.Deck,
			e.Rating.String(),
			e.SessionID,
			strconv.FormatBool(e.HintUsed),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// DeckToFile exports cards to path, choosing the format by extension.
// Existing files are only replaced when overwrite is set.
func DeckToFile(cards []domain.Card, path string, overwrite bool) (err error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	file, err := create(path, overwrite)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return WriteDeck(file, cards, format)
}

// HistoryToFile writes the review log to path as CSV.
func HistoryToFile(entries []domain.ReviewEntry, path string, overwrite bool) (err error) {
	file, err := create(path, overwrite)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return WriteHistory(file, entries)
}

func create(path string, overwrite bool) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("%w: %s", ErrExists, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	return f, nil
}
