package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/conorfennell/flipstack/internal/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// delimiters in order of preference when sniffing the first line.
var delimiters = []rune{',', ';', '\t'}

// ReadCSVFile reads front/back cards from a CSV file.
func ReadCSVFile(path string) ([]domain.Card, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV reads cards from the first two columns of each row. Input that is
// not valid UTF-8 is decoded as Latin-1. Rows missing either side are
// skipped.
func ReadCSV(r io.Reader) ([]domain.Card, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if !utf8.Valid(raw) {
		raw, err = charmap.ISO8859_1.NewDecoder().Bytes(raw)
		if err != nil {
			return nil, err
		}
	}
	text := string(raw)

	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = sniffDelimiter(text)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var cards []domain.Card
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return cards, err
		}
		if len(row) < 2 {
			continue
		}
		front, back := cleanCell(row[0]), cleanCell(row[1])
		if front == "" || back == "" {
			continue
		}
		cards = append(cards, newCard(front, back))
	}
	return cards, nil
}

func sniffDelimiter(text string) rune {
	first, _, _ := strings.Cut(text, "\n")
	for _, d := range delimiters {
		if strings.ContainsRune(first, d) {
			return d
		}
	}
	return ','
}

func cleanCell(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"`)
}
