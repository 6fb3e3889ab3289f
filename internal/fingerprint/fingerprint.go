// Package fingerprint derives stable card ids from card content, so a card
// parsed again from an unchanged source keeps its scheduling state.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/conorfennell/flipstack/internal/domain"
)

// Normalize returns the canonical text a card is identified by: front, back
// and hint, each trimmed, lowercased and with CRLF line endings folded,
// joined by newlines.
func Normalize(card domain.Card) string {
	parts := []string{card.Front, card.Back, card.Hint}
	for i, p := range parts {
		p = strings.ReplaceAll(p, "\r\n", "\n")
		parts[i] = strings.ToLower(strings.TrimSpace(p))
	}
	// Newline separators keep "ab"+"c" distinct from "a"+"bc".
	return strings.Join(parts, "\n")
}

// Of returns the hex SHA-256 of the normalized card.
func Of(card domain.Card) string {
	sum := sha256.Sum256([]byte(Normalize(card)))
	return hex.EncodeToString(sum[:])
}

// Assign sets every card's ID to its fingerprint and drops later duplicates.
func Assign(cards []domain.Card) []domain.Card {
	seen := make(map[string]bool, len(cards))
	out := cards[:0]
	for _, c := range cards {
		c.ID = Of(c)
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out = append(out, c)
	}
	return out
}
