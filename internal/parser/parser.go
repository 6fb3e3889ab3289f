// Package parser reads cards from markdown files written as prefixed blocks:
//
//	Q: front text
//	A: back text, may continue
//	over several lines
//	H: optional hint
//	T: optional, comma, separated, tags
//	---
//
// A new Q: or a --- line ends the current card.
package parser

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/conorfennell/flipstack/internal/domain"
)

type field int

const (
	seeking field = iota
	front
	back
	hint
	tags
)

var prefixes = []struct {
	prefix string
	field  field
}{
	{"Q:", front},
	{"A:", back},
	{"H:", hint},
	{"T:", tags},
}

const separator = "---"

// ParseFile reads a file from the given path and extracts all cards.
func ParseFile(path string) ([]domain.Card, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads from an io.Reader and extracts all cards. Cards without a
// front are dropped. Returned cards have no id.
func Parse(r io.Reader) ([]domain.Card, error) {
	scanner := bufio.NewScanner(r)
	var (
		cards   []domain.Card
		current domain.Card
		block   []string
		state   = seeking
	)

	flushBlock := func() {
		if len(block) == 0 {
			return
		}
		content := strings.TrimSpace(strings.Join(block, "\n"))
		switch state {
		case front:
			current.Front = content
		case back:
			current.Back = content
		case hint:
			current.Hint = content
		case tags:
			current.Tags = splitTags(content)
		}
		block = nil
	}

	finishCard := func() {
		flushBlock()
		if current.Front != "" {
			if current.Tags == nil {
				current.Tags = []string{}
			}
			cards = append(cards, current)
		}
		current = domain.Card{}
		state = seeking
	}

	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")

		if strings.TrimSpace(line) == separator {
			finishCard()
			continue
		}

		next, rest, ok := matchPrefix(line)
		switch {
		case ok:
			flushBlock()
			// A new question always starts a new card.
			if next == front && state != seeking {
				finishCard()
			}
			state = next
			block = append(block, rest)
		case state != seeking:
			block = append(block, line)
		}
	}

	finishCard()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cards, nil
}

func matchPrefix(line string) (field, string, bool) {
	for _, p := range prefixes {
		if strings.HasPrefix(line, p.prefix) {
			return p.field, strings.TrimPrefix(line[len(p.prefix):], " "), true
		}
	}
	return seeking, "", false
}

func splitTags(s string) []string {
	out := []string{}
	for _, t := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '\n' }) {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
