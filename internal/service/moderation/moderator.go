package moderation

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

const DefaultMask = '*'

// Moderator masks censored words in chat text. Matching ignores case, punctuation, spacing
// and common leet substitutions; the masked runes keep their original positions.
type Moderator struct {
	matcher *goahocorasick.Machine
	mask    rune
	logger  *slog.Logger
}

type normalized struct {
	runes  []rune
	origin []int
}

// NewModerator builds the matcher. An empty word list yields a moderator that returns text
// unchanged.
func NewModerator(words []string, mask rune, logger *slog.Logger) (*Moderator, error) {
	patterns := make([][]rune, 0, len(words))
	for _, word := range words {
		if p := normalize(strings.TrimSpace(word)).runes; len(p) > 0 {
			patterns = append(patterns, p)
		}
	}

	m := &Moderator{mask: mask, logger: logger}
	if len(patterns) == 0 {
		return m, nil
	}

	m.matcher = new(goahocorasick.Machine)
	if err := m.matcher.Build(patterns); err != nil {
		return nil, fmt.Errorf("failed to build censor matcher: %w", err)
	}

	return m, nil
}

func (m *Moderator) Censor(text string) string {
	if m == nil || m.matcher == nil {
		return text
	}

	norm := normalize(text)
	if len(norm.runes) == 0 {
		return text
	}

	terms := m.matcher.MultiPatternSearch(norm.runes, false)
	if len(terms) == 0 {
		return text
	}

	out := []rune(text)
	for _, term := range terms {
		start, end := term.Pos, term.Pos+len(term.Word)
		if start < 0 || end > len(norm.origin) {
			continue
		}

		for i := norm.origin[start]; i <= norm.origin[end-1]; i++ {
			out[i] = m.mask
		}
	}

	m.logger.Debug("censored chat message", "matches", len(terms))
	return string(out)
}

func normalize(s string) normalized {
	runes := []rune(s)
	n := normalized{
		runes:  make([]rune, 0, len(runes)),
		origin: make([]int, 0, len(runes)),
	}

	for i, r := range runes {
		r = unleet(r)
		if unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r) {
			continue
		}
		n.runes = append(n.runes, unicode.ToLower(r))
		n.origin = append(n.origin, i)
	}

	return n
}

func unleet(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3', '€':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	default:
		return r
	}
}
