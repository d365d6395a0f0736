package moderation

import (
	"log/slog"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

// Censor masks listed words in outgoing text.
// A nil *Censor lets everything through.
type Censor struct {
	matcher     *goahocorasick.Machine
	replacement rune
	log         *slog.Logger
}

// runeMapping keeps, for each normalized rune, the index of the rune it came from.
type runeMapping struct {
	normalized []rune
	origin     []int
}

// NewCensor builds the automaton from the normalized word list.
// Words that normalize to nothing (pure punctuation) are ignored.
func NewCensor(words []string, replacement rune, log *slog.Logger) (*Censor, error) {
	patterns := make([][]rune, 0, len(words))
	for _, word := range words {
		normalized := normalize([]rune(word)).normalized
		if len(normalized) == 0 {
			continue
		}
		patterns = append(patterns, normalized)
	}
	if len(patterns) == 0 {
		return nil, nil
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &Censor{matcher: m, replacement: replacement, log: log}, nil
}

// Apply returns the masked text and the dictionary words that matched.
// Spacing and punctuation of the original text are kept.
func (c *Censor) Apply(text string) (string, []string) {
	if c == nil {
		return text, nil
	}
	original := []rune(text)
	mapping := normalize(original)
	if len(mapping.normalized) == 0 {
		return text, nil
	}

	terms := c.matcher.MultiPatternSearch(mapping.normalized, false)
	if len(terms) == 0 {
		return text, nil
	}

	var found []string
	for _, term := range terms {
		start := term.Pos
		end := start + len(term.Word)
		if start < 0 || end > len(mapping.origin) {
			continue
		}
		for i := mapping.origin[start]; i <= mapping.origin[end-1]; i++ {
			original[i] = c.replacement
		}
		found = append(found, string(term.Word))
	}
	c.log.Debug("Text censored", "matches", len(found))
	return string(original), found
}

func normalize(input []rune) runeMapping {
	mapping := runeMapping{
		normalized: make([]rune, 0, len(input)),
		origin:     make([]int, 0, len(input)),
	}
	for i, r := range input {
		clean := unleet(r)
		if isNoise(clean) {
			continue
		}
		mapping.normalized = append(mapping.normalized, unicode.ToLower(clean))
		mapping.origin = append(mapping.origin, i)
	}
	return mapping
}

// unleet maps common leet speak characters back to letters.
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

func isNoise(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
}
