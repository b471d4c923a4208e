package match

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"bibtag/internal/roster"
)

// minTokenLength filters out fragments too short to carry signal ("de", "la",
// single letters from a torn jersey read).
const minTokenLength = 3

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func normalizeToken(token string) string {
	folded := cases.Fold().String(strings.TrimSpace(token))
	cleaned, _, err := transform.String(stripMarks, folded)
	if err != nil {
		return folded
	}
	return cleaned
}

func normalizeTokens(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		for _, word := range strings.Fields(token) {
			cleaned := normalizeToken(word)
			if len(cleaned) >= minTokenLength {
				set[cleaned] = struct{}{}
			}
		}
	}
	return set
}

func entryTokens(entry roster.Entry) map[string]struct{} {
	fields := make([]string, 0, 3+len(entry.Tags))
	fields = append(fields, entry.Name, entry.Team, entry.Category)
	fields = append(fields, entry.Tags...)
	return normalizeTokens(fields)
}

// tokenOverlap returns the fraction of guess tokens found among the entry's
// tokens. Zero when either side is empty.
func tokenOverlap(guess, entry map[string]struct{}) float64 {
	if len(guess) == 0 || len(entry) == 0 {
		return 0
	}
	matched := 0
	for token := range guess {
		if _, ok := entry[token]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(guess))
}
