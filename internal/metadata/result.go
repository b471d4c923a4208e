package metadata

import (
	"fmt"
	"strings"
)

// FinalResult is the identification written into a photo's metadata.
type FinalResult struct {
	RaceNumber string
	Name       string
	Category   string
	Team       string
	Confidence float64
	// Source records how the number was decided ("exact", "fuzzy",
	// "temporal", "unmatched").
	Source string
	// ReviewReason is set when the item needs manual review.
	ReviewReason string
}

// Keywords renders the result as the keyword list written into metadata.
// Empty fields produce no keyword.
func (r FinalResult) Keywords() []string {
	var keywords []string
	add := func(prefix, value string) {
		value = strings.TrimSpace(value)
		if value != "" {
			keywords = append(keywords, prefix+":"+value)
		}
	}
	add("bib", r.RaceNumber)
	add("runner", r.Name)
	add("category", r.Category)
	add("team", r.Team)
	return keywords
}

// Instructions renders the free-text instructions field.
func (r FinalResult) Instructions() string {
	var parts []string
	if source := strings.TrimSpace(r.Source); source != "" {
		parts = append(parts, fmt.Sprintf("identified via %s (confidence %.2f)", source, r.Confidence))
	}
	if reason := strings.TrimSpace(r.ReviewReason); reason != "" {
		parts = append(parts, "review: "+reason)
	}
	return strings.Join(parts, "; ")
}
