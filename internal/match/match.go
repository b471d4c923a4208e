package match

import (
	"fmt"
	"sort"
	"strings"

	"bibtag/internal/roster"
)

// Config tunes the three matching tiers.
type Config struct {
	// AcceptFloor is the minimum top score for a match to be returned at all.
	AcceptFloor float64
	// ScoreEpsilon is the gap under which the top two candidates count as
	// equally strong; ambiguity is surfaced, not resolved.
	ScoreEpsilon float64
	// MaxEditDistance bounds the fuzzy number comparison.
	MaxEditDistance int
	// NumberWeight and TokenWeight combine number similarity and free-text
	// token overlap into the fuzzy score.
	NumberWeight float64
	TokenWeight  float64
	// CategoryPenalty down-weights (never eliminates) candidates outside the
	// category hint.
	CategoryPenalty float64
}

// Guess is one recognized candidate for a photo subject.
type Guess struct {
	Number     string
	Tokens     []string
	Confidence float64
	Category   string
}

// Candidate is one scored roster entry.
type Candidate struct {
	Entry  roster.Entry
	Score  float64
	Reason string
}

// Result is the outcome of one match call. Never mutated after creation.
type Result struct {
	// Best is nil when no candidate reached the acceptance floor.
	Best               *roster.Entry
	Ranked             []Candidate
	MultipleHighScores bool
	Rationale          string
}

// Matcher scores guesses against a roster snapshot.
type Matcher struct {
	cfg Config
}

// New constructs a Matcher. Zero-valued weights fall back to sane defaults so
// a partially filled Config still scores.
func New(cfg Config) *Matcher {
	if cfg.NumberWeight <= 0 && cfg.TokenWeight <= 0 {
		cfg.NumberWeight = 0.75
		cfg.TokenWeight = 0.25
	}
	if cfg.MaxEditDistance < 0 {
		cfg.MaxEditDistance = 0
	}
	return &Matcher{cfg: cfg}
}

// Match ranks roster entries for the guess. categoryHint may be empty; a
// wrong hint down-weights rather than excludes, so a misconfigured hint never
// hides the right participant entirely.
func (m *Matcher) Match(r *roster.Roster, guess Guess, categoryHint string) Result {
	normNumber := roster.NormalizeNumber(guess.Number)
	if normNumber == "" {
		return Result{Rationale: "no race number recognized"}
	}

	exact := r.ByNumber(normNumber)
	if len(exact) > 0 {
		return m.rank(exactCandidates(exact, normNumber), categoryHint,
			fmt.Sprintf("exact match on normalized number %q", normNumber))
	}

	fuzzy := m.fuzzyCandidates(r, normNumber, guess.Tokens)
	if len(fuzzy) == 0 {
		return Result{Rationale: fmt.Sprintf("no roster number within edit distance %d of %q", m.cfg.MaxEditDistance, normNumber)}
	}
	return m.rank(fuzzy, categoryHint,
		fmt.Sprintf("fuzzy match against %q", normNumber))
}

func exactCandidates(entries []roster.Entry, normNumber string) []Candidate {
	out := make([]Candidate, 0, len(entries))
	for _, entry := range entries {
		out = append(out, Candidate{
			Entry:  entry,
			Score:  1.0,
			Reason: fmt.Sprintf("number %q normalizes to %q", entry.Number, normNumber),
		})
	}
	return out
}

func (m *Matcher) fuzzyCandidates(r *roster.Roster, normNumber string, tokens []string) []Candidate {
	guessTokens := normalizeTokens(tokens)
	weightSum := m.cfg.NumberWeight + m.cfg.TokenWeight

	var out []Candidate
	for _, entry := range r.Entries() {
		entryNorm := roster.NormalizeNumber(entry.Number)
		if entryNorm == "" {
			continue
		}
		dist := editDistance(normNumber, entryNorm)
		if dist > m.cfg.MaxEditDistance {
			continue
		}
		longest := len(normNumber)
		if len(entryNorm) > longest {
			longest = len(entryNorm)
		}
		numberSim := 1.0
		if longest > 0 {
			numberSim = 1.0 - float64(dist)/float64(longest)
		}
		tokenSim := tokenOverlap(guessTokens, entryTokens(entry))
		score := (m.cfg.NumberWeight*numberSim + m.cfg.TokenWeight*tokenSim) / weightSum
		out = append(out, Candidate{
			Entry:  entry,
			Score:  score,
			Reason: fmt.Sprintf("edit distance %d, token overlap %.2f", dist, tokenSim),
		})
	}
	return out
}

func (m *Matcher) rank(candidates []Candidate, categoryHint, baseRationale string) Result {
	hint := strings.TrimSpace(categoryHint)
	if hint != "" {
		for i := range candidates {
			cat := strings.TrimSpace(candidates[i].Entry.Category)
			if cat != "" && !strings.EqualFold(cat, hint) {
				candidates[i].Score *= 1.0 - m.cfg.CategoryPenalty
				candidates[i].Reason += fmt.Sprintf(", outside category %q", hint)
			}
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Entry.Number < candidates[j].Entry.Number
	})

	top := candidates[0]
	if top.Score < m.cfg.AcceptFloor {
		return Result{
			Ranked:    candidates,
			Rationale: fmt.Sprintf("%s: top score %.2f below acceptance floor %.2f", baseRationale, top.Score, m.cfg.AcceptFloor),
		}
	}

	ambiguous := len(candidates) > 1 && top.Score-candidates[1].Score <= m.cfg.ScoreEpsilon
	rationale := fmt.Sprintf("%s: %s (score %.2f)", baseRationale, top.Reason, top.Score)
	if ambiguous {
		rationale += fmt.Sprintf("; candidate %q scores within epsilon", candidates[1].Entry.Number)
	}

	best := top.Entry
	return Result{
		Best:               &best,
		Ranked:             candidates,
		MultipleHighScores: ambiguous,
		Rationale:          rationale,
	}
}
