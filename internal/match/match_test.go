package match

import (
	"strings"
	"testing"

	"bibtag/internal/roster"
)

func testConfig() Config {
	return Config{
		AcceptFloor:     0.55,
		ScoreEpsilon:    0.05,
		MaxEditDistance: 2,
		NumberWeight:    0.75,
		TokenWeight:     0.25,
		CategoryPenalty: 0.3,
	}
}

func testRoster() *roster.Roster {
	return roster.New([]roster.Entry{
		{Number: "7", Name: "A. Rossi", Category: "MX1", Team: "Alpha Racing"},
		{Number: "22", Name: "T. Takai", Category: "MX2", Team: "Beta Moto"},
		{Number: "72", Name: "L. Moreau", Category: "MX1", Team: "Gamma Sport"},
		{Number: "A07", Name: "P. Kovacs", Category: "Quad", Team: "Delta"},
	})
}

func TestExactNormalizedMatch(t *testing.T) {
	m := New(testConfig())
	result := m.Match(testRoster(), Guess{Number: "007", Confidence: 0.9}, "")
	if result.Best == nil {
		t.Fatalf("expected match, rationale: %s", result.Rationale)
	}
	if result.Best.Name != "A. Rossi" {
		t.Fatalf("best = %q, want A. Rossi", result.Best.Name)
	}
	if result.Ranked[0].Score != 1.0 {
		t.Fatalf("exact tier must score 1.0, got %f", result.Ranked[0].Score)
	}
	if result.MultipleHighScores {
		t.Fatal("single exact hit must not be ambiguous")
	}
}

// Under this repository's normalization rule "07" and "7" identify the same
// participant, so a roster carrying both printed forms makes any "7" guess
// ambiguous by construction.
func TestLeadingZeroCollisionSurfacesAmbiguity(t *testing.T) {
	r := roster.New([]roster.Entry{
		{Number: "7", Name: "A. Rossi"},
		{Number: "07", Name: "B. Bianchi"},
	})
	m := New(testConfig())
	result := m.Match(r, Guess{Number: "7", Confidence: 0.9}, "")
	if result.Best == nil {
		t.Fatalf("expected a best match, rationale: %s", result.Rationale)
	}
	if !result.MultipleHighScores {
		t.Fatal("expected ambiguity between 7 and 07")
	}
	if len(result.Ranked) != 2 {
		t.Fatalf("expected both entries ranked, got %d", len(result.Ranked))
	}
}

func TestAlphanumericKeepsZeros(t *testing.T) {
	m := New(testConfig())
	result := m.Match(testRoster(), Guess{Number: "a07"}, "")
	if result.Best == nil || result.Best.Name != "P. Kovacs" {
		t.Fatalf("expected A07 entry, got %+v", result.Best)
	}
}

func TestFuzzyMatchUsesTokenOverlap(t *testing.T) {
	m := New(testConfig())
	// "2" is distance 1 from both "7" and "22" and "72"; team tokens break
	// the tie toward Beta Moto.
	result := m.Match(testRoster(), Guess{Number: "2", Tokens: []string{"beta", "moto"}}, "")
	if result.Best == nil {
		t.Fatalf("expected fuzzy match, rationale: %s", result.Rationale)
	}
	if result.Best.Name != "T. Takai" {
		t.Fatalf("best = %q, want T. Takai (token overlap)", result.Best.Name)
	}
}

func TestCategoryHintDownWeightsNotEliminates(t *testing.T) {
	m := New(testConfig())
	result := m.Match(testRoster(), Guess{Number: "22"}, "MX1")
	if result.Best == nil {
		t.Fatal("hint mismatch must not eliminate an exact number match")
	}
	if result.Best.Name != "T. Takai" {
		t.Fatalf("best = %q", result.Best.Name)
	}
	if result.Ranked[0].Score >= 1.0 {
		t.Fatalf("expected penalty applied, score %f", result.Ranked[0].Score)
	}
	if !strings.Contains(result.Ranked[0].Reason, "outside category") {
		t.Fatalf("reason should mention category: %s", result.Ranked[0].Reason)
	}
}

func TestAcceptanceFloorReturnsNoMatch(t *testing.T) {
	cfg := testConfig()
	cfg.AcceptFloor = 0.99
	m := New(cfg)
	result := m.Match(testRoster(), Guess{Number: "9"}, "")
	if result.Best != nil {
		t.Fatalf("expected no match below floor, got %+v", result.Best)
	}
	if len(result.Ranked) == 0 {
		t.Fatal("ranked candidates should still be reported")
	}
	if !strings.Contains(result.Rationale, "below acceptance floor") {
		t.Fatalf("rationale: %s", result.Rationale)
	}
}

func TestNoNumberRecognized(t *testing.T) {
	m := New(testConfig())
	result := m.Match(testRoster(), Guess{Number: "  "}, "")
	if result.Best != nil || len(result.Ranked) != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
}

func TestNoCandidateWithinDistance(t *testing.T) {
	m := New(testConfig())
	result := m.Match(testRoster(), Guess{Number: "98765"}, "")
	if result.Best != nil {
		t.Fatalf("expected no match, got %+v", result.Best)
	}
	if !strings.Contains(result.Rationale, "edit distance") {
		t.Fatalf("rationale: %s", result.Rationale)
	}
}

func TestMatchIsPure(t *testing.T) {
	m := New(testConfig())
	r := testRoster()
	guess := Guess{Number: "7", Tokens: []string{"alpha"}}
	first := m.Match(r, guess, "MX1")
	second := m.Match(r, guess, "MX1")
	if first.Rationale != second.Rationale || first.Ranked[0].Score != second.Ranked[0].Score {
		t.Fatal("repeated calls must produce identical results")
	}
}

func TestEditDistance(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"7", "7", 0},
		{"7", "72", 1},
		{"12", "72", 1},
		{"123", "321", 2},
		{"A07", "A7", 1},
	}
	for _, tc := range cases {
		if got := editDistance(tc.a, tc.b); got != tc.want {
			t.Fatalf("editDistance(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestNormalizeTokenStripsDiacritics(t *testing.T) {
	if got := normalizeToken("Müller"); got != "muller" {
		t.Fatalf("normalizeToken = %q", got)
	}
}
