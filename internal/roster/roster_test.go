package roster_test

import (
	"errors"
	"strings"
	"testing"

	"bibtag/internal/roster"
	"bibtag/internal/services"
)

func TestNormalizeNumber(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"7", "7"},
		{"07", "7"},
		{"007", "7"},
		{"0", "0"},
		{"000", "0"},
		{" 42 ", "42"},
		{"a07", "A07"},
		{"A7", "A7"},
		{"12 b", "12B"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := roster.NormalizeNumber(tc.in); got != tc.want {
			t.Fatalf("NormalizeNumber(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestByNumberCollapsesLeadingZeros(t *testing.T) {
	r := roster.New([]roster.Entry{
		{Number: "7", Name: "A. Rossi"},
		{Number: "07", Name: "B. Bianchi"},
	})
	matches := r.ByNumber("7")
	if len(matches) != 2 {
		t.Fatalf("expected both 7 and 07 under normalized key, got %d", len(matches))
	}
	if r.ByNumber("A7") != nil {
		t.Fatal("expected no matches for unknown number")
	}
}

func TestParseWithHeaderAndTags(t *testing.T) {
	input := strings.NewReader(
		"number,name,category,team,tags\n" +
			"7,A. Rossi,MX1,Alpha Racing,vip;returning\n" +
			"22,T. Takai,MX2,Beta Moto,\n")
	r, warnings, err := roster.Parse(input)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if r.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", r.Len())
	}
	entry := r.ByNumber("7")[0]
	if entry.Name != "A. Rossi" || entry.Category != "MX1" || entry.Team != "Alpha Racing" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if len(entry.Tags) != 2 || entry.Tags[0] != "vip" {
		t.Fatalf("unexpected tags: %v", entry.Tags)
	}
}

func TestParseDuplicateNumberSameCategoryWarns(t *testing.T) {
	input := strings.NewReader(
		"7,A. Rossi,MX1\n" +
			"07,B. Bianchi,MX1\n" +
			"7,C. Verde,MX2\n")
	r, warnings, err := roster.Parse(input)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if r.Len() != 3 {
		t.Fatalf("duplicates must still load, got %d entries", r.Len())
	}
	if len(warnings) != 1 {
		t.Fatalf("expected one duplicate warning, got %v", warnings)
	}
	if !strings.Contains(warnings[0].Message, "MX1") {
		t.Fatalf("warning should name the category: %v", warnings[0])
	}
}

func TestParseEmptyRosterFails(t *testing.T) {
	_, _, err := roster.Parse(strings.NewReader("number,name\n"))
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParseSkipsRowsWithoutNumber(t *testing.T) {
	input := strings.NewReader(
		"7,A. Rossi\n" +
			",No Number\n")
	r, warnings, err := roster.Parse(input)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if r.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", r.Len())
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0].Message, "missing race number") {
		t.Fatalf("expected missing-number warning, got %v", warnings)
	}
}
