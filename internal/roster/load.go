package roster

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"bibtag/internal/services"
)

// Warning records a non-fatal roster load diagnostic.
type Warning struct {
	Line    int
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("line %d: %s", w.Line, w.Message)
}

// Load reads a roster CSV from path. Expected columns: race number (required),
// name, category, team, tags (semicolon-separated, optional). A header row is
// detected and skipped when the first column is not a plausible number field.
// Duplicate number+category pairs produce warnings, not errors.
func Load(path string) (*Roster, []Warning, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrNotFound, "roster", "open", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads roster rows from r. See Load for the expected shape.
func Parse(r io.Reader) (*Roster, []Warning, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var (
		entries  []Entry
		warnings []Warning
		seen     = map[string]int{}
		line     int
	)

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, nil, services.Wrap(services.ErrValidation, "roster", "parse", fmt.Sprintf("line %d", line), err)
		}
		if len(record) == 0 {
			continue
		}
		if line == 1 && looksLikeHeader(record) {
			continue
		}

		number := strings.TrimSpace(record[0])
		if number == "" {
			warnings = append(warnings, Warning{Line: line, Message: "missing race number, row skipped"})
			continue
		}

		entry := Entry{Number: number}
		if len(record) > 1 {
			entry.Name = strings.TrimSpace(record[1])
		}
		if len(record) > 2 {
			entry.Category = strings.TrimSpace(record[2])
		}
		if len(record) > 3 {
			entry.Team = strings.TrimSpace(record[3])
		}
		if len(record) > 4 {
			entry.Tags = splitTags(record[4])
		}

		key := NormalizeNumber(entry.Number) + "\x00" + strings.ToLower(entry.Category)
		if prior, ok := seen[key]; ok {
			warnings = append(warnings, Warning{
				Line:    line,
				Message: fmt.Sprintf("number %q in category %q already defined at line %d", entry.Number, entry.Category, prior),
			})
		} else {
			seen[key] = line
		}
		entries = append(entries, entry)
	}

	if len(entries) == 0 {
		return nil, warnings, services.Wrap(services.ErrValidation, "roster", "parse", "no participant rows", nil)
	}
	return New(entries), warnings, nil
}

func looksLikeHeader(record []string) bool {
	first := strings.ToLower(strings.TrimSpace(record[0]))
	switch first {
	case "number", "race_number", "race number", "bib", "bib_number", "#":
		return true
	}
	return false
}

func splitTags(raw string) []string {
	var tags []string
	for _, tag := range strings.Split(raw, ";") {
		if trimmed := strings.TrimSpace(tag); trimmed != "" {
			tags = append(tags, trimmed)
		}
	}
	return tags
}
