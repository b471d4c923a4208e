package stage

import (
	"bibtag/internal/ident"
	"bibtag/internal/services"
)

// ParseCandidate parses a persisted recognition candidate envelope.
// On failure it returns a services.ErrValidation suitable for stage Execute
// methods.
func ParseCandidate(raw string) (ident.Candidate, error) {
	candidate, err := ident.ParseCandidate(raw)
	if err != nil {
		return ident.Candidate{}, services.Wrap(
			services.ErrValidation, "stage", "parse candidate",
			"recognition candidate missing or invalid; rerun recognition", err)
	}
	return candidate, nil
}

// ParseCorrection parses a persisted correction envelope with the same error
// semantics as ParseCandidate.
func ParseCorrection(raw string) (ident.Correction, error) {
	correction, err := ident.ParseCorrection(raw)
	if err != nil {
		return ident.Correction{}, services.Wrap(
			services.ErrValidation, "stage", "parse correction",
			"correction envelope invalid; rerun correction", err)
	}
	return correction, nil
}

// ParseMatchRecord parses a persisted match envelope with the same error
// semantics as ParseCandidate.
func ParseMatchRecord(raw string) (ident.MatchRecord, error) {
	record, err := ident.ParseMatchRecord(raw)
	if err != nil {
		return ident.MatchRecord{}, services.Wrap(
			services.ErrValidation, "stage", "parse match record",
			"match record invalid; rerun matching", err)
	}
	return record, nil
}
