// Package ident holds the identification payloads that flow between pipeline
// stages through the work-item record: the raw recognition candidate, the
// temporal correction verdict, and the roster match. Each is persisted as a
// JSON envelope so a resumed run picks up exactly where it stopped.
package ident

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Candidate is the raw recognition output for one photo.
type Candidate struct {
	Number     string   `json:"number"`
	Tokens     []string `json:"tokens,omitempty"`
	Category   string   `json:"category,omitempty"`
	Team       string   `json:"team,omitempty"`
	Confidence float64  `json:"confidence"`
}

// Empty reports whether recognition found no readable number.
func (c Candidate) Empty() bool {
	return strings.TrimSpace(c.Number) == ""
}

// Correction is the temporal engine's verdict for one candidate.
type Correction struct {
	Number     string   `json:"number"`
	Confidence float64  `json:"confidence"`
	Revised    bool     `json:"revised"`
	Original   string   `json:"original,omitempty"`
	Consensus  float64  `json:"consensus,omitempty"`
	Voters     int      `json:"voters,omitempty"`
	Reason     string   `json:"reason,omitempty"`
}

// MatchRecord is the roster reconciliation result for one photo.
type MatchRecord struct {
	Number    string  `json:"number"`
	Name      string  `json:"name,omitempty"`
	Category  string  `json:"category,omitempty"`
	Team      string  `json:"team,omitempty"`
	Score     float64 `json:"score"`
	Source    string  `json:"source"`
	Ambiguous bool    `json:"ambiguous,omitempty"`
	Rationale string  `json:"rationale,omitempty"`
}

// Encode serializes a payload for persistence on a work item.
func Encode(payload any) (string, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return string(encoded), nil
}

// ParseCandidate decodes a persisted candidate envelope. An empty string
// yields a zero candidate.
func ParseCandidate(raw string) (Candidate, error) {
	var candidate Candidate
	if strings.TrimSpace(raw) == "" {
		return candidate, nil
	}
	if err := json.Unmarshal([]byte(raw), &candidate); err != nil {
		return Candidate{}, fmt.Errorf("parse candidate: %w", err)
	}
	return candidate, nil
}

// ParseCorrection decodes a persisted correction envelope.
func ParseCorrection(raw string) (Correction, error) {
	var correction Correction
	if strings.TrimSpace(raw) == "" {
		return correction, nil
	}
	if err := json.Unmarshal([]byte(raw), &correction); err != nil {
		return Correction{}, fmt.Errorf("parse correction: %w", err)
	}
	return correction, nil
}

// ParseMatchRecord decodes a persisted match envelope.
func ParseMatchRecord(raw string) (MatchRecord, error) {
	var record MatchRecord
	if strings.TrimSpace(raw) == "" {
		return record, nil
	}
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return MatchRecord{}, fmt.Errorf("parse match record: %w", err)
	}
	return record, nil
}
