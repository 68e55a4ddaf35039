package export

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sadopc/marktime/internal/ledger"
)

type jsonExport struct {
	ExportedAt string           `json:"exported_at"`
	Count      int              `json:"count"`
	TagTotals  map[string]int64 `json:"tag_totals"`
	Entries    []jsonEntry      `json:"entries"`
}

type jsonEntry struct {
	Timestamp   string   `json:"timestamp"`
	DurationSec int64    `json:"duration_seconds"`
	Duration    string   `json:"duration"`
	File        string   `json:"file"`
	Tags        []string `json:"tags,omitempty"`
	Kind        string   `json:"type,omitempty"`
}

// ToJSON writes entries plus per-tag totals to path.
func ToJSON(entries []ledger.Entry, path string) error {
	out := jsonExport{
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Count:      len(entries),
		TagTotals:  TagTotals(entries),
	}

	for _, e := range entries {
		out.Entries = append(out.Entries, jsonEntry{
			Timestamp:   e.Timestamp.UTC().Format(time.RFC3339),
			DurationSec: e.Duration,
			Duration:    formatDuration(e.Duration),
			File:        e.File,
			Tags:        e.Tags,
			Kind:        e.Kind,
		})
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write json file: %w", err)
	}
	return nil
}

// TagTotals sums durations per tag across entries, floored at zero per
// tag so over-correcting adjustments never export a negative total.
func TagTotals(entries []ledger.Entry) map[string]int64 {
	totals := make(map[string]int64)
	for _, e := range entries {
		for _, tag := range e.Tags {
			totals[tag] += e.Duration
		}
	}
	for tag, total := range totals {
		if total < 0 {
			totals[tag] = 0
		}
	}
	return totals
}
