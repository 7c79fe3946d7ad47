package analytics

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"

	"articled/pkg/types"
)

// Derived views. Both are reconstructed from the same records, so they can
// never diverge the way independently-written files could. Output is
// deterministic: exporting identical records twice is byte-identical.

// csvHeader preserves the historical tabular column names.
var csvHeader = []string{"timestamp", "user_query", "llm_name", "response"}

// WriteCSV renders records as the tabular view, header row first, UTF-8.
func WriteCSV(w io.Writer, records []types.Interaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, rec := range records {
		if err := cw.Write([]string{rec.Timestamp, rec.Prompt, rec.Model, rec.Response}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// jsonRecord preserves the historical JSON view key names.
type jsonRecord struct {
	Timestamp string `json:"timestamp"`
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	Response  string `json:"response"`
}

// WriteJSON renders records as a single JSON array.
func WriteJSON(w io.Writer, records []types.Interaction) error {
	view := make([]jsonRecord, 0, len(records))
	for _, rec := range records {
		view = append(view, jsonRecord{
			Timestamp: rec.Timestamp,
			Model:     rec.Model,
			Prompt:    rec.Prompt,
			Response:  rec.Response,
		})
	}
	b, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// ExportFilename builds the timestamped attachment name for a snapshot.
func ExportFilename(format string, at time.Time) string {
	return fmt.Sprintf("analytics_export_%s.%s", at.Format("20060102_150405"), format)
}
