// Package artifacts writes the per-run output files: the daily JSONL and
// CSV series, summary.json and a markdown report.
package artifacts

import (
	"fmt"
	stdio "io"
	"path/filepath"

	"github.com/rs/zerolog/log"

	atomicio "github.com/sawpanic/regimeblend/internal/io"
	"github.com/sawpanic/regimeblend/internal/pipeline"
)

// File names inside the output directory.
const (
	DailyJSONL  = "daily.jsonl"
	DailyCSV    = "daily.csv"
	SummaryJSON = "summary.json"
	ReportMD    = "report.md"
	MetricsProm = "metrics.prom"
)

// Writer places artifacts under Dir.
type Writer struct {
	Dir string
}

// NewWriter returns a writer rooted at dir.
func NewWriter(dir string) *Writer {
	return &Writer{Dir: dir}
}

// Path joins name onto the output directory.
func (w *Writer) Path(name string) string {
	return filepath.Join(w.Dir, name)
}

// Write emits every artifact for res and returns the written paths.
func (w *Writer) Write(res *pipeline.Result, s *Summary) ([]string, error) {
	var written []string

	jsonl := w.Path(DailyJSONL)
	if err := atomicio.WriteJSONLinesAtomic(jsonl, Rows(res.Days)); err != nil {
		return written, fmt.Errorf("failed to write daily records: %w", err)
	}
	written = append(written, jsonl)

	csvPath := w.Path(DailyCSV)
	if err := atomicio.WriteAtomic(csvPath, func(out stdio.Writer) error {
		return writeCSV(out, res.Sleeves, res.Days)
	}); err != nil {
		return written, fmt.Errorf("failed to write daily CSV: %w", err)
	}
	written = append(written, csvPath)

	summary := w.Path(SummaryJSON)
	if err := atomicio.WriteJSONAtomic(summary, s); err != nil {
		return written, fmt.Errorf("failed to write summary: %w", err)
	}
	written = append(written, summary)

	report := w.Path(ReportMD)
	if err := atomicio.WriteAtomic(report, func(out stdio.Writer) error {
		return writeReport(out, s)
	}); err != nil {
		return written, fmt.Errorf("failed to write report: %w", err)
	}
	written = append(written, report)

	log.Info().
		Str("dir", w.Dir).
		Str("instrument", res.Instrument).
		Int("days", len(res.Days)).
		Int("alerts", len(s.Alerts)).
		Msg("Artifacts written")
	return written, nil
}
