package artifacts

import (
	"fmt"

	atomicio "github.com/sawpanic/regimeblend/internal/io"
	"github.com/sawpanic/regimeblend/internal/pipeline"
)

// RegimesJSONL holds the label history of a classification run.
const RegimesJSONL = "regimes.jsonl"

// RegimeRow is the serialised form of one pipeline.RegimeDay.
type RegimeRow struct {
	Date         string   `json:"date"`
	RV           *float64 `json:"rv"`
	Pct          *float64 `json:"pctl"`
	VolState     string   `json:"vol_state"`
	Spike        bool     `json:"spike"`
	Composite    *float64 `json:"composite_crisis"`
	CrisisRegime string   `json:"crisis_regime"`
	ChopRegime   string   `json:"chop_regime"`
	MacroState   string   `json:"macro_state"`
	Combined     string   `json:"combined_regime"`
	Switched     bool     `json:"switched"`
}

// RegimeRows converts a classification.
func RegimeRows(days []pipeline.RegimeDay) []RegimeRow {
	out := make([]RegimeRow, len(days))
	for i, d := range days {
		out[i] = RegimeRow{
			Date:         d.Date.Format("2006-01-02"),
			RV:           num(d.Vol.RV),
			Pct:          num(d.Vol.Pct),
			VolState:     string(d.Vol.State),
			Spike:        d.Vol.Spike,
			Composite:    num(d.Crisis.Composite),
			CrisisRegime: string(d.Crisis.Regime),
			ChopRegime:   string(d.Chop),
			MacroState:   string(d.Macro),
			Combined:     d.Combined,
			Switched:     d.Switched,
		}
	}
	return out
}

// WriteRegimes writes the label history and returns its path.
func (w *Writer) WriteRegimes(c *pipeline.Classification) (string, error) {
	path := w.Path(RegimesJSONL)
	if err := atomicio.WriteJSONLinesAtomic(path, RegimeRows(c.Days)); err != nil {
		return "", fmt.Errorf("failed to write regime labels: %w", err)
	}
	return path, nil
}
