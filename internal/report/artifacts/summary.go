package artifacts

import (
	"time"

	"github.com/sawpanic/regimeblend/internal/pipeline"
	"github.com/sawpanic/regimeblend/internal/portfolio/blend"
	"github.com/sawpanic/regimeblend/internal/regime/macro"
	"github.com/sawpanic/regimeblend/internal/report/perf"
)

// Switch is one change of macro state.
type Switch struct {
	Date string      `json:"date"`
	From macro.State `json:"from"`
	To   macro.State `json:"to"`
}

// Summary is the run-level document written to summary.json.
type Summary struct {
	RunID      string    `json:"run_id"`
	Instrument string    `json:"instrument"`
	Sleeves    []string  `json:"sleeves"`
	Started    time.Time `json:"started"`
	Finished   time.Time `json:"finished"`
	Days       int       `json:"days"`
	FirstDate  string    `json:"first_date,omitempty"`
	LastDate   string    `json:"last_date,omitempty"`

	FinalEquity float64           `json:"final_equity"`
	Metrics     *perf.Metrics     `json:"metrics,omitempty"`
	Attribution perf.Attribution  `json:"attribution"`
	Correlation perf.Correlation  `json:"correlation"`
	Alerts      []perf.Alert      `json:"alerts"`
	AlertCounts perf.AlertSummary `json:"alert_counts"`

	MacroDistribution    []macro.Share `json:"macro_distribution"`
	CombinedDistribution []macro.Share `json:"combined_distribution"`
	RegimeSwitches       int           `json:"regime_switches"`
	Switches             []Switch      `json:"switches"`
	WeightTurnover       float64       `json:"weight_turnover"`

	Degeneracies map[string]int `json:"degeneracies"`
	Warnings     map[string]int `json:"warnings"`

	// Counters is a flattened snapshot of the run metrics, when enabled.
	Counters map[string]float64 `json:"counters,omitempty"`
}

// BlendRecords extracts the blended records of a run in date order.
func BlendRecords(days []pipeline.DailyOutput) []blend.DailyRecord {
	out := make([]blend.DailyRecord, len(days))
	for i, d := range days {
		out[i] = d.Blend
	}
	return out
}

// BuildSummary derives the summary of res. Metrics is nil when the run is
// too short to measure after warm-up.
func BuildSummary(runID string, res *pipeline.Result, calc *perf.Calculator, am *perf.AlertManager) *Summary {
	s := &Summary{
		RunID:          runID,
		Instrument:     res.Instrument,
		Sleeves:        res.Sleeves,
		Started:        res.Started,
		Finished:       res.Finished,
		Days:           len(res.Days),
		RegimeSwitches: res.RegimeSwitches,
		WeightTurnover: res.Turnover,
		Degeneracies:   make(map[string]int),
		Warnings:       make(map[string]int),
	}
	for _, d := range res.Degeneracies {
		s.Degeneracies[d.Component]++
	}
	for _, w := range res.Warnings {
		s.Warnings[w.Code]++
	}

	if n := len(res.Days); n > 0 {
		s.FirstDate = res.Days[0].Date.Format("2006-01-02")
		s.LastDate = res.Days[n-1].Date.Format("2006-01-02")
		s.FinalEquity = res.Days[n-1].Blend.Equity
	}

	macroLabels := make([]string, len(res.Days))
	combined := make([]string, len(res.Days))
	for i, d := range res.Days {
		macroLabels[i] = string(d.Macro)
		combined[i] = d.Combined
		if d.Switched && i > 0 {
			s.Switches = append(s.Switches, Switch{
				Date: d.Date.Format("2006-01-02"),
				From: res.Days[i-1].Macro,
				To:   d.Macro,
			})
		}
	}
	s.MacroDistribution = macro.Distribution(macroLabels)
	s.CombinedDistribution = macro.Distribution(combined)

	records := BlendRecords(res.Days)
	if m, err := calc.Calculate(records); err == nil {
		s.Metrics = m
	}
	s.Attribution = calc.Attribute(records)
	sleevePnL, _ := calc.SleevePnL(records)
	s.Correlation = perf.CorrelationMatrix(sleevePnL)

	if am != nil {
		s.Alerts = am.Check(s.Metrics, s.Correlation)
	}
	s.AlertCounts = perf.SummarizeAlerts(s.Alerts)
	return s
}
