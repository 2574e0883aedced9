package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sawpanic/regimeblend/internal/pipeline"
	"github.com/sawpanic/regimeblend/internal/report/perf"
	"github.com/sawpanic/regimeblend/internal/stats"
)

func nullable(x float64) *float64 {
	if !stats.IsFinite(x) {
		return nil
	}
	return &x
}

// NewRun builds the run row. m may be nil for runs too short to measure.
func NewRun(id string, res *pipeline.Result, m *perf.Metrics, summary []byte) Run {
	run := Run{
		ID:             id,
		Instrument:     res.Instrument,
		Sleeves:        strings.Join(res.Sleeves, ","),
		StartedAt:      res.Started,
		FinishedAt:     res.Finished,
		Days:           len(res.Days),
		RegimeSwitches: res.RegimeSwitches,
		Degeneracies:   len(res.Degeneracies),
		Warnings:       len(res.Warnings),
		Summary:        string(summary),
	}
	if n := len(res.Days); n > 0 {
		run.FirstDate = res.Days[0].Date
		run.LastDate = res.Days[n-1].Date
		run.FinalEquity = res.Days[n-1].Blend.Equity
	}
	if m != nil {
		run.Sharpe = nullable(m.Sharpe)
		run.MaxDrawdown = nullable(m.MaxDrawdown)
	}
	return run
}

// NewDailyRecord flattens one day of a run.
func NewDailyRecord(runID string, out pipeline.DailyOutput) (DailyRecord, error) {
	alloc, err := json.Marshal(out.Allocation)
	if err != nil {
		return DailyRecord{}, fmt.Errorf("failed to marshal allocation for %s: %w", out.Date.Format("2006-01-02"), err)
	}
	b := out.Blend
	return DailyRecord{
		RunID:        runID,
		Date:         out.Date,
		VolState:     string(out.Vol.State),
		CrisisRegime: string(out.Crisis.Regime),
		ChopRegime:   string(out.Chop),
		MacroState:   string(out.Macro),
		Composite:    nullable(out.Crisis.Composite),
		RealizedVol:  nullable(b.RealizedVol),
		Leverage:     nullable(b.Leverage),
		Position:     nullable(b.Position),
		Gross:        nullable(b.Gross),
		Net:          nullable(b.Net),
		Equity:       nullable(b.Equity),
		Allocation:   string(alloc),
	}, nil
}

// NewRegimeSnapshot captures the classification of out.
func NewRegimeSnapshot(runID, instrument string, out pipeline.DailyOutput) RegimeSnapshot {
	return RegimeSnapshot{
		Instrument:   instrument,
		Date:         out.Date,
		RunID:        runID,
		MacroState:   string(out.Macro),
		VolState:     string(out.Vol.State),
		CrisisRegime: string(out.Crisis.Regime),
		ChopRegime:   string(out.Chop),
		Composite:    nullable(out.Crisis.Composite),
		Leverage:     out.Blend.Leverage,
		StopMult:     out.StopMult,
		Allocation:   out.Allocation.Copy(),
	}
}

// Persist writes the run, its daily records and the latest regime
// snapshot.
func Persist(ctx context.Context, repo *Repository, id string, res *pipeline.Result, m *perf.Metrics, summary []byte) error {
	if err := repo.Runs.SaveRun(ctx, NewRun(id, res, m, summary)); err != nil {
		return err
	}

	records := make([]DailyRecord, 0, len(res.Days))
	for _, d := range res.Days {
		rec, err := NewDailyRecord(id, d)
		if err != nil {
			return err
		}
		records = append(records, rec)
	}
	if err := repo.Runs.SaveDaily(ctx, records); err != nil {
		return err
	}

	if n := len(res.Days); n > 0 {
		return repo.Regimes.Upsert(ctx, NewRegimeSnapshot(id, res.Instrument, res.Days[n-1]))
	}
	return nil
}
