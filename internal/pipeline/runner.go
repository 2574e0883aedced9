// Package pipeline runs the per-date regime and blending fold for one or
// more instruments.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/regimeblend/internal/config"
	"github.com/sawpanic/regimeblend/internal/config/regime"
	"github.com/sawpanic/regimeblend/internal/diag"
	"github.com/sawpanic/regimeblend/internal/portfolio/blend"
	"github.com/sawpanic/regimeblend/internal/portfolio/cash"
	"github.com/sawpanic/regimeblend/internal/portfolio/weights"
	"github.com/sawpanic/regimeblend/internal/regime/chop"
	"github.com/sawpanic/regimeblend/internal/regime/crisis"
	"github.com/sawpanic/regimeblend/internal/regime/macro"
	"github.com/sawpanic/regimeblend/internal/regime/vol"
	"github.com/sawpanic/regimeblend/internal/stats"
)

// DailyOutput is the immutable result for one date.
type DailyOutput struct {
	Date        time.Time         `json:"date"`
	Vol         vol.Record        `json:"vol"`
	Crisis      crisis.Record     `json:"crisis"`
	Chop        chop.Regime       `json:"chop"`
	Macro       macro.State       `json:"macro"`
	Combined    string            `json:"combined"`
	Switched    bool              `json:"switched"`
	Target      weights.Vector    `json:"target_weights"`
	Smoothed    weights.Vector    `json:"smoothed_weights"`
	Allocation  weights.Vector    `json:"allocation"`
	StopMult    float64           `json:"stop_multiplier"`
	Convergence float64           `json:"convergence"`
	Blend       blend.DailyRecord `json:"blend"`
	Warnings    []diag.Warning    `json:"warnings,omitempty"`
}

// Result is a completed run for one instrument.
type Result struct {
	Instrument     string            `json:"instrument"`
	Sleeves        []string          `json:"sleeves"`
	Days           []DailyOutput     `json:"-"`
	Degeneracies   []diag.Degeneracy `json:"degeneracies"`
	Warnings       []diag.Warning    `json:"warnings"`
	RegimeSwitches int               `json:"regime_switches"`
	Turnover       float64           `json:"weight_turnover"`
	Started        time.Time         `json:"started"`
	Finished       time.Time         `json:"finished"`
}

// Observer is notified after each date. Implementations must not mutate
// the output's maps and must be safe for concurrent use under RunMany.
type Observer interface {
	ObserveDay(instrument string, out DailyOutput)
}

// Runner holds the read-only configuration shared by every run. It is safe
// for concurrent use.
type Runner struct {
	cfg       *config.Config
	weights   *regime.WeightsLoader
	observers []Observer
	logger    zerolog.Logger
}

// NewRunner validates the configuration up front.
func NewRunner(cfg *config.Config, observers ...Observer) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	wl, err := cfg.WeightsLoader()
	if err != nil {
		return nil, err
	}
	return &Runner{
		cfg:       cfg,
		weights:   wl,
		observers: observers,
		logger:    log.With().Str("component", "pipeline").Logger(),
	}, nil
}

// Weights exposes the validated regime table.
func (r *Runner) Weights() *regime.WeightsLoader { return r.weights }

// checkSleeves fails when the weight table references a sleeve with no
// input series.
func (r *Runner) checkSleeves(in *Inputs) error {
	for _, s := range r.weights.Sleeves() {
		if _, ok := in.Sleeves[s]; !ok {
			return &config.ConfigurationError{
				Key:    "regime_weights",
				Reason: fmt.Sprintf("sleeve %q is weighted but has no position series for %s", s, in.Name),
			}
		}
	}
	known := make(map[string]bool)
	for _, s := range r.weights.Sleeves() {
		known[s] = true
	}
	for _, s := range in.SleeveNames() {
		if !known[s] {
			r.logger.Warn().Str("instrument", in.Name).Str("sleeve", s).Msg("Sleeve not in any regime weight vector, it will carry zero weight")
		}
	}
	return nil
}

// Run folds every date of in through a fresh RunState. ctx is checked
// between dates.
func (r *Runner) Run(ctx context.Context, in *Inputs) (*Result, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if err := r.checkSleeves(in); err != nil {
		return nil, err
	}

	collector := diag.NewCollector()
	sleeves := in.SleeveNames()
	st, err := NewRunState(r.cfg, sleeves, in.ChopLabels, collector)
	if err != nil {
		return nil, err
	}

	logger := r.logger.With().Str("instrument", in.Name).Logger()
	logger.Info().Int("dates", len(in.Dates)).Strs("sleeves", sleeves).Str("chop", st.Chop.Name()).Msg("Starting run")

	res := &Result{Instrument: in.Name, Sleeves: sleeves, Started: time.Now().UTC()}
	res.Days = make([]DailyOutput, 0, len(in.Dates))
	for i := range in.Dates {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run %s interrupted at %s: %w", in.Name, in.Dates[i].Format("2006-01-02"), err)
		}
		out, err := r.step(st, in, i, collector)
		if err != nil {
			return nil, err
		}
		for _, w := range out.Warnings {
			logger.Warn().Str("code", w.Code).Time("date", w.Date).Msg(w.Message)
		}
		for _, o := range r.observers {
			o.ObserveDay(in.Name, out)
		}
		res.Days = append(res.Days, out)
	}

	res.Degeneracies = collector.Degeneracies()
	res.Warnings = collector.Warnings()
	res.RegimeSwitches = st.Switches()
	res.Turnover = st.Smoother.Turnover(0)
	res.Finished = time.Now().UTC()

	ev := logger.Info().
		Int("regime_switches", res.RegimeSwitches).
		Int("warnings", len(res.Warnings)).
		Int("degeneracies", len(res.Degeneracies))
	if n := len(res.Days); n > 0 {
		ev = ev.Float64("final_equity", res.Days[n-1].Blend.Equity)
	}
	ev.Dur("elapsed", res.Finished.Sub(res.Started)).Msg("Run complete")
	return res, nil
}

func (r *Runner) step(st *RunState, in *Inputs, i int, collector *diag.Collector) (DailyOutput, error) {
	date := in.Dates[i]
	price := in.Price[i]

	volRec := st.Vol.Step(date, price)
	if volRec.Degenerate {
		d := diag.Degeneracy{Date: date, Component: diag.ComponentVol, Detail: fmt.Sprintf("realised vol %g", volRec.RV), Fallback: "size floor"}
		collector.Degenerate(d)
		r.logger.Debug().Str("instrument", in.Name).Msg(d.String())
	}

	crRec := st.Crisis.Step(date, at(in.Credit, i), at(in.Vix, i))
	chopReg := st.Chop.Step(chop.Observation{Date: date, Price: price, Vix: at(in.Vix, i)})
	state := macro.Resolve(crRec.Regime, chopReg)

	entry, err := r.weights.GetWeights(state)
	if err != nil {
		return DailyOutput{}, &config.ConfigurationError{Key: "regime_weights", Reason: err.Error(), Err: err}
	}
	target := weights.Vector(entry.Weights)
	smoothed := st.Smoother.Smooth(target, false)
	alloc := st.Cash.Apply(smoothed, cash.Overlay{
		ExposureScalar: entry.ExposureScalar(),
		StopMultiplier: entry.StopMultiplier(),
	})
	warnings := st.Cash.Check(date, alloc.Weights, string(state), entry.Defensive)
	collector.Warn(warnings...)

	ret := 0.0
	if st.index > 0 && st.prevPrice > 0 && stats.IsFinite(price) {
		ret = price/st.prevPrice - 1
	}
	sleeveIn := make(map[string]blend.SleeveInput, len(in.Sleeves))
	for name, s := range in.Sleeves {
		sleeveIn[name] = blend.SleeveInput{Position: s.Position[i], Return: at(s.Return, i)}
	}
	blendRec := st.Blender.Step(blend.Input{Date: date, Return: ret, Sleeves: sleeveIn, Allocation: alloc.Weights})

	switched := st.index > 0 && state != st.prevState
	if switched {
		st.switches++
	}
	st.prevState = state
	if stats.IsFinite(price) {
		st.prevPrice = price
	}
	st.index++

	return DailyOutput{
		Date:        date,
		Vol:         volRec,
		Crisis:      crRec,
		Chop:        chopReg,
		Macro:       state,
		Combined:    macro.Combine(volRec.State, state),
		Switched:    switched,
		Target:      target.Copy(),
		Smoothed:    smoothed,
		Allocation:  alloc.Weights,
		StopMult:    alloc.StopMultiplier * volRec.StopMult,
		Convergence: st.Smoother.Convergence(),
		Blend:       blendRec,
		Warnings:    warnings,
	}, nil
}

func at(xs []float64, i int) float64 {
	if xs == nil || i >= len(xs) {
		return nan
	}
	return xs[i]
}

// RunMany runs independent instruments concurrently, one goroutine each.
// Results keep the input order. The first error wins.
func (r *Runner) RunMany(ctx context.Context, inputs []*Inputs) ([]*Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]*Result, len(inputs))
	errs := make([]error, len(inputs))
	var wg sync.WaitGroup
	for i, in := range inputs {
		wg.Add(1)
		go func(i int, in *Inputs) {
			defer wg.Done()
			res, err := r.Run(ctx, in)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", in.Name, err)
				cancel()
				return
			}
			results[i] = res
		}(i, in)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil && !isCancelled(err) {
			return nil, err
		}
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}
