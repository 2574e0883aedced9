// Package crisis scores market stress from credit spreads, their velocity
// and a confirmatory volatility index, and maps the composite score to a
// four-tier regime with a sizing multiplier.
package crisis

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/regimeblend/internal/stats"
)

// Regime is the crisis tier for a date.
type Regime string

const (
	Normal    Regime = "NORMAL"
	Stress    Regime = "STRESS"
	PreCrisis Regime = "PRE_CRISIS"
	Crisis    Regime = "CRISIS"
)

// ParseRegime matches a crisis label case-insensitively. Hyphens and
// spaces separate words the same as underscores, so "Pre-Crisis" is
// PRE_CRISIS.
func ParseRegime(s string) (Regime, error) {
	switch normalizeLabel(s) {
	case "", "NORMAL", "NAN":
		return Normal, nil
	case "STRESS":
		return Stress, nil
	case "PRE_CRISIS":
		return PreCrisis, nil
	case "CRISIS":
		return Crisis, nil
	default:
		return "", fmt.Errorf("unknown crisis regime %q", s)
	}
}

func normalizeLabel(s string) string {
	return strings.NewReplacer("-", "_", " ", "_").Replace(strings.ToUpper(strings.TrimSpace(s)))
}

// Severity orders regimes from Normal (0) to Crisis (3).
func (r Regime) Severity() int {
	switch r {
	case Stress:
		return 1
	case PreCrisis:
		return 2
	case Crisis:
		return 3
	default:
		return 0
	}
}

// Record carries the sub-scores and regime for one date.
type Record struct {
	Date          time.Time `json:"date"`
	Spread        float64   `json:"hy_spread"`
	Vix           float64   `json:"vix"`
	LevelScore    float64   `json:"credit_level"`
	Percentile    float64   `json:"hy_percentile"`
	CreditStress  float64   `json:"credit_stress"`
	VelocityScore float64   `json:"velocity"`
	VixStress     float64   `json:"vix_stress"`
	Composite     float64   `json:"composite_crisis"`
	Regime        Regime    `json:"regime"`
	Sizing        float64   `json:"sizing"`
}

// State is the trailing spread history owned by one Detector.
type State struct {
	window *stats.Window // lookback spreads, current included
	lags   *stats.Window // last 30 spreads before today
	prev   Regime
}

// Detector scores one date at a time.
type Detector struct {
	cfg    Config
	state  *State
	logger zerolog.Logger
}

// NewDetector returns a detector with empty history.
func NewDetector(cfg Config) *Detector {
	d := &Detector{cfg: cfg, logger: log.With().Str("component", "crisis").Logger()}
	d.Reset()
	return d
}

// Reset drops all history.
func (d *Detector) Reset() {
	d.state = &State{
		window: stats.NewWindow(d.cfg.Lookback),
		lags:   stats.NewWindow(30),
		prev:   Normal,
	}
}

// Step scores the spread and vix observed on date.
func (d *Detector) Step(date time.Time, spread, vix float64) Record {
	cfg, st := d.cfg, d.state
	rec := Record{Date: date, Spread: spread, Vix: vix}

	st.window.Push(spread)
	rec.LevelScore = d.levelScore(spread)
	rec.Percentile = math.NaN()
	if st.window.Full() {
		vals := st.window.Values()
		if !stats.AnyNaN(vals) {
			rec.Percentile = stats.PercentRank(vals, spread)
		}
	}
	rec.CreditStress = 0.5*rec.LevelScore + 0.5*rec.Percentile

	v10 := stats.Clip((spread-st.lags.Ago(9))/cfg.Velocity.RapidWiden10d, 0, 1)
	v30 := stats.Clip((spread-st.lags.Ago(29))/cfg.Velocity.RapidWiden30d, 0, 1)
	if math.IsNaN(v10) || math.IsNaN(v30) {
		rec.VelocityScore = math.NaN()
	} else {
		rec.VelocityScore = math.Max(v10, v30*cfg.Velocity.Discount30d)
	}
	st.lags.Push(spread)

	rec.VixStress = d.vixScore(vix)

	w := cfg.Weights
	rec.Composite = stats.Clip(rec.CreditStress*w.Credit+rec.VixStress*w.Vix+rec.VelocityScore*w.Velocity, 0, 1)
	rec.Regime, rec.Sizing = d.classify(rec.Composite)

	if rec.Regime != st.prev {
		d.logger.Debug().Time("date", date).Str("from", string(st.prev)).Str("to", string(rec.Regime)).
			Float64("composite", rec.Composite).Msg("Crisis regime changed")
		st.prev = rec.Regime
	}
	return rec
}

// levelScore is the step function over the credit breakpoints. A missing
// spread scores NaN.
func (d *Detector) levelScore(spread float64) float64 {
	l := d.cfg.Credit
	switch {
	case math.IsNaN(spread):
		return math.NaN()
	case spread < l.Normal:
		return 0
	case spread < l.Stress:
		return 0.3
	case spread < l.PreCrisis:
		return 0.6
	case spread < l.Crisis:
		return 0.8
	default:
		return 1.0
	}
}

// vixScore buckets the volatility index. A missing value scores 0.
func (d *Detector) vixScore(vix float64) float64 {
	v := d.cfg.Vix
	switch {
	case math.IsNaN(vix) || vix < v.Normal:
		return 0
	case vix < v.Elevated:
		return 0.2
	case vix < v.Stress:
		return 0.4
	case vix < v.Crisis:
		return 0.7
	default:
		return 1.0
	}
}

// classify applies the threshold masks from lowest to highest severity so
// the most severe satisfied mask wins.
func (d *Detector) classify(composite float64) (Regime, float64) {
	t, s := d.cfg.Thresholds, d.cfg.Sizing
	regime, sizing := Normal, s.Normal
	if composite >= t.Stress {
		regime, sizing = Stress, s.Stress
	}
	if composite >= t.PreCrisis {
		regime, sizing = PreCrisis, s.PreCrisis
	}
	if composite >= t.Crisis {
		regime, sizing = Crisis, s.Crisis
	}
	return regime, sizing
}

// Detect runs a fresh detector over aligned spread and vix columns.
func Detect(cfg Config, dates []time.Time, spread, vix []float64) []Record {
	d := NewDetector(cfg)
	out := make([]Record, len(dates))
	for i, date := range dates {
		v := math.NaN()
		if i < len(vix) {
			v = vix[i]
		}
		out[i] = d.Step(date, spread[i], v)
	}
	return out
}
