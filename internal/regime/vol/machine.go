// Package vol classifies each trading day into a volatility state from the
// rolling realized volatility of a price series and that volatility's
// percentile against its own trailing history.
package vol

import (
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/regimeblend/internal/series"
	"github.com/sawpanic/regimeblend/internal/stats"
)

// Label is the volatility state attached to a date.
type Label string

const (
	Calm    Label = "Calm"
	Rising  Label = "Rising"
	High    Label = "High"
	Falling Label = "Falling"
	// Undefined marks dates before the warm-up windows are satisfied.
	Undefined Label = ""
)

// Record is the classifier output for one date.
type Record struct {
	Date    time.Time `json:"date"`
	Price   float64   `json:"price"`
	Return  float64   `json:"ret_log"`
	RV      float64   `json:"rv"`
	Pct     float64   `json:"pctl"`
	Drv1    float64   `json:"drv1"`
	Drv5    float64   `json:"drv5"`
	CalmAbs float64   `json:"calm_abs_t"`
	HighAbs float64   `json:"high_abs_t"`

	Calm    bool  `json:"calm"`
	High    bool  `json:"high"`
	Rising  bool  `json:"rising"`
	Falling bool  `json:"falling"`
	State   Label `json:"state"`

	SpikeRVJump  bool `json:"spike_rvjump"`
	SpikeRet     bool `json:"spike_ret"`
	SpikePctJump bool `json:"spike_pctljump"`
	Spike        bool `json:"spike_any"`

	// Crisis is only meaningful when Defined is true.
	Crisis  bool `json:"crisis"`
	Defined bool `json:"defined"`

	SizeMult   float64 `json:"size_mult"`
	AllowNew   bool    `json:"allow_new"`
	StopMult   float64 `json:"stop_mult"`
	Degenerate bool    `json:"degenerate,omitempty"`
}

// State is the trailing memory the classifier threads from one date to the
// next. It is owned by a single Machine.
type State struct {
	prevPrice float64
	rets      *stats.Window // log returns feeding rv
	rvPrev    *stats.Window // prior rv values for the percentile
	rvLags    *stats.Window // last five rv values for drv1/drv5
	guard     *stats.Window // prior rv values for the absolute guardrails
	drv1Hist  *stats.Window
	retHist   *stats.Window
	pctTail   *stats.Window // last CrisisExitDays percentiles, current included
	prevPct   float64
	prevCalm  bool
	prevHigh  bool
	lastLabel Label
	crisisOn  bool
	seenRV    bool
	steps     int
}

func newState(cfg Config) *State {
	return &State{
		prevPrice: math.NaN(),
		rets:      stats.NewWindow(cfg.RVWindow),
		rvPrev:    stats.NewWindow(cfg.PctWindow),
		rvLags:    stats.NewWindow(5),
		guard:     stats.NewWindow(cfg.GuardWindow),
		drv1Hist:  stats.NewWindow(cfg.PctWindow),
		retHist:   stats.NewWindow(cfg.PctWindow),
		pctTail:   stats.NewWindow(cfg.CrisisExitDays),
		prevPct:   math.NaN(),
	}
}

// Machine runs the volatility state machine one date at a time.
type Machine struct {
	cfg    Config
	state  *State
	logger zerolog.Logger
}

// NewMachine creates a machine in its warm-up state.
func NewMachine(cfg Config) *Machine {
	return &Machine{
		cfg:    cfg,
		state:  newState(cfg),
		logger: log.With().Str("component", "vol_state").Logger(),
	}
}

// Reset discards all trailing history.
func (m *Machine) Reset() {
	m.state = newState(m.cfg)
}

// Step consumes the price for date and returns that date's record. Dates
// must be fed in strictly increasing order.
func (m *Machine) Step(date time.Time, price float64) Record {
	cfg, st := m.cfg, m.state
	st.steps++

	rec := Record{Date: date, Price: price}
	rec.Return = math.NaN()
	if stats.IsFinite(st.prevPrice) && st.prevPrice > 0 && price > 0 {
		rec.Return = math.Log(price / st.prevPrice)
	}
	st.prevPrice = price

	st.rets.Push(rec.Return)
	rec.RV = st.rets.Std(1) * math.Sqrt(cfg.AnnualDays)

	if st.rvPrev.Full() {
		rec.Pct = stats.TrailingPercentile(st.rvPrev.Values(), rec.RV)
	} else {
		rec.Pct = math.NaN()
	}

	rec.Drv1 = rec.RV - st.rvLags.Ago(0)
	rec.Drv5 = rec.RV - st.rvLags.Ago(4)

	rec.CalmAbs, rec.HighAbs = math.NaN(), math.NaN()
	if st.guard.Full() {
		prior := st.guard.Values()
		if !stats.AnyNaN(prior) {
			rec.CalmAbs = stats.Quantile(prior, cfg.CalmQuantile)
			rec.HighAbs = stats.Quantile(prior, cfg.HighQuantile)
		}
	}

	defined := stats.IsFinite(rec.RV) && stats.IsFinite(rec.Pct)
	rec.Defined = defined
	if defined {
		m.classify(&rec)
	} else {
		rec.State = Undefined
	}

	m.detectSpikes(&rec)
	m.overlay(&rec)

	rec.SizeMult = cfg.SizeFloor
	if stats.IsFinite(rec.RV) && rec.RV > 0 {
		rec.SizeMult = stats.Clip(cfg.TargetVol/rec.RV, cfg.SizeFloor, cfg.SizeCap)
	} else if st.seenRV || (stats.IsFinite(rec.RV) && rec.RV <= 0) {
		rec.Degenerate = true
	}
	if stats.IsFinite(rec.RV) {
		st.seenRV = true
	}

	crisis := rec.Defined && rec.Crisis
	rec.AllowNew = !crisis && (rec.State == Calm || rec.State == Falling)
	rec.StopMult = 1.0
	if crisis || rec.State == High {
		rec.StopMult = cfg.StopTighten
	}

	if defined && rec.State != st.lastLabel && st.lastLabel != Undefined {
		m.logger.Debug().Time("date", date).Str("from", string(st.lastLabel)).Str("to", string(rec.State)).
			Float64("rv", rec.RV).Float64("pct", rec.Pct).Msg("Volatility state changed")
	}

	// trailing history is advanced only after today's values are final
	st.rvPrev.Push(rec.RV)
	st.rvLags.Push(rec.RV)
	st.guard.Push(rec.RV)
	st.prevPct = rec.Pct
	st.prevCalm = rec.Calm
	st.prevHigh = rec.High
	if defined {
		st.lastLabel = rec.State
	}
	return rec
}

func (m *Machine) classify(rec *Record) {
	cfg, st := m.cfg, m.state

	enterCalm := rec.Pct <= cfg.CalmEnter || (stats.IsFinite(rec.CalmAbs) && rec.RV <= rec.CalmAbs)
	stayCalm := st.prevCalm && rec.Pct <= cfg.CalmStay
	rec.Calm = enterCalm || stayCalm

	enterHigh := rec.Pct >= cfg.HighEnter || (stats.IsFinite(rec.HighAbs) && rec.RV >= rec.HighAbs)
	stayHigh := st.prevHigh && rec.Pct >= cfg.HighStay
	rec.High = enterHigh || stayHigh

	if !rec.Calm && !rec.High && stats.IsFinite(rec.Drv5) {
		switch {
		case rec.Drv5 > cfg.Drv5Epsilon:
			rec.Rising = true
		case rec.Drv5 < -cfg.Drv5Epsilon:
			rec.Falling = true
		}
	}

	switch {
	case rec.High:
		rec.State = High
	case rec.Rising:
		rec.State = Rising
	case rec.Calm:
		rec.State = Calm
	case rec.Falling:
		rec.State = Falling
	default:
		rec.State = st.lastLabel
	}
}

func (m *Machine) detectSpikes(rec *Record) {
	cfg, st := m.cfg, m.state

	st.drv1Hist.Push(rec.Drv1)
	st.retHist.Push(rec.Return)

	if sd := st.drv1Hist.Std(1); stats.IsFinite(sd) && stats.IsFinite(rec.Drv1) {
		rec.SpikeRVJump = math.Abs(rec.Drv1) > cfg.SpikeRVJumpSigma*sd
	}
	if sd := st.retHist.Std(1); stats.IsFinite(sd) && stats.IsFinite(rec.Return) {
		rec.SpikeRet = math.Abs(rec.Return) > cfg.SpikeRetSigma*sd
	}
	if jump := rec.Pct - st.prevPct; stats.IsFinite(jump) {
		rec.SpikePctJump = jump > cfg.SpikePctJump
	}
	rec.Spike = rec.SpikeRVJump || rec.SpikeRet || rec.SpikePctJump
}

// overlay turns the crisis flag on for any spike or High day and releases
// it only after CrisisExitDays consecutive percentiles below the exit
// level. Undefined days leave the overlay untouched.
func (m *Machine) overlay(rec *Record) {
	cfg, st := m.cfg, m.state

	st.pctTail.Push(rec.Pct)
	if !rec.Defined {
		return
	}

	if rec.Spike || rec.High {
		st.crisisOn = true
	} else if st.pctTail.Full() {
		below := true
		for _, p := range st.pctTail.Values() {
			if !(p < cfg.CrisisExitPct) {
				below = false
				break
			}
		}
		if below {
			st.crisisOn = false
		}
	}
	rec.Crisis = st.crisisOn
}

// Classify runs a fresh machine over the whole price series.
func Classify(cfg Config, prices series.TimeSeries) []Record {
	m := NewMachine(cfg)
	out := make([]Record, 0, prices.Len())
	for _, p := range prices.Points {
		out = append(out, m.Step(p.Date, p.Value))
	}
	return out
}
