// Package blend turns sleeve positions and regime weights into a single
// vol-targeted, cost-aware daily position and PnL stream.
//
// Every quantity that sizes the position established on date T uses data
// realised up to and including T. That position earns the return of T+1.
package blend

import (
	"fmt"
	"math"
	"time"

	"github.com/sawpanic/regimeblend/internal/diag"
	"github.com/sawpanic/regimeblend/internal/portfolio/erc"
	"github.com/sawpanic/regimeblend/internal/portfolio/weights"
	"github.com/sawpanic/regimeblend/internal/stats"
)

// SleeveInput is one sleeve's observation on a date. Return is optional; a
// NaN falls back to the market return.
type SleeveInput struct {
	Position float64
	Return   float64
}

// Input is everything the blender needs for one date.
type Input struct {
	Date time.Time
	// Return is the market simple return from the previous date to Date.
	Return  float64
	Sleeves map[string]SleeveInput
	// Allocation is the cash-adjusted regime weight vector.
	Allocation weights.Vector
}

// DailyRecord is the append-only output for one date.
type DailyRecord struct {
	Date          time.Time          `json:"date"`
	Return        float64            `json:"return"`
	SleevePnL     map[string]float64 `json:"sleeve_pnl"`
	SleeveScale   map[string]float64 `json:"sleeve_scale"`
	ERCWeights    map[string]float64 `json:"erc_weights"`
	BlendWeights  map[string]float64 `json:"blend_weights"`
	ERCIterations int                `json:"erc_iterations"`
	RawPosition   float64            `json:"raw_position"`
	RealizedVol   float64            `json:"realized_vol"`
	Leverage      float64            `json:"leverage"`
	Position      float64            `json:"position"`
	Turnover      float64            `json:"turnover"`
	Cost          float64            `json:"cost"`
	Gross         float64            `json:"gross"`
	Net           float64            `json:"net"`
	Equity        float64            `json:"equity"`
}

// State is the carried-forward blender memory.
type State struct {
	prevSleevePos map[string]float64
	prevScale     map[string]float64
	sleevePnL     map[string]*stats.Window
	covRows       [][]float64
	ercWeights    []float64
	compositePnL  *stats.Window
	prevRaw       float64
	prevPos       float64
	equity        float64
}

// Blender folds Inputs into DailyRecords for a fixed sleeve set.
type Blender struct {
	cfg     Config
	sleeves []string
	diag    *diag.Collector
	state   *State
}

// NewBlender fixes the sleeve order. collector may be nil.
func NewBlender(cfg Config, sleeves []string, collector *diag.Collector) (*Blender, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(sleeves) == 0 {
		return nil, fmt.Errorf("at least one sleeve is required")
	}
	seen := make(map[string]struct{}, len(sleeves))
	for _, s := range sleeves {
		if s == weights.Cash {
			return nil, fmt.Errorf("%q is reserved and cannot be a sleeve", s)
		}
		if _, dup := seen[s]; dup {
			return nil, fmt.Errorf("duplicate sleeve %q", s)
		}
		seen[s] = struct{}{}
	}
	b := &Blender{cfg: cfg, sleeves: append([]string(nil), sleeves...), diag: collector}
	b.Reset()
	return b, nil
}

// Reset drops all carried state.
func (b *Blender) Reset() {
	st := &State{
		prevSleevePos: make(map[string]float64, len(b.sleeves)),
		prevScale:     make(map[string]float64, len(b.sleeves)),
		sleevePnL:     make(map[string]*stats.Window, len(b.sleeves)),
		compositePnL:  stats.NewWindow(b.cfg.VolLookback),
		equity:        1,
	}
	for _, s := range b.sleeves {
		st.sleevePnL[s] = stats.NewWindow(b.cfg.SleeveVolLookback)
		st.prevScale[s] = 1
	}
	b.state = st
}

// Sleeves returns the sleeve order.
func (b *Blender) Sleeves() []string { return append([]string(nil), b.sleeves...) }

// Step processes one date.
func (b *Blender) Step(in Input) DailyRecord {
	st := b.state
	n := len(b.sleeves)
	ret := in.Return
	if !stats.IsFinite(ret) {
		ret = 0
	}

	rec := DailyRecord{
		Date:         in.Date,
		Return:       ret,
		SleevePnL:    make(map[string]float64, n),
		SleeveScale:  make(map[string]float64, n),
		ERCWeights:   make(map[string]float64, n),
		BlendWeights: make(map[string]float64, n),
	}

	// Realise yesterday's positions against today's returns.
	rec.Gross = st.prevPos * ret
	row := make([]float64, n)
	for i, s := range b.sleeves {
		sr := in.Sleeves[s].Return
		if !stats.IsFinite(sr) {
			sr = ret
		}
		pnl := st.prevSleevePos[s] * sr
		rec.SleevePnL[s] = pnl
		st.sleevePnL[s].Push(pnl)
		row[i] = st.prevScale[s] * pnl
	}
	b.pushRow(row)
	st.compositePnL.Push(st.prevRaw * ret)

	// Size today's position from everything realised so far.
	scales := b.sleeveScales(in.Date)
	ercW, iters := b.solveERC(in.Date)
	rec.ERCIterations = iters
	blendW := b.blendWeights(ercW, in.Allocation)

	raw := 0.0
	for i, s := range b.sleeves {
		pos := stats.Clip(in.Sleeves[s].Position, -1, 1)
		if !stats.IsFinite(pos) {
			pos = 0
		}
		raw += scales[i] * pos * blendW[i]
		rec.SleeveScale[s] = scales[i]
		rec.ERCWeights[s] = ercW[i]
		rec.BlendWeights[s] = blendW[i]
		st.prevSleevePos[s] = pos
		st.prevScale[s] = scales[i]
	}
	raw = stats.Clip(raw, -b.cfg.PositionCap, b.cfg.PositionCap)

	rec.RealizedVol, rec.Leverage = b.leverage(in.Date)
	rec.RawPosition = raw
	rec.Position = rec.Leverage * raw
	rec.Turnover = math.Abs(rec.Position - st.prevPos)
	rec.Cost = b.cfg.OneWayBps * 1e-4 * rec.Turnover
	rec.Net = rec.Gross - rec.Cost
	st.equity *= 1 + rec.Net
	rec.Equity = st.equity

	st.prevRaw = raw
	st.prevPos = rec.Position
	return rec
}

func (b *Blender) pushRow(row []float64) {
	st := b.state
	st.covRows = append(st.covRows, row)
	if over := len(st.covRows) - b.cfg.CovWindow; over > 0 {
		st.covRows = st.covRows[over:]
	}
}

// sleeveScales targets SleeveTargetVol per sleeve. Until a sleeve's window
// fills it trades unscaled; a zero or invalid vol afterwards switches it off.
func (b *Blender) sleeveScales(date time.Time) []float64 {
	out := make([]float64, len(b.sleeves))
	ann := math.Sqrt(float64(b.cfg.AnnualDays))
	for i, s := range b.sleeves {
		w := b.state.sleevePnL[s]
		if !w.Full() {
			out[i] = 1
			continue
		}
		vol := w.Std(1) * ann
		if !stats.IsFinite(vol) || vol <= 0 {
			b.degenerate(date, diag.ComponentSleeve, fmt.Sprintf("%s realised vol %g", s, vol), "scale 0")
			out[i] = 0
			continue
		}
		out[i] = b.cfg.SleeveTargetVol / vol
	}
	return out
}

// solveERC warm-starts from the previous solution once the covariance
// window is full. Before that the sleeves are equally weighted.
func (b *Blender) solveERC(date time.Time) ([]float64, int) {
	st := b.state
	n := len(b.sleeves)
	if len(st.covRows) < b.cfg.CovWindow {
		eq := make([]float64, n)
		for i := range eq {
			eq[i] = 1 / float64(n)
		}
		return eq, 0
	}
	res := erc.SolveFrom(erc.Covariance(st.covRows), st.ercWeights, b.cfg.ERC)
	if res.Degenerate {
		b.degenerate(date, diag.ComponentERC, res.Detail, "last valid weights")
	}
	st.ercWeights = res.Weights
	return res.Weights, res.Iterations
}

// blendWeights combines ERC and regime weights. The product is normalised
// over sleeves and then scaled to the allocation's invested share, so Cash
// reduces exposure rather than being redistributed.
func (b *Blender) blendWeights(ercW []float64, alloc weights.Vector) []float64 {
	n := len(b.sleeves)
	out := make([]float64, n)
	if alloc == nil {
		alloc = weights.Vector{}
		for _, s := range b.sleeves {
			alloc[s] = 1 / float64(n)
		}
	}
	total := 0.0
	for i, s := range b.sleeves {
		out[i] = ercW[i] * alloc[s]
		total += out[i]
	}
	if total <= 0 || !stats.IsFinite(total) {
		for i := range out {
			out[i] = 0
		}
		return out
	}
	exposure := alloc.Exposure()
	for i := range out {
		out[i] = out[i] / total * exposure
	}
	return out
}

// leverage is TargetVol over the realised vol of the unlevered composite,
// capped. A composite with no measurable vol gets the cap.
func (b *Blender) leverage(date time.Time) (float64, float64) {
	w := b.state.compositePnL
	if !w.Full() {
		return math.NaN(), b.cfg.LeverageCap
	}
	rv := w.Std(0) * math.Sqrt(float64(b.cfg.AnnualDays))
	if !stats.IsFinite(rv) || rv <= 0 {
		b.degenerate(date, diag.ComponentVolTarget, fmt.Sprintf("composite realised vol %g", rv), "leverage cap")
		return rv, b.cfg.LeverageCap
	}
	return rv, stats.Clip(b.cfg.TargetVol/rv, 0, b.cfg.LeverageCap)
}

func (b *Blender) degenerate(date time.Time, component, detail, fallback string) {
	if b.diag == nil {
		return
	}
	b.diag.Degenerate(diag.Degeneracy{Date: date, Component: component, Detail: detail, Fallback: fallback})
}

// Run folds a full input sequence from a fresh state.
func Run(cfg Config, sleeves []string, inputs []Input, collector *diag.Collector) ([]DailyRecord, error) {
	b, err := NewBlender(cfg, sleeves, collector)
	if err != nil {
		return nil, err
	}
	out := make([]DailyRecord, 0, len(inputs))
	for _, in := range inputs {
		out = append(out, b.Step(in))
	}
	return out, nil
}
