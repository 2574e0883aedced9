package artifacts

import (
	"github.com/sawpanic/regimeblend/internal/pipeline"
	"github.com/sawpanic/regimeblend/internal/stats"
)

// DailyRow is the serialised form of one pipeline.DailyOutput. Values
// that are undefined during warm-up are nil and encode as JSON null.
type DailyRow struct {
	Date string `json:"date"`

	Price    *float64 `json:"price"`
	RetLog   *float64 `json:"ret_log"`
	RV       *float64 `json:"rv"`
	Pct      *float64 `json:"pctl"`
	VolState string   `json:"vol_state"`
	Spike    bool     `json:"spike"`
	VolCris  bool     `json:"vol_crisis"`
	SizeMult *float64 `json:"size_mult"`
	AllowNew bool     `json:"allow_new"`

	Spread        *float64 `json:"hy_spread"`
	Vix           *float64 `json:"vix"`
	CreditStress  *float64 `json:"credit_stress"`
	VixStress     *float64 `json:"vix_stress"`
	Velocity      *float64 `json:"velocity"`
	Composite     *float64 `json:"composite_crisis"`
	CrisisRegime  string   `json:"crisis_regime"`
	CrisisSizing  *float64 `json:"crisis_sizing"`
	ChopRegime    string   `json:"chop_regime"`
	MacroState    string   `json:"macro_state"`
	Combined      string   `json:"combined_regime"`
	Switched      bool     `json:"switched"`
	StopMult      *float64 `json:"stop_multiplier"`
	Convergence   *float64 `json:"convergence"`
	Target        Weights  `json:"target_weights"`
	Smoothed      Weights  `json:"smoothed_weights"`
	Allocation    Weights  `json:"allocation"`
	SleevePnL     Weights  `json:"sleeve_pnl"`
	SleeveScale   Weights  `json:"sleeve_scale"`
	ERCWeights    Weights  `json:"erc_weights"`
	BlendWeights  Weights  `json:"blend_weights"`
	ERCIterations int      `json:"erc_iterations"`

	RawPosition *float64 `json:"raw_position"`
	RealizedVol *float64 `json:"realized_vol"`
	Leverage    *float64 `json:"leverage"`
	Position    *float64 `json:"position"`
	Turnover    *float64 `json:"turnover"`
	Cost        *float64 `json:"cost"`
	Gross       *float64 `json:"pnl_gross"`
	Net         *float64 `json:"pnl_net"`
	Equity      *float64 `json:"equity"`

	Warnings []string `json:"warnings,omitempty"`
}

// Weights is a NaN-safe weight map.
type Weights map[string]*float64

func weightsOf(m map[string]float64) Weights {
	if m == nil {
		return nil
	}
	out := make(Weights, len(m))
	for k, v := range m {
		out[k] = num(v)
	}
	return out
}

func num(x float64) *float64 {
	if !stats.IsFinite(x) {
		return nil
	}
	return &x
}

// NewDailyRow flattens out.
func NewDailyRow(out pipeline.DailyOutput) DailyRow {
	v, c, b := out.Vol, out.Crisis, out.Blend
	row := DailyRow{
		Date:     out.Date.Format("2006-01-02"),
		Price:    num(v.Price),
		RetLog:   num(v.Return),
		RV:       num(v.RV),
		Pct:      num(v.Pct),
		VolState: string(v.State),
		Spike:    v.Spike,
		VolCris:  v.Defined && v.Crisis,
		SizeMult: num(v.SizeMult),
		AllowNew: v.AllowNew,

		Spread:       num(c.Spread),
		Vix:          num(c.Vix),
		CreditStress: num(c.CreditStress),
		VixStress:    num(c.VixStress),
		Velocity:     num(c.VelocityScore),
		Composite:    num(c.Composite),
		CrisisRegime: string(c.Regime),
		CrisisSizing: num(c.Sizing),
		ChopRegime:   string(out.Chop),
		MacroState:   string(out.Macro),
		Combined:     out.Combined,
		Switched:     out.Switched,
		StopMult:     num(out.StopMult),
		Convergence:  num(out.Convergence),

		Target:        weightsOf(out.Target),
		Smoothed:      weightsOf(out.Smoothed),
		Allocation:    weightsOf(out.Allocation),
		SleevePnL:     weightsOf(b.SleevePnL),
		SleeveScale:   weightsOf(b.SleeveScale),
		ERCWeights:    weightsOf(b.ERCWeights),
		BlendWeights:  weightsOf(b.BlendWeights),
		ERCIterations: b.ERCIterations,

		RawPosition: num(b.RawPosition),
		RealizedVol: num(b.RealizedVol),
		Leverage:    num(b.Leverage),
		Position:    num(b.Position),
		Turnover:    num(b.Turnover),
		Cost:        num(b.Cost),
		Gross:       num(b.Gross),
		Net:         num(b.Net),
		Equity:      num(b.Equity),
	}
	for _, w := range out.Warnings {
		row.Warnings = append(row.Warnings, w.Code)
	}
	return row
}

// Rows converts a whole run.
func Rows(days []pipeline.DailyOutput) []DailyRow {
	out := make([]DailyRow, len(days))
	for i, d := range days {
		out[i] = NewDailyRow(d)
	}
	return out
}
