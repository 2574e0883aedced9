// Package perf computes execution metrics, sleeve attribution and
// threshold alerts from the blended daily records of a run.
package perf

import (
	"fmt"
	"math"
	"time"

	"github.com/sawpanic/regimeblend/internal/portfolio/blend"
	"github.com/sawpanic/regimeblend/internal/stats"
)

// Metrics summarises the net and gross return streams of one run.
type Metrics struct {
	// Net (primary)
	Sharpe       float64 `json:"sharpe"`        // annual return / annual vol
	AnnualReturn float64 `json:"annual_return"` // geometric, annualised
	AnnualVol    float64 `json:"annual_vol"`    // std (ddof=1) × √days
	MaxDrawdown  float64 `json:"max_drawdown"`  // most negative peak-to-trough, <= 0
	TotalReturn  float64 `json:"total_return"`

	// Gross, for cost comparison
	GrossSharpe       float64 `json:"gross_sharpe"`
	GrossAnnualReturn float64 `json:"gross_annual_return"`
	CostDragSharpe    float64 `json:"cost_drag_sharpe"`
	CostDragReturn    float64 `json:"cost_drag_return"`

	Turnover Turnover `json:"turnover"`

	Observations int       `json:"observations"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
}

// Turnover describes trading activity after warm-up.
type Turnover struct {
	AnnualTurnover float64 `json:"annual_turnover"`
	MeanTradeSize  float64 `json:"mean_trade_size"`
	MaxTradeSize   float64 `json:"max_trade_size"`
	TradesPerYear  float64 `json:"trades_per_year"`
	AnnualCost     float64 `json:"annual_cost"`
	CostPctGross   float64 `json:"cost_as_pct_gross"`
	AvgHoldingDays float64 `json:"avg_holding_days"` // 0 when nothing traded
}

// Config controls annualisation, warm-up and alert thresholds.
type Config struct {
	TradingDaysPerYear int     `yaml:"trading_days_per_year" default:"252" validate:"gte=1"`
	WarmupDays         int     `yaml:"warmup_days" default:"63" validate:"gte=0"`
	MinSharpe          float64 `yaml:"min_sharpe" default:"0.5"`
	MaxDrawdown        float64 `yaml:"max_drawdown" default:"0.20" validate:"gt=0,lte=1"`
	MaxCorrelation     float64 `yaml:"max_correlation" default:"0.65" validate:"gt=0,lte=1"`
}

// DefaultConfig matches the shipped configuration.
func DefaultConfig() Config {
	return Config{
		TradingDaysPerYear: 252,
		WarmupDays:         63,
		MinSharpe:          0.5,
		MaxDrawdown:        0.20,
		MaxCorrelation:     0.65,
	}
}

// Calculator derives Metrics and Attribution from daily records.
type Calculator struct {
	cfg Config
}

// NewCalculator returns a calculator for cfg.
func NewCalculator(cfg Config) *Calculator {
	return &Calculator{cfg: cfg}
}

// Config returns the calculator settings.
func (c *Calculator) Config() Config { return c.cfg }

func (c *Calculator) trim(records []blend.DailyRecord) []blend.DailyRecord {
	if c.cfg.WarmupDays >= len(records) {
		return nil
	}
	return records[c.cfg.WarmupDays:]
}

// Calculate computes net and gross metrics over the records that follow
// the warm-up period.
func (c *Calculator) Calculate(records []blend.DailyRecord) (*Metrics, error) {
	rs := c.trim(records)
	if len(rs) < 2 {
		return nil, fmt.Errorf("need at least 2 observations after %d warm-up days, got %d", c.cfg.WarmupDays, len(rs))
	}

	net := make([]float64, len(rs))
	gross := make([]float64, len(rs))
	for i, r := range rs {
		net[i] = finiteOrZero(r.Net)
		gross[i] = finiteOrZero(r.Gross)
	}

	m := &Metrics{
		Observations: len(rs),
		StartDate:    rs[0].Date,
		EndDate:      rs[len(rs)-1].Date,
	}
	m.TotalReturn, m.AnnualReturn, m.AnnualVol, m.Sharpe = c.returnStats(net)
	_, m.GrossAnnualReturn, _, m.GrossSharpe = c.returnStats(gross)
	m.CostDragSharpe = m.GrossSharpe - m.Sharpe
	m.CostDragReturn = m.GrossAnnualReturn - m.AnnualReturn
	m.MaxDrawdown = MaxDrawdown(net)
	m.Turnover = c.turnover(rs)
	return m, nil
}

// returnStats compounds rets into total and annualised figures.
func (c *Calculator) returnStats(rets []float64) (total, annual, vol, sharpe float64) {
	days := float64(c.cfg.TradingDaysPerYear)
	equity := 1.0
	for _, r := range rets {
		equity *= 1 + r
	}
	total = equity - 1
	if equity > 0 {
		annual = math.Pow(equity, days/float64(len(rets))) - 1
	} else {
		annual = -1
	}
	vol = stats.Std(rets, 1) * math.Sqrt(days)
	if vol > 0 {
		sharpe = annual / vol
	}
	return total, annual, vol, sharpe
}

func (c *Calculator) turnover(rs []blend.DailyRecord) Turnover {
	years := float64(len(rs)) / float64(c.cfg.TradingDaysPerYear)
	var t Turnover
	var total, cost, grossSum float64
	trades := 0
	for _, r := range rs {
		size := math.Abs(finiteOrZero(r.Turnover))
		total += size
		cost += finiteOrZero(r.Cost)
		grossSum += finiteOrZero(r.Gross)
		if size > 0 {
			trades++
			t.MaxTradeSize = math.Max(t.MaxTradeSize, size)
		}
	}
	if trades > 0 {
		t.MeanTradeSize = total / float64(trades)
	}
	t.AnnualTurnover = total / years
	t.TradesPerYear = float64(trades) / years
	t.AnnualCost = cost / years
	if grossSum != 0 {
		t.CostPctGross = math.Abs(cost / grossSum)
	}
	if t.AnnualTurnover > 0 {
		t.AvgHoldingDays = float64(c.cfg.TradingDaysPerYear) / t.AnnualTurnover
	}
	return t
}

// MaxDrawdown returns the most negative (equity − peak)/peak of the
// compounded return stream, or 0 if equity never falls.
func MaxDrawdown(rets []float64) float64 {
	equity, peak, worst := 1.0, 1.0, 0.0
	for _, r := range rets {
		equity *= 1 + r
		if equity > peak {
			peak = equity
		}
		if dd := (equity - peak) / peak; dd < worst {
			worst = dd
		}
	}
	return worst
}

func finiteOrZero(x float64) float64 {
	if stats.IsFinite(x) {
		return x
	}
	return 0
}
