package perf

import (
	"math"
	"sort"

	"github.com/sawpanic/regimeblend/internal/portfolio/blend"
	"github.com/sawpanic/regimeblend/internal/stats"
)

// PortfolioKey names the blended stream in an Attribution.
const PortfolioKey = "Portfolio"

// SleeveMetrics is the arithmetic summary of one PnL stream.
type SleeveMetrics struct {
	Sharpe       float64 `json:"sharpe"`        // mean/std × √days, 0 when flat
	AnnualReturn float64 `json:"annual_return"` // mean × days
	AnnualVol    float64 `json:"annual_vol"`
	Days         int     `json:"days"`
}

// Diversification compares the blend against its best stand-alone sleeve.
type Diversification struct {
	BestSleeveSharpe float64 `json:"best_sleeve_sharpe"`
	PortfolioSharpe  float64 `json:"portfolio_sharpe"`
	ImprovementPct   float64 `json:"improvement_pct"`
}

// Attribution holds per-sleeve metrics, the portfolio under PortfolioKey,
// and the diversification benefit.
type Attribution struct {
	Streams         map[string]SleeveMetrics `json:"streams"`
	Diversification Diversification          `json:"diversification"`
}

// Correlation is a symmetric sleeve correlation matrix in Names order.
type Correlation struct {
	Names  []string    `json:"names"`
	Matrix [][]float64 `json:"matrix"`
}

// At returns the correlation between two named sleeves.
func (c Correlation) At(a, b string) (float64, bool) {
	i, j := indexOf(c.Names, a), indexOf(c.Names, b)
	if i < 0 || j < 0 {
		return 0, false
	}
	return c.Matrix[i][j], true
}

// SleevePnL extracts each sleeve's daily PnL after warm-up, keyed by
// sleeve name.
func (c *Calculator) SleevePnL(records []blend.DailyRecord) (map[string][]float64, []float64) {
	rs := c.trim(records)
	sleeves := make(map[string][]float64)
	portfolio := make([]float64, len(rs))
	for i, r := range rs {
		for name, pnl := range r.SleevePnL {
			if sleeves[name] == nil {
				sleeves[name] = make([]float64, len(rs))
				for k := range sleeves[name] {
					sleeves[name][k] = math.NaN()
				}
			}
			sleeves[name][i] = pnl
		}
		portfolio[i] = r.Net
	}
	return sleeves, portfolio
}

// Attribute runs Attribute over the records that follow warm-up.
func (c *Calculator) Attribute(records []blend.DailyRecord) Attribution {
	sleeves, portfolio := c.SleevePnL(records)
	return Attribute(sleeves, portfolio, c.cfg.TradingDaysPerYear)
}

// Attribute scores every sleeve and the blended portfolio. Non-finite
// values are dropped per stream. The improvement is measured against the
// best sleeve with a positive Sharpe and is 0 when there is none.
func Attribute(sleeves map[string][]float64, portfolio []float64, days int) Attribution {
	a := Attribution{Streams: make(map[string]SleeveMetrics, len(sleeves)+1)}
	best := 0.0
	for name, pnl := range sleeves {
		m := streamMetrics(pnl, days)
		a.Streams[name] = m
		if m.Sharpe > best {
			best = m.Sharpe
		}
	}
	pm := streamMetrics(portfolio, days)
	a.Streams[PortfolioKey] = pm

	a.Diversification = Diversification{BestSleeveSharpe: best, PortfolioSharpe: pm.Sharpe}
	if best > 0 {
		a.Diversification.ImprovementPct = (pm.Sharpe/best - 1) * 100
	}
	return a
}

func streamMetrics(pnl []float64, days int) SleeveMetrics {
	xs := finite(pnl)
	if len(xs) == 0 {
		return SleeveMetrics{}
	}
	mean := stats.Mean(xs)
	std := stats.Std(xs, 1)
	m := SleeveMetrics{AnnualReturn: mean * float64(days), Days: len(xs)}
	if stats.IsFinite(std) {
		m.AnnualVol = std * math.Sqrt(float64(days))
		if std > 0 {
			m.Sharpe = mean / std * math.Sqrt(float64(days))
		}
	}
	return m
}

// CorrelationMatrix computes pairwise Pearson correlations over the dates
// where both sleeves are finite. Pairs with fewer than two shared
// observations or a flat stream read 0.
func CorrelationMatrix(sleeves map[string][]float64) Correlation {
	names := make([]string, 0, len(sleeves))
	for n := range sleeves {
		names = append(names, n)
	}
	sort.Strings(names)

	m := make([][]float64, len(names))
	for i := range m {
		m[i] = make([]float64, len(names))
		m[i][i] = 1
	}
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			r := pearson(sleeves[names[i]], sleeves[names[j]])
			m[i][j], m[j][i] = r, r
		}
	}
	return Correlation{Names: names, Matrix: m}
}

func pearson(a, b []float64) float64 {
	var xs, ys []float64
	for k := 0; k < len(a) && k < len(b); k++ {
		if stats.IsFinite(a[k]) && stats.IsFinite(b[k]) {
			xs = append(xs, a[k])
			ys = append(ys, b[k])
		}
	}
	if len(xs) < 2 {
		return 0
	}
	mx, my := stats.Mean(xs), stats.Mean(ys)
	var sxy, sxx, syy float64
	for k := range xs {
		dx, dy := xs[k]-mx, ys[k]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return 0
	}
	return sxy / math.Sqrt(sxx*syy)
}

func finite(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, x := range xs {
		if stats.IsFinite(x) {
			out = append(out, x)
		}
	}
	return out
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

// Names lists the streams with sleeves in name order and the portfolio
// last.
func (a Attribution) Names() []string {
	names := make([]string, 0, len(a.Streams))
	for name := range a.Streams {
		if name != PortfolioKey {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if _, ok := a.Streams[PortfolioKey]; ok {
		names = append(names, PortfolioKey)
	}
	return names
}
