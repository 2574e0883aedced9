package perf

import (
	"bytes"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/regimeblend/internal/portfolio/blend"
)

func records(net ...float64) []blend.DailyRecord {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]blend.DailyRecord, len(net))
	for i, n := range net {
		out[i] = blend.DailyRecord{Date: start.AddDate(0, 0, i), Net: n, Gross: n}
	}
	return out
}

func noWarmup() Config {
	cfg := DefaultConfig()
	cfg.WarmupDays = 0
	return cfg
}

func TestMaxDrawdown(t *testing.T) {
	assert.InDelta(t, -0.5, MaxDrawdown([]float64{0.1, -0.5, 0.2}), 1e-12)
	assert.Equal(t, 0.0, MaxDrawdown([]float64{0.01, 0.02}))
	assert.Equal(t, 0.0, MaxDrawdown(nil))
}

func TestCalculateBasics(t *testing.T) {
	calc := NewCalculator(noWarmup())
	m, err := calc.Calculate(records(0.01, 0.01))
	require.NoError(t, err)

	assert.Equal(t, 2, m.Observations)
	assert.InDelta(t, 0.0201, m.TotalReturn, 1e-12)
	assert.InDelta(t, math.Pow(1.0201, 126)-1, m.AnnualReturn, 1e-9)
	assert.Equal(t, 0.0, m.AnnualVol)
	assert.Equal(t, 0.0, m.Sharpe, "flat returns have no Sharpe")
	assert.Equal(t, 0.0, m.CostDragSharpe)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), m.EndDate)
}

func TestCalculateSkipsWarmup(t *testing.T) {
	cfg := noWarmup()
	cfg.WarmupDays = 2
	calc := NewCalculator(cfg)

	_, err := calc.Calculate(records(0.1, 0.1, 0.1))
	require.Error(t, err)

	m, err := calc.Calculate(records(-0.9, -0.9, 0.01, 0.02))
	require.NoError(t, err)
	assert.Equal(t, 2, m.Observations)
	assert.InDelta(t, 1.01*1.02-1, m.TotalReturn, 1e-12)
	assert.Equal(t, 0.0, m.MaxDrawdown)
}

func TestCalculateCostDrag(t *testing.T) {
	rs := records(0.01, -0.005, 0.008, 0.002)
	for i := range rs {
		rs[i].Turnover = []float64{0, 0.5, 0, 0.5}[i]
		rs[i].Cost = 1.5e-4 * rs[i].Turnover
		rs[i].Net = rs[i].Gross - rs[i].Cost
	}
	m, err := NewCalculator(noWarmup()).Calculate(rs)
	require.NoError(t, err)

	assert.Greater(t, m.GrossSharpe, m.Sharpe)
	assert.InDelta(t, m.GrossSharpe-m.Sharpe, m.CostDragSharpe, 1e-12)
	assert.Greater(t, m.CostDragReturn, 0.0)

	tv := m.Turnover
	assert.InDelta(t, 252.0, tv.AnnualTurnover, 1e-9)
	assert.InDelta(t, 0.5, tv.MeanTradeSize, 1e-12)
	assert.InDelta(t, 0.5, tv.MaxTradeSize, 1e-12)
	assert.InDelta(t, 126.0, tv.TradesPerYear, 1e-9)
	assert.InDelta(t, 1.0, tv.AvgHoldingDays, 1e-9)
	assert.InDelta(t, 1.5e-4/0.015, tv.CostPctGross, 1e-9)
}

func TestAttributeDiversification(t *testing.T) {
	a := []float64{0.01, -0.01, 0.02, 0.0}
	b := []float64{-0.01, -0.02, 0.0, -0.01}
	attr := Attribute(map[string][]float64{"a": a, "b": b}, a, 252)

	sa := attr.Streams["a"]
	assert.Equal(t, 4, sa.Days)
	assert.InDelta(t, 0.005*252, sa.AnnualReturn, 1e-12)
	assert.Greater(t, sa.Sharpe, 0.0)
	assert.Less(t, attr.Streams["b"].Sharpe, 0.0)

	d := attr.Diversification
	assert.InDelta(t, sa.Sharpe, d.BestSleeveSharpe, 1e-12)
	assert.InDelta(t, sa.Sharpe, d.PortfolioSharpe, 1e-12)
	assert.InDelta(t, 0.0, d.ImprovementPct, 1e-9)
}

func TestAttributeNoPositiveSleeve(t *testing.T) {
	b := []float64{-0.01, -0.02, 0.0, math.NaN()}
	attr := Attribute(map[string][]float64{"b": b}, []float64{0.01, 0.02, 0.0, 0.01}, 252)

	assert.Equal(t, 3, attr.Streams["b"].Days, "NaN dropped")
	assert.Equal(t, 0.0, attr.Diversification.BestSleeveSharpe)
	assert.Equal(t, 0.0, attr.Diversification.ImprovementPct)
	assert.Greater(t, attr.Streams[PortfolioKey].Sharpe, 0.0)
}

func TestCalculatorAttributeFromRecords(t *testing.T) {
	rs := records(0.0, 0.01, -0.01, 0.02)
	for i := range rs {
		rs[i].SleevePnL = map[string]float64{"trend": rs[i].Net * 2}
	}
	cfg := noWarmup()
	cfg.WarmupDays = 1
	attr := NewCalculator(cfg).Attribute(rs)

	assert.Equal(t, 3, attr.Streams["trend"].Days)
	assert.InDelta(t, attr.Streams[PortfolioKey].Sharpe, attr.Streams["trend"].Sharpe, 1e-9)
}

func TestCorrelationMatrix(t *testing.T) {
	corr := CorrelationMatrix(map[string][]float64{
		"a": {1, 2, 3, 4},
		"b": {2, 4, 6, 8},
		"c": {4, 3, 2, 1},
		"d": {1, 1, 1, 1},
	})
	require.Equal(t, []string{"a", "b", "c", "d"}, corr.Names)

	ab, ok := corr.At("a", "b")
	require.True(t, ok)
	assert.InDelta(t, 1.0, ab, 1e-12)
	ac, _ := corr.At("c", "a")
	assert.InDelta(t, -1.0, ac, 1e-12)
	ad, _ := corr.At("a", "d")
	assert.Equal(t, 0.0, ad)
	dd, _ := corr.At("d", "d")
	assert.Equal(t, 1.0, dd)

	_, ok = corr.At("a", "zzz")
	assert.False(t, ok)
}

type failingHandler struct{}

func (failingHandler) SendAlert(Alert) error { return errors.New("down") }
func (failingHandler) HandlerType() string   { return "failing" }

func TestAlertManager(t *testing.T) {
	am := NewAlertManager(DefaultConfig())
	corr := Correlation{Names: []string{"a", "b"}, Matrix: [][]float64{{1, 0.9}, {0.9, 1}}}
	alerts := am.Check(&Metrics{Sharpe: 0.2, MaxDrawdown: -0.35}, corr)

	require.Len(t, alerts, 3)
	assert.Equal(t, "drawdown", alerts[0].Type)
	assert.Equal(t, SeverityCritical, alerts[0].Severity)

	s := SummarizeAlerts(alerts)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 1, s.ByType["correlation"])
	assert.Equal(t, 2, s.BySeverity[SeverityWarning])

	var buf bytes.Buffer
	am.AddHandler(&LogHandler{Logger: zerolog.New(&buf)})
	require.NoError(t, am.SendAlerts(alerts))
	assert.Contains(t, buf.String(), "Maximum drawdown 35.00%")

	am.AddHandler(failingHandler{})
	assert.ErrorContains(t, am.SendAlerts(alerts[:1]), "handler failing failed")
}

func TestAlertManagerQuiet(t *testing.T) {
	am := NewAlertManager(DefaultConfig())
	assert.Empty(t, am.Check(&Metrics{Sharpe: 1.2, MaxDrawdown: -0.05}, Correlation{}))
}
