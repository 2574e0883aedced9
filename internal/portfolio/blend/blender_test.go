package blend

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/regimeblend/internal/diag"
	"github.com/sawpanic/regimeblend/internal/portfolio/weights"
	"github.com/sawpanic/regimeblend/internal/stats"
)

var sleeves = []string{"carry", "trend"}

func day(i int) time.Time {
	return time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
}

func equalAlloc() weights.Vector {
	return weights.Vector{"carry": 0.5, "trend": 0.5}
}

func randomInputs(seed int64, n int) []Input {
	rng := rand.New(rand.NewSource(seed))
	out := make([]Input, n)
	for i := range out {
		out[i] = Input{
			Date:   day(i),
			Return: rng.NormFloat64() * 0.012,
			Sleeves: map[string]SleeveInput{
				"carry": {Position: stats.Clip(rng.NormFloat64(), -1, 1), Return: math.NaN()},
				"trend": {Position: stats.Clip(rng.NormFloat64(), -1, 1), Return: math.NaN()},
			},
			Allocation: equalAlloc(),
		}
	}
	out[0].Return = math.NaN()
	return out
}

func TestFlatPriceLeverageAtCapAndNoNaN(t *testing.T) {
	cfg := DefaultConfig()
	inputs := make([]Input, 120)
	for i := range inputs {
		pos := 0.0
		if i >= 10 {
			pos = 1
			if i%7 == 0 {
				pos = -1
			}
		}
		inputs[i] = Input{
			Date:   day(i),
			Return: 0,
			Sleeves: map[string]SleeveInput{
				"carry": {Position: pos, Return: math.NaN()},
				"trend": {Position: pos, Return: math.NaN()},
			},
			Allocation: equalAlloc(),
		}
	}

	col := diag.NewCollector()
	recs, err := Run(cfg, sleeves, inputs, col)
	require.NoError(t, err)
	require.Len(t, recs, len(inputs))

	for i, r := range recs {
		assert.Equal(t, cfg.LeverageCap, r.Leverage, "day %d", i)
		assert.Zero(t, r.Gross, "day %d", i)
		assert.InDelta(t, -r.Cost, r.Net, 1e-15, "day %d", i)
		for _, x := range []float64{r.Position, r.Net, r.Equity, r.Cost} {
			assert.False(t, math.IsNaN(x) || math.IsInf(x, 0), "day %d", i)
		}
		if i < 10 {
			assert.Zero(t, r.Net, "no trade yet on day %d", i)
			assert.Equal(t, 1.0, r.Equity)
		}
	}
	assert.Greater(t, recs[10].Turnover, 0.0)
	assert.Positive(t, col.CountByComponent()[diag.ComponentVolTarget])
}

func TestCausality(t *testing.T) {
	base := randomInputs(3, 200)
	ref, err := Run(DefaultConfig(), sleeves, base, nil)
	require.NoError(t, err)

	for _, k := range []int{30, 90, 150} {
		mutated := randomInputs(3, 200)
		mutated[k].Return = 0.2
		mutated[k].Sleeves = map[string]SleeveInput{
			"carry": {Position: -1, Return: 0.5},
			"trend": {Position: 1, Return: -0.5},
		}
		mutated[k].Allocation = weights.Vector{"carry": 0.1, weights.Cash: 0.9}

		got, err := Run(DefaultConfig(), sleeves, mutated, nil)
		require.NoError(t, err)
		for i := 0; i < k; i++ {
			requireSameRecord(t, ref[i], got[i], "mutating day %d changed day %d", k, i)
		}
		assert.NotEqual(t, ref[k].Net, got[k].Net)
	}
}

// requireSameRecord compares records treating NaN as equal to NaN.
func requireSameRecord(t *testing.T, want, got DailyRecord, msgAndArgs ...interface{}) {
	t.Helper()
	if math.IsNaN(want.RealizedVol) && math.IsNaN(got.RealizedVol) {
		want.RealizedVol, got.RealizedVol = 0, 0
	}
	require.Equal(t, want, got, msgAndArgs...)
}

func TestGrossUsesPreviousPositionAndCostUsesChange(t *testing.T) {
	cfg := DefaultConfig()
	recs, err := Run(cfg, sleeves, randomInputs(5, 120), nil)
	require.NoError(t, err)

	prevPos := 0.0
	equity := 1.0
	for i, r := range recs {
		assert.InDelta(t, prevPos*r.Return, r.Gross, 1e-15, "day %d", i)
		assert.InDelta(t, math.Abs(r.Position-prevPos), r.Turnover, 1e-15, "day %d", i)
		assert.InDelta(t, cfg.OneWayBps*1e-4*r.Turnover, r.Cost, 1e-15, "day %d", i)
		assert.InDelta(t, r.Gross-r.Cost, r.Net, 1e-15, "day %d", i)
		equity *= 1 + r.Net
		assert.InDelta(t, equity, r.Equity, 1e-12, "day %d", i)
		assert.InDelta(t, r.Leverage*r.RawPosition, r.Position, 1e-15)
		assert.LessOrEqual(t, math.Abs(r.RawPosition), cfg.PositionCap)
		prevPos = r.Position
	}
	assert.Zero(t, recs[0].Gross)
}

func TestLeverageTargetsTrailingCompositeVol(t *testing.T) {
	cfg := DefaultConfig()
	recs, err := Run(cfg, sleeves, randomInputs(9, 150), nil)
	require.NoError(t, err)

	pnl := make([]float64, len(recs))
	prevRaw := 0.0
	for i, r := range recs {
		pnl[i] = prevRaw * r.Return
		prevRaw = r.RawPosition
	}
	for i := cfg.VolLookback - 1; i < len(recs); i++ {
		rv := stats.Std(pnl[i-cfg.VolLookback+1:i+1], 0) * math.Sqrt(252)
		want := cfg.LeverageCap
		if rv > 0 {
			want = stats.Clip(cfg.TargetVol/rv, 0, cfg.LeverageCap)
		}
		assert.InDelta(t, want, recs[i].Leverage, 1e-9, "day %d", i)
		assert.InDelta(t, rv, recs[i].RealizedVol, 1e-12)
	}
	for i := 0; i < cfg.VolLookback-1; i++ {
		assert.Equal(t, cfg.LeverageCap, recs[i].Leverage)
		assert.True(t, math.IsNaN(recs[i].RealizedVol))
	}
}

func TestERCFavoursLowerVolSleeve(t *testing.T) {
	cfg := DefaultConfig()
	rng := rand.New(rand.NewSource(21))
	inputs := make([]Input, cfg.CovWindow)
	for i := range inputs {
		inputs[i] = Input{
			Date: day(i),
			Sleeves: map[string]SleeveInput{
				"carry": {Position: 1, Return: rng.NormFloat64() * 0.01},
				"trend": {Position: 1, Return: rng.NormFloat64() * 0.02},
			},
			Allocation: equalAlloc(),
		}
	}
	recs, err := Run(cfg, sleeves, inputs, nil)
	require.NoError(t, err)

	carry := make([]float64, len(recs))
	trend := make([]float64, len(recs))
	for i, r := range recs {
		carry[i] = r.SleevePnL["carry"]
		trend[i] = r.SleevePnL["trend"]
	}
	ic, it := 1/stats.Std(carry, 1), 1/stats.Std(trend, 1)

	last := recs[len(recs)-1]
	assert.Positive(t, last.ERCIterations)
	assert.InDelta(t, ic/(ic+it), last.ERCWeights["carry"], 1e-6)
	assert.Greater(t, last.ERCWeights["carry"], last.ERCWeights["trend"])

	// warm-up days are equally weighted
	assert.Equal(t, 0.5, recs[0].ERCWeights["carry"])
	assert.Zero(t, recs[0].ERCIterations)
}

func TestCashScalesExposure(t *testing.T) {
	full := randomInputs(13, 20)
	half := randomInputs(13, 20)
	for i := range half {
		half[i].Allocation = weights.Vector{"carry": 0.25, "trend": 0.25, weights.Cash: 0.5}
	}
	a, err := Run(DefaultConfig(), sleeves, full, nil)
	require.NoError(t, err)
	b, err := Run(DefaultConfig(), sleeves, half, nil)
	require.NoError(t, err)

	for i := range a {
		assert.InDelta(t, a[i].RawPosition*0.5, b[i].RawPosition, 1e-12, "day %d", i)
		assert.InDelta(t, 0.25, b[i].BlendWeights["trend"], 1e-12)
	}
}

func TestNewBlenderValidation(t *testing.T) {
	_, err := NewBlender(DefaultConfig(), nil, nil)
	assert.Error(t, err)
	_, err = NewBlender(DefaultConfig(), []string{"a", "a"}, nil)
	assert.Error(t, err)
	_, err = NewBlender(DefaultConfig(), []string{weights.Cash}, nil)
	assert.Error(t, err)

	bad := DefaultConfig()
	bad.LeverageCap = 0
	_, err = NewBlender(bad, sleeves, nil)
	assert.Error(t, err)
}
