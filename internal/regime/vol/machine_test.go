package vol

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/regimeblend/internal/series"
)

var start = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// regimePrices walks a log-price with piecewise constant daily sigma.
func regimePrices(t *testing.T, seed int64, legs ...leg) series.TimeSeries {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	var dates []time.Time
	var values []float64
	p := 100.0
	i := 0
	for _, leg := range legs {
		for d := 0; d < leg.days; d++ {
			p *= math.Exp(rng.NormFloat64() * leg.sigma)
			dates = append(dates, start.AddDate(0, 0, i))
			values = append(values, p)
			i++
		}
	}
	s, err := series.FromSlices("price", dates, values)
	require.NoError(t, err)
	return s
}

type leg struct {
	days  int
	sigma float64
}

func flatPrices(t *testing.T, n int) series.TimeSeries {
	t.Helper()
	dates := make([]time.Time, n)
	values := make([]float64, n)
	for i := range dates {
		dates[i] = start.AddDate(0, 0, i)
		values[i] = 100
	}
	s, err := series.FromSlices("price", dates, values)
	require.NoError(t, err)
	return s
}

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.RVWindow = 3
	cfg.PctWindow = 5
	cfg.GuardWindow = 10
	return cfg
}

func TestWarmupIsUndefined(t *testing.T) {
	recs := Classify(smallConfig(), regimePrices(t, 1, leg{40, 0.01}))

	// rv needs 3 returns (index 3); the percentile needs 5 prior finite rv values
	for i := 0; i < 8; i++ {
		assert.Equal(t, Undefined, recs[i].State, "index %d", i)
		assert.False(t, recs[i].Defined)
		assert.False(t, recs[i].AllowNew)
		assert.Equal(t, 1.0, recs[i].StopMult)
	}
	assert.True(t, recs[8].Defined)
	assert.False(t, math.IsNaN(recs[8].Pct))
}

func TestFlatPriceIsCalmAtSizeFloor(t *testing.T) {
	cfg := smallConfig()
	recs := Classify(cfg, flatPrices(t, 30))

	last := recs[len(recs)-1]
	assert.Equal(t, 0.0, last.RV)
	assert.Equal(t, 0.0, last.Pct)
	assert.Equal(t, Calm, last.State)
	assert.Equal(t, cfg.SizeFloor, last.SizeMult)
	assert.True(t, last.Degenerate)
	for _, r := range recs {
		assert.False(t, math.IsNaN(r.SizeMult))
	}
}

func TestStatePrecedenceAndHysteresis(t *testing.T) {
	cfg := DefaultConfig()
	recs := Classify(cfg, regimePrices(t, 42, leg{400, 0.005}, leg{150, 0.03}, leg{350, 0.005}))

	seen := map[Label]int{}
	for i, r := range recs {
		if !r.Defined {
			continue
		}
		seen[r.State]++

		if r.High {
			assert.Equal(t, High, r.State, "index %d", i)
		}
		if r.Rising || r.Falling {
			assert.False(t, r.Calm || r.High, "secondary state with primary set at %d", i)
		}
		if r.Calm && !r.High && !r.Rising {
			assert.Equal(t, Calm, r.State)
		}

		prev := recs[i-1]
		if r.Calm && !(r.Pct <= cfg.CalmEnter || (!math.IsNaN(r.CalmAbs) && r.RV <= r.CalmAbs)) {
			assert.True(t, prev.Calm && r.Pct <= cfg.CalmStay, "calm held without stay condition at %d", i)
		}
		if r.High && !(r.Pct >= cfg.HighEnter || (!math.IsNaN(r.HighAbs) && r.RV >= r.HighAbs)) {
			assert.True(t, prev.High && r.Pct >= cfg.HighStay, "high held without stay condition at %d", i)
		}
		if !r.High && !r.Calm && !r.Rising && !r.Falling && prev.Defined {
			assert.Equal(t, prev.State, r.State, "carry forward at %d", i)
		}
	}
	assert.Positive(t, seen[High])
	assert.Positive(t, seen[Calm])
}

func TestCrisisOverlayThreeDayExit(t *testing.T) {
	cfg := DefaultConfig()
	recs := Classify(cfg, regimePrices(t, 7, leg{400, 0.005}, leg{120, 0.03}, leg{300, 0.005}))

	onDays := 0
	for i := 3; i < len(recs); i++ {
		r, prev := recs[i], recs[i-1]
		if !r.Defined || !prev.Defined {
			continue
		}
		if r.Crisis {
			onDays++
		}
		if r.Spike || r.High {
			assert.True(t, r.Crisis, "index %d", i)
		}
		if prev.Crisis && !r.Crisis {
			for j := 0; j < 3; j++ {
				assert.Less(t, recs[i-j].Pct, cfg.CrisisExitPct, "released at %d without confirmation", i)
			}
		}
		if !prev.Crisis && r.Crisis {
			assert.True(t, r.Spike || r.High)
		}
		if r.Crisis {
			assert.False(t, r.AllowNew)
			assert.Equal(t, cfg.StopTighten, r.StopMult)
		}
	}
	assert.Positive(t, onDays)
}

func TestCrisisOverlaySingleDayExit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CrisisExitDays = 1
	recs := Classify(cfg, regimePrices(t, 7, leg{400, 0.005}, leg{120, 0.03}, leg{300, 0.005}))

	for i := 1; i < len(recs); i++ {
		r := recs[i]
		if !r.Defined || r.Spike || r.High {
			continue
		}
		assert.Equal(t, !(r.Pct < cfg.CrisisExitPct) && recs[i-1].Crisis, r.Crisis, "index %d", i)
	}
}

func TestReturnShockFiresSpike(t *testing.T) {
	base := regimePrices(t, 3, leg{320, 0.005})
	pts := append([]series.Point(nil), base.Points...)
	last := pts[len(pts)-1]
	pts = append(pts, series.Point{Date: last.Date.AddDate(0, 0, 1), Value: last.Value * 1.10})
	s, err := series.New("price", pts)
	require.NoError(t, err)

	recs := Classify(DefaultConfig(), s)
	shock := recs[len(recs)-1]
	assert.True(t, shock.SpikeRet)
	assert.True(t, shock.Spike)
	assert.True(t, shock.Crisis)
	assert.False(t, shock.AllowNew)
}

func TestFutureInputDoesNotChangePast(t *testing.T) {
	cfg := DefaultConfig()
	base := regimePrices(t, 11, leg{350, 0.01})
	alt := series.TimeSeries{Name: base.Name, Points: append([]series.Point(nil), base.Points...)}
	alt.Points[len(alt.Points)-1].Value *= 1.5

	a := Classify(cfg, base)
	b := Classify(cfg, alt)
	for i := 0; i < len(a)-1; i++ {
		assert.Equal(t, a[i].State, b[i].State)
		assert.Equal(t, a[i].Crisis, b[i].Crisis)
		assert.True(t, sameFloat(a[i].Pct, b[i].Pct), "pct at %d", i)
		assert.True(t, sameFloat(a[i].SizeMult, b[i].SizeMult))
	}
}

func TestSizeMultClipped(t *testing.T) {
	cfg := DefaultConfig()
	for _, r := range Classify(cfg, regimePrices(t, 5, leg{300, 0.0005}, leg{100, 0.05})) {
		assert.GreaterOrEqual(t, r.SizeMult, cfg.SizeFloor)
		assert.LessOrEqual(t, r.SizeMult, cfg.SizeCap)
	}
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.CalmStay = 0.2
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.HighStay = 0.8
	assert.Error(t, cfg.Validate())
}

func sameFloat(a, b float64) bool {
	if math.IsNaN(a) && math.IsNaN(b) {
		return true
	}
	return a == b
}
