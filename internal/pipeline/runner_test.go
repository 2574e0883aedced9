package pipeline

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/regimeblend/internal/config"
	"github.com/sawpanic/regimeblend/internal/portfolio/weights"
	"github.com/sawpanic/regimeblend/internal/regime/macro"
)

var defaultSleeves = []string{"carry", "meanrev", "trend"}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Chop.Source = "none"
	return cfg
}

// syntheticInputs builds a random-walk market with a credit ramp from day
// 300 to 350 and random sleeve positions.
func syntheticInputs(name string, seed int64, n int) *Inputs {
	rng := rand.New(rand.NewSource(seed))
	in := &Inputs{
		Name:    name,
		Dates:   make([]time.Time, n),
		Price:   make([]float64, n),
		Credit:  make([]float64, n),
		Vix:     make([]float64, n),
		Sleeves: make(map[string]Sleeve),
	}
	start := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)
	p := 100.0
	for i := 0; i < n; i++ {
		in.Dates[i] = start.AddDate(0, 0, i)
		p *= math.Exp(rng.NormFloat64() * 0.01)
		in.Price[i] = p
		switch {
		case i < 300:
			in.Credit[i] = 400
		case i <= 350:
			in.Credit[i] = 400 + 500*float64(i-300)/50
		default:
			in.Credit[i] = 900
		}
		in.Vix[i] = 15
	}
	for _, s := range defaultSleeves {
		pos := make([]float64, n)
		for i := range pos {
			pos[i] = math.Max(-1, math.Min(1, rng.NormFloat64()))
		}
		in.Sleeves[s] = Sleeve{Position: pos}
	}
	return in
}

type countingObserver struct {
	mu   sync.Mutex
	days map[string]int
}

func (o *countingObserver) ObserveDay(instrument string, _ DailyOutput) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.days == nil {
		o.days = make(map[string]int)
	}
	o.days[instrument]++
}

func TestRunProducesOneNormalisedOutputPerDate(t *testing.T) {
	obs := &countingObserver{}
	r, err := NewRunner(testConfig(), obs)
	require.NoError(t, err)

	in := syntheticInputs("HG", 1, 500)
	res, err := r.Run(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, res.Days, len(in.Dates))
	assert.Equal(t, len(in.Dates), obs.days["HG"])
	assert.Equal(t, defaultSleeves, res.Sleeves)

	for i, d := range res.Days {
		assert.InDelta(t, 1.0, d.Smoothed.Sum(), 1e-9, "day %d", i)
		assert.InDelta(t, 1.0, d.Allocation.Sum(), 1e-9, "day %d", i)
		assert.False(t, math.IsNaN(d.Blend.Net), "day %d", i)
		assert.GreaterOrEqual(t, d.Convergence, 0.0)
		assert.LessOrEqual(t, d.Convergence, 100.0)
	}
	assert.Empty(t, res.Warnings)
	assert.False(t, res.Finished.Before(res.Started))
}

func TestCreditRampMovesIntoDefensiveAllocation(t *testing.T) {
	r, err := NewRunner(testConfig())
	require.NoError(t, err)
	res, err := r.Run(context.Background(), syntheticInputs("HG", 2, 500))
	require.NoError(t, err)

	for i := 0; i < 300; i++ {
		require.Equal(t, macro.Normal, res.Days[i].Macro, "day %d", i)
		assert.InDelta(t, 0.0, res.Days[i].Allocation[weights.Cash], 1e-12)
	}
	for i := 330; i <= 350; i++ {
		d := res.Days[i]
		require.Equal(t, macro.Crisis, d.Macro, "day %d", i)
		assert.InDelta(t, 0.5, d.Allocation[weights.Cash], 1e-9, "day %d", i)
		assert.InDelta(t, 0.5, d.Allocation.Exposure(), 1e-9)
	}
	assert.GreaterOrEqual(t, res.RegimeSwitches, 1)
	assert.False(t, res.Days[0].Switched)
	assert.Positive(t, res.Turnover)
}

func TestFutureInputsNeverChangeThePast(t *testing.T) {
	r, err := NewRunner(testConfig())
	require.NoError(t, err)
	ref, err := r.Run(context.Background(), syntheticInputs("HG", 3, 420))
	require.NoError(t, err)

	k := 333
	mutated := syntheticInputs("HG", 3, 420)
	mutated.Price[k] *= 1.3
	mutated.Credit[k] = 2000
	mutated.Sleeves["trend"].Position[k] = -mutated.Sleeves["trend"].Position[k]
	got, err := r.Run(context.Background(), mutated)
	require.NoError(t, err)

	for i := 0; i < k; i++ {
		a, b := ref.Days[i], got.Days[i]
		require.Equal(t, a.Macro, b.Macro, "day %d", i)
		require.Equal(t, a.Vol.State, b.Vol.State, "day %d", i)
		require.Equal(t, a.Allocation, b.Allocation, "day %d", i)
		require.Equal(t, a.Blend.Position, b.Blend.Position, "day %d", i)
		require.Equal(t, a.Blend.Net, b.Blend.Net, "day %d", i)
		require.Equal(t, a.Blend.Equity, b.Blend.Equity, "day %d", i)
	}
	assert.NotEqual(t, ref.Days[k].Blend.Gross, got.Days[k].Blend.Gross)
}

func TestMissingWeightedSleeveFailsBeforeAnyDate(t *testing.T) {
	obs := &countingObserver{}
	r, err := NewRunner(testConfig(), obs)
	require.NoError(t, err)

	in := syntheticInputs("HG", 4, 50)
	delete(in.Sleeves, "meanrev")
	_, err = r.Run(context.Background(), in)

	var ce *config.ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "regime_weights", ce.Key)
	assert.Zero(t, obs.days["HG"])
}

func TestMisalignedInputsAreRejected(t *testing.T) {
	r, err := NewRunner(testConfig())
	require.NoError(t, err)
	in := syntheticInputs("HG", 5, 50)
	in.Price = in.Price[:49]
	_, err = r.Run(context.Background(), in)
	assert.Error(t, err)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	r, err := NewRunner(testConfig())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Run(ctx, syntheticInputs("HG", 6, 50))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunManyKeepsOrderAndMatchesSequential(t *testing.T) {
	r, err := NewRunner(testConfig())
	require.NoError(t, err)

	inputs := []*Inputs{
		syntheticInputs("HG", 7, 300),
		syntheticInputs("CL", 8, 300),
		syntheticInputs("GC", 9, 300),
	}
	results, err := r.RunMany(context.Background(), inputs)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, in := range inputs {
		assert.Equal(t, in.Name, results[i].Instrument)
		seq, err := r.Run(context.Background(), in)
		require.NoError(t, err)
		last := len(seq.Days) - 1
		assert.Equal(t, seq.Days[last].Blend.Equity, results[i].Days[last].Blend.Equity)
	}

	bad := syntheticInputs("XX", 10, 50)
	delete(bad.Sleeves, "carry")
	_, err = r.RunMany(context.Background(), append(inputs, bad))
	var ce *config.ConfigurationError
	assert.ErrorAs(t, err, &ce)
}

func TestNewClassifier(t *testing.T) {
	c, err := NewClassifier(config.ChopConfig{Source: "none"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "none", c.Name())

	_, err = NewClassifier(config.ChopConfig{Source: "labels"}, nil)
	var ce *config.ConfigurationError
	assert.ErrorAs(t, err, &ce)
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAlignsAndFills(t *testing.T) {
	dir := t.TempDir()
	market := writeFile(t, dir, "market.csv", `date,price,credit,vix
2024-01-01,100,400,15
2024-01-02,101,401,
2024-01-03,102,NA,16
2024-01-04,,403,17
2024-01-05,104,404,18
`)
	a := writeFile(t, dir, "a.csv", `date,position
2024-01-02,0.5
2024-01-03,0.4
2024-01-04,0.3
2024-01-05,0.2
`)
	b := writeFile(t, dir, "b.csv", `date,position,return
2024-01-01,1,0.01
2024-01-02,1,0.02
2024-01-03,-1,0.03
2024-01-05,-1,0.05
`)
	chopFile := writeFile(t, dir, "chop.csv", "date,chop_regime\n2024-01-03,HIGH_CHOP\n")

	cols := config.Default().Data
	in, err := Load(context.Background(), cols, Sources{
		Name:    "HG",
		Market:  market,
		Sleeves: map[string]string{"a": a, "b": b},
		Chop:    chopFile,
	})
	require.NoError(t, err)

	require.Len(t, in.Dates, 3)
	assert.Equal(t, "2024-01-02", in.Dates[0].Format("2006-01-02"))
	assert.Equal(t, "2024-01-05", in.Dates[2].Format("2006-01-02"))
	assert.Equal(t, []float64{15, 16, 18}, in.Vix)
	assert.Equal(t, []float64{401, 401, 404}, in.Credit)
	assert.Nil(t, in.Sleeves["a"].Return)
	assert.Equal(t, []float64{0.02, 0.03, 0.05}, in.Sleeves["b"].Return)
	require.NotNil(t, in.ChopLabels)
	assert.Equal(t, []string{"a", "b"}, in.SleeveNames())
}

func TestLoadNoOverlap(t *testing.T) {
	dir := t.TempDir()
	market := writeFile(t, dir, "market.csv", "date,price\n2024-01-01,100\n")
	a := writeFile(t, dir, "a.csv", "date,position\n2024-02-01,1\n")
	_, err := Load(context.Background(), config.Default().Data, Sources{Name: "HG", Market: market, Sleeves: map[string]string{"a": a}})
	require.Error(t, err)
}
