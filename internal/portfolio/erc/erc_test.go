package erc

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEqualVarianceUncorrelatedIsHalfHalf(t *testing.T) {
	cov := [][]float64{{0.04, 0}, {0, 0.04}}
	res := Solve(cov, DefaultOptions())

	require.True(t, res.Converged)
	assert.InDelta(t, 0.5, res.Weights[0], 1e-9)
	assert.InDelta(t, 0.5, res.Weights[1], 1e-9)
}

func TestDiagonalCovarianceIsInverseVol(t *testing.T) {
	vols := []float64{0.1, 0.2, 0.4}
	cov := make([][]float64, len(vols))
	for i, v := range vols {
		cov[i] = make([]float64, len(vols))
		cov[i][i] = v * v
	}
	res := Solve(cov, DefaultOptions())
	require.True(t, res.Converged)

	inv := 0.0
	for _, v := range vols {
		inv += 1 / v
	}
	for i, v := range vols {
		assert.InDelta(t, (1/v)/inv, res.Weights[i], 1e-6, "asset %d", i)
	}
}

func TestCorrelatedRiskContributionsEqual(t *testing.T) {
	cov := [][]float64{
		{0.04, 0.006, 0.002},
		{0.006, 0.09, 0.01},
		{0.002, 0.01, 0.0225},
	}
	res := Solve(cov, DefaultOptions())
	require.True(t, res.Converged)

	sum := 0.0
	for _, rc := range RiskContributions(cov, res.Weights) {
		assert.InDelta(t, 1.0/3, rc, 1e-6)
	}
	for _, w := range res.Weights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
}

func TestSolutionIsMultiplicativeFixedPoint(t *testing.T) {
	cov := [][]float64{
		{0.04, 0.006, 0.002},
		{0.006, 0.09, 0.01},
		{0.002, 0.01, 0.0225},
	}
	res := Solve(cov, DefaultOptions())
	require.True(t, res.Converged)

	rc := RiskContributions(cov, res.Weights)
	for i, w := range res.Weights {
		assert.InDelta(t, w, w*(1.0/3)/rc[i], 1e-6, "asset %d", i)
	}
}

func TestZeroVarianceReturnsLastValidWeights(t *testing.T) {
	cov := [][]float64{{0, 0}, {0, 0}}
	res := Solve(cov, DefaultOptions())

	assert.True(t, res.Degenerate)
	assert.False(t, res.Converged)
	assert.Equal(t, []float64{0.5, 0.5}, res.Weights)
	assert.NotEmpty(t, res.Detail)
}

func TestNaNCovarianceNeverPropagates(t *testing.T) {
	cov := [][]float64{{math.NaN(), 0}, {0, 0.01}}
	res := SolveFrom(cov, []float64{0.3, 0.7}, DefaultOptions())

	assert.True(t, res.Degenerate)
	for _, w := range res.Weights {
		assert.False(t, math.IsNaN(w))
	}
	assert.InDelta(t, 0.3, res.Weights[0], 1e-12)
}

func TestSolveFromWarmStartConverges(t *testing.T) {
	cov := [][]float64{{0.01, 0}, {0, 0.04}}
	cold := Solve(cov, DefaultOptions())
	warm := SolveFrom(cov, cold.Weights, DefaultOptions())

	require.True(t, warm.Converged)
	assert.LessOrEqual(t, warm.Iterations, cold.Iterations)
	assert.InDelta(t, 2.0/3, warm.Weights[0], 1e-6)
}

func TestCovariance(t *testing.T) {
	assert.Equal(t, [][]float64{{1, 0}, {0, 1}}, Covariance([][]float64{{0.3, 0.1}}))

	rows := [][]float64{{1, 2}, {2, 4}, {3, 6}}
	cov := Covariance(rows)
	assert.InDelta(t, 1.0, cov[0][0], 1e-12)
	assert.InDelta(t, 4.0, cov[1][1], 1e-12)
	assert.InDelta(t, 2.0, cov[0][1], 1e-12)
	assert.Equal(t, cov[0][1], cov[1][0])
}

func TestWeightsAlwaysNormalized(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for trial := 0; trial < 25; trial++ {
		rows := make([][]float64, 60)
		for i := range rows {
			common := rng.NormFloat64() * 0.01
			rows[i] = []float64{
				common + rng.NormFloat64()*0.01,
				rng.NormFloat64() * 0.02,
				-common + rng.NormFloat64()*0.005,
			}
		}
		res := Solve(Covariance(rows), DefaultOptions())
		sum := 0.0
		for _, w := range res.Weights {
			assert.GreaterOrEqual(t, w, 0.0)
			sum += w
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
	}
}
