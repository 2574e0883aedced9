// Package erc solves equal-risk-contribution weights for a covariance
// matrix.
package erc

import (
	"fmt"
	"math"

	"github.com/sawpanic/regimeblend/internal/stats"
)

const (
	DefaultMaxIter   = 1000
	DefaultTolerance = 1e-10

	minDiscriminant = 1e-12
	minWeight       = 1e-10
)

// Options bounds the iteration.
type Options struct {
	MaxIter   int     `yaml:"max_iter" default:"1000" validate:"gte=1"`
	Tolerance float64 `yaml:"tolerance" default:"1e-10" validate:"gt=0"`
}

// DefaultOptions returns the solver defaults.
func DefaultOptions() Options {
	return Options{MaxIter: DefaultMaxIter, Tolerance: DefaultTolerance}
}

// Result is the solver output. Weights are always finite, non-negative and
// sum to 1.
type Result struct {
	Weights    []float64
	Iterations int
	Converged  bool
	// Degenerate is set when portfolio variance became zero or non-finite
	// and the loop stopped on the last valid weights.
	Degenerate bool
	Detail     string
}

// Solve starts from equal weights.
func Solve(cov [][]float64, opts Options) Result {
	n := len(cov)
	init := make([]float64, n)
	for i := range init {
		init[i] = 1 / float64(n)
	}
	return SolveFrom(cov, init, opts)
}

// SolveFrom runs cyclical coordinate sweeps from init. Each sweep solves
// w_i * (cov w)_i = pv/n for every coordinate in turn, then renormalises.
// The plain multiplicative update w * (pv/n) / rc alternates between equal
// and inverse-variance weights on a diagonal matrix and never settles.
// An init that is not a valid weight vector is replaced by equal weights.
func SolveFrom(cov [][]float64, init []float64, opts Options) Result {
	n := len(cov)
	if n == 0 {
		return Result{Converged: true}
	}
	if opts.MaxIter <= 0 {
		opts.MaxIter = DefaultMaxIter
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = DefaultTolerance
	}

	w := validStart(init, n)
	res := Result{Weights: append([]float64(nil), w...)}
	next := make([]float64, n)

	for it := 1; it <= opts.MaxIter; it++ {
		res.Iterations = it
		pv := variance(cov, w)
		if pv <= 0 || !stats.IsFinite(pv) {
			res.Degenerate = true
			res.Detail = fmt.Sprintf("portfolio variance %g at iteration %d", pv, it)
			return res
		}

		budget := pv / float64(n)
		copy(next, w)
		for i := 0; i < n; i++ {
			sii := cov[i][i]
			if sii <= 0 || !stats.IsFinite(sii) {
				continue
			}
			cross := 0.0
			for j := 0; j < n; j++ {
				if j != i {
					cross += cov[i][j] * next[j]
				}
			}
			disc := cross*cross + 4*sii*budget
			if disc < minDiscriminant {
				disc = minDiscriminant
			}
			next[i] = math.Max((-cross+math.Sqrt(disc))/(2*sii), minWeight)
		}

		total := 0.0
		for _, x := range next {
			total += x
		}
		if !stats.IsFinite(total) || total <= 0 {
			res.Degenerate = true
			res.Detail = fmt.Sprintf("weight total %g at iteration %d", total, it)
			return res
		}

		change := 0.0
		for i := 0; i < n; i++ {
			next[i] /= total
			change += math.Abs(next[i] - w[i])
		}
		copy(w, next)
		copy(res.Weights, w)
		if change < opts.Tolerance {
			res.Converged = true
			return res
		}
	}
	return res
}

func variance(cov [][]float64, w []float64) float64 {
	pv := 0.0
	for i := range w {
		for j := range w {
			pv += w[i] * cov[i][j] * w[j]
		}
	}
	return pv
}

func validStart(init []float64, n int) []float64 {
	w := make([]float64, n)
	if len(init) == n {
		total := 0.0
		ok := true
		for i, x := range init {
			if !stats.IsFinite(x) || x <= 0 {
				ok = false
				break
			}
			w[i] = x
			total += x
		}
		if ok && total > 0 {
			for i := range w {
				w[i] /= total
			}
			return w
		}
	}
	for i := range w {
		w[i] = 1 / float64(n)
	}
	return w
}

// Covariance is the sample covariance (ddof=1) of rows of observations, one
// column per asset. With fewer than two rows it is the identity.
func Covariance(rows [][]float64) [][]float64 {
	if len(rows) == 0 {
		return nil
	}
	k := len(rows[0])
	cov := make([][]float64, k)
	for i := range cov {
		cov[i] = make([]float64, k)
	}
	if len(rows) <= 1 {
		for i := range cov {
			cov[i][i] = 1
		}
		return cov
	}

	means := make([]float64, k)
	for _, r := range rows {
		for j := 0; j < k; j++ {
			means[j] += r[j]
		}
	}
	for j := range means {
		means[j] /= float64(len(rows))
	}
	for _, r := range rows {
		for i := 0; i < k; i++ {
			di := r[i] - means[i]
			for j := i; j < k; j++ {
				cov[i][j] += di * (r[j] - means[j])
			}
		}
	}
	denom := float64(len(rows) - 1)
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			cov[i][j] /= denom
			cov[j][i] = cov[i][j]
		}
	}
	return cov
}

// RiskContributions returns w_i * (cov w)_i / (w' cov w). At the solver's
// fixed point every entry is 1/n, the same point the multiplicative rule
// w_i <- w_i * (pv/n) / rc_i is stationary at. Only the path differs.
func RiskContributions(cov [][]float64, w []float64) []float64 {
	n := len(w)
	out := make([]float64, n)
	pv := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			out[i] += cov[i][j] * w[j]
		}
		out[i] *= w[i]
		pv += out[i]
	}
	if pv == 0 {
		return out
	}
	for i := range out {
		out[i] /= pv
	}
	return out
}
