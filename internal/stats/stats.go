// Package stats holds the small set of numeric helpers shared by the regime
// classifiers and the blender: moments, quantiles, ranks and a fixed-size
// rolling window.
package stats

import (
	"math"
	"sort"
)

// IsFinite reports whether x is neither NaN nor ±Inf.
func IsFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// Clip bounds x to [lo, hi]. NaN is returned unchanged.
func Clip(x, lo, hi float64) float64 {
	if math.IsNaN(x) {
		return x
	}
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// Mean returns the arithmetic mean, or NaN for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// Std returns the standard deviation with the given delta degrees of freedom.
// NaN when fewer than ddof+1 observations are available.
func Std(xs []float64, ddof int) float64 {
	n := len(xs)
	if n-ddof <= 0 {
		return math.NaN()
	}
	m := Mean(xs)
	ss := 0.0
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-ddof))
}

// Quantile uses linear interpolation between the two nearest ranks
// (position (n-1)*q on the sorted sample).
func Quantile(xs []float64, q float64) float64 {
	n := len(xs)
	if n == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// TrailingPercentile ranks x against prev, which must not include x.
// Values at or beyond the extremes map to 0 and 1; inside the range the
// rank is (count(prev <= x) - 1) / (len(prev) - 1).
func TrailingPercentile(prev []float64, x float64) float64 {
	n := len(prev)
	if n < 2 || !IsFinite(x) || AnyNaN(prev) {
		return math.NaN()
	}
	lo, hi := prev[0], prev[0]
	for _, v := range prev[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if x <= lo {
		return 0
	}
	if x >= hi {
		return 1
	}
	le := 0
	for _, v := range prev {
		if v <= x {
			le++
		}
	}
	return float64(le-1) / float64(n-1)
}

// PercentRank is the average-method percentile rank of x within window,
// where window includes x itself.
func PercentRank(window []float64, x float64) float64 {
	if math.IsNaN(x) {
		return math.NaN()
	}
	n, less, equal := 0, 0, 0
	for _, v := range window {
		if math.IsNaN(v) {
			continue
		}
		n++
		switch {
		case v < x:
			less++
		case v == x:
			equal++
		}
	}
	if n == 0 || equal == 0 {
		return math.NaN()
	}
	return (float64(less) + float64(equal+1)/2) / float64(n)
}

// AnyNaN reports whether xs contains a NaN.
func AnyNaN(xs []float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) {
			return true
		}
	}
	return false
}

// Sum adds xs, skipping nothing.
func Sum(xs []float64) float64 {
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s
}
