// Package weights implements the sleeve weight vector shared by the
// smoother, the cash policy and the blender.
package weights

import (
	"math"
	"sort"
)

// Cash is the reserved key for uninvested capital.
const Cash = "Cash"

// Vector maps sleeve identifiers (and Cash) to non-negative weights.
type Vector map[string]float64

// Copy returns an independent copy.
func (v Vector) Copy() Vector {
	out := make(Vector, len(v))
	for k, w := range v {
		out[k] = w
	}
	return out
}

// Keys returns the keys in sorted order so iteration is deterministic.
func (v Vector) Keys() []string {
	out := make([]string, 0, len(v))
	for k := range v {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Sum adds every weight in key order.
func (v Vector) Sum() float64 {
	s := 0.0
	for _, k := range v.Keys() {
		s += v[k]
	}
	return s
}

// Normalize rescales to sum 1.0. A zero total falls back to equal weights
// across all keys. An empty vector stays empty.
func (v Vector) Normalize() Vector {
	out := make(Vector, len(v))
	if len(v) == 0 {
		return out
	}
	total := v.Sum()
	if total == 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		eq := 1 / float64(len(v))
		for k := range v {
			out[k] = eq
		}
		return out
	}
	for k, w := range v {
		out[k] = w / total
	}
	return out
}

// Union returns the sorted key union of a and b.
func Union(a, b Vector) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		seen[k] = struct{}{}
	}
	for k := range b {
		seen[k] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// L1 is the sum of absolute differences over the key union; missing keys
// count as zero.
func L1(a, b Vector) float64 {
	d := 0.0
	for _, k := range Union(a, b) {
		d += math.Abs(a[k] - b[k])
	}
	return d
}

// Exposure is the sum of non-cash weights.
func (v Vector) Exposure() float64 {
	s := 0.0
	for _, k := range v.Keys() {
		if k != Cash {
			s += v[k]
		}
	}
	return s
}

// Sleeves returns the non-cash keys in sorted order.
func (v Vector) Sleeves() []string {
	out := make([]string, 0, len(v))
	for _, k := range v.Keys() {
		if k != Cash {
			out = append(out, k)
		}
	}
	return out
}
