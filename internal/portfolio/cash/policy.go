// Package cash applies the defensive cash/exposure policy to a target
// weight vector.
package cash

import (
	"fmt"
	"math"
	"time"

	"github.com/sawpanic/regimeblend/internal/diag"
	"github.com/sawpanic/regimeblend/internal/portfolio/weights"
)

// Method selects how cash enters the allocation.
type Method string

const (
	ScaleDown Method = "scale_down"
	Explicit  Method = "explicit"
	Hybrid    Method = "hybrid"
)

// Overlay is the risk overlay of the active regime.
type Overlay struct {
	ExposureScalar float64
	StopMultiplier float64
}

// NoOverlay leaves exposure and stops untouched.
var NoOverlay = Overlay{ExposureScalar: 1, StopMultiplier: 1}

// Allocation is the policy output.
type Allocation struct {
	Weights weights.Vector `json:"weights"`
	// StopMultiplier is surfaced only by the hybrid method; otherwise 1.
	StopMultiplier float64 `json:"stop_multiplier"`
}

// Policy applies one method with fixed check thresholds.
type Policy struct {
	method        Method
	defensiveMin  float64
	normalMaxCash float64
}

// NewPolicy validates the method. defensiveMin is the cash floor expected
// in defensive regimes and normalMaxCash the ceiling tolerated otherwise.
func NewPolicy(method Method, defensiveMin, normalMaxCash float64) (*Policy, error) {
	switch method {
	case ScaleDown, Explicit, Hybrid:
	default:
		return nil, fmt.Errorf("method must be 'scale_down', 'explicit', or 'hybrid', got %s", method)
	}
	return &Policy{method: method, defensiveMin: defensiveMin, normalMaxCash: normalMaxCash}, nil
}

// Method returns the configured method.
func (p *Policy) Method() Method { return p.method }

// Apply derives the cash allocation for the target weights.
func (p *Policy) Apply(target weights.Vector, overlay Overlay) Allocation {
	scalar := overlay.ExposureScalar
	if scalar <= 0 || math.IsNaN(scalar) {
		scalar = 1
	}

	switch p.method {
	case Explicit:
		if _, ok := target[weights.Cash]; ok {
			return Allocation{Weights: target.Copy(), StopMultiplier: 1}
		}
		return Allocation{Weights: scaleDown(target, scalar), StopMultiplier: 1}
	case Hybrid:
		stop := overlay.StopMultiplier
		if stop <= 0 {
			stop = 1
		}
		return Allocation{Weights: scaleDown(target, scalar), StopMultiplier: stop}
	default:
		return Allocation{Weights: scaleDown(target, scalar), StopMultiplier: 1}
	}
}

// scaleDown multiplies every sleeve by scalar and assigns the residual to
// Cash, so sleeve proportions are preserved.
func scaleDown(target weights.Vector, scalar float64) weights.Vector {
	out := make(weights.Vector, len(target)+1)
	exposure := 0.0
	for _, k := range target.Sleeves() {
		out[k] = target[k] * scalar
		exposure += out[k]
	}
	out[weights.Cash] = 1 - exposure
	return out
}

// Check flags a cash allocation that is too low for a defensive regime or
// unexpectedly high for a normal one. It never fails.
func (p *Policy) Check(date time.Time, w weights.Vector, regime string, defensive bool) []diag.Warning {
	c := w[weights.Cash]
	var out []diag.Warning
	if defensive && c < p.defensiveMin {
		out = append(out, diag.Warning{
			Date:    date,
			Code:    diag.CodeCashBelowFloor,
			Message: fmt.Sprintf("cash allocation %.1f%% below minimum %.1f%% in %s regime", c*100, p.defensiveMin*100, regime),
		})
	}
	if !defensive && c > p.normalMaxCash {
		out = append(out, diag.Warning{
			Date:    date,
			Code:    diag.CodeUnexpectedCash,
			Message: fmt.Sprintf("unexpected cash %.1f%% in non-defensive %s regime", c*100, regime),
		})
	}
	if s := w.Sum(); math.Abs(s-1) > 1e-6 {
		out = append(out, diag.Warning{
			Date:    date,
			Code:    diag.CodeCashUnnormalized,
			Message: fmt.Sprintf("allocation sums to %.6f", s),
		})
	}
	return out
}

// EffectiveExposure is the invested share of the allocation.
func EffectiveExposure(w weights.Vector) float64 {
	return w.Exposure()
}
