// Package smoother turns abrupt target-weight changes into a smoothed daily
// weight trajectory.
package smoother

import (
	"fmt"
	"math"

	"github.com/sawpanic/regimeblend/internal/portfolio/weights"
)

// Method selects the smoothing rule.
type Method string

const (
	Exponential Method = "exponential"
	Linear      Method = "linear"
	None        Method = "none"
)

// targetChangeEps is the per-key tolerance for treating two targets as the
// same allocation.
const targetChangeEps = 0.01

// ParseMethod validates a method name.
func ParseMethod(s string) (Method, error) {
	switch m := Method(s); m {
	case Exponential, Linear, None:
		return m, nil
	default:
		return "", fmt.Errorf("method must be 'exponential', 'linear', or 'none', got %s", s)
	}
}

// Smoother owns the weight trajectory of one blending run. It starts
// uninitialized and tracks from its first call.
type Smoother struct {
	window int
	method Method
	alpha  float64

	current weights.Vector
	history []weights.Vector
	targets []weights.Vector

	// linear mode walks from rampFrom toward the target in window steps
	rampFrom weights.Vector
	rampStep int
}

// New validates the parameters and returns an uninitialized smoother.
func New(window int, method Method) (*Smoother, error) {
	if window < 1 {
		return nil, fmt.Errorf("window must be >= 1, got %d", window)
	}
	if _, err := ParseMethod(string(method)); err != nil {
		return nil, err
	}
	return &Smoother{
		window: window,
		method: method,
		alpha:  2.0 / (float64(window) + 1),
	}, nil
}

// Alpha is the EMA decay factor 2/(window+1).
func (s *Smoother) Alpha() float64 { return s.alpha }

// Initialized reports whether the smoother has produced a vector.
func (s *Smoother) Initialized() bool { return s.current != nil }

// Current returns a copy of the latest smoothed vector.
func (s *Smoother) Current() weights.Vector { return s.current.Copy() }

// Smooth consumes today's target and returns today's smoothed weights,
// which always sum to 1.0. The first call, or forceReset, snaps straight
// to the target.
func (s *Smoother) Smooth(target weights.Vector, forceReset bool) weights.Vector {
	var next weights.Vector
	switch {
	case s.current == nil || forceReset || s.method == None:
		next = target.Copy()
		s.rampFrom, s.rampStep = nil, 0
	case s.method == Exponential:
		next = make(weights.Vector)
		for _, k := range weights.Union(s.current, target) {
			next[k] = s.alpha*target[k] + (1-s.alpha)*s.current[k]
		}
	case s.method == Linear:
		next = s.linearStep(target)
	}

	next = next.Normalize()
	s.current = next
	s.history = append(s.history, next.Copy())
	s.targets = append(s.targets, target.Copy())
	return next.Copy()
}

// linearStep moves in equal increments from the vector held when the
// target last changed, arriving after window calls.
func (s *Smoother) linearStep(target weights.Vector) weights.Vector {
	if n := len(s.targets); n == 0 || changed(s.targets[n-1], target) || s.rampFrom == nil {
		s.rampFrom = s.current.Copy()
		s.rampStep = 0
	}
	s.rampStep++
	frac := math.Min(float64(s.rampStep)/float64(s.window), 1)

	next := make(weights.Vector)
	for _, k := range weights.Union(s.rampFrom, target) {
		next[k] = s.rampFrom[k] + frac*(target[k]-s.rampFrom[k])
	}
	return next
}

func changed(a, b weights.Vector) bool {
	for _, k := range weights.Union(a, b) {
		if math.Abs(a[k]-b[k]) > targetChangeEps {
			return true
		}
	}
	return false
}

// Reset returns the smoother to its uninitialized state and clears the
// trajectory.
func (s *Smoother) Reset() {
	s.current = nil
	s.history = nil
	s.targets = nil
	s.rampFrom, s.rampStep = nil, 0
}

// History returns the smoothed trajectory, oldest first.
func (s *Smoother) History() []weights.Vector {
	out := make([]weights.Vector, len(s.history))
	for i, v := range s.history {
		out[i] = v.Copy()
	}
	return out
}

// Turnover sums half the absolute day-over-day weight changes over the
// last n entries of the trajectory, or all of it when n <= 0.
func (s *Smoother) Turnover(n int) float64 {
	h := s.history
	if len(h) < 2 {
		return 0
	}
	if n > 0 && n < len(h) {
		h = h[len(h)-n:]
	}
	total := 0.0
	for i := 1; i < len(h); i++ {
		total += weights.L1(h[i-1], h[i])
	}
	return total / 2
}

// Convergence estimates, in percent, how close the current vector is to
// the current target. It reads 100 before any transition and whenever the
// target is unchanged from the previous step.
func (s *Smoother) Convergence() float64 {
	n := len(s.targets)
	if n < 2 {
		return 100
	}
	target, prev := s.targets[n-1], s.targets[n-2]
	if !changed(prev, target) {
		return 100
	}
	current := s.history[len(s.history)-1]
	dist := 0.0
	for k, w := range target {
		dist += math.Abs(current[k] - w)
	}
	pct := math.Max(0, 100*(1-dist/2))
	return math.Round(pct*10) / 10
}
