// Package chop defines the trend/chop classifier contract consumed by the
// macro merger, plus three implementations: externally supplied labels, a
// reference ADX classifier and a constant NORMAL classifier.
package chop

import (
	"fmt"
	"strings"
	"time"

	"github.com/sawpanic/regimeblend/internal/series"
)

// Regime is the chop tier for a date.
type Regime string

const (
	Normal   Regime = "NORMAL"
	MildChop Regime = "MILD_CHOP"
	HighChop Regime = "HIGH_CHOP"
)

// Observation is the market data available to a classifier on one date.
type Observation struct {
	Date  time.Time
	Price float64
	Vix   float64
}

// Classifier labels one date at a time. Implementations may keep trailing
// state but must never look past obs.Date.
type Classifier interface {
	Name() string
	Step(obs Observation) Regime
}

// ParseRegime normalises an external label. Blank input maps to Normal.
func ParseRegime(s string) (Regime, error) {
	label := strings.NewReplacer("-", "_", " ", "_").Replace(strings.ToUpper(strings.TrimSpace(s)))
	switch label {
	case "", "NORMAL", "NAN":
		return Normal, nil
	case "MILD_CHOP":
		return MildChop, nil
	case "HIGH_CHOP":
		return HighChop, nil
	default:
		return "", fmt.Errorf("unknown chop regime %q", s)
	}
}

// None always reports Normal. It is used when no chop source is configured.
type None struct{}

func (None) Name() string { return "none" }

func (None) Step(Observation) Regime { return Normal }

// Labels replays externally computed chop regimes. Dates missing from the
// source are Normal.
type Labels struct {
	source map[int64]Regime
}

// NewLabels validates every label up front.
func NewLabels(l series.Labels) (*Labels, error) {
	src := make(map[int64]Regime, l.Len())
	for i, d := range l.Dates {
		r, err := ParseRegime(l.Values[i])
		if err != nil {
			return nil, fmt.Errorf("%s on %s: %w", l.Name, d.Format(series.DateLayout), err)
		}
		src[d.UnixNano()] = r
	}
	return &Labels{source: src}, nil
}

func (c *Labels) Name() string { return "labels" }

func (c *Labels) Step(obs Observation) Regime {
	if r, ok := c.source[obs.Date.UnixNano()]; ok {
		return r
	}
	return Normal
}
