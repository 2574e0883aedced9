package pipeline

import (
	"fmt"

	"github.com/sawpanic/regimeblend/internal/config"
	"github.com/sawpanic/regimeblend/internal/diag"
	"github.com/sawpanic/regimeblend/internal/portfolio/blend"
	"github.com/sawpanic/regimeblend/internal/portfolio/cash"
	"github.com/sawpanic/regimeblend/internal/portfolio/smoother"
	"github.com/sawpanic/regimeblend/internal/regime/chop"
	"github.com/sawpanic/regimeblend/internal/regime/crisis"
	"github.com/sawpanic/regimeblend/internal/regime/macro"
	"github.com/sawpanic/regimeblend/internal/regime/vol"
	"github.com/sawpanic/regimeblend/internal/series"
)

// RunState is every piece of memory carried from one date to the next. It
// is owned by a single run and never shared.
type RunState struct {
	Vol      *vol.Machine
	Crisis   *crisis.Detector
	Chop     chop.Classifier
	Smoother *smoother.Smoother
	Cash     *cash.Policy
	Blender  *blend.Blender

	prevPrice float64
	prevState macro.State
	switches  int
	index     int
}

// NewRunState builds fresh components for one instrument.
func NewRunState(cfg *config.Config, sleeves []string, labels *series.Labels, collector *diag.Collector) (*RunState, error) {
	classifier, err := NewClassifier(cfg.Chop, labels)
	if err != nil {
		return nil, err
	}
	sm, err := smoother.New(cfg.Smoother.Window, smoother.Method(cfg.Smoother.Method))
	if err != nil {
		return nil, &config.ConfigurationError{Key: "smoother", Reason: err.Error(), Err: err}
	}
	policy, err := cash.NewPolicy(cash.Method(cfg.Cash.Method), cfg.Cash.DefensiveMin, cfg.Cash.NormalMax)
	if err != nil {
		return nil, &config.ConfigurationError{Key: "cash.method", Reason: err.Error(), Err: err}
	}
	bl, err := blend.NewBlender(cfg.Blend, sleeves, collector)
	if err != nil {
		return nil, &config.ConfigurationError{Key: "blend", Reason: err.Error(), Err: err}
	}
	return &RunState{
		Vol:      vol.NewMachine(cfg.Vol),
		Crisis:   crisis.NewDetector(cfg.Crisis),
		Chop:     classifier,
		Smoother: sm,
		Cash:     policy,
		Blender:  bl,
	}, nil
}

// Switches counts macro state changes so far.
func (s *RunState) Switches() int { return s.switches }

// NewClassifier selects the chop implementation. Supplying labels always
// wins over the configured source.
func NewClassifier(cfg config.ChopConfig, labels *series.Labels) (chop.Classifier, error) {
	if labels != nil {
		c, err := chop.NewLabels(*labels)
		if err != nil {
			return nil, &config.ConfigurationError{Key: "chop", Reason: err.Error(), Err: err}
		}
		return c, nil
	}
	switch cfg.Source {
	case "", "none":
		return chop.None{}, nil
	case "adx":
		return chop.NewADX(cfg.ADX), nil
	case "labels":
		return nil, &config.ConfigurationError{Key: "chop.source", Reason: "labels source selected but no chop file given"}
	default:
		return nil, &config.ConfigurationError{Key: "chop.source", Reason: fmt.Sprintf("unknown source %q", cfg.Source)}
	}
}
