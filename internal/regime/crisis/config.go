package crisis

import (
	"fmt"
	"math"
)

// CreditLevels are the spread breakpoints (bps) of the level score.
type CreditLevels struct {
	Normal    float64 `yaml:"normal" default:"495" validate:"gt=0"`
	Stress    float64 `yaml:"stress" default:"661" validate:"gt=0"`
	PreCrisis float64 `yaml:"precrisis" default:"760" validate:"gt=0"`
	Crisis    float64 `yaml:"crisis" default:"850" validate:"gt=0"`
}

// VixLevels are the confirmatory volatility index breakpoints.
type VixLevels struct {
	Normal   float64 `yaml:"normal" default:"20" validate:"gt=0"`
	Elevated float64 `yaml:"elevated" default:"25" validate:"gt=0"`
	Stress   float64 `yaml:"stress" default:"30" validate:"gt=0"`
	Crisis   float64 `yaml:"crisis" default:"40" validate:"gt=0"`
}

// Velocity holds the rapid-widening reference magnitudes.
type Velocity struct {
	RapidWiden10d float64 `yaml:"rapid_widen_10d" default:"80" validate:"gt=0"`
	RapidWiden30d float64 `yaml:"rapid_widen_30d" default:"150" validate:"gt=0"`
	Discount30d   float64 `yaml:"discount_30d" default:"0.7" validate:"gte=0,lte=1"`
}

// Weights of the composite score.
type Weights struct {
	Credit   float64 `yaml:"credit_stress" default:"0.60" validate:"gte=0,lte=1"`
	Vix      float64 `yaml:"vix_stress" default:"0.25" validate:"gte=0,lte=1"`
	Velocity float64 `yaml:"velocity" default:"0.15" validate:"gte=0,lte=1"`
}

// Thresholds on the composite score.
type Thresholds struct {
	Stress    float64 `yaml:"stress_threshold" default:"0.40" validate:"gt=0,lte=1"`
	PreCrisis float64 `yaml:"precrisis_threshold" default:"0.60" validate:"gt=0,lte=1"`
	Crisis    float64 `yaml:"crisis_threshold" default:"0.75" validate:"gt=0,lte=1"`
}

// Sizing maps each regime to a risk multiplier.
type Sizing struct {
	Normal    float64 `yaml:"normal" default:"1.0" validate:"gt=0,lte=1"`
	Stress    float64 `yaml:"stress" default:"0.75" validate:"gt=0,lte=1"`
	PreCrisis float64 `yaml:"precrisis" default:"0.50" validate:"gt=0,lte=1"`
	Crisis    float64 `yaml:"crisis" default:"0.25" validate:"gt=0,lte=1"`
}

// Config is the crisis detector configuration.
type Config struct {
	Lookback   int          `yaml:"lookback" default:"252" validate:"gte=2"`
	Credit     CreditLevels `yaml:"credit_stress"`
	Vix        VixLevels    `yaml:"vix_stress"`
	Velocity   Velocity     `yaml:"velocity"`
	Weights    Weights      `yaml:"composite_weights"`
	Thresholds Thresholds   `yaml:"regime_classification"`
	Sizing     Sizing       `yaml:"sizing"`
}

// DefaultConfig returns the canonical 60/25/15 configuration.
func DefaultConfig() Config {
	return Config{
		Lookback: 252,
		Credit:   CreditLevels{Normal: 495, Stress: 661, PreCrisis: 760, Crisis: 850},
		Vix:      VixLevels{Normal: 20, Elevated: 25, Stress: 30, Crisis: 40},
		Velocity: Velocity{RapidWiden10d: 80, RapidWiden30d: 150, Discount30d: 0.7},
		Weights:  Weights{Credit: 0.60, Vix: 0.25, Velocity: 0.15},
		Thresholds: Thresholds{
			Stress:    0.40,
			PreCrisis: 0.60,
			Crisis:    0.75,
		},
		Sizing: Sizing{Normal: 1.0, Stress: 0.75, PreCrisis: 0.50, Crisis: 0.25},
	}
}

// Validate checks ordering constraints the struct tags cannot express.
func (c Config) Validate() error {
	if sum := c.Weights.Credit + c.Weights.Vix + c.Weights.Velocity; math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("composite weights sum to %.6f, expected 1.0", sum)
	}
	t := c.Thresholds
	if !(t.Stress < t.PreCrisis && t.PreCrisis < t.Crisis) {
		return fmt.Errorf("regime thresholds must increase: stress=%.2f precrisis=%.2f crisis=%.2f", t.Stress, t.PreCrisis, t.Crisis)
	}
	l := c.Credit
	if !(l.Normal < l.Stress && l.Stress < l.PreCrisis && l.PreCrisis < l.Crisis) {
		return fmt.Errorf("credit breakpoints must increase")
	}
	v := c.Vix
	if !(v.Normal < v.Elevated && v.Elevated < v.Stress && v.Stress < v.Crisis) {
		return fmt.Errorf("vix breakpoints must increase")
	}
	if c.Lookback < 2 {
		return fmt.Errorf("lookback must be at least 2, got %d", c.Lookback)
	}
	return nil
}
