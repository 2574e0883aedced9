package chop

import (
	"fmt"
	"math"

	"github.com/sawpanic/regimeblend/internal/stats"
)

// ADXConfig parameterises the reference classifier. Chop is flagged only
// while the volatility index sits inside [VixMin, VixMax].
type ADXConfig struct {
	Period        int     `yaml:"adx_period" default:"14" validate:"gte=2"`
	TrendingADX   float64 `yaml:"adx_trending_threshold" default:"35" validate:"gt=0"`
	RangingADX    float64 `yaml:"adx_ranging_threshold" default:"20" validate:"gte=0"`
	VixMin        float64 `yaml:"vix_min" default:"15" validate:"gte=0"`
	VixMax        float64 `yaml:"vix_max" default:"25" validate:"gt=0"`
	MildThreshold float64 `yaml:"mild_chop_threshold" default:"0.5" validate:"gt=0,lte=1"`
	HighThreshold float64 `yaml:"high_chop_threshold" default:"0.75" validate:"gt=0,lte=1"`
}

// DefaultADXConfig returns the reference thresholds.
func DefaultADXConfig() ADXConfig {
	return ADXConfig{
		Period:        14,
		TrendingADX:   35,
		RangingADX:    20,
		VixMin:        15,
		VixMax:        25,
		MildThreshold: 0.5,
		HighThreshold: 0.75,
	}
}

// Validate checks the band orderings.
func (c ADXConfig) Validate() error {
	switch {
	case c.Period < 2:
		return fmt.Errorf("adx_period must be at least 2, got %d", c.Period)
	case c.RangingADX >= c.TrendingADX:
		return fmt.Errorf("adx_ranging_threshold %.1f must be below adx_trending_threshold %.1f", c.RangingADX, c.TrendingADX)
	case c.VixMin >= c.VixMax:
		return fmt.Errorf("vix_min %.1f must be below vix_max %.1f", c.VixMin, c.VixMax)
	case c.MildThreshold >= c.HighThreshold:
		return fmt.Errorf("mild_chop_threshold %.2f must be below high_chop_threshold %.2f", c.MildThreshold, c.HighThreshold)
	}
	return nil
}

// ADX scores chop from weak trend strength. Price pairs stand in for the
// high/low range since only closes are available.
type ADX struct {
	cfg   ADXConfig
	alpha float64

	prevClose, prevHigh, prevLow float64
	atr, plusDM, minusDM, adx    float64
	steps                        int

	// Score is the last computed chop score in [0, 1].
	Score float64
	// Value is the last ADX reading; 25 until enough history exists.
	Value float64
}

// NewADX returns a classifier with empty history.
func NewADX(cfg ADXConfig) *ADX {
	return &ADX{
		cfg:       cfg,
		alpha:     2 / (float64(cfg.Period) + 1),
		prevClose: math.NaN(),
		prevHigh:  math.NaN(),
		prevLow:   math.NaN(),
		Value:     25,
	}
}

func (c *ADX) Name() string { return "adx" }

func (c *ADX) Step(obs Observation) Regime {
	c.update(obs.Price)

	span := c.cfg.TrendingADX - c.cfg.RangingADX
	c.Score = 0
	if span > 0 {
		c.Score = stats.Clip((c.cfg.TrendingADX-c.Value)/span, 0, 1)
	}

	inRange := obs.Vix >= c.cfg.VixMin && obs.Vix <= c.cfg.VixMax
	switch {
	case inRange && c.Score >= c.cfg.HighThreshold:
		return HighChop
	case inRange && c.Score >= c.cfg.MildThreshold:
		return MildChop
	default:
		return Normal
	}
}

func (c *ADX) update(close float64) {
	if !stats.IsFinite(close) {
		return
	}
	if math.IsNaN(c.prevClose) {
		c.prevClose = close
		return
	}

	high := math.Max(close, c.prevClose)
	low := math.Min(close, c.prevClose)
	tr := math.Max(high-low, math.Max(math.Abs(high-c.prevClose), math.Abs(low-c.prevClose)))

	plus, minus := 0.0, 0.0
	if !math.IsNaN(c.prevHigh) {
		up := high - c.prevHigh
		down := c.prevLow - low
		if up > down && up > 0 {
			plus = up
		}
		if down > up && down > 0 {
			minus = down
		}
	}
	c.prevClose, c.prevHigh, c.prevLow = close, high, low

	c.steps++
	if c.steps == 1 {
		c.atr, c.plusDM, c.minusDM = tr, plus, minus
		return
	}
	c.atr = c.ema(c.atr, tr)
	c.plusDM = c.ema(c.plusDM, plus)
	c.minusDM = c.ema(c.minusDM, minus)

	if c.atr <= 0 {
		return
	}
	plusDI := 100 * c.plusDM / c.atr
	minusDI := 100 * c.minusDM / c.atr
	if plusDI+minusDI <= 0 {
		return
	}
	dx := 100 * math.Abs(plusDI-minusDI) / (plusDI + minusDI)
	if c.steps == 2 {
		c.adx = dx
	} else {
		c.adx = c.ema(c.adx, dx)
	}
	if c.steps >= c.cfg.Period {
		c.Value = c.adx
	}
}

func (c *ADX) ema(prev, x float64) float64 {
	return c.alpha*x + (1-c.alpha)*prev
}
