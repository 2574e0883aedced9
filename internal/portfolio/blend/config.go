package blend

import (
	"fmt"

	"github.com/sawpanic/regimeblend/internal/portfolio/erc"
)

// Config holds the sizing and cost policy shared by every run.
type Config struct {
	TargetVol         float64     `yaml:"target_vol" default:"0.10" validate:"gt=0"`
	VolLookback       int         `yaml:"vol_lookback_days" default:"21" validate:"gte=2"`
	LeverageCap       float64     `yaml:"leverage_cap" default:"2.5" validate:"gt=0"`
	PositionCap       float64     `yaml:"position_cap" default:"1.0" validate:"gt=0"`
	OneWayBps         float64     `yaml:"one_way_bps" default:"1.5" validate:"gte=0"`
	SleeveTargetVol   float64     `yaml:"sleeve_target_vol" default:"0.10" validate:"gt=0"`
	SleeveVolLookback int         `yaml:"sleeve_vol_lookback_days" default:"63" validate:"gte=2"`
	CovWindow         int         `yaml:"cov_window_days" default:"63" validate:"gte=2"`
	AnnualDays        int         `yaml:"annual_days" default:"252" validate:"gte=1"`
	ERC               erc.Options `yaml:"erc"`
}

// DefaultConfig mirrors the policy defaults: 10% target, 21-day lookback,
// 2.5x cap and 1.5 bps one way.
func DefaultConfig() Config {
	return Config{
		TargetVol:         0.10,
		VolLookback:       21,
		LeverageCap:       2.5,
		PositionCap:       1.0,
		OneWayBps:         1.5,
		SleeveTargetVol:   0.10,
		SleeveVolLookback: 63,
		CovWindow:         63,
		AnnualDays:        252,
		ERC:               erc.DefaultOptions(),
	}
}

// Validate rejects values that would make sizing meaningless.
func (c Config) Validate() error {
	switch {
	case c.TargetVol <= 0:
		return fmt.Errorf("target_vol must be positive, got %g", c.TargetVol)
	case c.LeverageCap <= 0:
		return fmt.Errorf("leverage_cap must be positive, got %g", c.LeverageCap)
	case c.PositionCap <= 0:
		return fmt.Errorf("position_cap must be positive, got %g", c.PositionCap)
	case c.OneWayBps < 0:
		return fmt.Errorf("one_way_bps must be non-negative, got %g", c.OneWayBps)
	case c.VolLookback < 2 || c.SleeveVolLookback < 2 || c.CovWindow < 2:
		return fmt.Errorf("lookback windows must be at least 2 days")
	case c.AnnualDays < 1:
		return fmt.Errorf("annual_days must be positive, got %d", c.AnnualDays)
	}
	return nil
}
