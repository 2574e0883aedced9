package vol

import "fmt"

// Config holds the volatility classifier parameters. Zero values are not
// meaningful; start from DefaultConfig.
type Config struct {
	RVWindow    int     `yaml:"rv_window" default:"21" validate:"gte=2"`
	AnnualDays  float64 `yaml:"annual_days" default:"252" validate:"gt=0"`
	PctWindow   int     `yaml:"percentile_window_days" default:"252" validate:"gte=2"`
	GuardWindow int     `yaml:"guardrails_window_days" default:"756" validate:"gte=1"`

	CalmQuantile float64 `yaml:"calm_quantile" default:"0.20" validate:"gte=0,lte=1"`
	HighQuantile float64 `yaml:"high_quantile" default:"0.90" validate:"gte=0,lte=1"`
	CalmEnter    float64 `yaml:"calm_percentile_in" default:"0.30" validate:"gte=0,lte=1"`
	CalmStay     float64 `yaml:"calm_percentile_out" default:"0.34" validate:"gte=0,lte=1"`
	HighEnter    float64 `yaml:"high_percentile_in" default:"0.70" validate:"gte=0,lte=1"`
	HighStay     float64 `yaml:"high_percentile_out" default:"0.66" validate:"gte=0,lte=1"`
	Drv5Epsilon  float64 `yaml:"drv5_epsilon" default:"0.002" validate:"gte=0"`

	SpikeRVJumpSigma float64 `yaml:"spike_rvjump_sigma" default:"2.0" validate:"gt=0"`
	SpikeRetSigma    float64 `yaml:"spike_ret_sigma" default:"3.0" validate:"gt=0"`
	SpikePctJump     float64 `yaml:"spike_pctl_jump" default:"0.25" validate:"gt=0"`

	CrisisExitPct  float64 `yaml:"crisis_exit_percentile" default:"0.60" validate:"gte=0,lte=1"`
	CrisisExitDays int     `yaml:"crisis_exit_days" default:"3" validate:"gte=1"`

	TargetVol   float64 `yaml:"target_vol" default:"0.10" validate:"gt=0"`
	SizeFloor   float64 `yaml:"size_floor" default:"0.3" validate:"gte=0"`
	SizeCap     float64 `yaml:"size_cap" default:"3.0" validate:"gt=0"`
	StopTighten float64 `yaml:"stop_tighten" default:"0.8" validate:"gt=0,lte=1"`
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		RVWindow:         21,
		AnnualDays:       252,
		PctWindow:        252,
		GuardWindow:      756,
		CalmQuantile:     0.20,
		HighQuantile:     0.90,
		CalmEnter:        0.30,
		CalmStay:         0.34,
		HighEnter:        0.70,
		HighStay:         0.66,
		Drv5Epsilon:      0.002,
		SpikeRVJumpSigma: 2.0,
		SpikeRetSigma:    3.0,
		SpikePctJump:     0.25,
		CrisisExitPct:    0.60,
		CrisisExitDays:   3,
		TargetVol:        0.10,
		SizeFloor:        0.3,
		SizeCap:          3.0,
		StopTighten:      0.8,
	}
}

// Validate checks the hysteresis bands are coherent. Range checks on single
// fields are carried by the struct tags and enforced by the config loader.
func (c Config) Validate() error {
	if c.CalmStay < c.CalmEnter {
		return fmt.Errorf("calm stay threshold %.2f below enter threshold %.2f", c.CalmStay, c.CalmEnter)
	}
	if c.HighStay > c.HighEnter {
		return fmt.Errorf("high stay threshold %.2f above enter threshold %.2f", c.HighStay, c.HighEnter)
	}
	if c.CalmEnter >= c.HighEnter {
		return fmt.Errorf("calm enter %.2f must sit below high enter %.2f", c.CalmEnter, c.HighEnter)
	}
	if c.SizeFloor > c.SizeCap {
		return fmt.Errorf("size floor %.2f above cap %.2f", c.SizeFloor, c.SizeCap)
	}
	if c.RVWindow < 2 || c.PctWindow < 2 || c.GuardWindow < 1 || c.CrisisExitDays < 1 {
		return fmt.Errorf("window lengths must be positive")
	}
	return nil
}
