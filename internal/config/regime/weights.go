// Package regime holds the static macro-regime to sleeve-weight table and
// its validation.
package regime

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sawpanic/regimeblend/internal/regime/macro"
)

// CashKey is the reserved weight entry for uninvested capital.
const CashKey = "Cash"

// Overlay is the optional risk overlay attached to a regime.
type Overlay struct {
	ExposureScalar float64 `yaml:"exposure_scalar" json:"exposure_scalar"`
	StopMultiplier float64 `yaml:"stop_multiplier" json:"stop_multiplier,omitempty"`
}

// Entry is the target allocation for one macro state.
type Entry struct {
	Weights   map[string]float64 `yaml:"weights" json:"weights"`
	Overlay   *Overlay           `yaml:"risk_overlay,omitempty" json:"risk_overlay,omitempty"`
	Defensive bool               `yaml:"defensive" json:"defensive"`
}

// ExposureScalar returns the overlay scalar, or 1 without an overlay.
func (e Entry) ExposureScalar() float64 {
	if e.Overlay == nil || e.Overlay.ExposureScalar == 0 {
		return 1
	}
	return e.Overlay.ExposureScalar
}

// StopMultiplier returns the overlay stop multiplier, or 1 when unset.
func (e Entry) StopMultiplier() float64 {
	if e.Overlay == nil || e.Overlay.StopMultiplier == 0 {
		return 1
	}
	return e.Overlay.StopMultiplier
}

// Sleeves lists the non-cash keys in sorted order.
func (e Entry) Sleeves() []string {
	out := make([]string, 0, len(e.Weights))
	for k := range e.Weights {
		if k != CashKey {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// ValidationConfig bounds the table.
type ValidationConfig struct {
	WeightSumTolerance float64 `yaml:"weight_sum_tolerance" default:"0.01" validate:"gte=0"`
	// Strict rejects vectors that miss 1.0 by more than the tolerance
	// instead of rescaling them.
	Strict bool `yaml:"strict"`
}

// WeightMap associates each macro state with an Entry.
type WeightMap struct {
	Regimes    map[string]Entry `yaml:"regimes"`
	Validation ValidationConfig `yaml:"validation"`
}

// WeightsLoader loads, validates and serves the table. It is read-only
// after a successful load.
type WeightsLoader struct {
	config *WeightMap
}

// NewWeightsLoader creates an empty loader.
func NewWeightsLoader() *WeightsLoader {
	return &WeightsLoader{}
}

// LoadFromFile reads a standalone weights document.
func (wl *WeightsLoader) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read weights file %s: %w", path, err)
	}

	var wm WeightMap
	if err := yaml.Unmarshal(data, &wm); err != nil {
		return fmt.Errorf("failed to parse weights YAML: %w", err)
	}
	if wm.Validation.WeightSumTolerance == 0 {
		wm.Validation = DefaultValidation()
	}
	return wl.Load(&wm)
}

// Load validates an already decoded table and installs it.
func (wl *WeightsLoader) Load(wm *WeightMap) error {
	normalized, err := validateConfig(wm)
	if err != nil {
		return err
	}
	wl.config = normalized
	return nil
}

// LoadDefault installs a three-sleeve table with a defensive crisis
// overlay.
func (wl *WeightsLoader) LoadDefault() error {
	return wl.Load(DefaultWeightMap())
}

// DefaultValidation returns the default tolerance settings.
func DefaultValidation() ValidationConfig {
	return ValidationConfig{WeightSumTolerance: 0.01}
}

// DefaultWeightMap is the table used when no configuration names one.
func DefaultWeightMap() *WeightMap {
	return &WeightMap{
		Regimes: map[string]Entry{
			string(macro.Normal): {
				Weights: map[string]float64{"trend": 0.50, "carry": 0.30, "meanrev": 0.20},
			},
			string(macro.Chop): {
				Weights: map[string]float64{"trend": 0.25, "carry": 0.35, "meanrev": 0.40},
				Overlay: &Overlay{ExposureScalar: 0.75},
			},
			string(macro.Crisis): {
				Weights:   map[string]float64{"trend": 0.60, "carry": 0.10, "meanrev": 0.30},
				Overlay:   &Overlay{ExposureScalar: 0.50, StopMultiplier: 0.75},
				Defensive: true,
			},
		},
		Validation: DefaultValidation(),
	}
}

// GetWeights returns the entry for a macro state. The returned weights are
// a copy.
func (wl *WeightsLoader) GetWeights(state macro.State) (Entry, error) {
	if wl.config == nil {
		return Entry{}, fmt.Errorf("weights not loaded - call LoadFromFile or LoadDefault first")
	}
	e, ok := wl.config.Regimes[string(state)]
	if !ok {
		return Entry{}, fmt.Errorf("unknown regime: %s", state)
	}
	cp := e
	cp.Weights = make(map[string]float64, len(e.Weights))
	for k, v := range e.Weights {
		cp.Weights[k] = v
	}
	return cp, nil
}

// AvailableRegimes lists configured regimes in sorted order.
func (wl *WeightsLoader) AvailableRegimes() []string {
	if wl.config == nil {
		return nil
	}
	out := make([]string, 0, len(wl.config.Regimes))
	for r := range wl.config.Regimes {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Sleeves lists every non-cash key referenced by any regime.
func (wl *WeightsLoader) Sleeves() []string {
	if wl.config == nil {
		return nil
	}
	seen := map[string]bool{}
	for _, e := range wl.config.Regimes {
		for _, s := range e.Sleeves() {
			seen[s] = true
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Summary renders the table for logs and reports.
func (wl *WeightsLoader) Summary() (string, error) {
	if wl.config == nil {
		return "", fmt.Errorf("config not loaded")
	}
	var b strings.Builder
	b.WriteString("Regime Weight Configuration:\n\n")
	for _, name := range wl.AvailableRegimes() {
		e := wl.config.Regimes[name]
		fmt.Fprintf(&b, "%s regime:\n", name)
		keys := e.Sleeves()
		if _, ok := e.Weights[CashKey]; ok {
			keys = append(keys, CashKey)
		}
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s: %.1f%%\n", k, e.Weights[k]*100)
		}
		if e.Overlay != nil {
			fmt.Fprintf(&b, "  Overlay: exposure %.2f, stop %.2f\n", e.ExposureScalar(), e.StopMultiplier())
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}

// validateConfig checks required regimes, bounds and sums, and returns a
// copy whose vectors are normalised to 1.0.
func validateConfig(wm *WeightMap) (*WeightMap, error) {
	if wm == nil || len(wm.Regimes) == 0 {
		return nil, fmt.Errorf("no regimes configured")
	}

	out := &WeightMap{Regimes: make(map[string]Entry, len(wm.Regimes)), Validation: wm.Validation}
	for name, e := range wm.Regimes {
		state, ok := macro.ParseState(name)
		if !ok {
			return nil, fmt.Errorf("unrecognised regime %q, expected one of %v", name, macro.States)
		}
		normalized, err := validateEntry(string(state), e, wm.Validation)
		if err != nil {
			return nil, err
		}
		if _, dup := out.Regimes[string(state)]; dup {
			return nil, fmt.Errorf("regime %s configured twice", state)
		}
		out.Regimes[string(state)] = normalized
	}

	for _, required := range macro.States {
		if _, ok := out.Regimes[string(required)]; !ok {
			return nil, fmt.Errorf("missing required regime: %s", required)
		}
	}
	return out, nil
}

func validateEntry(regime string, e Entry, v ValidationConfig) (Entry, error) {
	if len(e.Weights) == 0 {
		return Entry{}, fmt.Errorf("regime %s has no weights", regime)
	}

	sum := 0.0
	for name, w := range e.Weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return Entry{}, fmt.Errorf("regime %s has non-finite weight for %s", regime, name)
		}
		if w < 0 {
			return Entry{}, fmt.Errorf("regime %s has negative weight for %s: %.3f", regime, name, w)
		}
		sum += w
	}
	if sum <= 0 {
		return Entry{}, fmt.Errorf("regime %s weights sum to zero and cannot be normalized", regime)
	}
	if math.Abs(sum-1.0) > v.WeightSumTolerance && v.Strict {
		return Entry{}, fmt.Errorf("regime %s weights sum to %.4f, expected 1.0 ± %.3f", regime, sum, v.WeightSumTolerance)
	}

	if o := e.Overlay; o != nil {
		if o.ExposureScalar <= 0 || o.ExposureScalar > 1 {
			return Entry{}, fmt.Errorf("regime %s exposure_scalar %.3f outside (0, 1]", regime, o.ExposureScalar)
		}
		if o.StopMultiplier < 0 {
			return Entry{}, fmt.Errorf("regime %s stop_multiplier %.3f is negative", regime, o.StopMultiplier)
		}
	}

	out := Entry{Weights: make(map[string]float64, len(e.Weights)), Defensive: e.Defensive}
	for name, w := range e.Weights {
		out.Weights[name] = w / sum
	}
	if e.Overlay != nil {
		o := *e.Overlay
		out.Overlay = &o
	}
	return out, nil
}

// GetDefaultConfigPath returns the default standalone weights file path.
func GetDefaultConfigPath() string {
	return filepath.Join("configs", "regime_weights.yaml")
}
