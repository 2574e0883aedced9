// Package diag records recoverable numeric degeneracies and advisory
// validation warnings produced during a run. Neither is an error: the run
// continues and the records travel with the output.
package diag

import (
	"fmt"
	"sync"
	"time"
)

// Component names used when recording degeneracies.
const (
	ComponentVol       = "vol_state"
	ComponentCrisis    = "crisis"
	ComponentERC       = "erc"
	ComponentVolTarget = "vol_target"
	ComponentSleeve    = "sleeve_scale"
	ComponentSmoother  = "smoother"
)

// Warning codes.
const (
	CodeCashBelowFloor   = "cash_below_floor"
	CodeUnexpectedCash   = "unexpected_cash"
	CodeCashUnnormalized = "cash_unnormalized"
)

// Degeneracy is a zero or non-finite variance/volatility that was replaced
// by a safe default.
type Degeneracy struct {
	Date      time.Time `json:"date"`
	Component string    `json:"component"`
	Detail    string    `json:"detail"`
	Fallback  string    `json:"fallback"`
}

func (d Degeneracy) String() string {
	return fmt.Sprintf("%s %s: %s (fallback: %s)", d.Date.Format("2006-01-02"), d.Component, d.Detail, d.Fallback)
}

// Warning is advisory output, never raised.
type Warning struct {
	Date    time.Time `json:"date"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s [%s] %s", w.Date.Format("2006-01-02"), w.Code, w.Message)
}

// Collector accumulates diagnostics for one run.
type Collector struct {
	mu           sync.Mutex
	degeneracies []Degeneracy
	warnings     []Warning
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Degenerate records a recovered degeneracy.
func (c *Collector) Degenerate(d Degeneracy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.degeneracies = append(c.degeneracies, d)
}

// Warn records advisory warnings.
func (c *Collector) Warn(ws ...Warning) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.warnings = append(c.warnings, ws...)
}

// Degeneracies returns a copy of the recorded degeneracies.
func (c *Collector) Degeneracies() []Degeneracy {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Degeneracy(nil), c.degeneracies...)
}

// Warnings returns a copy of the recorded warnings.
func (c *Collector) Warnings() []Warning {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Warning(nil), c.warnings...)
}

// CountByComponent tallies degeneracies per component.
func (c *Collector) CountByComponent() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int)
	for _, d := range c.degeneracies {
		out[d.Component]++
	}
	return out
}
