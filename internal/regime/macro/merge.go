// Package macro merges the crisis and chop classifications into a single
// macro state per date with fixed precedence: Crisis over Chop over Normal.
package macro

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sawpanic/regimeblend/internal/regime/chop"
	"github.com/sawpanic/regimeblend/internal/regime/crisis"
	"github.com/sawpanic/regimeblend/internal/regime/vol"
	"github.com/sawpanic/regimeblend/internal/series"
)

// State is the merged macro regime.
type State string

const (
	Normal State = "Normal"
	Chop   State = "Chop"
	Crisis State = "Crisis"
)

// States lists every macro state in precedence order, lowest first.
var States = []State{Normal, Chop, Crisis}

// ParseState matches a state name case-insensitively.
func ParseState(s string) (State, bool) {
	for _, st := range States {
		if strings.EqualFold(string(st), strings.TrimSpace(s)) {
			return st, true
		}
	}
	return "", false
}

// Defensive reports whether the state calls for a reduced stance.
func (s State) Defensive() bool { return s == Crisis || s == Chop }

// Resolve applies the precedence rule. Empty inputs are treated as Normal.
func Resolve(c crisis.Regime, ch chop.Regime) State {
	switch c {
	case crisis.Crisis, crisis.PreCrisis:
		return Crisis
	}
	switch ch {
	case chop.MildChop, chop.HighChop:
		return Chop
	}
	return Normal
}

// Day is one merged row.
type Day struct {
	Date   time.Time     `json:"date"`
	Crisis crisis.Regime `json:"crisis_regime"`
	Chop   chop.Regime   `json:"chop_regime"`
	State  State         `json:"macro_state"`
}

// Merge outer-joins crisis and chop label series on date. A date present
// in only one input takes NORMAL for the other. Labels that name no known
// regime are rejected.
func Merge(crisisLabels, chopLabels series.Labels) ([]Day, error) {
	rows := make(map[int64]*Day, crisisLabels.Len()+chopLabels.Len())
	get := func(d time.Time) *Day {
		k := d.UnixNano()
		if r, ok := rows[k]; ok {
			return r
		}
		r := &Day{Date: d, Crisis: crisis.Normal, Chop: chop.Normal}
		rows[k] = r
		return r
	}
	for i, d := range crisisLabels.Dates {
		c, err := crisis.ParseRegime(crisisLabels.Values[i])
		if err != nil {
			return nil, fmt.Errorf("%s on %s: %w", crisisLabels.Name, d.Format("2006-01-02"), err)
		}
		get(d).Crisis = c
	}
	for i, d := range chopLabels.Dates {
		c, err := chop.ParseRegime(chopLabels.Values[i])
		if err != nil {
			return nil, fmt.Errorf("%s on %s: %w", chopLabels.Name, d.Format("2006-01-02"), err)
		}
		get(d).Chop = c
	}

	out := make([]Day, 0, len(rows))
	for _, r := range rows {
		r.State = Resolve(r.Crisis, r.Chop)
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// VolBucket maps a volatility label onto the LOW/MEDIUM/HIGH axis used by
// the combined classification.
func VolBucket(l vol.Label) string {
	switch l {
	case vol.Calm:
		return "LOW"
	case vol.High:
		return "HIGH"
	default:
		return "MEDIUM"
	}
}

// Combine builds the nine-state vol × macro label, e.g. HIGH_CRISIS.
func Combine(l vol.Label, s State) string {
	return VolBucket(l) + "_" + strings.ToUpper(string(s))
}
