package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/sawpanic/regimeblend/internal/diag"
	"github.com/sawpanic/regimeblend/internal/regime/chop"
	"github.com/sawpanic/regimeblend/internal/regime/crisis"
	"github.com/sawpanic/regimeblend/internal/regime/macro"
	"github.com/sawpanic/regimeblend/internal/regime/vol"
)

// RegimeDay is the classification of one date without any blending.
type RegimeDay struct {
	Date     time.Time     `json:"date"`
	Vol      vol.Record    `json:"vol"`
	Crisis   crisis.Record `json:"crisis"`
	Chop     chop.Regime   `json:"chop"`
	Macro    macro.State   `json:"macro"`
	Combined string        `json:"combined"`
	Switched bool          `json:"switched"`
}

// Classification is the label history of one instrument.
type Classification struct {
	Instrument   string            `json:"instrument"`
	Days         []RegimeDay       `json:"-"`
	Switches     int               `json:"regime_switches"`
	Macro        []macro.Share     `json:"macro_distribution"`
	Combined     []macro.Share     `json:"combined_distribution"`
	Degeneracies []diag.Degeneracy `json:"degeneracies"`
}

// Classify folds only the vol, crisis and chop components over in. It
// needs no sleeves and leaves weights untouched.
func (r *Runner) Classify(ctx context.Context, in *Inputs) (*Classification, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	classifier, err := NewClassifier(r.cfg.Chop, in.ChopLabels)
	if err != nil {
		return nil, err
	}
	vm := vol.NewMachine(r.cfg.Vol)
	det := crisis.NewDetector(r.cfg.Crisis)
	collector := diag.NewCollector()

	out := &Classification{Instrument: in.Name, Days: make([]RegimeDay, 0, len(in.Dates))}
	var prev macro.State
	macroLabels := make([]string, 0, len(in.Dates))
	combinedLabels := make([]string, 0, len(in.Dates))
	for i, date := range in.Dates {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("classify %s interrupted at %s: %w", in.Name, date.Format("2006-01-02"), err)
		}
		price := in.Price[i]
		vr := vm.Step(date, price)
		if vr.Degenerate {
			collector.Degenerate(diag.Degeneracy{Date: date, Component: diag.ComponentVol, Detail: fmt.Sprintf("realised vol %g", vr.RV), Fallback: "size floor"})
		}
		cr := det.Step(date, at(in.Credit, i), at(in.Vix, i))
		ch := classifier.Step(chop.Observation{Date: date, Price: price, Vix: at(in.Vix, i)})
		state := macro.Resolve(cr.Regime, ch)

		day := RegimeDay{
			Date:     date,
			Vol:      vr,
			Crisis:   cr,
			Chop:     ch,
			Macro:    state,
			Combined: macro.Combine(vr.State, state),
			Switched: i > 0 && state != prev,
		}
		if day.Switched {
			out.Switches++
		}
		prev = state
		out.Days = append(out.Days, day)
		macroLabels = append(macroLabels, string(state))
		combinedLabels = append(combinedLabels, day.Combined)
	}

	out.Macro = macro.Distribution(macroLabels)
	out.Combined = macro.Distribution(combinedLabels)
	out.Degeneracies = collector.Degeneracies()
	r.logger.Info().Str("instrument", in.Name).Int("dates", len(out.Days)).Int("regime_switches", out.Switches).Msg("Classification complete")
	return out, nil
}
