package artifacts

import (
	"encoding/csv"
	stdio "io"
	"strconv"

	"github.com/sawpanic/regimeblend/internal/pipeline"
	"github.com/sawpanic/regimeblend/internal/portfolio/weights"
	"github.com/sawpanic/regimeblend/internal/stats"
)

var csvBaseHeader = []string{
	"date", "price", "ret_log", "rv", "pctl", "vol_state", "spike",
	"composite_crisis", "crisis_regime", "chop_regime", "macro_state", "combined_regime", "switched",
	"stop_multiplier", "convergence",
	"raw_position", "realized_vol", "leverage", "position", "turnover", "cost", "pnl_gross", "pnl_net", "equity",
}

// writeCSV writes one row per date. Per-sleeve allocation, ERC weight and
// PnL columns follow the fixed columns; undefined values are empty cells.
func writeCSV(w stdio.Writer, sleeves []string, days []pipeline.DailyOutput) error {
	cw := csv.NewWriter(w)

	header := append([]string(nil), csvBaseHeader...)
	header = append(header, "w_"+weights.Cash)
	for _, s := range sleeves {
		header = append(header, "w_"+s, "erc_"+s, "pnl_"+s)
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, d := range days {
		b := d.Blend
		rec := []string{
			d.Date.Format("2006-01-02"),
			f(d.Vol.Price), f(d.Vol.Return), f(d.Vol.RV), f(d.Vol.Pct),
			string(d.Vol.State), strconv.FormatBool(d.Vol.Spike),
			f(d.Crisis.Composite), string(d.Crisis.Regime), string(d.Chop), string(d.Macro), d.Combined,
			strconv.FormatBool(d.Switched),
			f(d.StopMult), f(d.Convergence),
			f(b.RawPosition), f(b.RealizedVol), f(b.Leverage), f(b.Position),
			f(b.Turnover), f(b.Cost), f(b.Gross), f(b.Net), f(b.Equity),
			f(d.Allocation[weights.Cash]),
		}
		for _, s := range sleeves {
			rec = append(rec, f(d.Allocation[s]), f(b.ERCWeights[s]), f(b.SleevePnL[s]))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func f(x float64) string {
	if !stats.IsFinite(x) {
		return ""
	}
	return strconv.FormatFloat(x, 'g', 10, 64)
}
