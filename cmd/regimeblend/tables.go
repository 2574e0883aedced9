package main

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"

	"github.com/sawpanic/regimeblend/internal/regime/macro"
	"github.com/sawpanic/regimeblend/internal/report/artifacts"
	"github.com/sawpanic/regimeblend/internal/report/perf"
)

func pct(x float64) string { return fmt.Sprintf("%.2f%%", 100*x) }

// printSummary renders the headline metrics of a run.
func printSummary(out io.Writer, s *artifacts.Summary) {
	fmt.Fprintf(out, "\n%s  %s → %s  (%d days, run %s)\n", s.Instrument, s.FirstDate, s.LastDate, s.Days, s.RunID)

	table := tablewriter.NewWriter(out)
	table.Header("Metric", "Value")
	table.Append("Final equity", fmt.Sprintf("%.4f", s.FinalEquity))
	if m := s.Metrics; m != nil {
		table.Append("Sharpe (net)", fmt.Sprintf("%.2f", m.Sharpe))
		table.Append("Sharpe (gross)", fmt.Sprintf("%.2f", m.GrossSharpe))
		table.Append("Annual return", pct(m.AnnualReturn))
		table.Append("Annual vol", pct(m.AnnualVol))
		table.Append("Max drawdown", pct(m.MaxDrawdown))
		table.Append("Annual turnover", fmt.Sprintf("%.1f", m.Turnover.AnnualTurnover))
		table.Append("Cost / gross", pct(m.Turnover.CostPctGross))
	} else {
		table.Append("Metrics", "run too short after warm-up")
	}
	table.Append("Regime switches", fmt.Sprintf("%d", s.RegimeSwitches))
	table.Append("Alerts", fmt.Sprintf("%d", s.AlertCounts.Total))
	table.Render()

	printAttribution(out, s.Attribution)
	printDistribution(out, "Macro regimes", s.MacroDistribution)
}

func printAttribution(out io.Writer, a perf.Attribution) {
	if len(a.Streams) == 0 {
		return
	}
	table := tablewriter.NewWriter(out)
	table.Header("Stream", "Sharpe", "Annual return", "Annual vol", "Days")
	for _, name := range a.Names() {
		m := a.Streams[name]
		table.Append(name, fmt.Sprintf("%.2f", m.Sharpe), pct(m.AnnualReturn), pct(m.AnnualVol), fmt.Sprintf("%d", m.Days))
	}
	table.Render()
	fmt.Fprintf(out, "  Diversification benefit: %.1f%% over best sleeve\n", a.Diversification.ImprovementPct)
}

func printDistribution(out io.Writer, title string, shares []macro.Share) {
	fmt.Fprintf(out, "\n%s\n", title)
	table := tablewriter.NewWriter(out)
	table.Header("Regime", "Days", "Share")
	for _, s := range shares {
		table.Append(s.Label, fmt.Sprintf("%d", s.Days), fmt.Sprintf("%.1f%%", s.Pct))
	}
	table.Render()
}
