package artifacts

import (
	"fmt"
	stdio "io"
	"sort"
	"strings"
	"text/template"

	"github.com/sawpanic/regimeblend/internal/report/perf"
)

var reportFuncs = template.FuncMap{
	"pct": func(x float64) string { return fmt.Sprintf("%.2f%%", x*100) },
	"f2":  func(x float64) string { return fmt.Sprintf("%.2f", x) },
	"f3":  func(x float64) string { return fmt.Sprintf("%.3f", x) },
	"streams": func(a perf.Attribution) []streamRow {
		rows := make([]streamRow, 0, len(a.Streams))
		for _, name := range a.Names() {
			rows = append(rows, streamRow{Name: name, SleeveMetrics: a.Streams[name]})
		}
		return rows
	},
	"corrHeader": func(c perf.Correlation) string {
		var b strings.Builder
		b.WriteString("| |")
		for _, n := range c.Names {
			b.WriteString(" " + n + " |")
		}
		b.WriteString("\n|---|")
		b.WriteString(strings.Repeat("---:|", len(c.Names)))
		return b.String()
	},
	"corrRow": func(c perf.Correlation, i int) string {
		var b strings.Builder
		b.WriteString("| " + c.Names[i] + " |")
		for _, v := range c.Matrix[i] {
			fmt.Fprintf(&b, " %.2f |", v)
		}
		return b.String()
	},
	"counts": func(m map[string]int) []countRow {
		rows := make([]countRow, 0, len(m))
		for k, v := range m {
			rows = append(rows, countRow{Key: k, N: v})
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
		return rows
	},
}

type streamRow struct {
	Name string
	perf.SleeveMetrics
}

type countRow struct {
	Key string
	N   int
}

var reportTemplate = template.Must(template.New("report").Funcs(reportFuncs).Parse(reportText))

func writeReport(w stdio.Writer, s *Summary) error {
	return reportTemplate.Execute(w, s)
}

const reportText = `# Regime Blend Report: {{.Instrument}}

**Run:** {{.RunID}}  
**Period:** {{.FirstDate}} to {{.LastDate}} ({{.Days}} days)  
**Sleeves:** {{range $i, $s := .Sleeves}}{{if $i}}, {{end}}{{$s}}{{end}}  
**Final equity:** {{f3 .FinalEquity}}

## Performance

{{with .Metrics -}}
| Metric | Net | Gross |
|---|---:|---:|
| Sharpe | {{f2 .Sharpe}} | {{f2 .GrossSharpe}} |
| Annual return | {{pct .AnnualReturn}} | {{pct .GrossAnnualReturn}} |
| Annual vol | {{pct .AnnualVol}} | |
| Max drawdown | {{pct .MaxDrawdown}} | |
| Total return | {{pct .TotalReturn}} | |

Observations after warm-up: {{.Observations}}. Cost drag: {{f2 .CostDragSharpe}} Sharpe, {{pct .CostDragReturn}} a year.
Annual turnover {{f2 .Turnover.AnnualTurnover}}, {{f2 .Turnover.TradesPerYear}} trades a year, average holding {{f2 .Turnover.AvgHoldingDays}} days.
{{- else -}}
Not enough observations after warm-up to measure performance.
{{- end}}

## Alerts

{{if .Alerts -}}
{{range .Alerts -}}
- **{{.Severity}}** {{.Type}}: {{.Message}}
{{end -}}
{{else -}}
No threshold breaches.
{{end}}
## Sleeve Attribution

| Stream | Sharpe | Annual return | Annual vol | Days |
|---|---:|---:|---:|---:|
{{range streams .Attribution -}}
| {{.Name}} | {{f2 .Sharpe}} | {{pct .AnnualReturn}} | {{pct .AnnualVol}} | {{.Days}} |
{{end}}
Diversification: portfolio Sharpe {{f2 .Attribution.Diversification.PortfolioSharpe}} against best sleeve {{f2 .Attribution.Diversification.BestSleeveSharpe}} ({{printf "%+.1f%%" .Attribution.Diversification.ImprovementPct}}).
{{with .Correlation}}{{if .Names}}
### Correlation

{{corrHeader .}}
{{range $i, $n := .Names}}{{corrRow $.Correlation $i}}
{{end}}{{end}}{{end}}
## Regimes

{{.RegimeSwitches}} macro switches, smoothed weight turnover {{f2 .WeightTurnover}}.

| Macro state | Days | Share |
|---|---:|---:|
{{range .MacroDistribution -}}
| {{.Label}} | {{.Days}} | {{printf "%.1f%%" .Pct}} |
{{end}}
| Vol x macro | Days | Share |
|---|---:|---:|
{{range .CombinedDistribution -}}
| {{.Label}} | {{.Days}} | {{printf "%.1f%%" .Pct}} |
{{end}}
{{- if .Switches}}
### Switches

| Date | From | To |
|---|---|---|
{{range .Switches -}}
| {{.Date}} | {{.From}} | {{.To}} |
{{end}}{{end}}
## Diagnostics

{{if .Degeneracies -}}
| Degenerate component | Count |
|---|---:|
{{range counts .Degeneracies -}}
| {{.Key}} | {{.N}} |
{{end}}{{else -}}
No numeric degeneracies.
{{end}}
{{if .Warnings -}}
| Warning | Count |
|---|---:|
{{range counts .Warnings -}}
| {{.Key}} | {{.N}} |
{{end}}{{else -}}
No validation warnings.
{{end -}}
`
