// Package metrics exposes run metrics through a Prometheus registry. The
// registry observes the pipeline day by day and is exported as a textfile
// at the end of a run.
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/regimeblend/internal/pipeline"
	"github.com/sawpanic/regimeblend/internal/regime/macro"
)

const namespace = "regimeblend"

// MetricsRegistry holds every regimeblend collector on a private registry.
type MetricsRegistry struct {
	registry *prometheus.Registry

	// Regime metrics
	RegimeDays     *prometheus.CounterVec
	RegimeSwitches *prometheus.CounterVec
	ActiveRegime   *prometheus.GaugeVec

	// Diagnostics
	Degeneracies *prometheus.CounterVec
	Warnings     *prometheus.CounterVec

	// Blend metrics
	Leverage      *prometheus.GaugeVec
	Position      *prometheus.GaugeVec
	Equity        *prometheus.GaugeVec
	ERCIterations *prometheus.HistogramVec

	RunDuration *prometheus.HistogramVec

	mu        sync.Mutex
	lastState map[string]macro.State
}

// NewMetricsRegistry creates and registers all collectors.
func NewMetricsRegistry() *MetricsRegistry {
	m := &MetricsRegistry{
		registry:  prometheus.NewRegistry(),
		lastState: make(map[string]macro.State),

		RegimeDays: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "regime_days_total",
				Help:      "Days spent in each macro state",
			},
			[]string{"instrument", "state"},
		),
		RegimeSwitches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "regime_switches_total",
				Help:      "Macro state changes by from/to state",
			},
			[]string{"instrument", "from_state", "to_state"},
		),
		ActiveRegime: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_regime",
				Help:      "Latest macro state (0=Normal, 1=Chop, 2=Crisis)",
			},
			[]string{"instrument"},
		),
		Degeneracies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "degeneracies_total",
				Help:      "Recovered numeric degeneracies by component",
			},
			[]string{"instrument", "component"},
		),
		Warnings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "warnings_total",
				Help:      "Validation warnings by code",
			},
			[]string{"instrument", "code"},
		),
		Leverage: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "leverage",
				Help:      "Latest vol-targeting leverage",
			},
			[]string{"instrument"},
		),
		Position: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "position",
				Help:      "Latest levered composite position",
			},
			[]string{"instrument"},
		),
		Equity: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "equity",
				Help:      "Latest compounded net equity",
			},
			[]string{"instrument"},
		),
		ERCIterations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "erc_iterations",
				Help:      "ERC solver iterations per solved day",
				Buckets:   []float64{1, 2, 5, 10, 20, 50, 100, 250, 500, 1000},
			},
			[]string{"instrument"},
		),
		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Wall time of a completed run",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"instrument"},
		),
	}

	m.registry.MustRegister(
		m.RegimeDays,
		m.RegimeSwitches,
		m.ActiveRegime,
		m.Degeneracies,
		m.Warnings,
		m.Leverage,
		m.Position,
		m.Equity,
		m.ERCIterations,
		m.RunDuration,
	)
	return m
}

// Registry returns the underlying gatherer.
func (m *MetricsRegistry) Registry() *prometheus.Registry { return m.registry }

func regimeCode(s macro.State) float64 {
	switch s {
	case macro.Chop:
		return 1
	case macro.Crisis:
		return 2
	default:
		return 0
	}
}

// ObserveDay implements pipeline.Observer.
func (m *MetricsRegistry) ObserveDay(instrument string, out pipeline.DailyOutput) {
	m.RegimeDays.WithLabelValues(instrument, string(out.Macro)).Inc()
	m.ActiveRegime.WithLabelValues(instrument).Set(regimeCode(out.Macro))

	m.mu.Lock()
	prev, seen := m.lastState[instrument]
	m.lastState[instrument] = out.Macro
	m.mu.Unlock()
	if seen && prev != out.Macro {
		m.RegimeSwitches.WithLabelValues(instrument, string(prev), string(out.Macro)).Inc()
	}

	for _, w := range out.Warnings {
		m.Warnings.WithLabelValues(instrument, w.Code).Inc()
	}

	b := out.Blend
	m.Leverage.WithLabelValues(instrument).Set(b.Leverage)
	m.Position.WithLabelValues(instrument).Set(b.Position)
	m.Equity.WithLabelValues(instrument).Set(b.Equity)
	if b.ERCIterations > 0 {
		m.ERCIterations.WithLabelValues(instrument).Observe(float64(b.ERCIterations))
	}
}

// RecordResult adds the run-level figures that only exist once a run has
// finished.
func (m *MetricsRegistry) RecordResult(res *pipeline.Result) {
	for _, d := range res.Degeneracies {
		m.Degeneracies.WithLabelValues(res.Instrument, d.Component).Inc()
	}
	if !res.Finished.IsZero() {
		m.RunDuration.WithLabelValues(res.Instrument).Observe(res.Finished.Sub(res.Started).Seconds())
	}
}

// WriteTextfile exports the registry in the node-exporter textfile format.
func (m *MetricsRegistry) WriteTextfile(path string) error {
	start := time.Now()
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	log.Debug().Str("path", path).Dur("elapsed", time.Since(start)).Msg("Metrics textfile written")
	return nil
}

// Snapshot flattens counters and gauges into name{labels} → value.
// Histograms contribute their _count and _sum.
func (m *MetricsRegistry) Snapshot() (map[string]float64, error) {
	return m.snapshot(func([]*dto.LabelPair) bool { return true })
}

// SnapshotInstrument is Snapshot restricted to one instrument's series.
func (m *MetricsRegistry) SnapshotInstrument(instrument string) (map[string]float64, error) {
	return m.snapshot(func(pairs []*dto.LabelPair) bool {
		for _, p := range pairs {
			if p.GetName() == "instrument" {
				return p.GetValue() == instrument
			}
		}
		return false
	})
}

func (m *MetricsRegistry) snapshot(keep func([]*dto.LabelPair) bool) (map[string]float64, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("failed to gather metrics: %w", err)
	}
	out := make(map[string]float64)
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			if !keep(metric.GetLabel()) {
				continue
			}
			key := mf.GetName() + labelString(metric.GetLabel())
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				out[key] = metric.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				out[key] = metric.GetGauge().GetValue()
			case dto.MetricType_HISTOGRAM:
				h := metric.GetHistogram()
				out[mf.GetName()+"_count"+labelString(metric.GetLabel())] = float64(h.GetSampleCount())
				out[mf.GetName()+"_sum"+labelString(metric.GetLabel())] = h.GetSampleSum()
			}
		}
	}
	return out, nil
}

func labelString(pairs []*dto.LabelPair) string {
	if len(pairs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, p.GetName()+"="+p.GetValue())
	}
	sort.Strings(parts)
	return "{" + strings.Join(parts, ",") + "}"
}
