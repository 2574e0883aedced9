package perf

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"
)

// Alert severities.
const (
	SeverityCritical = "CRITICAL"
	SeverityWarning  = "WARNING"
)

// Alert is a run-level threshold breach.
type Alert struct {
	Type      string  `json:"type"` // sharpe, drawdown, correlation, cost
	Severity  string  `json:"severity"`
	Message   string  `json:"message"`
	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Pair      string  `json:"pair,omitempty"`
}

// AlertHandler delivers alerts somewhere.
type AlertHandler interface {
	SendAlert(alert Alert) error
	HandlerType() string
}

// AlertManager evaluates metrics against the configured thresholds.
type AlertManager struct {
	cfg      Config
	handlers []AlertHandler
}

// NewAlertManager creates a manager with no handlers.
func NewAlertManager(cfg Config) *AlertManager {
	return &AlertManager{cfg: cfg}
}

// AddHandler registers a delivery handler.
func (am *AlertManager) AddHandler(h AlertHandler) {
	am.handlers = append(am.handlers, h)
}

// Check returns the breaches found in m and corr, ordered critical first.
func (am *AlertManager) Check(m *Metrics, corr Correlation) []Alert {
	var alerts []Alert

	if m != nil {
		if m.Sharpe < am.cfg.MinSharpe {
			alerts = append(alerts, Alert{
				Type:      "sharpe",
				Severity:  SeverityWarning,
				Message:   fmt.Sprintf("Net Sharpe %.2f is below minimum of %.2f", m.Sharpe, am.cfg.MinSharpe),
				Metric:    "sharpe",
				Value:     m.Sharpe,
				Threshold: am.cfg.MinSharpe,
			})
		}

		if dd := -m.MaxDrawdown; dd > am.cfg.MaxDrawdown {
			severity := SeverityWarning
			if dd > am.cfg.MaxDrawdown*1.5 {
				severity = SeverityCritical
			}
			alerts = append(alerts, Alert{
				Type:      "drawdown",
				Severity:  severity,
				Message:   fmt.Sprintf("Maximum drawdown %.2f%% exceeds limit of %.2f%%", dd*100, am.cfg.MaxDrawdown*100),
				Metric:    "max_drawdown",
				Value:     m.MaxDrawdown,
				Threshold: -am.cfg.MaxDrawdown,
			})
		}

		// costs eating more than half the gross edge
		if m.Turnover.CostPctGross > 0.5 {
			alerts = append(alerts, Alert{
				Type:      "cost",
				Severity:  SeverityWarning,
				Message:   fmt.Sprintf("Costs consume %.0f%% of gross PnL", m.Turnover.CostPctGross*100),
				Metric:    "cost_as_pct_gross",
				Value:     m.Turnover.CostPctGross,
				Threshold: 0.5,
			})
		}
	}

	for i := range corr.Names {
		for j := i + 1; j < len(corr.Names); j++ {
			r := corr.Matrix[i][j]
			if math.Abs(r) <= am.cfg.MaxCorrelation {
				continue
			}
			pair := corr.Names[i] + "/" + corr.Names[j]
			alerts = append(alerts, Alert{
				Type:      "correlation",
				Severity:  SeverityWarning,
				Message:   fmt.Sprintf("Sleeves %s correlate at %.2f, above %.2f", pair, r, am.cfg.MaxCorrelation),
				Metric:    "correlation",
				Value:     r,
				Threshold: am.cfg.MaxCorrelation,
				Pair:      pair,
			})
		}
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].Severity == SeverityCritical && alerts[j].Severity != SeverityCritical
	})
	return alerts
}

// SendAlerts delivers every alert through every handler and joins the
// delivery errors.
func (am *AlertManager) SendAlerts(alerts []Alert) error {
	var errs []error
	for _, a := range alerts {
		for _, h := range am.handlers {
			if err := h.SendAlert(a); err != nil {
				errs = append(errs, fmt.Errorf("handler %s failed: %w", h.HandlerType(), err))
			}
		}
	}
	return errors.Join(errs...)
}

// LogHandler writes alerts to a zerolog logger.
type LogHandler struct {
	Logger zerolog.Logger
}

// SendAlert logs at warn, or error for critical alerts.
func (h *LogHandler) SendAlert(a Alert) error {
	ev := h.Logger.Warn()
	if a.Severity == SeverityCritical {
		ev = h.Logger.Error()
	}
	ev.Str("type", a.Type).
		Str("metric", a.Metric).
		Float64("value", a.Value).
		Float64("threshold", a.Threshold).
		Msg(a.Message)
	return nil
}

func (h *LogHandler) HandlerType() string { return "log" }

// AlertSummary counts alerts by severity and type.
type AlertSummary struct {
	Total      int            `json:"total"`
	BySeverity map[string]int `json:"by_severity"`
	ByType     map[string]int `json:"by_type"`
}

// SummarizeAlerts tallies alerts.
func SummarizeAlerts(alerts []Alert) AlertSummary {
	s := AlertSummary{
		Total:      len(alerts),
		BySeverity: make(map[string]int),
		ByType:     make(map[string]int),
	}
	for _, a := range alerts {
		s.BySeverity[a.Severity]++
		s.ByType[a.Type]++
	}
	return s
}
