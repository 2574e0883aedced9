package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/regimeblend/internal/cache"
	"github.com/sawpanic/regimeblend/internal/config"
	"github.com/sawpanic/regimeblend/internal/infrastructure/db"
	applog "github.com/sawpanic/regimeblend/internal/log"
	"github.com/sawpanic/regimeblend/internal/metrics"
	"github.com/sawpanic/regimeblend/internal/persistence"
	"github.com/sawpanic/regimeblend/internal/pipeline"
	"github.com/sawpanic/regimeblend/internal/report/artifacts"
	"github.com/sawpanic/regimeblend/internal/report/perf"
)

func newBacktestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Classify, smooth and blend instruments end to end",
		Long: `Runs the full daily fold over the aligned market and sleeve inputs and
writes daily.jsonl, daily.csv, summary.json, report.md and metrics.prom to
the output directory. With --persist (or a configured storage DSN) the run
is also stored in Postgres or SQLite, and the final regime is published to
the snapshot cache.

Repeating --market blends each instrument concurrently against the same
sleeves. Each instrument then writes to <out>/<name>, and metrics.prom
covering all of them stays at <out>.`,
		Example: `  regimeblend backtest --market data/hg.csv \
      --sleeve trend=data/trend.csv --sleeve carry=data/carry.xlsx --out out/hg

  regimeblend backtest --market hg=data/hg.csv --market cl=data/cl.csv \
      --sleeve trend=data/trend.csv --out out/metals`,
		RunE: runBacktest,
	}
	addSourceFlags(cmd, true)
	cmd.Flags().String("out", "", "Output directory (defaults to output.dir)")
	cmd.Flags().Bool("persist", false, "Store the run in the configured database")
	return cmd
}

// progressObserver advances a progress bar once per date.
type progressObserver struct {
	p *applog.Progress
}

func (o progressObserver) ObserveDay(string, pipeline.DailyOutput) { o.p.Increment() }

func runBacktest(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	srcs, err := sourcesFromFlags(cmd.Flags())
	if err != nil {
		return err
	}
	if out, _ := cmd.Flags().GetString("out"); out != "" {
		cfg.Output.Dir = out
	}
	persist, _ := cmd.Flags().GetBool("persist")

	inputs := make([]*pipeline.Inputs, len(srcs))
	names := make([]string, len(srcs))
	total := 0
	for i, src := range srcs {
		if inputs[i], err = pipeline.Load(ctx, cfg.Data, src); err != nil {
			return err
		}
		names[i] = src.Name
		total += len(inputs[i].Dates)
	}

	registry := metrics.NewMetricsRegistry()
	progress := applog.NewProgress("blend "+strings.Join(names, ","), total, os.Stderr, applog.IsTerminal(os.Stderr))
	runner, err := pipeline.NewRunner(cfg, registry, progressObserver{progress})
	if err != nil {
		return err
	}
	results, err := runner.RunMany(ctx, inputs)
	if err != nil {
		return err
	}
	progress.Finish(fmt.Sprintf("%d dates blended across %d instruments", total, len(results)))
	for _, res := range results {
		registry.RecordResult(res)
	}

	for _, res := range results {
		dir := cfg.Output.Dir
		if len(results) > 1 {
			dir = filepath.Join(dir, res.Instrument)
		}
		if err := finishRun(cmd, cfg, registry, res, dir, persist); err != nil {
			return err
		}
	}

	if !cfg.Output.DisableMetrics {
		if err := registry.WriteTextfile(artifacts.NewWriter(cfg.Output.Dir).Path(artifacts.MetricsProm)); err != nil {
			return err
		}
	}
	return nil
}

// finishRun scores, writes, stores and prints one instrument's result.
func finishRun(cmd *cobra.Command, cfg *config.Config, registry *metrics.MetricsRegistry, res *pipeline.Result, dir string, persist bool) error {
	ctx := cmd.Context()
	runID := uuid.NewString()
	logger := log.With().Str("run_id", runID).Str("instrument", res.Instrument).Logger()

	calc := perf.NewCalculator(cfg.Report)
	alerts := perf.NewAlertManager(cfg.Report)
	alerts.AddHandler(&perf.LogHandler{Logger: logger.With().Str("component", "alerts").Logger()})

	summary := artifacts.BuildSummary(runID, res, calc, alerts)
	if err := alerts.SendAlerts(summary.Alerts); err != nil {
		logger.Warn().Err(err).Msg("Alert delivery failed")
	}
	if !cfg.Output.DisableMetrics {
		var err error
		if summary.Counters, err = registry.SnapshotInstrument(res.Instrument); err != nil {
			logger.Warn().Err(err).Msg("Metric snapshot failed")
		}
	}

	if _, err := artifacts.NewWriter(dir).Write(res, summary); err != nil {
		return err
	}

	if persist || cfg.Storage.DSN != "" {
		if err := persistRun(ctx, cfg, runID, res, summary); err != nil {
			return err
		}
	}
	publishSnapshot(ctx, cfg.Cache, runID, res)

	printSummary(cmd.OutOrStdout(), summary)
	return nil
}

func persistRun(ctx context.Context, cfg *config.Config, runID string, res *pipeline.Result, summary *artifacts.Summary) error {
	mgr, err := db.NewManager(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer mgr.Close()
	if !mgr.IsEnabled() {
		return &config.ConfigurationError{Key: "storage.dsn", Reason: "--persist needs a storage DSN"}
	}

	doc, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	if err := persistence.Persist(ctx, mgr.Repository(), runID, res, summary.Metrics, doc); err != nil {
		return err
	}
	log.Info().Str("run_id", runID).Str("dialect", string(mgr.Dialect())).Int("days", len(res.Days)).Msg("Run persisted")
	return nil
}

// publishSnapshot pushes the final regime to the cache. Failures are
// logged, the run itself already succeeded.
func publishSnapshot(ctx context.Context, cfg config.CacheConfig, runID string, res *pipeline.Result) {
	if len(res.Days) == 0 {
		return
	}
	c, err := cache.New(ctx, cfg)
	if err != nil {
		log.Warn().Err(err).Str("backend", cfg.Backend).Msg("Snapshot cache unavailable")
		return
	}
	defer c.Close()

	snap := persistence.NewRegimeSnapshot(runID, res.Instrument, res.Days[len(res.Days)-1])
	if err := c.Set(ctx, snap); err != nil {
		log.Warn().Err(err).Msg("Snapshot publish failed")
		return
	}
	log.Debug().Str("backend", cfg.Backend).Str("macro", snap.MacroState).Msg("Regime snapshot published")
}
