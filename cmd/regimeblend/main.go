package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/regimeblend/internal/config"
	applog "github.com/sawpanic/regimeblend/internal/log"
	"github.com/sawpanic/regimeblend/internal/series"
)

const (
	appName = "regimeblend"
	version = "v1.0.0"
)

// Exit codes.
const (
	exitOK     = 0
	exitError  = 1
	exitConfig = 2
	exitData   = 3
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     appName,
		Short:   "Regime-adaptive portfolio blending",
		Version: version,
		Long: `regimeblend classifies each trading day into a volatility state and a
macro regime (Normal, Chop, Crisis), smooths the regime weight vectors and
blends strategy sleeves into a single vol-targeted position.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("config", "c", "configs/regimeblend.yaml", "Run configuration file (empty for built-in defaults)")
	root.PersistentFlags().String("log-level", "", "Override the configured log level (trace|debug|info|warn|error)")
	root.PersistentFlags().String("log-format", "", "Override the configured log format (auto|console|json)")

	root.AddCommand(newBacktestCmd(), newRegimesCmd(), newConfigCmd())
	return root
}

// exitCode maps typed failures onto distinct exit statuses.
func exitCode(err error) int {
	var cfgErr *config.ConfigurationError
	var dataErr *series.DataAlignmentError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &cfgErr):
		return exitConfig
	case errors.As(err, &dataErr):
		return exitData
	default:
		return exitError
	}
}

// loadConfig reads the --config file and applies the logging overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	var cfg *config.Config
	if path == "" {
		cfg = config.Default()
	} else {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}

	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	if format, _ := cmd.Flags().GetString("log-format"); format != "" {
		cfg.Log.Format = format
	}
	if err := setupLogging(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogging(cfg *config.Config) error {
	if err := applog.Setup(cfg.Log.Level, cfg.Log.Format, os.Stderr); err != nil {
		return &config.ConfigurationError{Key: "log.level", Reason: fmt.Sprintf("invalid level %q", cfg.Log.Level), Err: err}
	}
	return nil
}
