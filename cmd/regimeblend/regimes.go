package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sawpanic/regimeblend/internal/pipeline"
	"github.com/sawpanic/regimeblend/internal/report/artifacts"
)

func newRegimesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "regimes",
		Short: "Label regimes without blending",
		Long: `Runs only the volatility, crisis and chop classifiers over the market
file and prints the macro and combined regime distributions. With --out the
per-date labels are written to regimes.jsonl.`,
		RunE: runRegimes,
	}
	addSourceFlags(cmd, false)
	cmd.Flags().String("out", "", "Write regimes.jsonl to this directory")
	return cmd
}

func runRegimes(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	srcs, err := sourcesFromFlags(cmd.Flags())
	if err != nil {
		return err
	}

	in, err := pipeline.LoadMarket(ctx, cfg.Data, srcs[0])
	if err != nil {
		return err
	}
	runner, err := pipeline.NewRunner(cfg)
	if err != nil {
		return err
	}
	c, err := runner.Classify(ctx, in)
	if err != nil {
		return err
	}

	if dir, _ := cmd.Flags().GetString("out"); dir != "" {
		if _, err := artifacts.NewWriter(dir).WriteRegimes(c); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d dates, %d regime switches\n", c.Instrument, len(c.Days), c.Switches)
	printDistribution(out, "Macro regimes", c.Macro)
	printDistribution(out, "Vol × macro", c.Combined)
	return nil
}
