package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration and regime weight table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			wl, err := cfg.WeightsLoader()
			if err != nil {
				return err
			}
			path, _ := cmd.Flags().GetString("config")
			if path == "" {
				path = "built-in defaults"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: OK (%d sleeves weighted, chop source %s, smoother %s/%d)\n",
				path, len(wl.Sleeves()), cfg.Chop.Source, cfg.Smoother.Method, cfg.Smoother.Window)
			return nil
		},
	})
	return cmd
}
