package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sawpanic/regimeblend/internal/config"
	"github.com/sawpanic/regimeblend/internal/pipeline"
)

// addSourceFlags registers the input file flags shared by backtest and
// regimes. With blend set, --market repeats and sleeves are required.
func addSourceFlags(cmd *cobra.Command, blend bool) {
	if blend {
		cmd.Flags().StringArray("market", nil, "Market CSV/XLSX as path or name=path, repeatable")
		cmd.Flags().StringArray("sleeve", nil, "Sleeve input as name=path, repeatable")
		_ = cmd.MarkFlagRequired("sleeve")
	} else {
		cmd.Flags().String("market", "", "Market CSV/XLSX with date, price, credit and vix columns")
	}
	cmd.Flags().String("name", "", "Instrument name (defaults to the market file name)")
	cmd.Flags().String("chop", "", "Optional chop label CSV (date, chop_regime)")
	_ = cmd.MarkFlagRequired("market")
}

// parseSleeves turns name=path pairs into a map, rejecting duplicates.
func parseSleeves(specs []string) (map[string]string, error) {
	out := make(map[string]string, len(specs))
	for _, spec := range specs {
		name, path, ok := strings.Cut(spec, "=")
		name, path = strings.TrimSpace(name), strings.TrimSpace(path)
		if !ok || name == "" || path == "" {
			return nil, &config.ConfigurationError{Key: "sleeve", Reason: fmt.Sprintf("expected name=path, got %q", spec)}
		}
		if _, dup := out[name]; dup {
			return nil, &config.ConfigurationError{Key: "sleeve", Reason: fmt.Sprintf("sleeve %q given twice", name)}
		}
		out[name] = path
	}
	return out, nil
}

// instrumentName strips directory and extension from the market path.
func instrumentName(market string) string {
	base := filepath.Base(market)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

type market struct {
	name, path string
}

// parseMarkets resolves each market as path or name=path. name overrides
// the file-derived name of a single market.
func parseMarkets(specs []string, name string) ([]market, error) {
	if len(specs) == 0 {
		return nil, &config.ConfigurationError{Key: "market", Reason: "at least one market is required"}
	}
	if name != "" && len(specs) > 1 {
		return nil, &config.ConfigurationError{Key: "name", Reason: "--name applies to a single market, use name=path"}
	}
	out := make([]market, 0, len(specs))
	seen := make(map[string]bool, len(specs))
	for _, spec := range specs {
		m := market{path: strings.TrimSpace(spec)}
		if n, p, ok := strings.Cut(spec, "="); ok {
			m = market{name: strings.TrimSpace(n), path: strings.TrimSpace(p)}
			if m.name == "" || m.path == "" {
				return nil, &config.ConfigurationError{Key: "market", Reason: fmt.Sprintf("expected path or name=path, got %q", spec)}
			}
		}
		if m.path == "" {
			return nil, &config.ConfigurationError{Key: "market", Reason: "empty market path"}
		}
		if m.name == "" {
			m.name = name
		}
		if m.name == "" {
			m.name = instrumentName(m.path)
		}
		if seen[m.name] {
			return nil, &config.ConfigurationError{Key: "market", Reason: fmt.Sprintf("instrument %q given twice", m.name)}
		}
		seen[m.name] = true
		out = append(out, m)
	}
	return out, nil
}

// sourcesFromFlags builds one Sources per market. Every market shares the
// sleeve files.
func sourcesFromFlags(fs *pflag.FlagSet) ([]pipeline.Sources, error) {
	var specs []string
	if f := fs.Lookup("market"); f != nil && f.Value.Type() == "stringArray" {
		specs, _ = fs.GetStringArray("market")
	} else {
		m, _ := fs.GetString("market")
		specs = []string{m}
	}
	name, _ := fs.GetString("name")
	chopPath, _ := fs.GetString("chop")

	markets, err := parseMarkets(specs, name)
	if err != nil {
		return nil, err
	}
	if chopPath != "" && len(markets) > 1 {
		return nil, &config.ConfigurationError{Key: "chop", Reason: "--chop applies to a single market"}
	}

	var sleeves map[string]string
	if fs.Lookup("sleeve") != nil {
		sleeveSpecs, _ := fs.GetStringArray("sleeve")
		if sleeves, err = parseSleeves(sleeveSpecs); err != nil {
			return nil, err
		}
	}

	out := make([]pipeline.Sources, len(markets))
	for i, m := range markets {
		out[i] = pipeline.Sources{Name: m.name, Market: m.path, Chop: chopPath, Sleeves: sleeves}
	}
	return out, nil
}
