package cmd

import (
	"fmt"
	_ "time/tzdata" // session.timezone on hosts without zoneinfo

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/cvdtrader/config"
	"github.com/rustyeddy/cvdtrader/logging"
)

var rootCmd = &cobra.Command{
	Use:   "cvdtrader",
	Short: "Backtest CVD trendline breakouts on futures trade data",
	Long: `cvdtrader replays historical trades or bars through a cumulative volume
delta (CVD) trendline breakout strategy and reports the resulting trades.

It provides tools for:
  - Aggregating trades into time or tick-count bars
  - Fitting support/resistance trendlines to the CVD window
  - Filtering breakouts by price, slope, volume, EMA and ADX
  - Journaling runs and trades to SQLite or CSV

Trades can be read from CSV files, the Databento historical API or ClickHouse.`,
	SilenceUsage: true,
}

var (
	rootConfigPath string
	rootEnvFiles   []string
	rootLogLevel   string
	rootLogFormat  string
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootConfigPath, "config", "f", "", "config file (YAML or JSON); defaults are used when empty")
	rootCmd.PersistentFlags().StringSliceVar(&rootEnvFiles, "env", []string{".env"}, ".env files to load before the config")
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "log-level", "", "log level (overrides log.level)")
	rootCmd.PersistentFlags().StringVar(&rootLogFormat, "log-format", "", "log format: console or json (overrides log.format)")
}

// loadConfig resolves the configuration named by the persistent flags and
// builds the logger it describes.
func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(rootConfigPath, rootEnvFiles...)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}
	if rootLogLevel != "" {
		cfg.Log.Level = rootLogLevel
	}
	if rootLogFormat != "" {
		cfg.Log.Format = rootLogFormat
	}
	return cfg, logging.New(cfg.Log.Level, cfg.Log.Format), nil
}
