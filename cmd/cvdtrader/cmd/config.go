package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/cvdtrader/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage backtest configuration files",
	Long: `Create and validate backtest configuration files.

Subcommands:
  init     - Write a default configuration file
  validate - Check a configuration file

Examples:
  cvdtrader config init -o backtest.yaml
  cvdtrader config validate -f backtest.yaml`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default configuration file",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

var configInitOutput string

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "backtest.yaml", "output config file path")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if err := cfg.SaveToFile(configInitOutput); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Created default configuration: %s\n", configInitOutput)
	fmt.Fprintln(out, "\nEdit the file and run with:")
	fmt.Fprintf(out, "  cvdtrader backtest -f %s\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if rootConfigPath == "" {
		return errors.New("--config is required")
	}
	cfg, err := config.LoadFromFile(rootConfigPath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Configuration valid: %s\n", rootConfigPath)
	fmt.Fprintf(out, "  Source: %s (%s)\n", cfg.Source.Type, sourceSymbol(cfg))
	if cfg.Bars.Mode == "time" {
		fmt.Fprintf(out, "  Bars: time %s\n", cfg.Bars.Duration)
	} else {
		fmt.Fprintf(out, "  Bars: %d trades\n", cfg.Bars.Ticks)
	}
	fmt.Fprintf(out, "  Strategy: window %d, tolerance %.2f%%\n", cfg.Strategy.Window, cfg.Strategy.TolerancePct*100)
	if cfg.Strategy.EMA != nil {
		fmt.Fprintf(out, "  EMA: %d\n", cfg.Strategy.EMA.Period)
	}
	if cfg.Strategy.ADX != nil {
		fmt.Fprintf(out, "  ADX: %d (threshold %.1f)\n", cfg.Strategy.ADX.Period, cfg.Strategy.ADX.Threshold)
	}
	fmt.Fprintf(out, "  Risk: %s (stop %.2f, target %.2f)\n", cfg.Risk.Mode, cfg.Risk.StopPoints, cfg.Risk.TargetPoints)
	fmt.Fprintf(out, "  Journal: %s\n", cfg.Journal.Type)
	return nil
}
