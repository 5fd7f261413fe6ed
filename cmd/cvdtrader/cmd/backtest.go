package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/cvdtrader/backtest"
	"github.com/rustyeddy/cvdtrader/config"
	"github.com/rustyeddy/cvdtrader/journal"
	"github.com/rustyeddy/cvdtrader/metrics"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run the CVD breakout strategy over historical data",
	Long: `Backtest replays trades (or pre-built bars) through the CVD trendline
breakout strategy and prints the trade log and statistics.

Flags override the values from the config file.

Examples:
  cvdtrader backtest --trades data/mes.csv --bar-ticks 700
  cvdtrader backtest -f backtest.yaml --start 2025-05-01T13:30:00Z --end 2025-05-01T20:00:00Z
  cvdtrader backtest --bars data/mes_bars.csv --ema 0 --adx-period 0 --json`,
	RunE: runBacktest,
}

var (
	btTradesPath   string
	btBarsPath     string
	btSource       string
	btStart        string
	btEnd          string
	btIdle         string
	btCloseEnd     bool
	btWindow       int
	btTolerance    float64
	btResetSignal  bool
	btBarMode      string
	btBarTicks     int
	btBarDuration  string
	btHeikinAshi   bool
	btEMA          int
	btADXPeriod    int
	btADXThreshold float64
	btRiskMode     string
	btStop         float64
	btTarget       float64
	btRMultiple    float64
	btMultiplier   float64
	btJSON         bool
	btDBPath       string
	btMetricsAddr  string
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	f := backtestCmd.Flags()
	f.StringVarP(&btTradesPath, "trades", "t", "", "trade CSV (time,price,size,side)")
	f.StringVarP(&btBarsPath, "bars", "b", "", "bar CSV (time,open,high,low,close,volume,delta,cvd)")
	f.StringVarP(&btSource, "source", "s", "", "source type: csv_trades, csv_bars, databento, clickhouse")
	f.StringVar(&btStart, "start", "", "session start (RFC3339)")
	f.StringVar(&btEnd, "end", "", "session end, exclusive (RFC3339)")
	f.StringVar(&btIdle, "idle-timeout", "", "stop when no bar arrives for this long (0 waits forever)")
	f.BoolVar(&btCloseEnd, "close-end", false, "close an open position at the last bar")

	f.IntVarP(&btWindow, "window", "w", 5, "CVD window size in bars")
	f.Float64Var(&btTolerance, "tolerance", 0.001, "price breakout tolerance (0.001 = 0.1%)")
	f.BoolVar(&btResetSignal, "reset-signal", false, "allow the same direction again after an exit")

	f.StringVar(&btBarMode, "bar-mode", "count", "bar mode: time or count")
	f.IntVar(&btBarTicks, "bar-ticks", 700, "trades per bar in count mode")
	f.StringVar(&btBarDuration, "bar-duration", "1m", "bar length in time mode")
	f.BoolVar(&btHeikinAshi, "heikin-ashi", false, "smooth bars into Heikin-Ashi candles")

	f.IntVar(&btEMA, "ema", 21, "EMA bias filter period (0 disables)")
	f.IntVar(&btADXPeriod, "adx-period", 14, "ADX filter period (0 disables)")
	f.Float64Var(&btADXThreshold, "adx-threshold", 14, "minimum ADX to accept a breakout")

	f.StringVar(&btRiskMode, "risk-mode", "fixed", "stop placement: fixed or r_multiple")
	f.Float64Var(&btStop, "stop", 4, "fixed mode: stop distance in points")
	f.Float64Var(&btTarget, "target", 3, "fixed mode: target distance in points")
	f.Float64Var(&btRMultiple, "r-multiple", 2, "r_multiple mode: target as a multiple of risk")
	f.Float64Var(&btMultiplier, "multiplier", 50, "dollars per point for daily P&L")

	f.BoolVar(&btJSON, "json", false, "print the report as JSON")
	f.StringVarP(&btDBPath, "db", "d", "", "journal the run to this SQLite DB")
	f.StringVar(&btMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
}

// applyBacktestFlags copies the flags the user set onto cfg.
func applyBacktestFlags(cmd *cobra.Command, cfg *config.Config) {
	set := cmd.Flags().Changed

	switch {
	case set("trades"):
		cfg.Source.Type = config.SourceCSVTrades
		cfg.Source.Path = btTradesPath
	case set("bars"):
		cfg.Source.Type = config.SourceCSVBars
		cfg.Source.Path = btBarsPath
	}
	if set("source") {
		cfg.Source.Type = btSource
	}

	if set("start") {
		cfg.Session.Start = btStart
	}
	if set("end") {
		cfg.Session.End = btEnd
	}
	if set("idle-timeout") {
		cfg.Session.IdleTimeout = btIdle
	}
	if set("close-end") {
		cfg.Session.CloseAtEnd = btCloseEnd
	}

	if set("window") {
		cfg.Strategy.Window = btWindow
	}
	if set("tolerance") {
		cfg.Strategy.TolerancePct = btTolerance
	}
	if set("reset-signal") {
		cfg.Strategy.ResetSignalOnExit = btResetSignal
	}

	if set("bar-mode") {
		cfg.Bars.Mode = btBarMode
	}
	if set("bar-ticks") {
		cfg.Bars.Ticks = btBarTicks
	}
	if set("bar-duration") {
		cfg.Bars.Duration = btBarDuration
	}
	if set("heikin-ashi") {
		cfg.Bars.HeikinAshi = btHeikinAshi
	}

	if set("ema") {
		cfg.Strategy.EMA = nil
		if btEMA > 0 {
			cfg.Strategy.EMA = &config.EMAConfig{Period: btEMA}
		}
	}
	if set("adx-period") || set("adx-threshold") {
		adx := config.ADXConfig{Period: 14, Threshold: 14}
		if cfg.Strategy.ADX != nil {
			adx = *cfg.Strategy.ADX
		}
		if set("adx-period") {
			adx.Period = btADXPeriod
		}
		if set("adx-threshold") {
			adx.Threshold = btADXThreshold
		}
		cfg.Strategy.ADX = nil
		if adx.Period > 0 {
			cfg.Strategy.ADX = &adx
		}
	}

	if set("risk-mode") {
		cfg.Risk.Mode = btRiskMode
	}
	if set("stop") {
		cfg.Risk.StopPoints = btStop
	}
	if set("target") {
		cfg.Risk.TargetPoints = btTarget
	}
	if set("r-multiple") {
		cfg.Risk.RMultiple = btRMultiple
	}
	if set("multiplier") {
		cfg.Risk.ContractMultiplier = btMultiplier
	}

	if set("db") {
		cfg.Journal.Type = "sqlite"
		cfg.Journal.DBPath = btDBPath
	}
	if set("metrics-addr") {
		cfg.Metrics.Addr = btMetricsAddr
	}
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	applyBacktestFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	sc, err := cfg.SessionConfig()
	if err != nil {
		return err
	}
	session, err := backtest.NewSession(sc, backtest.WithLogger(log))
	if err != nil {
		return err
	}

	if cfg.Metrics.Addr != "" {
		srv := metrics.Serve(cfg.Metrics.Addr)
		defer srv.Close()
		log.Info().Str("addr", cfg.Metrics.Addr).Msg("serving metrics")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bars, err := openBars(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer bars.Close()

	log.Info().
		Str("source", cfg.Source.Type).
		Str("symbol", sourceSymbol(cfg)).
		Int("window", sc.Window).
		Msg("backtest started")

	started := time.Now()
	rep, runErr := session.Run(ctx, bars)
	log.Debug().Dur("elapsed", time.Since(started)).Msg("session returned")

	// The partial report is still printed when the source failed.
	if err := printReport(cmd.OutOrStdout(), rep, btJSON); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	if err := journalRun(cfg, rep, log); err != nil {
		return errors.Join(runErr, err)
	}
	if runErr != nil {
		return fmt.Errorf("backtest stopped (%s): %w", rep.StopReason, runErr)
	}
	return nil
}

func printReport(w io.Writer, rep backtest.Report, asJSON bool) error {
	if asJSON {
		return rep.WriteJSON(w)
	}
	return rep.WriteText(w)
}

// journalRun records the report in the configured journal, if any.
func journalRun(cfg *config.Config, rep backtest.Report, log zerolog.Logger) (err error) {
	var j journal.Journal
	switch cfg.Journal.Type {
	case "sqlite":
		j, err = journal.NewSQLite(cfg.Journal.DBPath)
	case "csv":
		j, err = journal.NewCSV(cfg.Journal.RunsFile, cfg.Journal.TradesFile)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer func() {
		if cerr := j.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close journal: %w", cerr)
		}
	}()

	blob, err := cfg.YAML()
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	run, trades := journal.FromReport(journal.RunMeta{
		Source: cfg.Source.Type,
		Symbol: sourceSymbol(cfg),
		Config: blob,
	}, rep)
	if err := journal.Write(j, run, trades); err != nil {
		return fmt.Errorf("journal run: %w", err)
	}

	log.Info().
		Str("run_id", run.RunID).
		Str("journal", cfg.Journal.Type).
		Int("trades", len(trades)).
		Msg("run journaled")
	return nil
}
