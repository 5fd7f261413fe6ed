package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/cvdtrader/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query journaled backtest runs",
	Long: `Query and display backtest runs and trades from the SQLite journal.

Subcommands:
  runs   - List recent runs
  trades - List the trades of a run
  trade  - Show one trade as an Org entry
  show   - Show a run with its trades as an Org entry

Examples:
  cvdtrader journal runs --limit 10
  cvdtrader journal trades <run-id>
  cvdtrader journal show <run-id> > run.org`,
}

var journalRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent runs",
	Args:  cobra.NoArgs,
	RunE:  runJournalRuns,
}

var journalTradesCmd = &cobra.Command{
	Use:   "trades <run-id>",
	Short: "List the trades of a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalTrades,
}

var journalTradeCmd = &cobra.Command{
	Use:   "trade <trade-id>",
	Short: "Get details of a specific trade",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalTrade,
}

var journalShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Render a run and its trades in Org format",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalShow,
}

var (
	journalDBPath string
	journalLimit  int
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalRunsCmd)
	journalCmd.AddCommand(journalTradesCmd)
	journalCmd.AddCommand(journalTradeCmd)
	journalCmd.AddCommand(journalShowCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "./cvdtrader.sqlite", "path to SQLite journal DB")
	journalRunsCmd.Flags().IntVarP(&journalLimit, "limit", "n", 20, "number of runs to list (0 for all)")
}

func openJournal() (*journal.SQLite, error) {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return j, nil
}

func runJournalRuns(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	runs, err := j.ListRuns(journalLimit)
	if err != nil {
		return fmt.Errorf("query runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no runs journaled")
		return nil
	}
	return writeRunsTable(cmd.OutOrStdout(), runs)
}

func writeRunsTable(w io.Writer, runs []journal.RunRecord) error {
	table := tablewriter.NewWriter(w)
	table.Header("Run", "Created", "Source", "Symbol", "Bars", "Trades", "Win Rate", "Total", "Net $", "Stop")
	for _, r := range runs {
		if err := table.Append(
			r.RunID,
			r.Created.UTC().Format(time.DateTime),
			r.Source,
			r.Symbol,
			fmt.Sprintf("%d", r.Bars),
			fmt.Sprintf("%d", r.Trades),
			fmt.Sprintf("%.2f%%", r.WinRate),
			fmt.Sprintf("%.2f", r.TotalProfit),
			r.NetPnL.StringFixed(2),
			r.StopReason,
		); err != nil {
			return err
		}
	}
	return table.Render()
}

func runJournalTrades(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	runID := args[0]
	if _, err := j.GetRun(runID); err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	trades, err := j.ListTrades(runID)
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}
	if len(trades) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "run %s has no trades\n", runID)
		return nil
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.Header("Trade", "Side", "Open", "Entry", "Close", "Exit", "Profit", "Reason")
	for _, t := range trades {
		if err := table.Append(
			t.TradeID,
			t.Direction,
			t.OpenTime.UTC().Format(time.DateTime),
			fmt.Sprintf("%.2f", t.EntryPrice),
			t.CloseTime.UTC().Format(time.DateTime),
			fmt.Sprintf("%.2f", t.ExitPrice),
			fmt.Sprintf("%.2f", t.Profit),
			t.Reason,
		); err != nil {
			return err
		}
	}
	return table.Render()
}

func runJournalTrade(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	rec, err := j.GetTrade(args[0])
	if err != nil {
		return fmt.Errorf("get trade: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTradeOrg(rec))
	return nil
}

func runJournalShow(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	run, err := j.GetRun(args[0])
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	trades, err := j.ListTrades(run.RunID)
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}
	return journal.WriteRunOrg(cmd.OutOrStdout(), run, trades)
}
