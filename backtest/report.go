package backtest

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
)

// Report is the outcome of a Session run.
type Report struct {
	Trades       []StrategyTrade `json:"trades"`
	Summary      Summary         `json:"summary"`
	OpenPosition *Position       `json:"open_position,omitempty"`
	Bars         int             `json:"bars"`
	FirstBar     time.Time       `json:"first_bar"`
	LastBar      time.Time       `json:"last_bar"`
	StopReason   StopReason      `json:"stop_reason"`
}

func (r Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteText renders the summary, the trade log and the daily P&L as tables.
func (r Report) WriteText(w io.Writer) error {
	s := r.Summary

	fmt.Fprintln(w, "==================================================")
	fmt.Fprintln(w, " Backtest Result")
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintf(w, "Bars:          %d\n", r.Bars)
	if !r.FirstBar.IsZero() {
		fmt.Fprintf(w, "Start:         %s\n", r.FirstBar.Format(time.RFC3339))
		fmt.Fprintf(w, "End:           %s\n", r.LastBar.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "Stopped:       %s\n", r.StopReason)
	fmt.Fprintln(w)

	summary := tablewriter.NewWriter(w)
	summary.Header("Trades", "Wins", "Losses", "Win Rate", "Avg Profit", "Total", "Sharpe")
	if err := summary.Append(
		fmt.Sprintf("%d", s.Trades),
		fmt.Sprintf("%d", s.Wins),
		fmt.Sprintf("%d", s.Losses),
		fmt.Sprintf("%.2f%%", s.WinRate),
		fmt.Sprintf("%.2f", s.AverageProfit),
		fmt.Sprintf("%.2f", s.TotalProfit),
		fmt.Sprintf("%.2f", s.Sharpe),
	); err != nil {
		return err
	}
	if err := summary.Render(); err != nil {
		return err
	}

	if len(r.Trades) > 0 {
		fmt.Fprintln(w)
		trades := tablewriter.NewWriter(w)
		trades.Header("#", "Side", "Entry Time", "Entry", "Exit Time", "Exit", "Profit", "Reason", "W/L")
		for i, t := range r.Trades {
			wl := "L"
			if t.Outcome == Win {
				wl = "W"
			}
			if err := trades.Append(
				fmt.Sprintf("%d", i+1),
				t.Direction.String(),
				t.EntryTime.Format(time.RFC3339),
				fmt.Sprintf("%.2f", t.EntryPrice),
				t.ExitTime.Format(time.RFC3339),
				fmt.Sprintf("%.2f", t.ExitPrice),
				fmt.Sprintf("%.2f", t.Profit),
				string(t.ExitReason),
				wl,
			); err != nil {
				return err
			}
		}
		if err := trades.Render(); err != nil {
			return err
		}
	}

	if len(s.DailyPnL) > 0 {
		fmt.Fprintln(w)
		daily := tablewriter.NewWriter(w)
		daily.Header("Date", "Trades", "P&L ($)")
		for _, d := range s.DailyPnL {
			if err := daily.Append(d.Date, fmt.Sprintf("%d", d.Trades), d.PnL.StringFixed(2)); err != nil {
				return err
			}
		}
		if err := daily.Render(); err != nil {
			return err
		}
	}

	if p := r.OpenPosition; p != nil {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Open position: %s @ %.2f (stop %.2f, target %.2f) since %s\n",
			p.Direction, p.EntryPrice, p.StopPrice, p.TargetPrice, p.EntryTime.Format(time.RFC3339))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Win rate: share of trades with profit > 0.")
	fmt.Fprintln(w, "Avg profit: mean profit per trade in points.")
	fmt.Fprintln(w, "Sharpe: mean(profit/entry) * sqrt(252) / sample stddev.")
	return nil
}
