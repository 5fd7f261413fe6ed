package journal

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"
)

var (
	runsHeader   = []string{"run_id", "created", "source", "symbol", "start", "end", "bars", "stop_reason", "trades", "wins", "losses", "win_rate", "avg_profit", "total_profit", "sharpe", "net_pnl"}
	tradesHeader = []string{"trade_id", "run_id", "direction", "entry_price", "exit_price", "profit", "open_time", "close_time", "reason"}
)

type CSV struct {
	runs   *csv.Writer
	trades *csv.Writer
	rf, tf *os.File
}

// NewCSV truncates both files and writes their headers.
func NewCSV(runsPath, tradesPath string) (*CSV, error) {
	rf, err := os.Create(runsPath)
	if err != nil {
		return nil, err
	}
	tf, err := os.Create(tradesPath)
	if err != nil {
		rf.Close()
		return nil, err
	}

	rw := csv.NewWriter(rf)
	tw := csv.NewWriter(tf)

	if err := rw.Write(runsHeader); err != nil {
		return nil, err
	}
	if err := tw.Write(tradesHeader); err != nil {
		return nil, err
	}

	rw.Flush()
	if err := rw.Error(); err != nil {
		return nil, err
	}
	tw.Flush()
	if err := tw.Error(); err != nil {
		return nil, err
	}

	return &CSV{rw, tw, rf, tf}, nil
}

func (j *CSV) RecordRun(r RunRecord) error {
	err := j.runs.Write([]string{
		r.RunID,
		r.Created.UTC().Format(time.RFC3339),
		r.Source,
		r.Symbol,
		ts(r.Start),
		ts(r.End),
		strconv.Itoa(r.Bars),
		r.StopReason,
		strconv.Itoa(r.Trades),
		strconv.Itoa(r.Wins),
		strconv.Itoa(r.Losses),
		f(r.WinRate),
		f(r.AverageProfit),
		f(r.TotalProfit),
		f(r.Sharpe),
		r.NetPnL.StringFixed(2),
	})
	if err != nil {
		return err
	}
	j.runs.Flush()
	return j.runs.Error()
}

func (j *CSV) RecordTrade(t TradeRecord) error {
	err := j.trades.Write([]string{
		t.TradeID,
		t.RunID,
		t.Direction,
		f(t.EntryPrice),
		f(t.ExitPrice),
		f(t.Profit),
		ts(t.OpenTime),
		ts(t.CloseTime),
		t.Reason,
	})
	if err != nil {
		return err
	}
	j.trades.Flush()
	return j.trades.Error()
}

func (j *CSV) Close() error {
	j.runs.Flush()
	if err := j.runs.Error(); err != nil {
		return err
	}
	j.trades.Flush()
	if err := j.trades.Error(); err != nil {
		return err
	}

	if err := j.rf.Close(); err != nil {
		return err
	}
	if err := j.tf.Close(); err != nil {
		return err
	}
	return nil
}

func ts(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
