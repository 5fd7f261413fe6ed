package journal

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordRun(r RunRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO runs
		(run_id, created, source, symbol, config, start_time, end_time, bars, stop_reason,
		 trades, wins, losses, win_rate, avg_profit, total_profit, sharpe, net_pnl)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Created, r.Source, r.Symbol, r.Config, r.Start, r.End, r.Bars, r.StopReason,
		r.Trades, r.Wins, r.Losses, r.WinRate, r.AverageProfit, r.TotalProfit, r.Sharpe, r.NetPnL.String(),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", r.RunID, err)
	}
	return nil
}

func (j *SQLite) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO trades
		(trade_id, run_id, direction, entry_price, exit_price, profit, open_time, close_time, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TradeID, t.RunID, t.Direction, t.EntryPrice,
		t.ExitPrice, t.Profit, t.OpenTime, t.CloseTime, t.Reason,
	)
	if err != nil {
		return fmt.Errorf("insert trade %s: %w", t.TradeID, err)
	}
	return nil
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
