package journal

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("not found")

const runColumns = `run_id, created, source, symbol, config, start_time, end_time, bars, stop_reason,
	trades, wins, losses, win_rate, avg_profit, total_profit, sharpe, net_pnl`

const tradeColumns = `trade_id, run_id, direction, entry_price, exit_price, profit, open_time, close_time, reason`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (RunRecord, error) {
	var (
		rec RunRecord
		net string
	)
	err := s.Scan(
		&rec.RunID,
		&rec.Created,
		&rec.Source,
		&rec.Symbol,
		&rec.Config,
		&rec.Start,
		&rec.End,
		&rec.Bars,
		&rec.StopReason,
		&rec.Trades,
		&rec.Wins,
		&rec.Losses,
		&rec.WinRate,
		&rec.AverageProfit,
		&rec.TotalProfit,
		&rec.Sharpe,
		&net,
	)
	if err != nil {
		return RunRecord{}, err
	}
	if rec.NetPnL, err = decimal.NewFromString(net); err != nil {
		return RunRecord{}, fmt.Errorf("run %s net_pnl %q: %w", rec.RunID, net, err)
	}
	return rec, nil
}

func scanTrade(s scanner) (TradeRecord, error) {
	var rec TradeRecord
	err := s.Scan(
		&rec.TradeID,
		&rec.RunID,
		&rec.Direction,
		&rec.EntryPrice,
		&rec.ExitPrice,
		&rec.Profit,
		&rec.OpenTime,
		&rec.CloseTime,
		&rec.Reason,
	)
	return rec, err
}

// GetRun returns a single run by ID.
func (j *SQLite) GetRun(runID string) (RunRecord, error) {
	row := j.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	rec, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RunRecord{}, fmt.Errorf("run %q: %w", runID, ErrNotFound)
		}
		return RunRecord{}, err
	}
	return rec, nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (j *SQLite) ListRuns(limit int) ([]RunRecord, error) {
	q := `SELECT ` + runColumns + ` FROM runs ORDER BY created DESC, run_id DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := j.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetTrade returns a single trade record by ID.
func (j *SQLite) GetTrade(tradeID string) (TradeRecord, error) {
	row := j.db.QueryRow(`SELECT `+tradeColumns+` FROM trades WHERE trade_id = ?`, tradeID)
	rec, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TradeRecord{}, fmt.Errorf("trade %q: %w", tradeID, ErrNotFound)
		}
		return TradeRecord{}, err
	}
	return rec, nil
}

// ListTrades returns the trades of one run in close order.
func (j *SQLite) ListTrades(runID string) ([]TradeRecord, error) {
	rows, err := j.db.Query(`
		SELECT `+tradeColumns+`
		FROM trades
		WHERE run_id = ?
		ORDER BY close_time ASC, trade_id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		rec, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
