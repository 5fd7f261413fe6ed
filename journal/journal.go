package journal

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/cvdtrader/backtest"
	"github.com/rustyeddy/cvdtrader/pkg/id"
)

// RunRecord is one journaled backtest session.
type RunRecord struct {
	RunID   string
	Created time.Time
	Source  string
	Symbol  string
	Config  []byte // YAML of the effective config

	// first and last processed bar
	Start time.Time
	End   time.Time

	Bars       int
	StopReason string

	Trades        int
	Wins          int
	Losses        int
	WinRate       float64
	AverageProfit float64
	TotalProfit   float64 // points
	Sharpe        float64
	NetPnL        decimal.Decimal // dollars
}

// TradeRecord is a closed trade belonging to a run. Prices and profit are
// in points.
type TradeRecord struct {
	TradeID    string
	RunID      string
	Direction  string
	EntryPrice float64
	ExitPrice  float64
	Profit     float64
	OpenTime   time.Time
	CloseTime  time.Time
	Reason     string
}

type Journal interface {
	RecordRun(RunRecord) error
	RecordTrade(TradeRecord) error
	Close() error
}

// RunMeta carries the run attributes that are not part of the report.
type RunMeta struct {
	RunID   string
	Created time.Time
	Source  string
	Symbol  string
	Config  []byte
}

// FromReport flattens a session report into journal records. A missing
// RunID or Created is generated.
func FromReport(meta RunMeta, rep backtest.Report) (RunRecord, []TradeRecord) {
	if meta.RunID == "" {
		meta.RunID = id.New()
	}
	if meta.Created.IsZero() {
		meta.Created = time.Now().UTC()
	}

	net := decimal.Zero
	for _, d := range rep.Summary.DailyPnL {
		net = net.Add(d.PnL)
	}

	run := RunRecord{
		RunID:         meta.RunID,
		Created:       meta.Created,
		Source:        meta.Source,
		Symbol:        meta.Symbol,
		Config:        meta.Config,
		Start:         rep.FirstBar,
		End:           rep.LastBar,
		Bars:          rep.Bars,
		StopReason:    string(rep.StopReason),
		Trades:        rep.Summary.Trades,
		Wins:          rep.Summary.Wins,
		Losses:        rep.Summary.Losses,
		WinRate:       rep.Summary.WinRate,
		AverageProfit: rep.Summary.AverageProfit,
		TotalProfit:   rep.Summary.TotalProfit,
		Sharpe:        rep.Summary.Sharpe,
		NetPnL:        net,
	}

	trades := make([]TradeRecord, 0, len(rep.Trades))
	for _, t := range rep.Trades {
		trades = append(trades, TradeRecord{
			TradeID:    id.New(),
			RunID:      run.RunID,
			Direction:  t.Direction.String(),
			EntryPrice: t.EntryPrice,
			ExitPrice:  t.ExitPrice,
			Profit:     t.Profit,
			OpenTime:   t.EntryTime,
			CloseTime:  t.ExitTime,
			Reason:     string(t.ExitReason),
		})
	}
	return run, trades
}

// Write records the run followed by its trades.
func Write(j Journal, run RunRecord, trades []TradeRecord) error {
	if err := j.RecordRun(run); err != nil {
		return err
	}
	for _, t := range trades {
		if err := j.RecordTrade(t); err != nil {
			return err
		}
	}
	return nil
}
