package backtest

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

const tradingDaysPerYear = 252

// DailyPnL is the dollar result of the trades that exited on Date.
type DailyPnL struct {
	Date   string          `json:"date"`
	PnL    decimal.Decimal `json:"pnl"`
	Trades int             `json:"trades"`
}

type Summary struct {
	Trades        int        `json:"trades"`
	Wins          int        `json:"wins"`
	Losses        int        `json:"losses"`
	WinRate       float64    `json:"win_rate"`
	AverageProfit float64    `json:"average_profit"`
	TotalProfit   float64    `json:"total_profit"`
	Sharpe        float64    `json:"sharpe"`
	DailyPnL      []DailyPnL `json:"daily_pnl"`
}

// Statistics is the append-only trade log. Every metric is computed from
// the log on demand.
type Statistics struct {
	trades     []StrategyTrade
	multiplier decimal.Decimal
	loc        *time.Location
}

// NewStatistics converts point profits to dollars with multiplier and
// buckets daily P&L by the calendar date in loc (UTC when nil).
func NewStatistics(multiplier float64, loc *time.Location) *Statistics {
	if loc == nil {
		loc = time.UTC
	}
	return &Statistics{multiplier: decimal.NewFromFloat(multiplier), loc: loc}
}

func (s *Statistics) Record(t StrategyTrade) {
	s.trades = append(s.trades, t)
}

// Trades returns a copy of the log in close order.
func (s *Statistics) Trades() []StrategyTrade {
	out := make([]StrategyTrade, len(s.trades))
	copy(out, s.trades)
	return out
}

func (s *Statistics) Count() int { return len(s.trades) }

func (s *Statistics) Wins() int {
	n := 0
	for _, t := range s.trades {
		if t.Profit > 0 {
			n++
		}
	}
	return n
}

// WinRate is the percentage of trades with a positive profit.
func (s *Statistics) WinRate() float64 {
	if len(s.trades) == 0 {
		return 0
	}
	return float64(s.Wins()) / float64(len(s.trades)) * 100
}

func (s *Statistics) TotalProfit() float64 {
	var sum float64
	for _, t := range s.trades {
		sum += t.Profit
	}
	return sum
}

func (s *Statistics) AverageProfit() float64 {
	if len(s.trades) == 0 {
		return 0
	}
	return s.TotalProfit() / float64(len(s.trades))
}

// Sharpe annualizes per-trade returns (profit / entry) with sqrt(252) over
// their sample standard deviation. It is 0 for fewer than two trades or no
// dispersion.
func (s *Statistics) Sharpe() float64 {
	n := len(s.trades)
	if n < 2 {
		return 0
	}

	returns := make([]float64, 0, n)
	var mean float64
	for _, t := range s.trades {
		if t.EntryPrice == 0 {
			returns = append(returns, 0)
			continue
		}
		r := t.Profit / t.EntryPrice
		returns = append(returns, r)
		mean += r
	}
	mean /= float64(n)

	var ss float64
	for _, r := range returns {
		ss += (r - mean) * (r - mean)
	}
	std := math.Sqrt(ss / float64(n-1))
	if std == 0 {
		return 0
	}
	return mean * math.Sqrt(tradingDaysPerYear) / std
}

// DailyPnL sums profit * multiplier per exit date, oldest first.
func (s *Statistics) DailyPnL() []DailyPnL {
	byDay := map[string]*DailyPnL{}
	for _, t := range s.trades {
		day := t.ExitTime.In(s.loc).Format(time.DateOnly)
		d, ok := byDay[day]
		if !ok {
			d = &DailyPnL{Date: day, PnL: decimal.Zero}
			byDay[day] = d
		}
		d.PnL = d.PnL.Add(decimal.NewFromFloat(t.Profit).Mul(s.multiplier))
		d.Trades++
	}

	out := make([]DailyPnL, 0, len(byDay))
	for _, d := range byDay {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

func (s *Statistics) Summary() Summary {
	wins := s.Wins()
	return Summary{
		Trades:        len(s.trades),
		Wins:          wins,
		Losses:        len(s.trades) - wins,
		WinRate:       s.WinRate(),
		AverageProfit: s.AverageProfit(),
		TotalProfit:   s.TotalProfit(),
		Sharpe:        s.Sharpe(),
		DailyPnL:      s.DailyPnL(),
	}
}
