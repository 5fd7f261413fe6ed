package backtest

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rustyeddy/cvdtrader/market"
	"github.com/rustyeddy/cvdtrader/trendline"
)

// Direction: +1 long, -1 short
type Direction int8

const (
	Long  Direction = +1
	Short Direction = -1
)

func (d Direction) String() string {
	if d == Short {
		return "short"
	}
	return "long"
}

func (d Direction) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Direction) UnmarshalText(b []byte) error {
	switch string(b) {
	case "long":
		*d = Long
	case "short":
		*d = Short
	default:
		return fmt.Errorf("unknown direction %q", b)
	}
	return nil
}

// DirectionOf maps a breakout onto the side of the trade it opens.
func DirectionOf(b trendline.Breakout) (Direction, bool) {
	switch b {
	case trendline.Bullish:
		return Long, true
	case trendline.Bearish:
		return Short, true
	}
	return 0, false
}

type ExitReason string

const (
	StopLoss     ExitReason = "stop-loss"
	TakeProfit   ExitReason = "take-profit"
	EndOfSession ExitReason = "end-of-session"
)

type Outcome string

const (
	Win  Outcome = "win"
	Loss Outcome = "loss"
)

type Position struct {
	Direction   Direction `json:"direction"`
	EntryPrice  float64   `json:"entry_price"`
	StopPrice   float64   `json:"stop_price"`
	TargetPrice float64   `json:"target_price"`
	EntryTime   time.Time `json:"entry_time"`
}

// StrategyTrade is a closed position. Profit is in price points.
type StrategyTrade struct {
	Direction  Direction  `json:"direction"`
	EntryPrice float64    `json:"entry_price"`
	ExitPrice  float64    `json:"exit_price"`
	Profit     float64    `json:"profit"`
	EntryTime  time.Time  `json:"entry_time"`
	ExitTime   time.Time  `json:"exit_time"`
	ExitReason ExitReason `json:"exit_reason"`
	Outcome    Outcome    `json:"outcome"`
}

type RiskMode int

const (
	// RiskFixed places stop and target fixed point offsets from entry.
	RiskFixed RiskMode = iota
	// RiskRMultiple stops at the window extreme and targets RMultiple times
	// the stop distance.
	RiskRMultiple
)

func (m RiskMode) String() string {
	if m == RiskRMultiple {
		return "r_multiple"
	}
	return "fixed"
}

func ParseRiskMode(s string) (RiskMode, error) {
	switch s {
	case "", "fixed", "points":
		return RiskFixed, nil
	case "r_multiple", "r-multiple", "r":
		return RiskRMultiple, nil
	}
	return RiskFixed, fmt.Errorf("unknown risk mode %q", s)
}

type RiskConfig struct {
	Mode         RiskMode
	StopPoints   float64
	TargetPoints float64
	RMultiple    float64
}

func (r RiskConfig) Validate() error {
	switch r.Mode {
	case RiskFixed:
		if r.StopPoints <= 0 {
			return errors.New("stop points must be positive")
		}
		if r.TargetPoints <= 0 {
			return errors.New("target points must be positive")
		}
	case RiskRMultiple:
		if r.RMultiple <= 0 {
			return errors.New("r multiple must be positive")
		}
	default:
		return fmt.Errorf("unknown risk mode %d", r.Mode)
	}
	return nil
}

var (
	ErrPositionOpen = errors.New("position already open")
	ErrNoRisk       = errors.New("stop equals entry")
)

// PositionManager holds at most one open position and decides its exit.
type PositionManager struct {
	risk RiskConfig
	pos  *Position
}

func NewPositionManager(risk RiskConfig) *PositionManager {
	return &PositionManager{risk: risk}
}

func (m *PositionManager) Open() (Position, bool) {
	if m.pos == nil {
		return Position{}, false
	}
	return *m.pos, true
}

func (m *PositionManager) InPosition() bool { return m.pos != nil }

// Enter opens a position at the bar close. closes is the lookback window
// used for the stop in RiskRMultiple mode.
func (m *PositionManager) Enter(dir Direction, b market.Bar, closes []float64) (Position, error) {
	if m.pos != nil {
		return Position{}, ErrPositionOpen
	}

	entry := b.Close
	p := Position{Direction: dir, EntryPrice: entry, EntryTime: b.Time}

	switch m.risk.Mode {
	case RiskRMultiple:
		if len(closes) == 0 {
			return Position{}, errors.New("empty lookback window")
		}
		stop := closes[0]
		for _, c := range closes[1:] {
			if dir == Long {
				stop = math.Min(stop, c)
			} else {
				stop = math.Max(stop, c)
			}
		}
		if stop == entry {
			return Position{}, ErrNoRisk
		}
		p.StopPrice = stop
		p.TargetPrice = entry + (entry-stop)*m.risk.RMultiple

	default:
		off := float64(dir)
		p.StopPrice = entry - off*m.risk.StopPoints
		p.TargetPrice = entry + off*m.risk.TargetPoints
	}

	m.pos = &p
	return p, nil
}

// CheckExit tests the open position against the bar's range. If both the
// stop and the target fall inside the bar the stop wins.
func (m *PositionManager) CheckExit(b market.Bar) (StrategyTrade, bool) {
	if m.pos == nil {
		return StrategyTrade{}, false
	}
	p := *m.pos

	var stopHit, takeHit bool
	switch p.Direction {
	case Long:
		stopHit = b.Low <= p.StopPrice
		takeHit = b.High >= p.TargetPrice
	case Short:
		stopHit = b.High >= p.StopPrice
		takeHit = b.Low <= p.TargetPrice
	}

	switch {
	case stopHit:
		return m.close(p.StopPrice, b.Time, StopLoss), true
	case takeHit:
		return m.close(p.TargetPrice, b.Time, TakeProfit), true
	}
	return StrategyTrade{}, false
}

// CloseAt force-closes the open position, used at session end.
func (m *PositionManager) CloseAt(price float64, t time.Time, reason ExitReason) (StrategyTrade, bool) {
	if m.pos == nil {
		return StrategyTrade{}, false
	}
	return m.close(price, t, reason), true
}

func (m *PositionManager) close(exit float64, t time.Time, reason ExitReason) StrategyTrade {
	p := *m.pos
	m.pos = nil

	// long: exit-entry, short: entry-exit
	profit := float64(p.Direction) * (exit - p.EntryPrice)

	outcome := Loss
	if profit > 0 {
		outcome = Win
	}

	return StrategyTrade{
		Direction:  p.Direction,
		EntryPrice: p.EntryPrice,
		ExitPrice:  exit,
		Profit:     profit,
		EntryTime:  p.EntryTime,
		ExitTime:   t,
		ExitReason: reason,
		Outcome:    outcome,
	}
}
