package market

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the aggressor side of an executed trade.
type Side int8

const (
	SideNone Side = iota
	SideBuy
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "B"
	case SideSell:
		return "A"
	default:
		return "N"
	}
}

// ParseSide accepts the exchange codes (B buyer aggressor, A seller
// aggressor, N none) as well as buy/sell spelled out.
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "B", "BUY", "BID":
		return SideBuy, nil
	case "A", "S", "SELL", "ASK":
		return SideSell, nil
	case "N", "", "NONE":
		return SideNone, nil
	}
	return SideNone, fmt.Errorf("unknown side %q", s)
}

// Trade is a single executed trade print.
type Trade struct {
	Time  time.Time
	Price decimal.Decimal
	Size  int64
	Side  Side
}

// Delta is the signed size: +size for buyer aggressor, -size for seller
// aggressor, 0 otherwise.
func (t Trade) Delta() int64 {
	switch t.Side {
	case SideBuy:
		return t.Size
	case SideSell:
		return -t.Size
	}
	return 0
}

func (t Trade) PriceFloat() float64 {
	f, _ := t.Price.Float64()
	return f
}

// TradeFeed yields trades in timestamp order.
type TradeFeed interface {
	Next(ctx context.Context) (Trade, bool, error)
	Close() error
}

// BarFeed yields closed bars in timestamp order.
type BarFeed interface {
	Next(ctx context.Context) (Bar, bool, error)
	Close() error
}
