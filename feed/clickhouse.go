package feed

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rustyeddy/cvdtrader/market"
	"github.com/rustyeddy/cvdtrader/metrics"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type ClickHouseConfig struct {
	Addr     []string
	Database string
	Username string
	Password string

	// Table holds one row per trade with columns
	// ts DateTime64, symbol String, price, size and side.
	Table  string
	Symbol string
	Start  time.Time
	End    time.Time
}

func (c ClickHouseConfig) Validate() error {
	if len(c.Addr) == 0 {
		return errors.New("clickhouse addr is required")
	}
	if c.Table == "" {
		return errors.New("clickhouse table is required")
	}
	if !identRe.MatchString(c.Table) {
		return fmt.Errorf("clickhouse table %q is not a plain identifier", c.Table)
	}
	if c.Database != "" && !identRe.MatchString(c.Database) {
		return fmt.Errorf("clickhouse database %q is not a plain identifier", c.Database)
	}
	if c.Symbol == "" {
		return errors.New("clickhouse symbol is required")
	}
	if !c.End.IsZero() && !c.End.After(c.Start) {
		return errors.New("clickhouse end must be after start")
	}
	return nil
}

func (c ClickHouseConfig) query() string {
	table := c.Table
	if c.Database != "" {
		table = c.Database + "." + c.Table
	}
	q := `SELECT ts, toString(price) AS price, toInt64(size) AS size, toString(side) AS side
		FROM ` + table + `
		WHERE symbol = ? AND ts >= ?`
	if !c.End.IsZero() {
		q += ` AND ts < ?`
	}
	return q + ` ORDER BY ts`
}

func (c ClickHouseConfig) args() []any {
	args := []any{c.Symbol, c.Start}
	if !c.End.IsZero() {
		args = append(args, c.End)
	}
	return args
}

// tradeRows and querier are the parts of driver.Conn the feed uses.
type tradeRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

type querier interface {
	Query(ctx context.Context, query string, args ...any) (tradeRows, error)
	Close() error
}

type chConn struct{ conn driver.Conn }

func (c chConn) Query(ctx context.Context, q string, args ...any) (tradeRows, error) {
	return c.conn.Query(ctx, q, args...)
}

func (c chConn) Close() error { return c.conn.Close() }

// ClickHouse streams trades from a ClickHouse table in timestamp order.
type ClickHouse struct {
	q    querier
	cfg  ClickHouseConfig
	log  zerolog.Logger
	rows tradeRows
	last time.Time
	n    int
}

// OpenClickHouse connects, pings and returns a feed over cfg's range.
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig, opts ...Option) (*ClickHouse, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: cfg.Addr,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": uint64(0),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	return newClickHouse(chConn{conn}, cfg, opts...), nil
}

func newClickHouse(q querier, cfg ClickHouseConfig, opts ...Option) *ClickHouse {
	o := buildOptions(opts)
	return &ClickHouse{
		q:   q,
		cfg: cfg,
		log: o.log.With().Str("source", "clickhouse").Str("symbol", cfg.Symbol).Logger(),
	}
}

func (c *ClickHouse) Next(ctx context.Context) (market.Trade, bool, error) {
	if c.rows == nil {
		rows, err := c.q.Query(ctx, c.cfg.query(), c.cfg.args()...)
		if err != nil {
			return market.Trade{}, false, fmt.Errorf("clickhouse query: %w", err)
		}
		c.rows = rows
	}

	for c.rows.Next() {
		if err := ctx.Err(); err != nil {
			return market.Trade{}, false, err
		}

		var (
			ts    time.Time
			price string
			size  int64
			side  string
		)
		if err := c.rows.Scan(&ts, &price, &size, &side); err != nil {
			return market.Trade{}, false, fmt.Errorf("clickhouse scan: %w", err)
		}
		c.n++

		t, err := toTrade(ts, price, size, side)
		if err != nil {
			metrics.RowsSkipped.WithLabelValues("clickhouse").Inc()
			c.log.Warn().Err(err).Int("row", c.n).Msg("skipping row")
			continue
		}
		if t.Time.Before(c.last) {
			metrics.RowsSkipped.WithLabelValues("clickhouse").Inc()
			c.log.Warn().Int("row", c.n).Msg("skipping out of order row")
			continue
		}
		c.last = t.Time
		return t, true, nil
	}

	if err := c.rows.Err(); err != nil {
		return market.Trade{}, false, fmt.Errorf("clickhouse rows: %w", err)
	}
	return market.Trade{}, false, nil
}

func (c *ClickHouse) Close() error {
	var err error
	if c.rows != nil {
		err = c.rows.Close()
	}
	return errors.Join(err, c.q.Close())
}

func toTrade(ts time.Time, price string, size int64, side string) (market.Trade, error) {
	px, err := decimal.NewFromString(price)
	if err != nil {
		return market.Trade{}, fmt.Errorf("bad price %q: %w", price, err)
	}
	if !px.IsPositive() {
		return market.Trade{}, fmt.Errorf("bad price %q: must be positive", price)
	}
	if size < 0 {
		return market.Trade{}, fmt.Errorf("bad size %d", size)
	}
	s, err := market.ParseSide(side)
	if err != nil {
		return market.Trade{}, err
	}
	return market.Trade{Time: ts.UTC(), Price: px, Size: size, Side: s}, nil
}
