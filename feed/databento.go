package feed

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/rustyeddy/cvdtrader/market"
	"github.com/rustyeddy/cvdtrader/metrics"
)

const (
	DefaultDatabentoURL = "https://hist.databento.com/v0/timeseries.get_range"
	DefaultPage         = 5 * time.Minute

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
	maxLineBytes  = 1 << 20
)

var ErrUnauthorized = errors.New("databento: unauthorized, check DATABENTO_API_KEY")

type DatabentoConfig struct {
	BaseURL string
	APIKey  string
	Dataset string
	Schema  string
	Symbol  string
	Start   time.Time
	End     time.Time

	// Page is the width of each request window.
	Page time.Duration

	// RatePerSec limits requests; zero means 2 per second.
	RatePerSec float64

	HTTPClient *http.Client
}

func (c *DatabentoConfig) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultDatabentoURL
	}
	if c.Dataset == "" {
		c.Dataset = "GLBX.MDP3"
	}
	if c.Schema == "" {
		c.Schema = "trades"
	}
	if c.Page <= 0 {
		c.Page = DefaultPage
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 2
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
}

func (c DatabentoConfig) Validate() error {
	if c.APIKey == "" {
		return errors.New("databento api key is required")
	}
	if c.Symbol == "" {
		return errors.New("databento symbol is required")
	}
	if c.Start.IsZero() || c.End.IsZero() {
		return errors.New("databento start and end are required")
	}
	if !c.End.After(c.Start) {
		return errors.New("databento end must be after start")
	}
	return nil
}

// Databento streams trade prints from the historical timeseries API one
// page at a time. It implements market.TradeFeed.
type Databento struct {
	cfg     DatabentoConfig
	limiter *rate.Limiter
	log     zerolog.Logger

	cursor time.Time
	buf    []market.Trade
	pos    int
	pages  int
}

func NewDatabento(cfg DatabentoConfig, opts ...Option) (*Databento, error) {
	cfg.defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return &Databento{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
		log:     o.log.With().Str("source", "databento").Str("symbol", cfg.Symbol).Logger(),
		cursor:  cfg.Start,
	}, nil
}

// Pages is the number of pages fetched so far.
func (d *Databento) Pages() int { return d.pages }

func (d *Databento) Close() error {
	d.cfg.HTTPClient.CloseIdleConnections()
	return nil
}

func (d *Databento) Next(ctx context.Context) (market.Trade, bool, error) {
	for d.pos >= len(d.buf) {
		if !d.cursor.Before(d.cfg.End) {
			return market.Trade{}, false, nil
		}

		pageEnd := d.cursor.Add(d.cfg.Page)
		if pageEnd.After(d.cfg.End) {
			pageEnd = d.cfg.End
		}

		trades, err := d.fetchPage(ctx, d.cursor, pageEnd)
		if err != nil {
			return market.Trade{}, false, err
		}
		d.pages++

		d.buf, d.pos = trades, 0
		if n := len(trades); n > 0 {
			// resume one millisecond after the last print
			next := trades[n-1].Time.Truncate(time.Millisecond).Add(time.Millisecond)
			if next.After(d.cursor) {
				d.cursor = next
			} else {
				d.cursor = pageEnd
			}
		} else {
			d.cursor = pageEnd
		}

		d.log.Debug().
			Int("trades", len(trades)).
			Time("cursor", d.cursor).
			Msg("page fetched")
	}

	t := d.buf[d.pos]
	d.pos++
	return t, true, nil
}

func (d *Databento) pageURL(start, end time.Time) string {
	q := url.Values{}
	q.Set("dataset", d.cfg.Dataset)
	q.Set("schema", d.cfg.Schema)
	q.Set("symbols", d.cfg.Symbol)
	q.Set("start", start.UTC().Format(time.RFC3339Nano))
	q.Set("end", end.UTC().Format(time.RFC3339Nano))
	q.Set("encoding", "json")
	return d.cfg.BaseURL + "?" + q.Encode()
}

func (d *Databento) fetchPage(ctx context.Context, start, end time.Time) ([]market.Trade, error) {
	u := d.pageURL(start, end)

	body, err := d.doWithRetry(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.SetBasicAuth(d.cfg.APIKey, "")
		req.Header.Set("Accept", "application/x-ndjson")
		return d.cfg.HTTPClient.Do(req)
	})
	if err != nil {
		metrics.PagesFetched.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("fetch %s..%s: %w", start.Format(time.RFC3339), end.Format(time.RFC3339), err)
	}
	metrics.PagesFetched.WithLabelValues("ok").Inc()

	return d.decode(body)
}

// doWithRetry retries transport errors, 429 and 5xx responses with
// exponential backoff. Other 4xx responses fail immediately.
func (d *Databento) doWithRetry(ctx context.Context, fn func() (*http.Response, error)) ([]byte, error) {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := d.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := fn()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if attempt == maxRetries {
				return nil, fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			d.sleep(ctx, attempt)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			resp.Body.Close()
			return nil, ErrUnauthorized

		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			resp.Body.Close()
			if attempt == maxRetries {
				return nil, fmt.Errorf("status %d after %d retries", resp.StatusCode, maxRetries)
			}
			d.log.Warn().Int("status", resp.StatusCode).Int("attempt", attempt+1).Msg("retrying")
			metrics.PagesFetched.WithLabelValues("retry").Inc()
			d.sleep(ctx, attempt)
			continue

		case resp.StatusCode >= 400:
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return nil, fmt.Errorf("client error %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		return body, nil
	}
	return nil, fmt.Errorf("exhausted %d retries", maxRetries)
}

func (d *Databento) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}

// flexInt decodes a JSON number or a quoted number. Databento quotes
// 64-bit fields such as prices and timestamps.
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}

type dbnTrade struct {
	Header struct {
		TsEvent flexInt `json:"ts_event"`
	} `json:"hd"`
	Price flexInt `json:"price"`
	Size  flexInt `json:"size"`
	Side  string  `json:"side"`
}

// decode parses NDJSON trade records. Prices are fixed point with nine
// decimal places; ts_event is nanoseconds since the epoch.
func (d *Databento) decode(body []byte) ([]market.Trade, error) {
	var trades []market.Trade

	sc := bufio.NewScanner(bytes.NewReader(body))
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}

		var rec dbnTrade
		if err := json.Unmarshal(raw, &rec); err != nil {
			d.skip(line, err)
			continue
		}
		side, err := market.ParseSide(rec.Side)
		if err != nil {
			d.skip(line, err)
			continue
		}
		if rec.Price <= 0 || rec.Header.TsEvent <= 0 {
			d.skip(line, fmt.Errorf("missing price or ts_event"))
			continue
		}

		trades = append(trades, market.Trade{
			Time:  time.Unix(0, int64(rec.Header.TsEvent)).UTC(),
			Price: decimal.New(int64(rec.Price), -9),
			Size:  int64(rec.Size),
			Side:  side,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan ndjson: %w", err)
	}
	return trades, nil
}

func (d *Databento) skip(line int, err error) {
	metrics.RowsSkipped.WithLabelValues("databento").Inc()
	d.log.Warn().Err(err).Int("line", line).Msg("skipping record")
}
