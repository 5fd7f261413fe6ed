package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/cvdtrader/market"
)

var t0 = time.Date(2025, 5, 1, 13, 30, 0, 0, time.UTC)

func dbnLine(ts time.Time, price int64, size int, side string, quoted bool) string {
	if quoted {
		return fmt.Sprintf(`{"hd":{"ts_event":"%d","rtype":0},"price":"%d","size":%d,"side":"%s"}`, ts.UnixNano(), price, size, side)
	}
	return fmt.Sprintf(`{"hd":{"ts_event":%d},"price":%d,"size":%d,"side":"%s"}`, ts.UnixNano(), price, size, side)
}

type pageServer struct {
	mu       sync.Mutex
	requests []string
	handle   func(w http.ResponseWriter, r *http.Request, n int)
}

func (s *pageServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	n := len(s.requests)
	s.requests = append(s.requests, r.URL.Query().Get("start")+"|"+r.URL.Query().Get("end"))
	s.mu.Unlock()
	s.handle(w, r, n)
}

func newDatabento(t *testing.T, srv *httptest.Server, start, end time.Time) *Databento {
	t.Helper()
	d, err := NewDatabento(DatabentoConfig{
		BaseURL:    srv.URL,
		APIKey:     "db-test",
		Symbol:     "MESM5",
		Start:      start,
		End:        end,
		RatePerSec: 1000,
		HTTPClient: srv.Client(),
	})
	require.NoError(t, err)
	return d
}

func TestDatabentoPaging(t *testing.T) {
	ps := &pageServer{}
	ps.handle = func(w http.ResponseWriter, r *http.Request, n int) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "db-test", user)
		assert.Equal(t, "", pass)

		q := r.URL.Query()
		assert.Equal(t, "GLBX.MDP3", q.Get("dataset"))
		assert.Equal(t, "trades", q.Get("schema"))
		assert.Equal(t, "MESM5", q.Get("symbols"))
		assert.Equal(t, "json", q.Get("encoding"))

		switch n {
		case 0:
			fmt.Fprintln(w, dbnLine(t0.Add(time.Second), 5600250000000, 2, "B", true))
			fmt.Fprintln(w)
			fmt.Fprintln(w, dbnLine(t0.Add(2*time.Minute+500*time.Microsecond), 5600500000000, 1, "A", false))
		case 1:
			// remainder of the first page holds nothing
		case 2:
			fmt.Fprintln(w, dbnLine(t0.Add(8*time.Minute), 5601000000000, 3, "N", false))
		}
	}
	srv := httptest.NewServer(ps)
	defer srv.Close()

	d := newDatabento(t, srv, t0, t0.Add(10*time.Minute))
	defer d.Close()

	trades := drainTrades(t, d)
	require.Len(t, trades, 3)

	assert.Equal(t, "5600.25", trades[0].Price.String())
	assert.Equal(t, int64(2), trades[0].Delta())
	assert.Equal(t, t0.Add(time.Second), trades[0].Time)
	assert.Equal(t, market.SideSell, trades[1].Side)
	assert.Equal(t, "5601", trades[2].Price.String())

	ps.mu.Lock()
	defer ps.mu.Unlock()
	require.Len(t, ps.requests, 4)
	assert.Equal(t, "2025-05-01T13:30:00Z|2025-05-01T13:35:00Z", ps.requests[0])
	// resumes one millisecond after the last print
	assert.Equal(t, "2025-05-01T13:32:00.001Z|2025-05-01T13:37:00.001Z", ps.requests[1])
	// an empty page moves the cursor to its end
	assert.Equal(t, "2025-05-01T13:37:00.001Z|2025-05-01T13:40:00Z", ps.requests[2])
	assert.Equal(t, "2025-05-01T13:38:00.001Z|2025-05-01T13:40:00Z", ps.requests[3])
}

func TestDatabentoRetriesServerErrors(t *testing.T) {
	ps := &pageServer{}
	ps.handle = func(w http.ResponseWriter, r *http.Request, n int) {
		if n == 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if r.URL.Query().Get("start") == t0.Format(time.RFC3339Nano) {
			fmt.Fprintln(w, dbnLine(t0, 5600000000000, 1, "B", false))
		}
	}
	srv := httptest.NewServer(ps)
	defer srv.Close()

	d := newDatabento(t, srv, t0, t0.Add(time.Minute))
	trades := drainTrades(t, d)
	assert.Len(t, trades, 1)
	assert.GreaterOrEqual(t, d.Pages(), 1)
}

func TestDatabentoUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	d := newDatabento(t, srv, t0, t0.Add(time.Minute))
	_, _, err := d.Next(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestDatabentoClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "symbol not found", http.StatusBadRequest)
	}))
	defer srv.Close()

	d := newDatabento(t, srv, t0, t0.Add(time.Minute))
	_, _, err := d.Next(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "symbol not found")

	// the failed page is requested again on the next call
	assert.Equal(t, t0, d.cursor)
}

func TestDatabentoSkipsMalformedRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"hd":`)
		fmt.Fprintln(w, dbnLine(t0, 5600000000000, 1, "Z", false))
		fmt.Fprintln(w, dbnLine(t0, 5600000000000, 1, "B", false))
	}))
	defer srv.Close()

	d := newDatabento(t, srv, t0, t0.Add(time.Minute))
	tr, ok, err := d.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, market.SideBuy, tr.Side)
}

func TestDatabentoConfigValidate(t *testing.T) {
	base := DatabentoConfig{APIKey: "k", Symbol: "MESM5", Start: t0, End: t0.Add(time.Hour)}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*DatabentoConfig)
		errMsg string
	}{
		{"no key", func(c *DatabentoConfig) { c.APIKey = "" }, "api key is required"},
		{"no symbol", func(c *DatabentoConfig) { c.Symbol = "" }, "symbol is required"},
		{"no range", func(c *DatabentoConfig) { c.Start = time.Time{} }, "start and end"},
		{"reversed", func(c *DatabentoConfig) { c.End = c.Start }, "end must be after start"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.errMsg), err.Error())
		})
	}
}
