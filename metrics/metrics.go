package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BarsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "cvdtrader_bars_total", Help: "Bars processed by backtest sessions"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cvdtrader_signals_total", Help: "Breakout signals by validation result"},
		[]string{"result"},
	)
	FilteredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cvdtrader_filtered_total", Help: "Breakouts suppressed, by filter"},
		[]string{"filter"},
	)
	TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cvdtrader_trades_total", Help: "Closed trades by exit reason"},
		[]string{"reason"},
	)
	RowsSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cvdtrader_rows_skipped_total", Help: "Malformed input rows skipped"},
		[]string{"source"},
	)
	OptimizerBailouts = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "cvdtrader_optimizer_bailouts_total", Help: "Trendline searches stopped by the iteration caps"},
	)
	PagesFetched = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cvdtrader_pages_fetched_total", Help: "Remote market data pages by status"},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(BarsTotal, SignalsTotal, FilteredTotal, TradesTotal, RowsSkipped, OptimizerBailouts, PagesFetched)
}

// Serve exposes /metrics on addr in the background.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
