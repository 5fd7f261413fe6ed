package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/cvdtrader/market"
	"github.com/rustyeddy/cvdtrader/market/indicators"
	"github.com/rustyeddy/cvdtrader/metrics"
	"github.com/rustyeddy/cvdtrader/strategy"
	"github.com/rustyeddy/cvdtrader/trendline"
)

// EMAParams enables the EMA bias filter.
type EMAParams struct {
	Period int
}

// Config is the immutable parameter set of one session. A nil EMA or ADX
// disables that filter.
type Config struct {
	Window     int
	Tolerance  float64
	EMA        *EMAParams
	ADX        *strategy.ADXFilter
	Risk       RiskConfig
	Multiplier float64
	Location   *time.Location

	// Bars before Start are skipped; the first bar at or after End stops
	// the session. Zero values leave the range open.
	Start time.Time
	End   time.Time

	// IdleTimeout ends the session when the source produces no bar for
	// this long. Zero waits forever.
	IdleTimeout time.Duration

	// CloseAtEnd closes a still-open position at the last bar close.
	CloseAtEnd bool

	// ResetSignalOnExit clears the last accepted signal after every exit so
	// the next breakout may repeat the previous direction.
	ResetSignalOnExit bool
}

func (c Config) Validate() error {
	if c.Window < 3 {
		return fmt.Errorf("window must be at least 3, got %d", c.Window)
	}
	if c.Tolerance < 0 {
		return errors.New("tolerance must not be negative")
	}
	if c.EMA != nil && c.EMA.Period <= 0 {
		return errors.New("ema period must be positive")
	}
	if c.ADX != nil {
		if c.ADX.Period <= 0 {
			return errors.New("adx period must be positive")
		}
		if c.ADX.Threshold < 0 {
			return errors.New("adx threshold must not be negative")
		}
	}
	if err := c.Risk.Validate(); err != nil {
		return err
	}
	if c.Multiplier <= 0 {
		return errors.New("contract multiplier must be positive")
	}
	if !c.Start.IsZero() && !c.End.IsZero() && !c.End.After(c.Start) {
		return errors.New("end must be after start")
	}
	if c.IdleTimeout < 0 {
		return errors.New("idle timeout must not be negative")
	}
	return nil
}

type StopReason string

const (
	StopEndOfData   StopReason = "end-of-data"
	StopEndTime     StopReason = "end-time"
	StopIdleTimeout StopReason = "idle-timeout"
	StopCancelled   StopReason = "cancelled"
	StopSourceError StopReason = "source-error"
)

type Session struct {
	cfg Config
	adx indicators.ADXCalculator
	log zerolog.Logger
}

type Option func(*Session)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) { s.log = l }
}

func WithADXCalculator(c indicators.ADXCalculator) Option {
	return func(s *Session) { s.adx = c }
}

func NewSession(cfg Config, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("session config: %w", err)
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	s := &Session{cfg: cfg, adx: indicators.WilderADX{}, log: zerolog.Nop()}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *Session) Config() Config { return s.cfg }

// run holds the per-Run mutable state so a Session can be replayed.
type run struct {
	s         *Session
	ema       *indicators.EMA
	fitter    *trendline.Fitter
	validator *strategy.Validator
	pm        *PositionManager
	stats     *Statistics

	cvd    *rolling[float64]
	closes *rolling[float64]
	vols   *rolling[int64]
	highs  *rolling[float64]
	lows   *rolling[float64]
	adxC   *rolling[float64]

	prevBar    *market.Bar
	prevEMA    float64
	hasPrevEMA bool

	report Report
}

func (s *Session) newRun() *run {
	cfg := s.cfg

	emaPeriod := 0
	filters := strategy.FilterConfig{ADX: cfg.ADX}
	if cfg.EMA != nil {
		emaPeriod = cfg.EMA.Period
		filters.EMA = true
	}

	r := &run{
		s:         s,
		ema:       indicators.NewEMA(emaPeriod),
		fitter:    trendline.NewFitter(cfg.Tolerance, trendline.WithLogger(s.log)),
		validator: strategy.NewValidator(filters, strategy.WithLogger(s.log), strategy.WithADXCalculator(s.adx)),
		pm:        NewPositionManager(cfg.Risk),
		stats:     NewStatistics(cfg.Multiplier, cfg.Location),
		cvd:       newRolling[float64](cfg.Window),
		closes:    newRolling[float64](cfg.Window),
		vols:      newRolling[int64](cfg.Window),
	}
	if cfg.ADX != nil {
		n := 3 * cfg.ADX.Period
		r.highs = newRolling[float64](n)
		r.lows = newRolling[float64](n)
		r.adxC = newRolling[float64](n)
	}
	return r
}

type barMsg struct {
	bar market.Bar
	ok  bool
	err error
}

// Run replays feed through the strategy until the feed ends, a bar reaches
// cfg.End, the idle timeout fires, or ctx is cancelled. The report always
// reflects the bars processed so far; a source failure or cancellation is
// returned alongside it. Run does not close feed.
func (s *Session) Run(ctx context.Context, feed market.BarFeed) (Report, error) {
	r := s.newRun()

	ctx, cancel := context.WithCancel(ctx)
	bars := make(chan barMsg)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			b, ok, err := feed.Next(ctx)
			select {
			case bars <- barMsg{bar: b, ok: ok, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil || !ok {
				return
			}
		}
	}()

	var idle <-chan time.Time
	var timer *time.Timer
	if s.cfg.IdleTimeout > 0 {
		timer = time.NewTimer(s.cfg.IdleTimeout)
		defer timer.Stop()
		idle = timer.C
	}

	reason, err := r.loop(ctx, bars, idle, timer)

	cancel()
	if reason != StopIdleTimeout {
		<-done
	}

	r.finish(reason)
	s.log.Info().
		Str("stop", string(reason)).
		Int("bars", r.report.Bars).
		Int("trades", r.report.Summary.Trades).
		Float64("win_rate", r.report.Summary.WinRate).
		Msg("session finished")
	return r.report, err
}

func (r *run) loop(ctx context.Context, bars <-chan barMsg, idle <-chan time.Time, timer *time.Timer) (StopReason, error) {
	for {
		select {
		case <-ctx.Done():
			return StopCancelled, ctx.Err()

		case <-idle:
			r.s.log.Warn().Dur("timeout", r.s.cfg.IdleTimeout).Msg("no bar received, ending session")
			return StopIdleTimeout, nil

		case m := <-bars:
			if m.err != nil {
				if errors.Is(m.err, context.Canceled) && ctx.Err() != nil {
					return StopCancelled, ctx.Err()
				}
				r.s.log.Error().Err(m.err).Msg("bar source failed")
				return StopSourceError, fmt.Errorf("bar source: %w", m.err)
			}
			if !m.ok {
				return StopEndOfData, nil
			}
			if timer != nil {
				timer.Reset(r.s.cfg.IdleTimeout)
			}
			if stop := r.step(m.bar); stop {
				return StopEndTime, nil
			}
		}
	}
}

// step processes one bar and reports whether the session end was reached.
func (r *run) step(b market.Bar) bool {
	cfg := r.s.cfg
	if !cfg.Start.IsZero() && b.Time.Before(cfg.Start) {
		return false
	}
	if !cfg.End.IsZero() && !b.Time.Before(cfg.End) {
		return true
	}

	metrics.BarsTotal.Inc()
	r.report.Bars++
	if r.report.FirstBar.IsZero() {
		r.report.FirstBar = b.Time
	}
	r.report.LastBar = b.Time

	emaVal, emaOK := r.ema.Update(b.Close)

	exited := false
	if t, ok := r.pm.CheckExit(b); ok {
		r.record(t)
		exited = true
	}

	r.cvd.push(float64(b.CVD))
	r.closes.push(b.Close)
	r.vols.push(b.Volume)
	if r.highs != nil {
		r.highs.push(b.High)
		r.lows.push(b.Low)
		r.adxC.push(b.Close)
	}

	if !exited && r.cvd.full() && !r.pm.InPosition() {
		r.evaluate(b)
	}

	bar := b
	r.prevBar = &bar
	r.prevEMA, r.hasPrevEMA = emaVal, emaOK
	return false
}

func (r *run) evaluate(b market.Bar) {
	fit := r.fitter.Fit(r.cvd.values())

	in := strategy.Inputs{
		Fit:        fit,
		Bar:        b,
		Closes:     r.closes.values(),
		Volumes:    r.vols.values(),
		PrevBar:    r.prevBar,
		PrevEMA:    r.prevEMA,
		HasPrevEMA: r.hasPrevEMA,
	}
	if r.highs != nil {
		in.Highs = r.highs.values()
		in.Lows = r.lows.values()
		in.ADXCloses = r.adxC.values()
	}

	d := r.validator.Validate(in)
	dir, ok := DirectionOf(d.Signal)
	if !ok {
		return
	}

	p, err := r.pm.Enter(dir, b, in.Closes)
	if err != nil {
		r.s.log.Warn().Err(err).Str("bar", b.Key).Msg("entry skipped")
		return
	}
	r.s.log.Info().
		Str("bar", b.Key).
		Str("direction", p.Direction.String()).
		Float64("entry", p.EntryPrice).
		Float64("stop", p.StopPrice).
		Float64("target", p.TargetPrice).
		Msg("position opened")
}

func (r *run) record(t StrategyTrade) {
	r.stats.Record(t)
	metrics.TradesTotal.WithLabelValues(string(t.ExitReason)).Inc()
	r.s.log.Info().
		Str("direction", t.Direction.String()).
		Str("reason", string(t.ExitReason)).
		Float64("entry", t.EntryPrice).
		Float64("exit", t.ExitPrice).
		Float64("profit", t.Profit).
		Msg("position closed")
	if r.s.cfg.ResetSignalOnExit {
		r.validator.Reset()
	}
}

func (r *run) finish(reason StopReason) {
	if r.s.cfg.CloseAtEnd && r.prevBar != nil {
		if t, ok := r.pm.CloseAt(r.prevBar.Close, r.prevBar.Time, EndOfSession); ok {
			r.record(t)
		}
	}
	if p, ok := r.pm.Open(); ok {
		r.report.OpenPosition = &p
	}
	r.report.Trades = r.stats.Trades()
	r.report.Summary = r.stats.Summary()
	r.report.StopReason = reason
}
