package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/cvdtrader/config"
	"github.com/rustyeddy/cvdtrader/feed"
	"github.com/rustyeddy/cvdtrader/market"
)

// openBars builds the bar stream for cfg.Source. Trade sources are grouped
// into bars by the aggregator; CSV bars are replayed as stored.
func openBars(ctx context.Context, cfg *config.Config, log zerolog.Logger) (market.BarFeed, error) {
	from, to, err := cfg.Range()
	if err != nil {
		return nil, err
	}
	opts := []feed.Option{feed.WithLogger(log), feed.WithRange(from, to)}

	var bars market.BarFeed
	if cfg.Source.Type == config.SourceCSVBars {
		bars, err = feed.OpenCSVBars(cfg.Source.Path, opts...)
		if err != nil {
			return nil, fmt.Errorf("open bars: %w", err)
		}
	} else {
		trades, err := openTrades(ctx, cfg, opts)
		if err != nil {
			return nil, err
		}
		bc, err := cfg.BarConfig()
		if err != nil {
			trades.Close()
			return nil, err
		}
		agg, err := market.NewAggregator(trades, bc)
		if err != nil {
			trades.Close()
			return nil, fmt.Errorf("aggregator: %w", err)
		}
		bars = agg
	}

	if cfg.Bars.HeikinAshi {
		bars = market.NewHeikinAshiFeed(bars)
	}
	return bars, nil
}

func openTrades(ctx context.Context, cfg *config.Config, opts []feed.Option) (market.TradeFeed, error) {
	switch cfg.Source.Type {
	case config.SourceCSVTrades:
		f, err := feed.OpenCSVTrades(cfg.Source.Path, opts...)
		if err != nil {
			return nil, fmt.Errorf("open trades: %w", err)
		}
		return f, nil

	case config.SourceDatabento:
		dc, err := cfg.DatabentoConfig()
		if err != nil {
			return nil, err
		}
		f, err := feed.NewDatabento(dc, opts...)
		if err != nil {
			return nil, fmt.Errorf("databento: %w", err)
		}
		return f, nil

	case config.SourceClickHouse:
		cc, err := cfg.ClickHouseConfig()
		if err != nil {
			return nil, err
		}
		f, err := feed.OpenClickHouse(ctx, cc, opts...)
		if err != nil {
			return nil, fmt.Errorf("clickhouse: %w", err)
		}
		return f, nil
	}
	return nil, fmt.Errorf("unknown source type %q", cfg.Source.Type)
}

// sourceSymbol names the instrument for the journal.
func sourceSymbol(cfg *config.Config) string {
	switch cfg.Source.Type {
	case config.SourceDatabento:
		return cfg.Source.Databento.Symbol
	case config.SourceClickHouse:
		return cfg.Source.ClickHouse.Symbol
	}
	return filepath.Base(cfg.Source.Path)
}
