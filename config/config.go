package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/cvdtrader/backtest"
	"github.com/rustyeddy/cvdtrader/feed"
	"github.com/rustyeddy/cvdtrader/market"
	"github.com/rustyeddy/cvdtrader/strategy"
)

// Config represents the complete backtest configuration
type Config struct {
	Session  SessionConfig  `json:"session" yaml:"session"`
	Bars     BarsConfig     `json:"bars" yaml:"bars"`
	Strategy StrategyConfig `json:"strategy" yaml:"strategy"`
	Risk     RiskConfig     `json:"risk" yaml:"risk"`
	Source   SourceConfig   `json:"source" yaml:"source"`
	Journal  JournalConfig  `json:"journal" yaml:"journal"`
	Log      LogConfig      `json:"log" yaml:"log"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics"`
}

// SessionConfig bounds the replay. Times are RFC3339; durations use
// time.ParseDuration syntax ("10s", "1m").
type SessionConfig struct {
	Start       string `json:"start,omitempty" yaml:"start,omitempty"`
	End         string `json:"end,omitempty" yaml:"end,omitempty"`
	IdleTimeout string `json:"idle_timeout,omitempty" yaml:"idle_timeout,omitempty"`
	Timezone    string `json:"timezone" yaml:"timezone"`
	CloseAtEnd  bool   `json:"close_at_end" yaml:"close_at_end"`
}

// BarsConfig controls how trades are grouped into bars
type BarsConfig struct {
	Mode       string `json:"mode" yaml:"mode"` // "time" or "count"
	Duration   string `json:"duration,omitempty" yaml:"duration,omitempty"`
	Ticks      int    `json:"ticks,omitempty" yaml:"ticks,omitempty"`
	HeikinAshi bool   `json:"heikin_ashi" yaml:"heikin_ashi"`
}

// StrategyConfig contains the breakout and filter parameters. Omit EMA or
// ADX to disable that filter.
type StrategyConfig struct {
	Window            int        `json:"window" yaml:"window"`
	TolerancePct      float64    `json:"tolerance_pct" yaml:"tolerance_pct"`
	ResetSignalOnExit bool       `json:"reset_signal_on_exit" yaml:"reset_signal_on_exit"`
	EMA               *EMAConfig `json:"ema,omitempty" yaml:"ema,omitempty"`
	ADX               *ADXConfig `json:"adx,omitempty" yaml:"adx,omitempty"`
}

type EMAConfig struct {
	Period int `json:"period" yaml:"period"`
}

type ADXConfig struct {
	Period    int     `json:"period" yaml:"period"`
	Threshold float64 `json:"threshold" yaml:"threshold"`
}

// RiskConfig contains stop/target placement and contract sizing
type RiskConfig struct {
	Mode               string  `json:"mode" yaml:"mode"` // "fixed" or "r_multiple"
	StopPoints         float64 `json:"stop_points,omitempty" yaml:"stop_points,omitempty"`
	TargetPoints       float64 `json:"target_points,omitempty" yaml:"target_points,omitempty"`
	RMultiple          float64 `json:"r_multiple,omitempty" yaml:"r_multiple,omitempty"`
	ContractMultiplier float64 `json:"contract_multiplier" yaml:"contract_multiplier"`
}

const (
	SourceCSVTrades  = "csv_trades"
	SourceCSVBars    = "csv_bars"
	SourceDatabento  = "databento"
	SourceClickHouse = "clickhouse"
)

// SourceConfig selects where trades or bars come from
type SourceConfig struct {
	Type       string           `json:"type" yaml:"type"`
	Path       string           `json:"path,omitempty" yaml:"path,omitempty"`
	Databento  DatabentoSource  `json:"databento" yaml:"databento"`
	ClickHouse ClickHouseSource `json:"clickhouse" yaml:"clickhouse"`
}

type DatabentoSource struct {
	URL        string  `json:"url,omitempty" yaml:"url,omitempty"`
	APIKey     string  `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Dataset    string  `json:"dataset" yaml:"dataset"`
	Schema     string  `json:"schema" yaml:"schema"`
	Symbol     string  `json:"symbol" yaml:"symbol"`
	Page       string  `json:"page" yaml:"page"`
	RatePerSec float64 `json:"rate_per_sec,omitempty" yaml:"rate_per_sec,omitempty"`
}

type ClickHouseSource struct {
	Addr     []string `json:"addr,omitempty" yaml:"addr,omitempty"`
	Database string   `json:"database,omitempty" yaml:"database,omitempty"`
	Username string   `json:"username,omitempty" yaml:"username,omitempty"`
	Password string   `json:"password,omitempty" yaml:"password,omitempty"`
	Table    string   `json:"table,omitempty" yaml:"table,omitempty"`
	Symbol   string   `json:"symbol,omitempty" yaml:"symbol,omitempty"`
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "none", "csv" or "sqlite"
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	TradesFile string `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
	RunsFile   string `json:"runs_file,omitempty" yaml:"runs_file,omitempty"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"` // "console" or "json"
}

type MetricsConfig struct {
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`
}

// Load reads .env files (missing ones are ignored), then the config file at
// path (defaults when path is empty), applies environment overrides and
// validates the result.
func Load(path string, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	if path == "" {
		cfg := Default()
		cfg.applyEnv()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
		return cfg, nil
	}
	return LoadFromFile(path)
}

// LoadFromFile loads configuration from a file (JSON or YAML). Values not
// present in the file keep their defaults, except the ema and adx filters
// which stay disabled unless present.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := fileBase()

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		cfg = fileBase()
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// fileBase is Default without the optional filters: a config file enables
// ema and adx by naming them.
func fileBase() *Config {
	cfg := Default()
	cfg.Strategy.EMA = nil
	cfg.Strategy.ADX = nil
	return cfg
}

// applyEnv overrides secrets and deployment settings from the environment.
func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv("DATABENTO_API_KEY"); ok && v != "" {
		c.Source.Databento.APIKey = v
	}
	if v, ok := os.LookupEnv("CLICKHOUSE_ADDR"); ok && v != "" {
		c.Source.ClickHouse.Addr = strings.Split(v, ",")
	}
	if v, ok := os.LookupEnv("CLICKHOUSE_DATABASE"); ok && v != "" {
		c.Source.ClickHouse.Database = v
	}
	if v, ok := os.LookupEnv("CLICKHOUSE_USER"); ok && v != "" {
		c.Source.ClickHouse.Username = v
	}
	if v, ok := os.LookupEnv("CLICKHOUSE_PASSWORD"); ok {
		c.Source.ClickHouse.Password = v
	}
	if v, ok := os.LookupEnv("LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension).
// Secrets (API key, ClickHouse password) are never written.
func (c *Config) SaveToFile(path string) error {
	out := c.redacted()

	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(&out)
	default:
		data, err = json.MarshalIndent(&out, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// YAML renders the configuration without secrets, as stored with journaled
// runs.
func (c *Config) YAML() ([]byte, error) {
	out := c.redacted()
	return yaml.Marshal(&out)
}

func (c *Config) redacted() Config {
	out := *c
	out.Source.Databento.APIKey = ""
	out.Source.ClickHouse.Password = ""
	return out
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if _, err := c.SessionConfig(); err != nil {
		return err
	}
	if _, err := c.BarConfig(); err != nil {
		return err
	}

	switch c.Source.Type {
	case SourceCSVTrades, SourceCSVBars:
		if c.Source.Path == "" {
			return fmt.Errorf("source.path is required for %s", c.Source.Type)
		}
	case SourceDatabento:
		if _, err := c.DatabentoConfig(); err != nil {
			return err
		}
	case SourceClickHouse:
		if _, err := c.ClickHouseConfig(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("source.type must be one of %s, %s, %s, %s", SourceCSVTrades, SourceCSVBars, SourceDatabento, SourceClickHouse)
	}

	switch c.Journal.Type {
	case "", "none":
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	case "csv":
		if c.Journal.TradesFile == "" || c.Journal.RunsFile == "" {
			return fmt.Errorf("journal trades_file and runs_file required for CSV type")
		}
	default:
		return fmt.Errorf("journal.type must be 'none', 'csv' or 'sqlite'")
	}

	switch c.Log.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("log.format must be 'console' or 'json'")
	}
	return nil
}

func parseTime(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be RFC3339: %w", field, err)
	}
	return t, nil
}

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", field)
	}
	return d, nil
}

// Range returns the parsed session start and end.
func (c *Config) Range() (time.Time, time.Time, error) {
	start, err := parseTime("session.start", c.Session.Start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := parseTime("session.end", c.Session.End)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

// SessionConfig builds the immutable parameter set for backtest.NewSession.
func (c *Config) SessionConfig() (backtest.Config, error) {
	start, end, err := c.Range()
	if err != nil {
		return backtest.Config{}, err
	}
	idle, err := parseDuration("session.idle_timeout", c.Session.IdleTimeout)
	if err != nil {
		return backtest.Config{}, err
	}

	loc := time.UTC
	if c.Session.Timezone != "" {
		loc, err = time.LoadLocation(c.Session.Timezone)
		if err != nil {
			return backtest.Config{}, fmt.Errorf("session.timezone: %w", err)
		}
	}

	mode, err := backtest.ParseRiskMode(c.Risk.Mode)
	if err != nil {
		return backtest.Config{}, fmt.Errorf("risk.mode: %w", err)
	}

	sc := backtest.Config{
		Window:    c.Strategy.Window,
		Tolerance: c.Strategy.TolerancePct,
		Risk: backtest.RiskConfig{
			Mode:         mode,
			StopPoints:   c.Risk.StopPoints,
			TargetPoints: c.Risk.TargetPoints,
			RMultiple:    c.Risk.RMultiple,
		},
		Multiplier:        c.Risk.ContractMultiplier,
		Location:          loc,
		Start:             start,
		End:               end,
		IdleTimeout:       idle,
		CloseAtEnd:        c.Session.CloseAtEnd,
		ResetSignalOnExit: c.Strategy.ResetSignalOnExit,
	}
	if c.Strategy.EMA != nil {
		sc.EMA = &backtest.EMAParams{Period: c.Strategy.EMA.Period}
	}
	if c.Strategy.ADX != nil {
		sc.ADX = &strategy.ADXFilter{Period: c.Strategy.ADX.Period, Threshold: c.Strategy.ADX.Threshold}
	}

	if err := sc.Validate(); err != nil {
		return backtest.Config{}, err
	}
	return sc, nil
}

// BarConfig returns the aggregation settings. It is only consulted for
// trade sources.
func (c *Config) BarConfig() (market.BarConfig, error) {
	mode, err := market.ParseBarMode(c.Bars.Mode)
	if err != nil {
		return market.BarConfig{}, fmt.Errorf("bars.mode: %w", err)
	}
	d, err := parseDuration("bars.duration", c.Bars.Duration)
	if err != nil {
		return market.BarConfig{}, err
	}
	bc := market.BarConfig{Mode: mode, Duration: d, Ticks: c.Bars.Ticks}
	if err := bc.Validate(); err != nil {
		return market.BarConfig{}, err
	}
	return bc, nil
}

func (c *Config) DatabentoConfig() (feed.DatabentoConfig, error) {
	start, end, err := c.Range()
	if err != nil {
		return feed.DatabentoConfig{}, err
	}
	page, err := parseDuration("source.databento.page", c.Source.Databento.Page)
	if err != nil {
		return feed.DatabentoConfig{}, err
	}
	dc := feed.DatabentoConfig{
		BaseURL:    c.Source.Databento.URL,
		APIKey:     c.Source.Databento.APIKey,
		Dataset:    c.Source.Databento.Dataset,
		Schema:     c.Source.Databento.Schema,
		Symbol:     c.Source.Databento.Symbol,
		Start:      start,
		End:        end,
		Page:       page,
		RatePerSec: c.Source.Databento.RatePerSec,
	}
	if err := dc.Validate(); err != nil {
		return feed.DatabentoConfig{}, err
	}
	return dc, nil
}

func (c *Config) ClickHouseConfig() (feed.ClickHouseConfig, error) {
	start, end, err := c.Range()
	if err != nil {
		return feed.ClickHouseConfig{}, err
	}
	ch := c.Source.ClickHouse
	cc := feed.ClickHouseConfig{
		Addr:     ch.Addr,
		Database: ch.Database,
		Username: ch.Username,
		Password: ch.Password,
		Table:    ch.Table,
		Symbol:   ch.Symbol,
		Start:    start,
		End:      end,
	}
	if err := cc.Validate(); err != nil {
		return feed.ClickHouseConfig{}, err
	}
	return cc, nil
}

// Default returns a configuration with the strategy defaults: five bar CVD
// window, 0.1% tolerance, 700 tick bars, 4 point stop and 3 point target
// on a $50 contract.
func Default() *Config {
	return &Config{
		Session: SessionConfig{
			IdleTimeout: "10s",
			Timezone:    "America/New_York",
		},
		Bars: BarsConfig{
			Mode:     "count",
			Duration: "1m",
			Ticks:    700,
		},
		Strategy: StrategyConfig{
			Window:       5,
			TolerancePct: 0.001,
			EMA:          &EMAConfig{Period: 21},
			ADX:          &ADXConfig{Period: 14, Threshold: 14},
		},
		Risk: RiskConfig{
			Mode:               "fixed",
			StopPoints:         4,
			TargetPoints:       3,
			RMultiple:          2,
			ContractMultiplier: 50,
		},
		Source: SourceConfig{
			Type: SourceCSVTrades,
			Path: "./trades.csv",
			Databento: DatabentoSource{
				Dataset: "GLBX.MDP3",
				Schema:  "trades",
				Symbol:  "MESM5",
				Page:    "5m",
			},
			ClickHouse: ClickHouseSource{
				Addr:     []string{"localhost:9000"},
				Database: "market",
				Table:    "trades",
				Symbol:   "MESM5",
			},
		},
		Journal: JournalConfig{
			Type: "none",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
