// Package ops loads and validates runtime configuration. Everything is
// resolved and checked before the first evaluation; a bad config never
// reaches the step loop.
package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"main/internal/perf"
	"main/internal/risk"
	"main/internal/schema"
	"main/internal/signal"
)

// ConfigError marks a configuration problem found at load time.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func configErr(field string, err error) error {
	return &ConfigError{Field: field, Err: err}
}

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Environment string         `json:"environment"`
	Strategy    StrategyConfig `json:"strategy"`
	Risk        RiskConfig     `json:"risk"`
	Perf        PerfConfig     `json:"perf"`
	Feed        FeedConfig     `json:"feed"`
	Sink        SinkConfig     `json:"sink"`
	Report      ReportConfig   `json:"report"`
	Alert       AlertConfig    `json:"alert"`
	Profiling   ProfileConfig  `json:"profiling"`
}

// StrategyConfig parameterizes the signal engine.
type StrategyConfig struct {
	ID        uint32          `json:"id"`
	Symbol    string          `json:"symbol"`
	SMAPeriod int             `json:"smaPeriod"`
	Qty       decimal.Decimal `json:"qty"`
}

// RiskConfig mirrors risk.Limits in the file.
type RiskConfig struct {
	MaxPositionSize         decimal.Decimal `json:"maxPositionSize"`
	MaxPortfolioExposure    decimal.Decimal `json:"maxPortfolioExposure"`
	MaxPortfolioDrawdownPct decimal.Decimal `json:"maxPortfolioDrawdownPct"`
	MaxDailyLoss            decimal.Decimal `json:"maxDailyLoss"`
	StopLossPct             decimal.Decimal `json:"stopLossPct"`
	TakeProfitPct           decimal.Decimal `json:"takeProfitPct"`
	MaxConcurrentPositions  int             `json:"maxConcurrentPositions"`
}

// PerfConfig mirrors perf.Config in the file.
type PerfConfig struct {
	InitialCapital      decimal.Decimal `json:"initialCapital"`
	TrailingWindow      int             `json:"trailingWindow"`
	AnnualizationFactor float64         `json:"annualizationFactor"`
	RiskFreeRate        float64         `json:"riskFreeRate"`
}

// FeedConfig selects and parameterizes the market data source. CSVPath
// backs backtests; the seeded generator fields back paper runs; Interval
// is the live kline interval.
type FeedConfig struct {
	CSVPath    string          `json:"csvPath"`
	Seed       int64           `json:"seed"`
	BasePrice  decimal.Decimal `json:"basePrice"`
	Volatility decimal.Decimal `json:"volatility"`
	Bars       int             `json:"bars"`
	Interval   string          `json:"interval"`
}

// SinkConfig parameterizes order execution.
type SinkConfig struct {
	FeeRate decimal.Decimal `json:"feeRate"`
	Session string          `json:"session"`
}

// ReportConfig controls result export. PostgresDSN falls back to the
// POSTGRES_DSN environment variable so credentials stay out of the file.
type ReportConfig struct {
	CSVDir      string `json:"csvDir"`
	PostgresDSN string `json:"postgresDsn"`
}

// AlertConfig controls critical alert delivery. The bot token always comes
// from the TELEGRAM_BOT_TOKEN environment variable.
type AlertConfig struct {
	TelegramChatID int64 `json:"telegramChatId"`
}

// ProfileConfig enables the optional continuous profiler.
type ProfileConfig struct {
	PyroscopeAddr string `json:"pyroscopeAddr"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Environment schema.Environment
	Strategy    signal.SMACrossParams
	Risk        risk.Limits
	Perf        perf.Config
	Feed        FeedConfig
	Sink        SinkConfig
	Report      ReportConfig
	Alert       AlertConfig
	Profiling   ProfileConfig

	TelegramToken   string
	ShutdownTimeout time.Duration
}

// Bootstrap loads a .env file when present. Missing files are fine; the
// process environment wins over file values either way.
func Bootstrap() {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			logs.Warnf("load .env: %v", err)
		}
		return
	}
	logs.Info("loaded environment from .env")
}

// Load reads a JSON config file, applies environment fallbacks, and
// validates every field.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, configErr("file", err)
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, configErr("file", err)
	}
	return Resolve(cfg)
}

// Resolve validates a parsed config and applies defaults.
func Resolve(cfg FileConfig) (Loaded, error) {
	env, ok := schema.ParseEnvironment(cfg.Environment)
	if !ok {
		return Loaded{}, configErr("environment", fmt.Errorf("unknown environment: %q", cfg.Environment))
	}

	strategy := signal.SMACrossParams{
		StrategyID: cfg.Strategy.ID,
		Symbol:     cfg.Strategy.Symbol,
		Period:     cfg.Strategy.SMAPeriod,
		Qty:        cfg.Strategy.Qty,
	}
	if strategy.StrategyID == 0 {
		strategy.StrategyID = 1
	}
	if err := strategy.Validate(); err != nil {
		return Loaded{}, configErr("strategy", err)
	}

	limits := risk.Limits{
		MaxPositionSize:         cfg.Risk.MaxPositionSize,
		MaxPortfolioExposure:    cfg.Risk.MaxPortfolioExposure,
		MaxPortfolioDrawdownPct: cfg.Risk.MaxPortfolioDrawdownPct,
		MaxDailyLoss:            cfg.Risk.MaxDailyLoss,
		StopLossPct:             cfg.Risk.StopLossPct,
		TakeProfitPct:           cfg.Risk.TakeProfitPct,
		MaxConcurrentPositions:  cfg.Risk.MaxConcurrentPositions,
	}
	if err := limits.Validate(); err != nil {
		return Loaded{}, configErr("risk", err)
	}

	perfCfg := perf.Config{
		InitialCapital:      cfg.Perf.InitialCapital,
		TrailingWindow:      cfg.Perf.TrailingWindow,
		AnnualizationFactor: cfg.Perf.AnnualizationFactor,
		RiskFreeRate:        cfg.Perf.RiskFreeRate,
	}
	if perfCfg.AnnualizationFactor == 0 {
		perfCfg.AnnualizationFactor = 252
	}
	if err := perfCfg.Validate(); err != nil {
		return Loaded{}, configErr("perf", err)
	}

	feedCfg := cfg.Feed
	switch env {
	case schema.EnvBacktest:
		if feedCfg.CSVPath == "" {
			return Loaded{}, configErr("feed.csvPath", fmt.Errorf("required for backtest"))
		}
	case schema.EnvPaper:
		if feedCfg.BasePrice.Sign() <= 0 {
			return Loaded{}, configErr("feed.basePrice", fmt.Errorf("must be > 0 for paper"))
		}
	case schema.EnvLive:
		if feedCfg.Interval == "" {
			feedCfg.Interval = "1m"
		}
	}

	sinkCfg := cfg.Sink
	if sinkCfg.FeeRate.IsNegative() {
		return Loaded{}, configErr("sink.feeRate", fmt.Errorf("must be >= 0"))
	}

	report := cfg.Report
	if report.PostgresDSN == "" {
		report.PostgresDSN = os.Getenv("POSTGRES_DSN")
	}

	return Loaded{
		Environment:     env,
		Strategy:        strategy,
		Risk:            limits,
		Perf:            perfCfg,
		Feed:            feedCfg,
		Sink:            sinkCfg,
		Report:          report,
		Alert:           cfg.Alert,
		Profiling:       cfg.Profiling,
		TelegramToken:   os.Getenv("TELEGRAM_BOT_TOKEN"),
		ShutdownTimeout: 5 * time.Second,
	}, nil
}
