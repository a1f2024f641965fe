package ops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

const validConfig = `{
  "environment": "backtest",
  "strategy": {"symbol": "BTCUSDT", "smaPeriod": 20, "qty": "10"},
  "risk": {
    "maxPositionSize": "100",
    "maxPortfolioExposure": "1000000",
    "maxPortfolioDrawdownPct": "0.10",
    "stopLossPct": "0.05",
    "takeProfitPct": "0.10"
  },
  "perf": {"initialCapital": "100000", "trailingWindow": 252},
  "feed": {"csvPath": "testdata/bars.csv"},
  "sink": {"feeRate": "0.001"}
}`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	loaded, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, schema.EnvBacktest, loaded.Environment)
	assert.Equal(t, "BTCUSDT", loaded.Strategy.Symbol)
	assert.Equal(t, 20, loaded.Strategy.Period)
	assert.Equal(t, uint32(1), loaded.Strategy.StrategyID, "default strategy id")
	assert.True(t, loaded.Risk.MaxPositionSize.Equal(decimal.NewFromInt(100)))
	assert.True(t, loaded.Risk.StopLossPct.Equal(decimal.NewFromFloat(0.05)))
	assert.True(t, loaded.Perf.InitialCapital.Equal(decimal.NewFromInt(100_000)))
	assert.Equal(t, float64(252), loaded.Perf.AnnualizationFactor, "default annualization")
	assert.Equal(t, "testdata/bars.csv", loaded.Feed.CSVPath)
}

func TestLoadRejectsBadConfigs(t *testing.T) {
	testCases := []struct {
		desc    string
		mangle  func(FileConfig) FileConfig
		wantErr string
	}{
		{
			"unknown environment",
			func(c FileConfig) FileConfig { c.Environment = "prod"; return c },
			"environment",
		},
		{
			"missing csv for backtest",
			func(c FileConfig) FileConfig { c.Feed.CSVPath = ""; return c },
			"feed.csvPath",
		},
		{
			"drawdown out of range",
			func(c FileConfig) FileConfig {
				c.Risk.MaxPortfolioDrawdownPct = decimal.NewFromInt(2)
				return c
			},
			"config risk",
		},
		{
			"short sma period",
			func(c FileConfig) FileConfig { c.Strategy.SMAPeriod = 1; return c },
			"config strategy",
		},
		{
			"zero capital",
			func(c FileConfig) FileConfig { c.Perf.InitialCapital = decimal.Zero; return c },
			"config perf",
		},
		{
			"negative fee",
			func(c FileConfig) FileConfig {
				c.Sink.FeeRate = decimal.NewFromFloat(-0.1)
				return c
			},
			"sink.feeRate",
		},
	}

	base := FileConfig{
		Environment: "backtest",
		Strategy:    StrategyConfig{Symbol: "BTCUSDT", SMAPeriod: 20, Qty: decimal.NewFromInt(10)},
		Risk: RiskConfig{
			MaxPositionSize:         decimal.NewFromInt(100),
			MaxPortfolioDrawdownPct: decimal.NewFromFloat(0.10),
			StopLossPct:             decimal.NewFromFloat(0.05),
			TakeProfitPct:           decimal.NewFromFloat(0.10),
		},
		Perf: PerfConfig{InitialCapital: decimal.NewFromInt(100_000)},
		Feed: FeedConfig{CSVPath: "testdata/bars.csv"},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := Resolve(tc.mangle(base))
			require.Error(t, err)
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestResolvePaperNeedsBasePrice(t *testing.T) {
	cfg := FileConfig{
		Environment: "paper",
		Strategy:    StrategyConfig{Symbol: "BTCUSDT", SMAPeriod: 20, Qty: decimal.NewFromInt(10)},
		Risk: RiskConfig{
			MaxPositionSize:         decimal.NewFromInt(100),
			MaxPortfolioDrawdownPct: decimal.NewFromFloat(0.10),
		},
		Perf: PerfConfig{InitialCapital: decimal.NewFromInt(100_000)},
	}
	_, err := Resolve(cfg)
	assert.ErrorContains(t, err, "feed.basePrice")

	cfg.Feed.BasePrice = decimal.NewFromInt(100)
	loaded, err := Resolve(cfg)
	require.NoError(t, err)
	assert.Equal(t, schema.EnvPaper, loaded.Environment)
}

func TestResolveLiveDefaultsInterval(t *testing.T) {
	cfg := FileConfig{
		Environment: "live",
		Strategy:    StrategyConfig{Symbol: "BTCUSDT", SMAPeriod: 20, Qty: decimal.NewFromInt(10)},
		Risk: RiskConfig{
			MaxPositionSize:         decimal.NewFromInt(100),
			MaxPortfolioDrawdownPct: decimal.NewFromFloat(0.10),
		},
		Perf: PerfConfig{InitialCapital: decimal.NewFromInt(100_000)},
	}
	loaded, err := Resolve(cfg)
	require.NoError(t, err)
	assert.Equal(t, "1m", loaded.Feed.Interval)
}
