package perf

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/risk"
	"main/internal/schema"
	"main/internal/state"
)

type countingSink struct {
	calls int
	last  schema.PerformanceSnapshot
}

func (c *countingSink) OnDrawdownUpdate(snap schema.PerformanceSnapshot) {
	c.calls++
	c.last = snap
}

func testConfig(capital int64) Config {
	return Config{
		InitialCapital:      decimal.NewFromInt(capital),
		AnnualizationFactor: 252,
	}
}

func buy(book *state.Book, qty, price int64, ts int64) state.FillResult {
	return book.ApplyFill(schema.Fill{
		OrderID: uint64(ts),
		Symbol:  "BTCUSDT",
		Side:    schema.OrderSideBuy,
		Qty:     decimal.NewFromInt(qty),
		Price:   decimal.NewFromInt(price),
		Ts:      ts,
	})
}

func TestDrawdownFromPeak(t *testing.T) {
	book := state.NewBook()
	sink := &countingSink{}
	monitor, err := NewMonitor(testConfig(100), book, sink)
	require.NoError(t, err)

	// Equity path 100 -> 110 -> 90: peak 110, drawdown 20/110.
	monitor.RecordFill(buy(book, 1, 100, 1), 1)
	snap := monitor.Snapshot()
	assert.True(t, snap.Equity.Equal(decimal.NewFromInt(100)))
	assert.True(t, snap.Drawdown.IsZero())

	monitor.RecordMarkToMarket("BTCUSDT", decimal.NewFromInt(110), 2)
	snap = monitor.Snapshot()
	assert.True(t, snap.Equity.Equal(decimal.NewFromInt(110)))
	assert.True(t, snap.PeakEquity.Equal(decimal.NewFromInt(110)))
	assert.True(t, snap.Drawdown.IsZero())

	monitor.RecordMarkToMarket("BTCUSDT", decimal.NewFromInt(90), 3)
	snap = monitor.Snapshot()
	assert.True(t, snap.Equity.Equal(decimal.NewFromInt(90)))
	assert.True(t, snap.PeakEquity.Equal(decimal.NewFromInt(110)), "peak %s", snap.PeakEquity)
	assert.True(t, snap.Drawdown.Round(4).Equal(decimal.NewFromFloat(0.1818)),
		"drawdown %s", snap.Drawdown)

	// Recovery lowers drawdown but never the peak.
	monitor.RecordMarkToMarket("BTCUSDT", decimal.NewFromInt(110), 4)
	snap = monitor.Snapshot()
	assert.True(t, snap.PeakEquity.Equal(decimal.NewFromInt(110)))
	assert.True(t, snap.Drawdown.IsZero())
}

func TestSnapshotIdempotentButHeartbeats(t *testing.T) {
	book := state.NewBook()
	sink := &countingSink{}
	monitor, err := NewMonitor(testConfig(100), book, sink)
	require.NoError(t, err)

	monitor.RecordFill(buy(book, 1, 100, 1), 1)
	first := monitor.Snapshot()
	second := monitor.Snapshot()

	assert.Equal(t, first, second)
	assert.Len(t, monitor.History(), 1)
	// The risk heartbeat fires on every call regardless.
	assert.Equal(t, 2, sink.calls)
}

func TestSharpeUndefinedBelowTwoReturns(t *testing.T) {
	book := state.NewBook()
	monitor, err := NewMonitor(testConfig(100), book, nil)
	require.NoError(t, err)

	monitor.RecordFill(buy(book, 1, 100, 1), 1)
	snap := monitor.Snapshot()
	assert.False(t, snap.SharpeDefined)

	monitor.RecordMarkToMarket("BTCUSDT", decimal.NewFromInt(110), 2)
	snap = monitor.Snapshot()
	assert.False(t, snap.SharpeDefined, "one return is not enough")

	monitor.RecordMarkToMarket("BTCUSDT", decimal.NewFromInt(95), 3)
	snap = monitor.Snapshot()
	assert.True(t, snap.SharpeDefined)
	assert.NotZero(t, snap.Sharpe)
}

func TestSharpeUndefinedAtZeroVariance(t *testing.T) {
	book := state.NewBook()
	monitor, err := NewMonitor(testConfig(100), book, nil)
	require.NoError(t, err)

	// A flat equity curve has zero variance, the ratio stays undefined.
	monitor.RecordFill(buy(book, 1, 100, 1), 1)
	monitor.Snapshot()
	monitor.RecordMarkToMarket("BTCUSDT", decimal.NewFromInt(100), 2)
	monitor.Snapshot()
	monitor.RecordMarkToMarket("BTCUSDT", decimal.NewFromInt(100), 3)
	snap := monitor.Snapshot()
	assert.False(t, snap.SharpeDefined)
}

func TestTradeStats(t *testing.T) {
	book := state.NewBook()
	monitor, err := NewMonitor(testConfig(1000), book, nil)
	require.NoError(t, err)

	monitor.RecordFill(buy(book, 1, 100, 1), 1)
	win := book.ApplyFill(schema.Fill{
		OrderID: 2, Symbol: "BTCUSDT", Side: schema.OrderSideSell,
		Qty: decimal.NewFromInt(1), Price: decimal.NewFromInt(120), Ts: 2,
	})
	monitor.RecordFill(win, 2)

	monitor.RecordFill(buy(book, 1, 120, 3), 3)
	loss := book.ApplyFill(schema.Fill{
		OrderID: 4, Symbol: "BTCUSDT", Side: schema.OrderSideSell,
		Qty: decimal.NewFromInt(1), Price: decimal.NewFromInt(110), Ts: 4,
	})
	monitor.RecordFill(loss, 4)

	snap := monitor.Snapshot()
	assert.Equal(t, 2, snap.TradeCount)
	assert.Equal(t, 1, snap.WinCount)
	assert.Equal(t, 1, snap.LossCount)
	assert.True(t, snap.RealizedPnL.Equal(decimal.NewFromInt(10)))
	assert.Len(t, monitor.Trades(), 2)
}

func TestDrawdownTripsRiskKillSwitch(t *testing.T) {
	book := state.NewBook()
	engine := risk.NewEngine(risk.Limits{
		MaxPositionSize:         decimal.NewFromInt(100),
		MaxPortfolioDrawdownPct: decimal.NewFromFloat(0.10),
	}, nil)
	monitor, err := NewMonitor(testConfig(100), book, engine)
	require.NoError(t, err)

	monitor.RecordFill(buy(book, 1, 100, 1), 1)
	monitor.RecordMarkToMarket("BTCUSDT", decimal.NewFromInt(110), 2)
	monitor.Snapshot()
	assert.False(t, engine.KillSwitchActive())

	// 18.2% off the peak breaches the 10% limit through the heartbeat.
	monitor.RecordMarkToMarket("BTCUSDT", decimal.NewFromInt(90), 3)
	monitor.Snapshot()
	assert.True(t, engine.KillSwitchActive())
}
