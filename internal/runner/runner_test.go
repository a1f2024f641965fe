package runner

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/bus"
	"main/internal/feed"
	"main/internal/obs"
	"main/internal/perf"
	"main/internal/risk"
	"main/internal/schema"
	"main/internal/signal"
	"main/internal/sink"
	"main/internal/state"
)

// sliceSource feeds a fixed bar sequence.
type sliceSource struct {
	bars []schema.Bar
	i    int
}

func (s *sliceSource) Next(context.Context) (schema.Bar, error) {
	if s.i >= len(s.bars) {
		return schema.Bar{}, feed.ErrExhausted
	}
	bar := s.bars[s.i]
	s.i++
	return bar, nil
}

func (s *sliceSource) Close() error { return nil }

func barsFromCloses(closes ...int64) []schema.Bar {
	bars := make([]schema.Bar, len(closes))
	for i, c := range closes {
		px := decimal.NewFromInt(c)
		bars[i] = schema.Bar{
			Symbol: "BTCUSDT",
			Open:   px,
			High:   px,
			Low:    px,
			Close:  px,
			Ts:     int64(i + 1),
		}
	}
	return bars
}

type harness struct {
	runner  *Runner
	engine  *risk.Engine
	book    *state.Book
	monitor *perf.Monitor
}

func newHarness(t *testing.T, env schema.Environment, limits risk.Limits) *harness {
	t.Helper()
	return newHarnessWithSink(t, env, limits, func(fills *bus.FillQueue) sink.Sink {
		return sink.NewSim(sink.SimConfig{}, fills)
	})
}

func newHarnessWithSink(t *testing.T, env schema.Environment, limits risk.Limits, build func(*bus.FillQueue) sink.Sink) *harness {
	t.Helper()

	engine, err := signal.NewSMACross(signal.SMACrossParams{
		StrategyID: 1,
		Symbol:     "BTCUSDT",
		Period:     2,
		Qty:        decimal.NewFromInt(10),
	})
	require.NoError(t, err)

	book := state.NewBook()
	riskEngine := risk.NewEngine(limits, nil)
	monitor, err := perf.NewMonitor(perf.Config{
		InitialCapital:      decimal.NewFromInt(1000),
		AnnualizationFactor: 252,
	}, book, riskEngine)
	require.NoError(t, err)

	fills := bus.NewFillQueue(64)
	r, err := New(Config{
		Environment: env,
		Symbol:      "BTCUSDT",
	}, Deps{
		Signal:    engine,
		Risk:      riskEngine,
		Sink:      build(fills),
		Fills:     fills,
		Book:      book,
		Portfolio: state.NewPortfolio(),
		Monitor:   monitor,
		Metrics:   obs.NewMetrics(),
	})
	require.NoError(t, err)

	return &harness{runner: r, engine: riskEngine, book: book, monitor: monitor}
}

// echoTransport collects outbound orders so a test can play the venue.
type echoTransport struct {
	sent []schema.OrderRequest
}

func (e *echoTransport) Send(req schema.OrderRequest) error {
	e.sent = append(e.sent, req)
	return nil
}

func (e *echoTransport) CancelOrder(uint64) error { return nil }

func (e *echoTransport) take() []schema.OrderRequest {
	out := e.sent
	e.sent = nil
	return out
}

func noProtectiveLimits() risk.Limits {
	return risk.Limits{
		MaxPositionSize:         decimal.NewFromInt(100),
		MaxPortfolioDrawdownPct: decimal.NewFromFloat(0.50),
	}
}

func TestStepTradeRoundTrip(t *testing.T) {
	h := newHarness(t, schema.EnvBacktest, noProtectiveLimits())

	// Cross above at 12 opens, cross below at 9 flattens.
	bars := barsFromCloses(10, 10, 10, 12, 9)
	want := []schema.EvalOutcome{
		schema.OutcomeNoAction,
		schema.OutcomeNoAction,
		schema.OutcomeNoAction,
		schema.OutcomeOrderSubmitted,
		schema.OutcomeOrderSubmitted,
	}

	for i, bar := range bars {
		outcome, err := h.runner.Step(bar)
		require.NoError(t, err)
		assert.Equal(t, want[i], outcome, "bar %d", i+1)
	}

	report, err := h.runner.Shutdown(context.Background())
	require.NoError(t, err)

	// Bought 10 at 12, sold 10 at 9.
	assert.True(t, report.Snapshot.Equity.Equal(decimal.NewFromInt(970)),
		"equity %s", report.Snapshot.Equity)
	require.Len(t, report.Trades, 1)
	assert.True(t, report.Trades[0].PnL.Equal(decimal.NewFromInt(-30)))
	assert.Equal(t, StateShutdown, h.runner.State())
}

func TestEnvironmentParity(t *testing.T) {
	bars := barsFromCloses(10, 10, 10, 12, 14, 9, 10, 13, 8)

	type result struct {
		outcomes []schema.EvalOutcome
		equity   decimal.Decimal
		trades   int
	}

	runSim := func(env schema.Environment) result {
		h := newHarness(t, env, noProtectiveLimits())
		var outcomes []schema.EvalOutcome
		for _, bar := range bars {
			outcome, err := h.runner.Step(bar)
			require.NoError(t, err)
			outcomes = append(outcomes, outcome)
		}
		report, err := h.runner.Shutdown(context.Background())
		require.NoError(t, err)
		return result{outcomes, report.Snapshot.Equity, len(report.Trades)}
	}

	runLive := func() result {
		transport := &echoTransport{}
		var gw *sink.Gateway
		h := newHarnessWithSink(t, schema.EnvLive, noProtectiveLimits(), func(fills *bus.FillQueue) sink.Sink {
			gw = sink.NewGateway(sink.GatewayConfig{Session: "TEST"}, transport, fills)
			return gw
		})
		var outcomes []schema.EvalOutcome
		for _, bar := range bars {
			outcome, err := h.runner.Step(bar)
			require.NoError(t, err)
			outcomes = append(outcomes, outcome)
			// The venue executes market orders at the bar close.
			for _, req := range transport.take() {
				require.NoError(t, gw.OnFill(schema.Fill{
					OrderID: req.OrderID,
					Symbol:  req.Symbol,
					Side:    req.Side,
					Price:   bar.Close,
					Qty:     req.Qty,
					Ts:      bar.Ts,
				}))
			}
		}
		report, err := h.runner.Shutdown(context.Background())
		require.NoError(t, err)
		return result{outcomes, report.Snapshot.Equity, len(report.Trades)}
	}

	backtest := runSim(schema.EnvBacktest)
	paper := runSim(schema.EnvPaper)
	live := runLive()

	for name, got := range map[string]result{"paper": paper, "live": live} {
		assert.Equal(t, backtest.outcomes, got.outcomes, name)
		assert.True(t, backtest.equity.Equal(got.equity),
			"backtest %s vs %s %s", backtest.equity, name, got.equity)
		assert.Equal(t, backtest.trades, got.trades, name)
	}
}

func TestProtectiveStopClosesPosition(t *testing.T) {
	limits := noProtectiveLimits()
	limits.StopLossPct = decimal.NewFromFloat(0.05)
	limits.TakeProfitPct = decimal.NewFromFloat(0.50)
	h := newHarness(t, schema.EnvBacktest, limits)

	// Entry at 12 puts the stop at 11.4; the crash bar trades through it.
	for _, bar := range barsFromCloses(10, 10, 10, 12) {
		_, err := h.runner.Step(bar)
		require.NoError(t, err)
	}
	require.True(t, h.book.Position("BTCUSDT").Open())

	crash := schema.Bar{
		Symbol: "BTCUSDT",
		Open:   decimal.NewFromInt(12),
		High:   decimal.NewFromInt(12),
		Low:    decimal.NewFromInt(10),
		Close:  decimal.NewFromInt(11),
		Ts:     5,
	}
	_, err := h.runner.Step(crash)
	require.NoError(t, err)

	assert.False(t, h.book.Position("BTCUSDT").Open())
	trades := h.monitor.Trades()
	require.Len(t, trades, 1)
	// Filled at the stop trigger, not the bar close.
	assert.True(t, trades[0].ExitPrice.Equal(decimal.NewFromFloat(11.4)),
		"exit %s", trades[0].ExitPrice)
}

func TestWideBarDoesNotFlipPosition(t *testing.T) {
	limits := noProtectiveLimits()
	limits.StopLossPct = decimal.NewFromFloat(0.05)
	limits.TakeProfitPct = decimal.NewFromFloat(0.10)
	h := newHarness(t, schema.EnvBacktest, limits)

	// Entry at 12 yields stop 11.4 and target 13.2.
	for _, bar := range barsFromCloses(10, 10, 10, 12) {
		_, err := h.runner.Step(bar)
		require.NoError(t, err)
	}
	require.True(t, h.book.Position("BTCUSDT").Qty.Equal(decimal.NewFromInt(10)))

	// One bar trades through both triggers. The position must close once,
	// not flip short through a second protective fill.
	wide := schema.Bar{
		Symbol: "BTCUSDT",
		Open:   decimal.NewFromInt(12),
		High:   decimal.NewFromInt(14),
		Low:    decimal.NewFromInt(11),
		Close:  decimal.NewFromInt(13),
		Ts:     5,
	}
	_, err := h.runner.Step(wide)
	require.NoError(t, err)

	pos := h.book.Position("BTCUSDT")
	assert.False(t, pos.Open(), "qty %s", pos.Qty)
	require.Len(t, h.monitor.Trades(), 1)
	// The stop rests first, so the pessimistic fill wins the wide bar.
	assert.True(t, h.monitor.Trades()[0].ExitPrice.Equal(decimal.NewFromFloat(11.4)),
		"exit %s", h.monitor.Trades()[0].ExitPrice)
	_, attached := h.runner.protector.Pair("BTCUSDT")
	assert.False(t, attached, "protective pair outlives the position")
}

func TestKillSwitchBlocksReentryAllowsExit(t *testing.T) {
	limits := noProtectiveLimits()
	limits.MaxPortfolioDrawdownPct = decimal.NewFromFloat(0.005)
	h := newHarness(t, schema.EnvBacktest, limits)

	for _, bar := range barsFromCloses(10, 10, 10, 12) {
		_, err := h.runner.Step(bar)
		require.NoError(t, err)
	}

	// The crash breaches the drawdown limit and flattens via the signal.
	outcome, err := h.runner.Step(barsFromCloses(10, 10, 10, 12, 6)[4])
	require.NoError(t, err)
	assert.Equal(t, schema.OutcomeOrderSubmitted, outcome, "closing is allowed")
	assert.Equal(t, StateKillSwitchTripped, h.runner.State())

	// Re-entry on the next cross is blocked while tripped.
	recovery := barsFromCloses(10, 10, 10, 12, 6, 12)[5]
	outcome, err = h.runner.Step(recovery)
	require.NoError(t, err)
	assert.Equal(t, schema.OutcomeKillSwitchActive, outcome)
	assert.False(t, h.book.Position("BTCUSDT").Open())

	h.runner.ResetKillSwitch()
	assert.Equal(t, StateRunning, h.runner.State())
}

func TestShutdownClosesBacktestPositions(t *testing.T) {
	h := newHarness(t, schema.EnvBacktest, noProtectiveLimits())

	for _, bar := range barsFromCloses(10, 10, 10, 12) {
		_, err := h.runner.Step(bar)
		require.NoError(t, err)
	}
	require.True(t, h.book.Position("BTCUSDT").Open())

	report, err := h.runner.Shutdown(context.Background())
	require.NoError(t, err)

	assert.False(t, h.book.Position("BTCUSDT").Open(), "backtest exits flat")
	assert.Len(t, report.Trades, 1)

	// Shutdown is idempotent.
	again, err := h.runner.Shutdown(context.Background())
	require.NoError(t, err)
	assert.Equal(t, report, again)

	_, err = h.runner.Step(barsFromCloses(10)[0])
	assert.Equal(t, ErrNotRunning, err)
}

func TestRunDrivesSourceToExhaustion(t *testing.T) {
	h := newHarness(t, schema.EnvBacktest, noProtectiveLimits())

	report, err := h.runner.Run(context.Background(), &sliceSource{
		bars: barsFromCloses(10, 10, 10, 12, 9),
	})
	require.NoError(t, err)
	assert.Equal(t, StateShutdown, h.runner.State())
	assert.True(t, report.Snapshot.Equity.Equal(decimal.NewFromInt(970)))
}
