package perf

import (
	"math"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"main/internal/schema"
	"main/internal/state"
)

// DrawdownSink receives every performance snapshot. The risk engine
// implements it; the monitor is the heartbeat that can force the kill
// switch.
type DrawdownSink interface {
	OnDrawdownUpdate(snap schema.PerformanceSnapshot)
}

// Config controls derived statistics.
type Config struct {
	// InitialCapital seeds the equity curve.
	InitialCapital decimal.Decimal
	// TrailingWindow caps how many equity-curve returns feed the Sharpe
	// ratio. Zero means use the full series.
	TrailingWindow int
	// AnnualizationFactor is the number of bars per year for the configured
	// bar frequency (252 for daily bars).
	AnnualizationFactor float64
	// RiskFreeRate is the annualized risk-free rate subtracted from returns.
	RiskFreeRate float64
}

// Validate checks the monitor configuration at load time.
func (c Config) Validate() error {
	if c.InitialCapital.Sign() <= 0 {
		return errors.New("initialCapital must be > 0")
	}
	if c.TrailingWindow < 0 {
		return errors.New("trailingWindow must be >= 0")
	}
	if c.AnnualizationFactor <= 0 {
		return errors.New("annualizationFactor must be > 0")
	}
	return nil
}

// Monitor maintains the append-only performance snapshot series and derived
// statistics for one strategy instance. It is the risk engine's sole source
// of truth for drawdown. Single writer: the runner drives it in step order.
type Monitor struct {
	cfg  Config
	book *state.Book
	sink DrawdownSink

	realized   decimal.Decimal
	peakEquity decimal.Decimal
	lastEquity decimal.Decimal
	returns    []float64
	history    []schema.PerformanceSnapshot
	trades     []schema.TradeRecord
	wins       int
	losses     int
	lastTs     int64
	dirty      bool
}

// NewMonitor creates a monitor over an instance's position book.
func NewMonitor(cfg Config, book *state.Book, sink DrawdownSink) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if book == nil {
		return nil, errors.New("position book is nil")
	}
	return &Monitor{
		cfg:        cfg,
		book:       book,
		sink:       sink,
		peakEquity: cfg.InitialCapital,
		lastEquity: cfg.InitialCapital,
	}, nil
}

// RecordFill folds a confirmed fill's realized P&L and any completed round
// trip into the statistics.
func (m *Monitor) RecordFill(result state.FillResult, ts int64) {
	m.realized = m.realized.Add(result.RealizedPnL)
	if result.ClosedTrade != nil {
		trade := *result.ClosedTrade
		m.trades = append(m.trades, trade)
		if trade.PnL.Sign() >= 0 {
			m.wins++
		} else {
			m.losses++
		}
	}
	m.touch(ts)
}

// RecordMarkToMarket re-prices one symbol. Realized P&L is untouched.
func (m *Monitor) RecordMarkToMarket(symbol string, price decimal.Decimal, ts int64) {
	m.book.MarkToMarket(symbol, price)
	m.touch(ts)
}

// Snapshot computes the current performance snapshot, appends it to the
// series when state changed since the last call, and always feeds the
// drawdown sink. Two back-to-back calls with no intervening update return
// equal values.
func (m *Monitor) Snapshot() schema.PerformanceSnapshot {
	if !m.dirty && len(m.history) > 0 {
		snap := m.history[len(m.history)-1]
		if m.sink != nil {
			m.sink.OnDrawdownUpdate(snap)
		}
		return snap
	}

	unrealized := m.book.UnrealizedPnL()
	equity := m.cfg.InitialCapital.Add(m.realized).Add(unrealized)

	// Returns exist only between consecutive snapshots.
	if len(m.history) > 0 && m.lastEquity.Sign() > 0 {
		ret, _ := equity.Sub(m.lastEquity).Div(m.lastEquity).Float64()
		m.returns = append(m.returns, ret)
	}
	m.lastEquity = equity

	if equity.Cmp(m.peakEquity) > 0 {
		m.peakEquity = equity
	}
	drawdown := decimal.Zero
	if m.peakEquity.Sign() > 0 {
		drawdown = m.peakEquity.Sub(equity).Div(m.peakEquity)
	}

	sharpe, defined := m.sharpe()
	snap := schema.PerformanceSnapshot{
		Ts:            m.lastTs,
		RealizedPnL:   m.realized,
		UnrealizedPnL: unrealized,
		Equity:        equity,
		PeakEquity:    m.peakEquity,
		Drawdown:      drawdown,
		Sharpe:        sharpe,
		SharpeDefined: defined,
		TradeCount:    len(m.trades),
		WinCount:      m.wins,
		LossCount:     m.losses,
	}
	m.history = append(m.history, snap)
	m.dirty = false

	if m.sink != nil {
		m.sink.OnDrawdownUpdate(snap)
	}
	return snap
}

// History returns the append-only snapshot series.
func (m *Monitor) History() []schema.PerformanceSnapshot {
	return m.history
}

// Trades returns the completed round-trip trade log.
func (m *Monitor) Trades() []schema.TradeRecord {
	return m.trades
}

func (m *Monitor) touch(ts int64) {
	if ts > m.lastTs {
		m.lastTs = ts
	}
	m.dirty = true
}

// sharpe computes the annualized Sharpe ratio over the trailing window of
// equity-curve returns. Undefined below 2 points or at zero variance.
func (m *Monitor) sharpe() (float64, bool) {
	returns := m.returns
	if m.cfg.TrailingWindow > 0 && len(returns) > m.cfg.TrailingWindow {
		returns = returns[len(returns)-m.cfg.TrailingWindow:]
	}
	if len(returns) < 2 {
		return 0, false
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns) - 1)
	if variance == 0 {
		return 0, false
	}

	annualMean := mean * m.cfg.AnnualizationFactor
	annualStd := math.Sqrt(variance) * math.Sqrt(m.cfg.AnnualizationFactor)
	return (annualMean - m.cfg.RiskFreeRate) / annualStd, true
}
