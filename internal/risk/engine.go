package risk

import (
	"sync"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/alert"
	"main/internal/schema"
	"main/internal/state"
)

// ErrStateCorruption marks an internal invariant violation. It is always
// fatal for the affected strategy instance; continuing would risk
// uncontrolled exposure.
var ErrStateCorruption = errors.New("risk state corruption")

// Limits defines the static risk configuration for a run. Loaded once,
// shared read-only.
type Limits struct {
	MaxPositionSize         decimal.Decimal
	MaxPortfolioExposure    decimal.Decimal
	MaxPortfolioDrawdownPct decimal.Decimal
	MaxDailyLoss            decimal.Decimal
	StopLossPct             decimal.Decimal
	TakeProfitPct           decimal.Decimal
	MaxConcurrentPositions  int
}

// Validate checks the limits at load time, before any evaluation begins.
func (l Limits) Validate() error {
	if l.MaxPositionSize.Sign() <= 0 {
		return errors.New("maxPositionSize must be > 0")
	}
	if l.MaxPortfolioDrawdownPct.Sign() <= 0 || l.MaxPortfolioDrawdownPct.Cmp(decimal.NewFromInt(1)) >= 0 {
		return errors.New("maxPortfolioDrawdownPct must be between 0 and 1")
	}
	if l.StopLossPct.Sign() < 0 || l.StopLossPct.Cmp(decimal.NewFromInt(1)) >= 0 {
		return errors.New("stopLossPct must be between 0 and 1")
	}
	if l.TakeProfitPct.Sign() < 0 {
		return errors.New("takeProfitPct must be >= 0")
	}
	if l.MaxPortfolioExposure.Sign() < 0 {
		return errors.New("maxPortfolioExposure must be >= 0")
	}
	if l.MaxConcurrentPositions < 0 {
		return errors.New("maxConcurrentPositions must be >= 0")
	}
	return nil
}

// StateView is the per-evaluation snapshot the engine decides on.
type StateView struct {
	Position  state.Position
	Portfolio state.View
	RefPrice  decimal.Decimal
}

// Engine is the sole authority for admitting, sizing, or rejecting trade
// intents, and for the protective order lifecycle.
type Engine struct {
	limits   Limits
	notifier alert.Notifier

	mu          sync.Mutex
	killSwitch  bool
	killReason  string
	killTs      int64
	dailyStart  decimal.Decimal
	hasDaily    bool
	alerts      []alert.Alert
}

// NewEngine creates a risk engine with static limits.
func NewEngine(limits Limits, notifier alert.Notifier) *Engine {
	if notifier == nil {
		notifier = alert.NopNotifier{}
	}
	return &Engine{limits: limits, notifier: notifier}
}

// Limits returns the engine's static limits.
func (e *Engine) Limits() Limits {
	return e.limits
}

// KillSwitchActive reports whether the sticky kill switch has tripped.
func (e *Engine) KillSwitchActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.killSwitch
}

// ResetKillSwitch clears the kill switch. Manual intervention only; nothing
// in the evaluation path calls this.
func (e *Engine) ResetKillSwitch() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.killSwitch {
		e.killSwitch = false
		e.killReason = ""
		logs.Warnf("kill switch reset manually")
	}
}

// Evaluate sizes or rejects an intent against the current position and
// portfolio state. Closing intents are never rejected; de-risking always
// passes, kill switch included.
func (e *Engine) Evaluate(intent schema.StrategyIntent, view StateView) (schema.RiskDecision, error) {
	decision := schema.RiskDecision{
		StrategyID: intent.StrategyID,
		Symbol:     intent.Symbol,
		SeqTime:    intent.SeqTime,
		Action:     schema.RiskActionNoOp,
		Reason:     schema.RiskReasonNone,
	}

	pos := view.Position
	if pos.Qty.Abs().Cmp(e.limits.MaxPositionSize) > 0 {
		return decision, errors.Wrap(ErrStateCorruption, "position exceeds limit before evaluation")
	}

	if intent.Direction == schema.DirectionFlat {
		if !pos.Open() {
			return decision, nil
		}
		decision.Action = schema.RiskActionAllow
		decision.Qty = pos.Qty.Abs()
		decision.Side = closingSide(pos)
		return decision, nil
	}

	if intent.Direction != schema.DirectionLong && intent.Direction != schema.DirectionShort {
		return decision, nil
	}

	if e.KillSwitchActive() {
		decision.Action = schema.RiskActionDeny
		decision.Reason = schema.RiskReasonKillSwitch
		return decision, nil
	}

	if e.limits.MaxConcurrentPositions > 0 && !pos.Open() &&
		view.Portfolio.OpenPositions >= e.limits.MaxConcurrentPositions {
		decision.Action = schema.RiskActionDeny
		decision.Reason = schema.RiskReasonMaxConcurrent
		return decision, nil
	}

	requested := intent.Qty
	if requested.Sign() <= 0 {
		return decision, nil
	}

	// Clamp to the tighter of per-symbol and portfolio-wide headroom.
	// A clamp to zero is a rejection, never a silent no-op.
	directional := pos.Qty
	if intent.Direction == schema.DirectionShort {
		directional = directional.Neg()
	}
	symbolHeadroom := e.limits.MaxPositionSize.Sub(directional)
	if symbolHeadroom.Sign() <= 0 {
		decision.Action = schema.RiskActionDeny
		decision.Reason = schema.RiskReasonPositionLimit
		return decision, nil
	}

	sized := decimal.Min(requested, symbolHeadroom)
	if e.limits.MaxPortfolioExposure.Sign() > 0 && view.RefPrice.Sign() > 0 {
		exposureHeadroom := e.limits.MaxPortfolioExposure.Sub(view.Portfolio.GrossExposure)
		if exposureHeadroom.Sign() <= 0 {
			decision.Action = schema.RiskActionDeny
			decision.Reason = schema.RiskReasonPortfolioExposure
			return decision, nil
		}
		sized = decimal.Min(sized, exposureHeadroom.Div(view.RefPrice))
	}

	if sized.Sign() <= 0 {
		decision.Action = schema.RiskActionDeny
		decision.Reason = schema.RiskReasonPositionLimit
		return decision, nil
	}

	decision.Action = schema.RiskActionAllow
	decision.Qty = sized
	decision.Side = schema.OrderSideBuy
	if intent.Direction == schema.DirectionShort {
		decision.Side = schema.OrderSideSell
	}
	return decision, nil
}

// OnDrawdownUpdate compares a fresh performance snapshot to the configured
// limits and trips the kill switch on breach. The performance monitor calls
// this on every snapshot; risk enforcement depends on that heartbeat.
func (e *Engine) OnDrawdownUpdate(snap schema.PerformanceSnapshot) {
	e.mu.Lock()
	if !e.hasDaily {
		e.dailyStart = snap.Equity
		e.hasDaily = true
	}
	dailyLoss := e.dailyStart.Sub(snap.Equity)
	e.mu.Unlock()

	if e.limits.MaxDailyLoss.Sign() > 0 && dailyLoss.Cmp(e.limits.MaxDailyLoss) > 0 {
		e.raise(alert.LevelCritical, "daily_loss", dailyLoss, e.limits.MaxDailyLoss,
			"daily loss limit breached", snap.Ts)
	}

	if snap.Drawdown.Cmp(e.limits.MaxPortfolioDrawdownPct) > 0 {
		e.trip("max portfolio drawdown breached", snap.Ts)
		e.raise(alert.LevelCritical, "drawdown_pct", snap.Drawdown, e.limits.MaxPortfolioDrawdownPct,
			"drawdown limit breached, kill switch tripped", snap.Ts)
	}
}

// ResetDaily restarts daily loss tracking from the given equity. Call at
// the start of each trading day.
func (e *Engine) ResetDaily(equity decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dailyStart = equity
	e.hasDaily = true
}

// Alerts returns a copy of the alerts raised so far, newest last.
func (e *Engine) Alerts() []alert.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]alert.Alert, len(e.alerts))
	copy(out, e.alerts)
	return out
}

// ClearAlerts drops the retained alert history.
func (e *Engine) ClearAlerts() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.alerts = e.alerts[:0]
}

func (e *Engine) trip(reason string, ts int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.killSwitch {
		return
	}
	e.killSwitch = true
	e.killReason = reason
	e.killTs = ts
	logs.Errorf("kill switch tripped: %s", reason)
}

func (e *Engine) raise(level alert.Level, metric string, value, threshold decimal.Decimal, msg string, ts int64) {
	a := alert.Alert{
		Level:     level,
		Metric:    metric,
		Message:   msg,
		Value:     value,
		Threshold: threshold,
		Ts:        ts,
	}
	e.mu.Lock()
	e.alerts = append(e.alerts, a)
	e.mu.Unlock()

	logs.Warnf("risk alert: level=%s metric=%s value=%s threshold=%s",
		level, metric, value, threshold)
	if level == alert.LevelCritical {
		e.notifier.Notify(a)
	}
}

func closingSide(pos state.Position) schema.OrderSide {
	if pos.Qty.Sign() > 0 {
		return schema.OrderSideSell
	}
	return schema.OrderSideBuy
}
