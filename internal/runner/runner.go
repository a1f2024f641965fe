// Package runner drives one strategy instance through its evaluation
// cycle. The same step loop serves backtest, paper, and live; only the
// injected feed source and order sink differ between environments.
package runner

import (
	"context"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/alert"
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

var (
	ErrNotRunning = errors.New("runner is not running")
	ErrShutDown   = errors.New("runner already shut down")
)

// State is the runner's lifecycle phase. KillSwitchTripped still accepts
// steps; only opening intents are blocked, closing flows keep working.
type State uint16

const (
	StateUninitialized State = iota
	StateRunning
	StateKillSwitchTripped
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRunning:
		return "running"
	case StateKillSwitchTripped:
		return "kill_switch_tripped"
	case StateShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Config is the runner's static per-instance configuration.
type Config struct {
	Environment schema.Environment
	Symbol      string
	// WindowSize caps the retained bar window. Raised to the signal
	// engine's warmup when smaller.
	WindowSize int
	// ShutdownTimeout bounds how long Shutdown waits for the sink to
	// resolve pending orders.
	ShutdownTimeout time.Duration
}

// Deps are the collaborators one instance runs on. All are required
// except Metrics.
type Deps struct {
	Signal    signal.Engine
	Risk      *risk.Engine
	Sink      sink.Sink
	Fills     *bus.FillQueue
	Book      *state.Book
	Portfolio *state.Portfolio
	Monitor   *perf.Monitor
	Metrics   *obs.Metrics
}

func (d Deps) validate() error {
	switch {
	case d.Signal == nil:
		return errors.New("signal engine is nil")
	case d.Risk == nil:
		return errors.New("risk engine is nil")
	case d.Sink == nil:
		return errors.New("order sink is nil")
	case d.Fills == nil:
		return errors.New("fill queue is nil")
	case d.Book == nil:
		return errors.New("position book is nil")
	case d.Portfolio == nil:
		return errors.New("portfolio aggregate is nil")
	case d.Monitor == nil:
		return errors.New("performance monitor is nil")
	default:
		return nil
	}
}

// FinalReport summarizes a finished run.
type FinalReport struct {
	Environment schema.Environment
	Snapshot    schema.PerformanceSnapshot
	Trades      []schema.TradeRecord
	Alerts      []alert.Alert
	Metrics     obs.Snapshot
	// Unresolved counts orders the sink could not bring to a terminal
	// state within the shutdown timeout.
	Unresolved int
}

// Runner coordinates one strategy instance. Single-threaded by contract;
// the caller feeds bars from one goroutine.
type Runner struct {
	cfg       Config
	deps      Deps
	protector *risk.Protector
	bars      []schema.Bar
	state     State
	report    FinalReport
}

// New validates config and dependencies and returns a running instance.
func New(cfg Config, deps Deps) (*Runner, error) {
	if cfg.Environment == schema.EnvUnknown {
		return nil, errors.New("environment is not set")
	}
	if cfg.Symbol == "" {
		return nil, errors.New("symbol is empty")
	}
	if err := deps.validate(); err != nil {
		return nil, errors.Wrap(err, "runner dependencies")
	}
	if warmup := deps.Signal.Warmup(); cfg.WindowSize < warmup {
		cfg.WindowSize = warmup
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	if deps.Metrics == nil {
		deps.Metrics = obs.NewMetrics()
	}
	return &Runner{
		cfg:       cfg,
		deps:      deps,
		protector: risk.NewProtector(deps.Risk.Limits(), deps.Sink),
		bars:      make([]schema.Bar, 0, cfg.WindowSize),
		state:     StateRunning,
	}, nil
}

// State returns the current lifecycle phase.
func (r *Runner) State() State {
	return r.state
}

// ResetKillSwitch clears the risk kill switch and resumes normal stepping.
func (r *Runner) ResetKillSwitch() {
	r.deps.Risk.ResetKillSwitch()
	if r.state == StateKillSwitchTripped {
		r.state = StateRunning
	}
}

// Run pulls bars from the source until it is exhausted or the context
// ends, then shuts the instance down.
func (r *Runner) Run(ctx context.Context, source feed.Source) (FinalReport, error) {
	for {
		bar, err := source.Next(ctx)
		if err != nil {
			if err != feed.ErrExhausted && ctx.Err() == nil {
				logs.Errorf("feed error: %v", err)
			}
			break
		}
		if _, err := r.Step(bar); err != nil {
			logs.Errorf("step failed: %v", err)
			break
		}
	}
	return r.Shutdown(ctx)
}

// Step runs one full evaluation cycle for a bar: settle pending fills,
// mark to market, evaluate the signal, pass the intent through risk, and
// submit the resulting order. Returns the step's outcome.
func (r *Runner) Step(bar schema.Bar) (schema.EvalOutcome, error) {
	if r.state == StateUninitialized || r.state == StateShutdown {
		return schema.OutcomeNoAction, ErrNotRunning
	}
	started := time.Now()

	r.drainFills()

	// A locally simulating sink sees the bar before evaluation so resting
	// protective orders trigger off this bar's range.
	if observer, ok := r.deps.Sink.(sink.BarObserver); ok {
		observer.OnBar(bar)
		r.drainFills()
	}

	r.deps.Monitor.RecordMarkToMarket(bar.Symbol, bar.Close, bar.Ts)
	pos := r.deps.Book.Position(bar.Symbol)
	r.deps.Portfolio.Update(bar.Symbol, pos.Notional(), pos.Open())

	r.pushBar(bar)

	outcome, err := r.evaluate(bar)
	if err != nil {
		return outcome, err
	}

	r.drainFills()
	r.deps.Monitor.Snapshot()
	if r.deps.Risk.KillSwitchActive() && r.state == StateRunning {
		r.state = StateKillSwitchTripped
	}

	r.deps.Metrics.IncOutcome(outcome)
	r.deps.Metrics.ObserveStep(time.Since(started))
	return outcome, nil
}

func (r *Runner) evaluate(bar schema.Bar) (schema.EvalOutcome, error) {
	pos := r.deps.Book.Position(bar.Symbol)
	intent, ok := r.deps.Signal.Evaluate(r.bars, pos.Qty)
	if !ok {
		return schema.OutcomeNoAction, nil
	}

	view := risk.StateView{
		Position:  pos,
		Portfolio: r.deps.Portfolio.View(),
		RefPrice:  bar.Close,
	}
	evalStart := time.Now()
	decision, err := r.deps.Risk.Evaluate(intent, view)
	r.deps.Metrics.ObserveRiskEval(time.Since(evalStart))
	if err != nil {
		// State corruption halts this instance for good.
		r.state = StateShutdown
		return schema.OutcomeNoAction, errors.Wrap(err, "risk evaluation")
	}

	switch decision.Action {
	case schema.RiskActionAllow:
		return r.submit(decision)
	case schema.RiskActionDeny:
		r.deps.Metrics.IncRiskReason(decision.Reason)
		if decision.Reason == schema.RiskReasonKillSwitch {
			return schema.OutcomeKillSwitchActive, nil
		}
		logs.Infof("intent denied: symbol=%s reason=%s", decision.Symbol, decision.Reason)
		return schema.OutcomeOrderRejected, nil
	default:
		return schema.OutcomeNoAction, nil
	}
}

func (r *Runner) submit(decision schema.RiskDecision) (schema.EvalOutcome, error) {
	req := schema.OrderRequest{
		StrategyID: decision.StrategyID,
		Symbol:     decision.Symbol,
		Side:       decision.Side,
		Type:       schema.OrderTypeMarket,
		Qty:        decision.Qty,
		SeqTime:    decision.SeqTime,
	}
	id, err := r.deps.Sink.Submit(req)
	if err != nil {
		if sink.Transient(err) {
			// Order stays queued in the sink and resends on reconnect.
			logs.Warnf("order %d deferred: %v", id, err)
			return schema.OutcomeOrderSubmitted, nil
		}
		logs.Errorf("order submit failed: symbol=%s side=%s qty=%s err=%v",
			req.Symbol, req.Side, req.Qty, err)
		return schema.OutcomeOrderRejected, nil
	}
	return schema.OutcomeOrderSubmitted, nil
}

// drainFills settles everything the sink reported since the last call.
// Fill application is the only writer of the position book.
func (r *Runner) drainFills() {
	r.deps.Fills.Drain(r.applyFill)
}

func (r *Runner) applyFill(fill schema.Fill) {
	r.deps.Metrics.IncFill()

	if kind, triggered := r.protector.OnProtectiveFill(fill.OrderID); triggered {
		logs.Infof("protective order triggered: symbol=%s kind=%s price=%s",
			fill.Symbol, kind, fill.Price)
	}

	result := r.deps.Book.ApplyFill(fill)
	r.deps.Monitor.RecordFill(result, fill.Ts)
	r.deps.Portfolio.Update(fill.Symbol, result.Position.Notional(), result.Position.Open())

	switch {
	case result.Closed:
		if err := r.protector.OnPositionClosed(fill.Symbol); err != nil {
			logs.Errorf("cancel protective orders failed: symbol=%s err=%v", fill.Symbol, err)
		}
	case result.Position.Open():
		if _, ok := r.protector.Pair(fill.Symbol); !ok {
			if _, err := r.protector.Attach(result.Position, fill.Ts); err != nil {
				logs.Errorf("attach protective orders failed: symbol=%s err=%v", fill.Symbol, err)
			}
		}
	}
}

func (r *Runner) pushBar(bar schema.Bar) {
	r.bars = append(r.bars, bar)
	if len(r.bars) > r.cfg.WindowSize {
		r.bars = r.bars[len(r.bars)-r.cfg.WindowSize:]
	}
}

// Shutdown finishes the run and produces the final report. Backtests
// close every open position at the last mark; paper and live leave
// positions and their protective orders working at the venue. Idempotent.
func (r *Runner) Shutdown(ctx context.Context) (FinalReport, error) {
	if r.state == StateShutdown {
		return r.report, nil
	}

	r.drainFills()

	if r.cfg.Environment == schema.EnvBacktest {
		r.closePositions()
		r.drainFills()
	}

	unresolved := r.awaitPending(ctx)
	if unresolved > 0 {
		logs.Warnf("shutdown with %d unresolved orders", unresolved)
	}

	if err := r.deps.Sink.Close(); err != nil {
		logs.Errorf("sink close failed: %v", err)
	}
	r.drainFills()
	r.deps.Fills.Close()

	snap := r.deps.Monitor.Snapshot()
	r.report = FinalReport{
		Environment: r.cfg.Environment,
		Snapshot:    snap,
		Trades:      r.deps.Monitor.Trades(),
		Alerts:      r.deps.Risk.Alerts(),
		Metrics:     r.deps.Metrics.Snapshot(),
		Unresolved:  unresolved,
	}
	r.state = StateShutdown
	logs.Infof("run finished: env=%s equity=%s drawdown=%s trades=%d",
		r.cfg.Environment, snap.Equity, snap.Drawdown, snap.TradeCount)
	return r.report, nil
}

// closePositions flattens every open position with a market order.
func (r *Runner) closePositions() {
	for _, pos := range r.deps.Book.Positions() {
		side := schema.OrderSideSell
		if pos.Qty.Sign() < 0 {
			side = schema.OrderSideBuy
		}
		if _, err := r.deps.Sink.Submit(schema.OrderRequest{
			Symbol: pos.Symbol,
			Side:   side,
			Type:   schema.OrderTypeMarket,
			Qty:    pos.Qty.Abs(),
		}); err != nil {
			logs.Errorf("close position failed: symbol=%s err=%v", pos.Symbol, err)
		}
	}
}

// awaitPending waits for the sink to resolve in-flight orders, bounded by
// the shutdown timeout. Sinks that resolve synchronously report nothing
// pending and return immediately.
func (r *Runner) awaitPending(ctx context.Context) int {
	tracker, ok := r.deps.Sink.(interface{ PendingCount() int })
	if !ok {
		return 0
	}

	deadline := time.NewTimer(r.cfg.ShutdownTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()

	for {
		pending := tracker.PendingCount()
		if pending == 0 {
			return 0
		}
		select {
		case <-ctx.Done():
			return pending
		case <-deadline.C:
			return pending
		case <-tick.C:
			r.drainFills()
		}
	}
}
