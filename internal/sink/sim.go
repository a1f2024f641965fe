package sink

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/schema"
)

// ErrNoMarketPrice is returned when a market order arrives before any bar.
var ErrNoMarketPrice = errors.New("no market price for symbol")

// SimConfig controls simulated execution.
type SimConfig struct {
	// FeeRate is charged on fill notional (0.001 = 10 bps).
	FeeRate decimal.Decimal
}

// Sim executes orders against replayed or synthetic bars. Market orders
// fill at the current close; stop and limit orders rest until a bar's range
// touches their trigger. Fully deterministic given the same bar sequence.
// Serves both the backtest and paper environments.
type Sim struct {
	cfg    SimConfig
	fills  *bus.FillQueue
	orders *StateMachine

	mu     sync.Mutex
	nextID uint64
	marks  map[string]decimal.Decimal
}

// NewSim creates a simulated sink publishing fills to the given queue.
func NewSim(cfg SimConfig, fills *bus.FillQueue) *Sim {
	return &Sim{
		cfg:    cfg,
		fills:  fills,
		orders: NewStateMachine(),
		nextID: 1,
		marks:  make(map[string]decimal.Decimal),
	}
}

// Submit accepts an order. Market orders fill immediately at the last
// close; stop/limit orders rest on the simulated book.
func (s *Sim) Submit(req schema.OrderRequest) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req.OrderID = s.nextID
	s.nextID++

	order, err := s.orders.ApplyRequest(req)
	if err != nil {
		return 0, errors.Wrap(err, "register order")
	}

	if req.Type == schema.OrderTypeMarket {
		mark, ok := s.marks[req.Symbol]
		if !ok {
			if _, rerr := s.orders.ApplyReject(order.ID); rerr != nil {
				return 0, rerr
			}
			return 0, ErrNoMarketPrice
		}
		s.fill(order, mark, req.SeqTime)
	}
	return order.ID, nil
}

// Cancel removes a resting order. Confirmation is immediate in simulation.
// Cancelling an already-cancelled order is a no-op, matching venue behavior
// for done orders.
func (s *Sim) Cancel(orderID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.orders.Order(orderID); ok && o.State == OrderStateCanceled {
		return nil
	}
	if _, err := s.orders.ApplyCancel(orderID); err != nil {
		return errors.Wrap(err, "cancel order")
	}
	return nil
}

// Close drops all resting orders.
func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders.Open() {
		if _, err := s.orders.ApplyCancel(o.ID); err != nil {
			return err
		}
	}
	return nil
}

// OnBar updates the mark price and triggers any resting orders whose
// trigger falls inside the bar's range. Orders trigger in submission order,
// so the fill sequence is identical for identical bar sequences. Resting
// orders on the same side of one symbol guard the same position and act as
// one-cancels-other: after one fills, later triggers on that side cancel
// instead of filling, so a bar wide enough to touch both a stop and a
// take-profit closes the position once rather than flipping it.
func (s *Sim) OnBar(bar schema.Bar) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.marks[bar.Symbol] = bar.Close

	open := s.orders.Open()
	sort.Slice(open, func(i, j int) bool { return open[i].ID < open[j].ID })

	filledSide := make(map[schema.OrderSide]bool)
	for _, o := range open {
		if o.Symbol != bar.Symbol {
			continue
		}
		trigger, ok := s.triggered(o, bar)
		if !ok {
			continue
		}
		if filledSide[o.Side] {
			if _, err := s.orders.ApplyCancel(o.ID); err != nil {
				logs.Errorf("sim sibling cancel failed: %v", err)
			}
			continue
		}
		filledSide[o.Side] = true
		s.fill(o, trigger, bar.Ts)
	}
}

// triggered decides whether the bar's range touches the order and returns
// the execution price.
func (s *Sim) triggered(o *Order, bar schema.Bar) (decimal.Decimal, bool) {
	switch o.Type {
	case schema.OrderTypeStop:
		if o.Side == schema.OrderSideSell && bar.Low.Cmp(o.StopPrice) <= 0 {
			return o.StopPrice, true
		}
		if o.Side == schema.OrderSideBuy && bar.High.Cmp(o.StopPrice) >= 0 {
			return o.StopPrice, true
		}
	case schema.OrderTypeLimit:
		if o.Side == schema.OrderSideSell && bar.High.Cmp(o.Price) >= 0 {
			return o.Price, true
		}
		if o.Side == schema.OrderSideBuy && bar.Low.Cmp(o.Price) <= 0 {
			return o.Price, true
		}
	}
	return decimal.Zero, false
}

func (s *Sim) fill(o *Order, price decimal.Decimal, ts int64) {
	qty := o.LeavesQty
	fee := decimal.Zero
	if s.cfg.FeeRate.Sign() > 0 {
		fee = price.Mul(qty).Mul(s.cfg.FeeRate)
	}
	fill := schema.Fill{
		OrderID: o.ID,
		Symbol:  o.Symbol,
		Side:    o.Side,
		Price:   price,
		Qty:     qty,
		Fee:     fee,
		Ts:      ts,
	}
	if _, err := s.orders.ApplyFill(fill); err != nil {
		logs.Errorf("sim fill transition failed: %v", err)
		return
	}
	if err := s.fills.TryPublish(fill); err != nil {
		logs.Errorf("sim fill publish failed: %v", err)
	}
}
