package risk

import (
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/schema"
	"main/internal/state"
)

// OrderPlacer is the slice of the order sink the protective book needs.
// Cancel returns only after the cancellation is confirmed.
type OrderPlacer interface {
	Submit(req schema.OrderRequest) (uint64, error)
	Cancel(orderID uint64) error
}

// Pair holds one position's protective orders. At most one active
// stop-loss and one active take-profit exist per open position.
type Pair struct {
	StopLoss   *schema.ProtectiveOrder
	TakeProfit *schema.ProtectiveOrder
}

// Protector owns the stop-loss/take-profit lifecycle for every open
// position of one strategy instance.
type Protector struct {
	limits Limits
	placer OrderPlacer
	pairs  map[string]*Pair
}

// NewProtector creates an empty protective order book.
func NewProtector(limits Limits, placer OrderPlacer) *Protector {
	return &Protector{
		limits: limits,
		placer: placer,
		pairs:  make(map[string]*Pair),
	}
}

// Pair returns the protective orders guarding a symbol, if any.
func (p *Protector) Pair(symbol string) (Pair, bool) {
	pair, ok := p.pairs[symbol]
	if !ok {
		return Pair{}, false
	}
	return *pair, true
}

// Attach computes protective trigger prices from the position's entry price
// and places both orders with the sink. Prices are never re-priced on later
// bars; only Requote replaces them.
func (p *Protector) Attach(pos state.Position, seqTime int64) (Pair, error) {
	if !pos.Open() {
		return Pair{}, errors.New("cannot attach protective orders to a flat position")
	}
	if _, ok := p.pairs[pos.Symbol]; ok {
		return Pair{}, errors.New("protective orders already attached: " + pos.Symbol)
	}

	long := pos.Qty.Sign() > 0
	pair := &Pair{}

	if p.limits.StopLossPct.Sign() > 0 {
		order, err := p.place(pos, schema.ProtectiveStopLoss, stopPrice(pos.AvgEntryPrice, p.limits.StopLossPct, long), seqTime)
		if err != nil {
			return Pair{}, errors.Wrap(err, "place stop loss")
		}
		pair.StopLoss = order
	}
	if p.limits.TakeProfitPct.Sign() > 0 {
		order, err := p.place(pos, schema.ProtectiveTakeProfit, targetPrice(pos.AvgEntryPrice, p.limits.TakeProfitPct, long), seqTime)
		if err != nil {
			// Keep the pair consistent: a half-attached position may not
			// stand, cancel the stop before surfacing the error.
			if pair.StopLoss != nil {
				if cerr := p.placer.Cancel(pair.StopLoss.OrderID); cerr != nil {
					logs.Errorf("cancel orphan stop loss failed: %v", cerr)
				}
			}
			return Pair{}, errors.Wrap(err, "place take profit")
		}
		pair.TakeProfit = order
	}

	p.pairs[pos.Symbol] = pair
	return *pair, nil
}

// Requote atomically replaces one protective order with a new trigger
// price. The old order's cancellation is confirmed before the replacement
// is placed, so there is never a window with two live orders of one kind.
func (p *Protector) Requote(symbol string, kind schema.ProtectiveKind, trigger decimal.Decimal, seqTime int64) error {
	pair, ok := p.pairs[symbol]
	if !ok {
		return errors.New("no protective orders for symbol: " + symbol)
	}
	current := pair.order(kind)
	if current == nil || !current.Active() {
		return errors.New("no active " + kind.String() + " order for symbol: " + symbol)
	}

	if err := p.placer.Cancel(current.OrderID); err != nil {
		// Old order stays active; the position is still guarded.
		return errors.Wrap(err, "cancel before requote")
	}
	current.Status = schema.ProtectiveCancelled

	side := current.Side
	orderType := schema.OrderTypeStop
	if kind == schema.ProtectiveTakeProfit {
		orderType = schema.OrderTypeLimit
	}
	id, err := p.placer.Submit(schema.OrderRequest{
		Symbol:     symbol,
		Side:       side,
		Type:       orderType,
		Qty:        current.Qty,
		StopPrice:  trigger,
		LimitPrice: trigger,
		SeqTime:    seqTime,
	})
	if err != nil {
		return errors.Wrap(err, "submit requote")
	}

	replacement := &schema.ProtectiveOrder{
		OrderID:      id,
		PositionID:   symbol,
		Kind:         kind,
		Side:         side,
		TriggerPrice: trigger,
		Qty:          current.Qty,
		Status:       schema.ProtectivePending,
	}
	pair.set(kind, replacement)
	return nil
}

// OnPositionClosed cancels any still-pending protective orders for the
// symbol. Safe to call regardless of how the position closed; each order is
// cancelled at most once.
func (p *Protector) OnPositionClosed(symbol string) error {
	pair, ok := p.pairs[symbol]
	if !ok {
		return nil
	}
	delete(p.pairs, symbol)

	for _, order := range []*schema.ProtectiveOrder{pair.StopLoss, pair.TakeProfit} {
		if order == nil || !order.Active() {
			continue
		}
		if err := p.placer.Cancel(order.OrderID); err != nil {
			return errors.Wrap(err, "cancel protective order on close")
		}
		order.Status = schema.ProtectiveCancelled
	}
	return nil
}

// OnProtectiveFill marks the filled protective order as triggered and
// returns true when the fill belonged to a protective order. The paired
// order is cancelled by the subsequent position-close path.
func (p *Protector) OnProtectiveFill(orderID uint64) (schema.ProtectiveKind, bool) {
	for _, pair := range p.pairs {
		for _, order := range []*schema.ProtectiveOrder{pair.StopLoss, pair.TakeProfit} {
			if order == nil || order.OrderID != orderID {
				continue
			}
			if order.Status != schema.ProtectivePending {
				return order.Kind, false
			}
			order.Status = schema.ProtectiveTriggered
			return order.Kind, true
		}
	}
	return schema.ProtectiveUnknown, false
}

// ActiveOrders lists all still-pending protective orders.
func (p *Protector) ActiveOrders() []schema.ProtectiveOrder {
	out := make([]schema.ProtectiveOrder, 0, len(p.pairs)*2)
	for _, pair := range p.pairs {
		for _, order := range []*schema.ProtectiveOrder{pair.StopLoss, pair.TakeProfit} {
			if order != nil && order.Active() {
				out = append(out, *order)
			}
		}
	}
	return out
}

func (p *Protector) place(pos state.Position, kind schema.ProtectiveKind, trigger decimal.Decimal, seqTime int64) (*schema.ProtectiveOrder, error) {
	side := schema.OrderSideSell
	if pos.Qty.Sign() < 0 {
		side = schema.OrderSideBuy
	}
	orderType := schema.OrderTypeStop
	if kind == schema.ProtectiveTakeProfit {
		orderType = schema.OrderTypeLimit
	}
	id, err := p.placer.Submit(schema.OrderRequest{
		Symbol:     pos.Symbol,
		Side:       side,
		Type:       orderType,
		Qty:        pos.Qty.Abs(),
		StopPrice:  trigger,
		LimitPrice: trigger,
		SeqTime:    seqTime,
	})
	if err != nil {
		return nil, err
	}
	return &schema.ProtectiveOrder{
		OrderID:      id,
		PositionID:   pos.Symbol,
		Kind:         kind,
		Side:         side,
		TriggerPrice: trigger,
		Qty:          pos.Qty.Abs(),
		Status:       schema.ProtectivePending,
	}, nil
}

func (pr *Pair) order(kind schema.ProtectiveKind) *schema.ProtectiveOrder {
	if kind == schema.ProtectiveStopLoss {
		return pr.StopLoss
	}
	return pr.TakeProfit
}

func (pr *Pair) set(kind schema.ProtectiveKind, order *schema.ProtectiveOrder) {
	if kind == schema.ProtectiveStopLoss {
		pr.StopLoss = order
	} else {
		pr.TakeProfit = order
	}
}

func stopPrice(entry, pct decimal.Decimal, long bool) decimal.Decimal {
	one := decimal.NewFromInt(1)
	if long {
		return entry.Mul(one.Sub(pct))
	}
	return entry.Mul(one.Add(pct))
}

func targetPrice(entry, pct decimal.Decimal, long bool) decimal.Decimal {
	one := decimal.NewFromInt(1)
	if long {
		return entry.Mul(one.Add(pct))
	}
	return entry.Mul(one.Sub(pct))
}
