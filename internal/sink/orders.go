package sink

import (
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"main/internal/schema"
)

var (
	ErrDuplicateOrder    = errors.New("order already exists")
	ErrUnknownOrder      = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid order state transition")
	ErrInvalidFill       = errors.New("invalid fill quantity")
)

// OrderState tracks the lifecycle of an order inside a sink.
type OrderState uint16

const (
	OrderStateUnknown OrderState = iota
	OrderStateSent
	OrderStateAcked
	OrderStatePartFilled
	OrderStateFilled
	OrderStateCanceled
	OrderStateRejected
)

// Order holds a sink's view of an order.
type Order struct {
	ID        uint64
	Symbol    string
	Side      schema.OrderSide
	Type      schema.OrderType
	Price     decimal.Decimal
	StopPrice decimal.Decimal
	Qty       decimal.Decimal
	LeavesQty decimal.Decimal
	State     OrderState
}

// StateMachine updates orders from request/ack/fill events.
type StateMachine struct {
	orders map[uint64]*Order
}

// NewStateMachine creates an empty state machine.
func NewStateMachine() *StateMachine {
	return &StateMachine{orders: make(map[uint64]*Order)}
}

// Order returns the current order state.
func (m *StateMachine) Order(id uint64) (*Order, bool) {
	o, ok := m.orders[id]
	return o, ok
}

// Open returns all orders that are not in a terminal state.
func (m *StateMachine) Open() []*Order {
	out := make([]*Order, 0, len(m.orders))
	for _, o := range m.orders {
		if !isTerminal(o.State) {
			out = append(out, o)
		}
	}
	return out
}

// ApplyRequest registers a new order in Sent state.
func (m *StateMachine) ApplyRequest(req schema.OrderRequest) (*Order, error) {
	if req.OrderID == 0 {
		return nil, ErrUnknownOrder
	}
	if _, ok := m.orders[req.OrderID]; ok {
		return nil, ErrDuplicateOrder
	}
	o := &Order{
		ID:        req.OrderID,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Type:      req.Type,
		Price:     req.LimitPrice,
		StopPrice: req.StopPrice,
		Qty:       req.Qty,
		LeavesQty: req.Qty,
		State:     OrderStateSent,
	}
	m.orders[o.ID] = o
	return o, nil
}

// ApplyCancel moves an open order to Canceled.
func (m *StateMachine) ApplyCancel(id uint64) (*Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrUnknownOrder
	}
	if isTerminal(o.State) {
		return o, ErrInvalidTransition
	}
	o.State = OrderStateCanceled
	return o, nil
}

// ApplyReject moves an open order to Rejected.
func (m *StateMachine) ApplyReject(id uint64) (*Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrUnknownOrder
	}
	if isTerminal(o.State) {
		return o, ErrInvalidTransition
	}
	o.State = OrderStateRejected
	return o, nil
}

// ApplyFill reduces leaves quantity from a fill event.
func (m *StateMachine) ApplyFill(fill schema.Fill) (*Order, error) {
	o, ok := m.orders[fill.OrderID]
	if !ok {
		return nil, ErrUnknownOrder
	}
	if isTerminal(o.State) {
		return o, ErrInvalidTransition
	}
	if fill.Qty.Sign() <= 0 {
		return o, ErrInvalidFill
	}
	leaves := o.LeavesQty.Sub(fill.Qty)
	if leaves.Sign() <= 0 {
		o.LeavesQty = decimal.Zero
		o.State = OrderStateFilled
	} else {
		o.LeavesQty = leaves
		o.State = OrderStatePartFilled
	}
	return o, nil
}

func isTerminal(state OrderState) bool {
	switch state {
	case OrderStateFilled, OrderStateCanceled, OrderStateRejected:
		return true
	default:
		return false
	}
}
