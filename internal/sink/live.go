package sink

import (
	"sort"
	"sync"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/schema"
)

var (
	// ErrGatewayDisconnected is transient: the order is queued for resend.
	ErrGatewayDisconnected = errors.New("order gateway disconnected")
	// ErrOrderRejected is terminal: the venue refused the order.
	ErrOrderRejected = errors.New("order rejected by venue")
)

// Transport carries orders to the venue. The broker client implements it;
// tests substitute their own.
type Transport interface {
	Send(req schema.OrderRequest) error
	CancelOrder(orderID uint64) error
}

// GatewayConfig controls live gateway behavior.
type GatewayConfig struct {
	Session           string
	ResendOnReconnect bool
}

// Gateway is the live/paper-broker order sink. It tracks order lifecycle
// locally, queues intents while disconnected, and resends them on
// reconnect. Fill reports from the venue are forwarded through OnFill.
type Gateway struct {
	cfg       GatewayConfig
	transport Transport
	fills     *bus.FillQueue

	mu        sync.Mutex
	orders    *StateMachine
	pending   map[uint64]schema.OrderRequest
	nextID    uint64
	connected bool
}

// NewGateway creates a connected gateway.
func NewGateway(cfg GatewayConfig, transport Transport, fills *bus.FillQueue) *Gateway {
	if cfg.Session == "" {
		cfg.Session = "default"
	}
	return &Gateway{
		cfg:       cfg,
		transport: transport,
		fills:     fills,
		orders:    NewStateMachine(),
		pending:   make(map[uint64]schema.OrderRequest),
		nextID:    1,
		connected: true,
	}
}

// Submit registers the order and hands it to the transport. While
// disconnected the order is kept pending for resend.
func (g *Gateway) Submit(req schema.OrderRequest) (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	req.OrderID = g.nextID
	g.nextID++

	if _, err := g.orders.ApplyRequest(req); err != nil {
		return 0, errors.Wrap(err, "register order")
	}
	g.pending[req.OrderID] = req

	if !g.connected {
		return req.OrderID, ErrGatewayDisconnected
	}
	if err := g.transport.Send(req); err != nil {
		return req.OrderID, errors.Wrap(err, "send order")
	}
	return req.OrderID, nil
}

// Cancel asks the venue to cancel and confirms the local transition.
func (g *Gateway) Cancel(orderID uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.connected {
		return ErrGatewayDisconnected
	}
	if err := g.transport.CancelOrder(orderID); err != nil {
		return errors.Wrap(err, "cancel order")
	}
	if _, err := g.orders.ApplyCancel(orderID); err != nil {
		return errors.Wrap(err, "confirm cancel")
	}
	delete(g.pending, orderID)
	return nil
}

// Close stops the gateway. Working orders are left at the venue; live and
// paper environments keep protective orders active across restarts.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connected = false
	return nil
}

// OnFill ingests a venue execution report and forwards it to the fill
// queue.
func (g *Gateway) OnFill(fill schema.Fill) error {
	g.mu.Lock()
	order, err := g.orders.ApplyFill(fill)
	if err == nil && isTerminal(order.State) {
		delete(g.pending, fill.OrderID)
	}
	g.mu.Unlock()
	if err != nil {
		return errors.Wrap(err, "apply fill")
	}
	if perr := g.fills.TryPublish(fill); perr != nil {
		logs.Errorf("gateway fill publish failed: %v", perr)
		return perr
	}
	return nil
}

// OnReject marks a venue rejection.
func (g *Gateway) OnReject(orderID uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, err := g.orders.ApplyReject(orderID); err != nil {
		return errors.Wrap(err, "apply reject")
	}
	delete(g.pending, orderID)
	return nil
}

// Disconnect marks the gateway as disconnected.
func (g *Gateway) Disconnect() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connected = false
}

// Reconnect marks the gateway as connected and resends pending orders
// when configured to.
func (g *Gateway) Reconnect() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connected = true
	if !g.cfg.ResendOnReconnect {
		return nil
	}
	ids := make([]uint64, 0, len(g.pending))
	for id := range g.pending {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if err := g.transport.Send(g.pending[id]); err != nil {
			return errors.Wrap(err, "resend pending order")
		}
	}
	return nil
}

// PendingCount reports how many orders still await resolution at the
// venue. Working stop and limit orders are excluded: protective orders
// stay open across shutdown by policy and are not waited on.
func (g *Gateway) PendingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, req := range g.pending {
		if req.Type == schema.OrderTypeMarket {
			n++
		}
	}
	return n
}

// DryRunTransport logs outbound orders instead of routing them to a
// venue. Wired when no broker transport is configured.
type DryRunTransport struct{}

func (DryRunTransport) Send(req schema.OrderRequest) error {
	logs.Warnf("dry-run order: id=%d symbol=%s side=%s type=%s qty=%s",
		req.OrderID, req.Symbol, req.Side, req.Type, req.Qty)
	return nil
}

func (DryRunTransport) CancelOrder(orderID uint64) error {
	logs.Warnf("dry-run cancel: id=%d", orderID)
	return nil
}
