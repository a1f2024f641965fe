// Package sink provides order execution backends. One implementation per
// environment is injected into the runner; strategy and risk logic never
// see which one is live.
package sink

import (
	"errors"

	"main/internal/schema"
)

// Sink accepts orders and reports executions asynchronously through the
// fill queue supplied at construction. Submit is fire-and-forget: it
// returns once the order is accepted for processing, not once filled.
// Cancel returns only after the cancellation is confirmed.
type Sink interface {
	Submit(req schema.OrderRequest) (uint64, error)
	Cancel(orderID uint64) error
	Close() error
}

// BarObserver is implemented by sinks that simulate execution locally and
// need market data to decide when resting orders trigger.
type BarObserver interface {
	OnBar(bar schema.Bar)
}

// Transient reports whether a submit failure may clear on retry. The
// order stays registered in the sink and is resent on reconnect.
// Everything else is terminal for that order.
func Transient(err error) bool {
	return errors.Is(err, ErrGatewayDisconnected)
}
