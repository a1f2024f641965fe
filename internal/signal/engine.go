// Package signal holds the strategy signal engines. An engine is a pure
// function of its parameters and a window of market data; it never performs
// I/O, never reads the wall clock, and produces identical intents for
// identical inputs in every environment.
package signal

import (
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"main/internal/schema"
)

// Engine turns a market data window into a directional intent. The boolean
// is false when the engine has no opinion for this bar (warmup, no cross).
type Engine interface {
	Evaluate(bars []schema.Bar, positionQty decimal.Decimal) (schema.StrategyIntent, bool)
	Warmup() int
}

// SMACrossParams parameterizes the moving-average crossover engine.
type SMACrossParams struct {
	StrategyID uint32
	Symbol     string
	Period     int
	Qty        decimal.Decimal
}

// Validate fails fast on out-of-range parameters.
func (p SMACrossParams) Validate() error {
	if p.Symbol == "" {
		return errors.New("symbol is empty")
	}
	if p.Period < 2 {
		return errors.New("sma period must be >= 2")
	}
	if p.Qty.Sign() <= 0 {
		return errors.New("position qty must be > 0")
	}
	return nil
}

// SMACross goes long when the close crosses above its moving average and
// flattens when it crosses below. Take-profit and stop-loss are handled by
// protective orders, not by the signal.
type SMACross struct {
	params SMACrossParams
}

// NewSMACross validates the parameters and builds the engine.
func NewSMACross(params SMACrossParams) (*SMACross, error) {
	if err := params.Validate(); err != nil {
		return nil, errors.Wrap(err, "sma cross params")
	}
	return &SMACross{params: params}, nil
}

// Warmup returns the number of bars needed before the first signal.
func (s *SMACross) Warmup() int {
	return s.params.Period + 1
}

// Evaluate inspects the last two bars against their moving averages.
func (s *SMACross) Evaluate(bars []schema.Bar, positionQty decimal.Decimal) (schema.StrategyIntent, bool) {
	if len(bars) < s.Warmup() {
		return schema.StrategyIntent{}, false
	}

	closes := make([]decimal.Decimal, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	currSMA, ok := SMA(closes, s.params.Period)
	if !ok {
		return schema.StrategyIntent{}, false
	}
	prevSMA, ok := SMA(closes[:len(closes)-1], s.params.Period)
	if !ok {
		return schema.StrategyIntent{}, false
	}

	curr := bars[len(bars)-1]
	prev := bars[len(bars)-2]

	crossedAbove := prev.Close.Cmp(prevSMA) <= 0 && curr.Close.Cmp(currSMA) > 0
	crossedBelow := prev.Close.Cmp(prevSMA) >= 0 && curr.Close.Cmp(currSMA) < 0

	switch {
	case crossedAbove && positionQty.Sign() <= 0:
		return schema.StrategyIntent{
			StrategyID: s.params.StrategyID,
			Symbol:     s.params.Symbol,
			Direction:  schema.DirectionLong,
			Qty:        s.params.Qty,
			SeqTime:    curr.Ts,
			Reason:     "close crossed above sma",
		}, true
	case crossedBelow && positionQty.Sign() > 0:
		return schema.StrategyIntent{
			StrategyID: s.params.StrategyID,
			Symbol:     s.params.Symbol,
			Direction:  schema.DirectionFlat,
			SeqTime:    curr.Ts,
			Reason:     "close crossed below sma",
		}, true
	default:
		return schema.StrategyIntent{}, false
	}
}
