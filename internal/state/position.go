package state

import (
	"sort"

	"github.com/shopspring/decimal"

	"main/internal/schema"
)

// Position is one symbol's holding under a single strategy instance.
// Quantity is signed; average entry price uses average-cost netting.
// Mutated only on confirmed fills, never on submitted orders.
type Position struct {
	Symbol        string
	Qty           decimal.Decimal
	AvgEntryPrice decimal.Decimal
	MarkPrice     decimal.Decimal
	RealizedPnL   decimal.Decimal
	OpenedTs      int64
}

// Open reports whether the position holds any quantity.
func (p Position) Open() bool {
	return !p.Qty.IsZero()
}

// UnrealizedPnL values the open quantity at the current mark price.
func (p Position) UnrealizedPnL() decimal.Decimal {
	if p.Qty.IsZero() || p.MarkPrice.IsZero() {
		return decimal.Zero
	}
	return p.MarkPrice.Sub(p.AvgEntryPrice).Mul(p.Qty)
}

// Notional is the absolute mark value of the open quantity.
func (p Position) Notional() decimal.Decimal {
	price := p.MarkPrice
	if price.IsZero() {
		price = p.AvgEntryPrice
	}
	return price.Mul(p.Qty.Abs())
}

// FillResult describes what a fill did to a position.
type FillResult struct {
	Position    Position
	RealizedPnL decimal.Decimal
	Closed      bool
	ClosedTrade *schema.TradeRecord
}

// Book tracks positions per symbol for one strategy instance.
// Callers apply fills single-writer; the book itself is not locked.
type Book struct {
	positions map[string]Position
}

// NewBook creates an empty position book.
func NewBook() *Book {
	return &Book{positions: make(map[string]Position)}
}

// Position returns the current position for a symbol.
func (b *Book) Position(symbol string) Position {
	p, ok := b.positions[symbol]
	if !ok {
		return Position{Symbol: symbol}
	}
	return p
}

// OpenCount returns the number of symbols with a non-zero quantity.
func (b *Book) OpenCount() int {
	n := 0
	for _, p := range b.positions {
		if p.Open() {
			n++
		}
	}
	return n
}

// Positions returns a copy of all open positions in symbol order.
func (b *Book) Positions() []Position {
	out := make([]Position, 0, len(b.positions))
	for _, p := range b.positions {
		if p.Open() {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// ApplyFill nets a confirmed fill into the book using average-cost
// accounting and returns the updated position plus any realized P&L.
func (b *Book) ApplyFill(fill schema.Fill) FillResult {
	p := b.Position(fill.Symbol)

	signed := fill.Qty
	if fill.Side == schema.OrderSideSell {
		signed = signed.Neg()
	}

	prevQty := p.Qty
	nextQty := prevQty.Add(signed)
	realized := decimal.Zero

	switch {
	case prevQty.IsZero():
		p.AvgEntryPrice = fill.Price
		p.OpenedTs = fill.Ts
	case prevQty.Sign() == signed.Sign():
		// Increasing exposure: blend the average entry price.
		prevCost := p.AvgEntryPrice.Mul(prevQty.Abs())
		addCost := fill.Price.Mul(signed.Abs())
		p.AvgEntryPrice = prevCost.Add(addCost).Div(prevQty.Abs().Add(signed.Abs()))
	default:
		// Reducing or flipping: realize P&L on the closed portion.
		closedQty := decimal.Min(prevQty.Abs(), signed.Abs())
		diff := fill.Price.Sub(p.AvgEntryPrice)
		if prevQty.Sign() < 0 {
			diff = diff.Neg()
		}
		realized = diff.Mul(closedQty)
		if nextQty.Sign() != 0 && nextQty.Sign() != prevQty.Sign() {
			// Flip: remainder opens a fresh position at the fill price.
			p.AvgEntryPrice = fill.Price
			p.OpenedTs = fill.Ts
		}
	}

	// Fees are realized on every fill, opening legs included.
	realized = realized.Sub(fill.Fee)

	p.Qty = nextQty
	p.MarkPrice = fill.Price
	p.RealizedPnL = p.RealizedPnL.Add(realized)

	result := FillResult{RealizedPnL: realized}
	if nextQty.IsZero() && !prevQty.IsZero() {
		result.Closed = true
		side := schema.OrderSideBuy
		if prevQty.Sign() < 0 {
			side = schema.OrderSideSell
		}
		result.ClosedTrade = &schema.TradeRecord{
			Symbol:     fill.Symbol,
			Side:       side,
			Qty:        prevQty.Abs(),
			EntryPrice: p.AvgEntryPrice,
			ExitPrice:  fill.Price,
			PnL:        realized,
			EntryTs:    p.OpenedTs,
			ExitTs:     fill.Ts,
		}
	}

	b.positions[fill.Symbol] = p
	result.Position = p
	return result
}

// MarkToMarket updates a symbol's mark price without touching realized P&L.
func (b *Book) MarkToMarket(symbol string, price decimal.Decimal) Position {
	p := b.Position(symbol)
	p.MarkPrice = price
	b.positions[symbol] = p
	return p
}

// UnrealizedPnL sums unrealized P&L over all open positions.
func (b *Book) UnrealizedPnL() decimal.Decimal {
	total := decimal.Zero
	for _, p := range b.positions {
		total = total.Add(p.UnrealizedPnL())
	}
	return total
}

// RealizedPnL sums realized P&L over all positions, closed ones included.
func (b *Book) RealizedPnL() decimal.Decimal {
	total := decimal.Zero
	for _, p := range b.positions {
		total = total.Add(p.RealizedPnL)
	}
	return total
}
