package state

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Portfolio aggregates exposure across strategy instances. It is the only
// shared mutable state between instances, so every access takes the lock.
type Portfolio struct {
	mu            sync.Mutex
	grossExposure decimal.Decimal
	openPositions int
	bySymbol      map[string]decimal.Decimal
}

// NewPortfolio creates an empty portfolio aggregate.
func NewPortfolio() *Portfolio {
	return &Portfolio{bySymbol: make(map[string]decimal.Decimal)}
}

// View is a consistent read of the aggregate for one risk evaluation.
type View struct {
	GrossExposure decimal.Decimal
	OpenPositions int
}

// View snapshots the aggregate under the lock.
func (p *Portfolio) View() View {
	p.mu.Lock()
	defer p.mu.Unlock()
	return View{
		GrossExposure: p.grossExposure,
		OpenPositions: p.openPositions,
	}
}

// Update replaces a symbol's notional contribution and open flag.
// Called after each confirmed fill or mark-to-market pass.
func (p *Portfolio) Update(symbol string, notional decimal.Decimal, open bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	prev, had := p.bySymbol[symbol]
	if had {
		p.grossExposure = p.grossExposure.Sub(prev)
		p.openPositions--
	}
	if open {
		p.bySymbol[symbol] = notional
		p.grossExposure = p.grossExposure.Add(notional)
		p.openPositions++
	} else {
		delete(p.bySymbol, symbol)
	}
}
