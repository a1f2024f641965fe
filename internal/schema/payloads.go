package schema

import "github.com/shopspring/decimal"

// Bar is a single market data event. Ts is the bar's logical timestamp in
// nanoseconds; components never read the wall clock during evaluation.
type Bar struct {
	Symbol string
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume decimal.Decimal
	Ts     int64
}

// StrategyIntent is a signal engine's directional decision for one bar.
// Produced once per evaluation cycle, immutable, consumed exactly once by
// the risk engine.
type StrategyIntent struct {
	StrategyID uint32
	Symbol     string
	Direction  Direction
	Qty        decimal.Decimal
	Confidence decimal.Decimal
	SeqTime    int64
	Reason     string
}

// Opens reports whether the intent would open or increase exposure.
func (i StrategyIntent) Opens() bool {
	return i.Direction == DirectionLong || i.Direction == DirectionShort
}

// RiskDecision is the risk engine's answer to an intent. Denials are values,
// not errors; they are an expected outcome of every evaluation cycle.
type RiskDecision struct {
	StrategyID uint32
	Symbol     string
	Action     RiskAction
	Reason     RiskReason
	Qty        decimal.Decimal
	Side       OrderSide
	SeqTime    int64
}

// OrderRequest is what the runner hands to an order sink.
type OrderRequest struct {
	OrderID    uint64
	StrategyID uint32
	Symbol     string
	Side       OrderSide
	Type       OrderType
	Qty        decimal.Decimal
	LimitPrice decimal.Decimal
	StopPrice  decimal.Decimal
	SeqTime    int64
}

// Fill is an asynchronous execution report from an order sink.
type Fill struct {
	OrderID  uint64
	Symbol   string
	Side     OrderSide
	Price    decimal.Decimal
	Qty      decimal.Decimal
	Fee      decimal.Decimal
	Ts       int64
}

// ProtectiveOrder binds a stop-loss or take-profit order to one open
// position's lifecycle.
type ProtectiveOrder struct {
	OrderID      uint64
	PositionID   string
	Kind         ProtectiveKind
	Side         OrderSide
	TriggerPrice decimal.Decimal
	Qty          decimal.Decimal
	Status       ProtectiveStatus
}

// Active reports whether the order still guards the position.
func (p ProtectiveOrder) Active() bool {
	return p.Status == ProtectivePending
}

// PerformanceSnapshot is one append-only point of the equity curve plus
// derived statistics. The performance monitor is its sole writer.
type PerformanceSnapshot struct {
	Ts              int64
	RealizedPnL     decimal.Decimal
	UnrealizedPnL   decimal.Decimal
	Equity          decimal.Decimal
	PeakEquity      decimal.Decimal
	Drawdown        decimal.Decimal
	Sharpe          float64
	SharpeDefined   bool
	TradeCount      int
	WinCount        int
	LossCount       int
}

// TradeRecord is one completed round trip for the trade log.
type TradeRecord struct {
	Symbol     string
	Side       OrderSide
	Qty        decimal.Decimal
	EntryPrice decimal.Decimal
	ExitPrice  decimal.Decimal
	PnL        decimal.Decimal
	EntryTs    int64
	ExitTs     int64
	StrategyID uint32
}
