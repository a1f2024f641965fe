package schema

// Environment selects which event source and order sink a run binds to.
// It never changes strategy or risk logic.
type Environment uint16

const (
	EnvUnknown Environment = iota
	EnvBacktest
	EnvPaper
	EnvLive
)

func (e Environment) String() string {
	switch e {
	case EnvBacktest:
		return "backtest"
	case EnvPaper:
		return "paper"
	case EnvLive:
		return "live"
	default:
		return "unknown"
	}
}

// ParseEnvironment maps a config string to an Environment.
func ParseEnvironment(s string) (Environment, bool) {
	switch s {
	case "backtest":
		return EnvBacktest, true
	case "paper":
		return EnvPaper, true
	case "live":
		return EnvLive, true
	default:
		return EnvUnknown, false
	}
}

// Direction is a strategy's directional decision before risk adjustment.
type Direction uint16

const (
	DirectionUnknown Direction = iota
	DirectionLong
	DirectionShort
	DirectionFlat
)

func (d Direction) String() string {
	switch d {
	case DirectionLong:
		return "long"
	case DirectionShort:
		return "short"
	case DirectionFlat:
		return "flat"
	default:
		return "unknown"
	}
}

// OrderSide describes order direction.
type OrderSide uint16

const (
	OrderSideUnknown OrderSide = iota
	OrderSideBuy
	OrderSideSell
)

func (s OrderSide) String() string {
	switch s {
	case OrderSideBuy:
		return "buy"
	case OrderSideSell:
		return "sell"
	default:
		return "unknown"
	}
}

// OrderType describes order type.
type OrderType uint16

const (
	OrderTypeUnknown OrderType = iota
	OrderTypeMarket
	OrderTypeLimit
	OrderTypeStop
)

func (t OrderType) String() string {
	switch t {
	case OrderTypeMarket:
		return "market"
	case OrderTypeLimit:
		return "limit"
	case OrderTypeStop:
		return "stop"
	default:
		return "unknown"
	}
}

// ProtectiveKind distinguishes the two protective order flavors.
type ProtectiveKind uint16

const (
	ProtectiveUnknown ProtectiveKind = iota
	ProtectiveStopLoss
	ProtectiveTakeProfit
)

func (k ProtectiveKind) String() string {
	switch k {
	case ProtectiveStopLoss:
		return "stop_loss"
	case ProtectiveTakeProfit:
		return "take_profit"
	default:
		return "unknown"
	}
}

// ProtectiveStatus tracks a protective order's lifecycle.
// Triggered and Cancelled are terminal.
type ProtectiveStatus uint16

const (
	ProtectivePending ProtectiveStatus = iota
	ProtectiveTriggered
	ProtectiveCancelled
)

func (s ProtectiveStatus) String() string {
	switch s {
	case ProtectivePending:
		return "pending"
	case ProtectiveTriggered:
		return "triggered"
	case ProtectiveCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// RiskAction is the outcome of a risk evaluation.
type RiskAction uint16

const (
	RiskActionUnknown RiskAction = iota
	RiskActionAllow
	RiskActionDeny
	RiskActionNoOp
)

func (a RiskAction) String() string {
	switch a {
	case RiskActionAllow:
		return "allow"
	case RiskActionDeny:
		return "deny"
	case RiskActionNoOp:
		return "noop"
	default:
		return "unknown"
	}
}

// RiskReason is a coarse reason code for risk denials.
type RiskReason uint16

const (
	RiskReasonNone RiskReason = iota
	RiskReasonKillSwitch
	RiskReasonPositionLimit
	RiskReasonPortfolioExposure
	RiskReasonMaxConcurrent
)

func (r RiskReason) String() string {
	switch r {
	case RiskReasonNone:
		return "none"
	case RiskReasonKillSwitch:
		return "kill_switch"
	case RiskReasonPositionLimit:
		return "position_limit"
	case RiskReasonPortfolioExposure:
		return "portfolio_exposure"
	case RiskReasonMaxConcurrent:
		return "max_concurrent"
	default:
		return "unknown"
	}
}

// EvalOutcome is what a single runner step reports back.
type EvalOutcome uint16

const (
	OutcomeNoAction EvalOutcome = iota
	OutcomeOrderSubmitted
	OutcomeOrderRejected
	OutcomeKillSwitchActive
)

func (o EvalOutcome) String() string {
	switch o {
	case OutcomeNoAction:
		return "no_action"
	case OutcomeOrderSubmitted:
		return "order_submitted"
	case OutcomeOrderRejected:
		return "order_rejected"
	case OutcomeKillSwitchActive:
		return "kill_switch_active"
	default:
		return "unknown"
	}
}
