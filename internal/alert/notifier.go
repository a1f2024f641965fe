package alert

import (
	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"
)

// Level grades alert severity.
type Level uint16

const (
	LevelLow Level = iota
	LevelMedium
	LevelHigh
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelLow:
		return "low"
	case LevelMedium:
		return "medium"
	case LevelHigh:
		return "high"
	case LevelCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Alert is one risk management alert, retained for audit.
type Alert struct {
	Level     Level
	Metric    string
	Message   string
	Value     decimal.Decimal
	Threshold decimal.Decimal
	Ts        int64
}

// Notifier delivers alerts to an external collaborator. Implementations
// must not block the evaluation path for long.
type Notifier interface {
	Notify(a Alert)
}

// NopNotifier drops alerts.
type NopNotifier struct{}

func (NopNotifier) Notify(Alert) {}

// LogNotifier writes alerts to the process log.
type LogNotifier struct{}

func (LogNotifier) Notify(a Alert) {
	logs.Errorf("ALERT [%s] %s: %s (value=%s threshold=%s)",
		a.Level, a.Metric, a.Message, a.Value, a.Threshold)
}
