package obs

import (
	"sync/atomic"
	"time"

	"main/internal/schema"
)

const (
	maxOutcome    = int(schema.OutcomeKillSwitchActive)
	maxRiskReason = int(schema.RiskReasonMaxConcurrent)
)

// Metrics collects lightweight counters and latency stats for one run.
type Metrics struct {
	outcomeCounts    [maxOutcome + 1]uint64
	riskReasonCounts [maxRiskReason + 1]uint64
	fillCount        uint64
	queueDrops       uint64

	stepLatency     LatencyStats
	riskEvalLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	OutcomeCounts    map[schema.EvalOutcome]uint64
	RiskReasonCounts map[schema.RiskReason]uint64
	Fills            uint64
	QueueDrops       uint64
	StepLatency      LatencySnapshot
	RiskEvalLatency  LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// IncOutcome counts one step outcome.
func (m *Metrics) IncOutcome(outcome schema.EvalOutcome) {
	if m == nil {
		return
	}
	idx := int(outcome)
	if idx >= 0 && idx < len(m.outcomeCounts) {
		atomic.AddUint64(&m.outcomeCounts[idx], 1)
	}
}

// IncRiskReason counts one risk denial reason.
func (m *Metrics) IncRiskReason(reason schema.RiskReason) {
	if m == nil {
		return
	}
	idx := int(reason)
	if idx >= 0 && idx < len(m.riskReasonCounts) {
		atomic.AddUint64(&m.riskReasonCounts[idx], 1)
	}
}

// IncFill counts one applied fill.
func (m *Metrics) IncFill() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.fillCount, 1)
}

// IncQueueDrop records a dropped fill publish.
func (m *Metrics) IncQueueDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queueDrops, 1)
}

// ObserveStep measures a full step evaluation.
func (m *Metrics) ObserveStep(d time.Duration) {
	if m == nil {
		return
	}
	m.stepLatency.Observe(d)
}

// ObserveRiskEval measures one risk evaluation.
func (m *Metrics) ObserveRiskEval(d time.Duration) {
	if m == nil {
		return
	}
	m.riskEvalLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	outcomes := make(map[schema.EvalOutcome]uint64)
	for i := range m.outcomeCounts {
		if v := atomic.LoadUint64(&m.outcomeCounts[i]); v > 0 {
			outcomes[schema.EvalOutcome(i)] = v
		}
	}
	reasons := make(map[schema.RiskReason]uint64)
	for i := range m.riskReasonCounts {
		if v := atomic.LoadUint64(&m.riskReasonCounts[i]); v > 0 {
			reasons[schema.RiskReason(i)] = v
		}
	}
	return Snapshot{
		OutcomeCounts:    outcomes,
		RiskReasonCounts: reasons,
		Fills:            atomic.LoadUint64(&m.fillCount),
		QueueDrops:       atomic.LoadUint64(&m.queueDrops),
		StepLatency:      m.stepLatency.Snapshot(),
		RiskEvalLatency:  m.riskEvalLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	ns := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, ns)
	for {
		curr := atomic.LoadUint64(&l.min)
		if curr != 0 && ns >= curr {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, curr, ns) {
			break
		}
	}
	for {
		curr := atomic.LoadUint64(&l.max)
		if ns <= curr {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, curr, ns) {
			break
		}
	}
}

// Snapshot returns a copy of the latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(atomic.LoadUint64(&l.min)),
		Max:   time.Duration(atomic.LoadUint64(&l.max)),
		Avg:   time.Duration(sum / count),
	}
}
