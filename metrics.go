package authcore

import "github.com/adminkit/authcore/internal/metrics"

// MetricsSnapshot is a point-in-time copy of the engine's counters,
// suitable for export or assertions in tests.
type MetricsSnapshot = metrics.Snapshot

// MetricsSnapshot returns the current counter values. Collection must be
// enabled in Config.Metrics or the snapshot is empty.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id metrics.MetricID) {
	e.metrics.Inc(id)
}
