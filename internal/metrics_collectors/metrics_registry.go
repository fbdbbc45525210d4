package metrics_collectors

import (
	"context"
)

// MetricsRegistry holds the diagnostic collectors in registration order.
type MetricsRegistry struct {
	collectors []MetricCollector
}

// NewMetricsRegistry creates a new MetricsRegistry instance.
func NewMetricsRegistry(collectors ...MetricCollector) *MetricsRegistry {
	r := &MetricsRegistry{}
	for _, c := range collectors {
		r.Register(c)
	}
	return r
}

// Register adds a metric collector. A collector with the same name replaces the earlier one.
func (r *MetricsRegistry) Register(collector MetricCollector) {
	for i, c := range r.collectors {
		if c.Name() == collector.Name() {
			r.collectors[i] = collector
			return
		}
	}
	r.collectors = append(r.collectors, collector)
}

// GetCollectors returns the registered collectors.
func (r *MetricsRegistry) GetCollectors() []MetricCollector {
	return append([]MetricCollector(nil), r.collectors...)
}

// CollectAll runs every collector. A failing collector is reported in its
// entry and does not stop the others.
func (r *MetricsRegistry) CollectAll(ctx context.Context) map[string]Metric {
	out := make(map[string]Metric, len(r.collectors))
	for _, c := range r.collectors {
		m := Metric{Unit: c.Unit(), Description: c.Description()}
		value, err := c.Collect(ctx)
		if err != nil {
			m.Error = err.Error()
		} else {
			m.Value = value
		}
		out[c.Name()] = m
	}
	return out
}
