package metrics_collectors

import (
	"context"
)

// MetricCollector defines the interface for collecting one device diagnostic.
type MetricCollector interface {
	Name() string                             // Name of the metric (e.g., "disk", "memory")
	Collect(ctx context.Context) (any, error) // Collect the metric data
	Unit() string                             // Unit of the metric (e.g., "percentage", "seconds")
	Description() string                      // Description of the metric
}

// Metric is one collected diagnostic value.
type Metric struct {
	Value       any    `json:"value,omitempty"`
	Unit        string `json:"unit"`
	Description string `json:"description"`
	Error       string `json:"error,omitempty"`
}
