package metrics_collectors

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/disk"
)

// DiskMetricCollector reports how full the volume holding the heartbeat buffer is.
type DiskMetricCollector struct {
	Path   string
	Logger zerolog.Logger
}

func (d *DiskMetricCollector) Name() string {
	return "disk"
}

func (d *DiskMetricCollector) Collect(ctx context.Context) (any, error) {
	diskStats, err := disk.UsageWithContext(ctx, d.Path)
	if err != nil {
		d.Logger.Error().Err(err).Str("path", d.Path).Msg("Failed to get disk usage")
		return nil, fmt.Errorf("failed to get disk usage of %s: %w", d.Path, err)
	}
	return diskStats.UsedPercent, nil
}

func (d *DiskMetricCollector) Unit() string {
	return "percentage"
}

func (d *DiskMetricCollector) Description() string {
	return "Percentage of disk space used on the volume holding the heartbeat buffer."
}
