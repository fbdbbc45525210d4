package metrics_collectors

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/host"
)

// UptimeMetricCollector reports the time since the device last booted.
// A short uptime during a shift points at a reboot the recovery path handled.
type UptimeMetricCollector struct{}

func (u *UptimeMetricCollector) Name() string {
	return "uptime"
}

func (u *UptimeMetricCollector) Collect(ctx context.Context) (any, error) {
	uptime, err := host.UptimeWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read uptime: %w", err)
	}
	return uptime, nil
}

func (u *UptimeMetricCollector) Unit() string {
	return "seconds"
}

func (u *UptimeMetricCollector) Description() string {
	return "Seconds since the device booted."
}
