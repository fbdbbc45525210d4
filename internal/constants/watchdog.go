package constants

import "time"

// WatchdogState is the health verdict recorded by the watchdog.
type WatchdogState string

const (
	WatchdogDormant   WatchdogState = "dormant"
	WatchdogHealthy   WatchdogState = "healthy"
	WatchdogUnhealthy WatchdogState = "unhealthy"
	WatchdogUnknown   WatchdogState = "unknown"
)

// IsAlarming reports whether the state already triggered remediation.
func (s WatchdogState) IsAlarming() bool {
	return s == WatchdogUnhealthy || s == WatchdogUnknown
}

const (
	DefaultWatchdogInterval = 1 * time.Minute
	DefaultStaleAfter       = 3 * time.Minute
	DefaultNotifyCooldown   = 10 * time.Minute
	DefaultSamplerInterval  = 20 * time.Second
)

// DefaultRestrictedPlatform is the first platform version that forbids
// silently resuming background sampling.
const DefaultRestrictedPlatform = "12.0.0"
