package constants

import "strings"

// HeartbeatStatus is the dashboard-facing status carried by every heartbeat.
type HeartbeatStatus string

const (
	StatusOnShift         HeartbeatStatus = "on-shift"
	StatusOffShift        HeartbeatStatus = "off-shift"
	StatusDeviceSilent    HeartbeatStatus = "device-silent"
	StatusRebootWaiting   HeartbeatStatus = "device-reboot-waiting"
	StatusErrorLocation   HeartbeatStatus = "device-error-location"
	StatusErrorPermission HeartbeatStatus = "device-error-permission"
)

const deviceErrorPrefix = "device-error-"

// IsDeviceError reports whether the status belongs to the device-error family.
func (s HeartbeatStatus) IsDeviceError() bool {
	return strings.HasPrefix(string(s), deviceErrorPrefix)
}

// ActiveSource records which path produced or last touched a heartbeat.
type ActiveSource string

const (
	SourceSampler      ActiveSource = "sampler"
	SourceWatchdog     ActiveSource = "watchdog"
	SourceManualToggle ActiveSource = "manual-toggle"
	SourceBootRecovery ActiveSource = "boot-recovery"
)

// SentinelActorID is attributed to heartbeats built while the session has no identity.
const SentinelActorID = "unknown-device"
