package models

import "time"

// BootMarker records the last device boot the recovery path has handled.
type BootMarker struct {
	BootTime  uint64    `json:"boot_time"`
	HandledAt time.Time `json:"handled_at"`
}
