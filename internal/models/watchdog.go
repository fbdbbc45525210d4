package models

import (
	"time"

	"github.com/meerabeer/nfo-agent/internal/constants"
)

// WatchdogState is the persisted watchdog record.
type WatchdogState struct {
	State            constants.WatchdogState `json:"state"`
	LastNotification time.Time               `json:"last_notification"`
	LastCheck        time.Time               `json:"last_check"`
}
