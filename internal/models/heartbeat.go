package models

import (
	"time"

	"github.com/meerabeer/nfo-agent/internal/constants"
)

// Heartbeat is one buffered status/position report for an actor.
// Optional columns are nil when unknown.
type Heartbeat struct {
	LocalID          int64                     `json:"local_id"`
	ActorID          string                    `json:"username"`
	DisplayName      string                    `json:"name"`
	OnShift          bool                      `json:"on_shift"`
	LoggedIn         bool                      `json:"logged_in"`
	Status           constants.HeartbeatStatus `json:"status"`
	Activity         *string                   `json:"activity,omitempty"`
	SiteID           *string                   `json:"site_id,omitempty"`
	ViaWarehouse     *bool                     `json:"via_warehouse,omitempty"`
	WarehouseName    *string                   `json:"warehouse_name,omitempty"`
	Lat              *float64                  `json:"lat,omitempty"`
	Lng              *float64                  `json:"lng,omitempty"`
	HomeLocation     *string                   `json:"home_location,omitempty"`
	UpdatedAt        time.Time                 `json:"updated_at"`
	LastPing         time.Time                 `json:"last_ping"`
	LastActiveAt     time.Time                 `json:"last_active_at"`
	LastActiveSource constants.ActiveSource    `json:"last_active_source"`
	CreatedAtLocal   time.Time                 `json:"created_at_local"`
	Synced           bool                      `json:"synced"`
}

// HasPosition reports whether both coordinates are known.
func (h *Heartbeat) HasPosition() bool {
	return h.Lat != nil && h.Lng != nil
}

// Age returns the time elapsed since the heartbeat was buffered.
func (h *Heartbeat) Age(now time.Time) time.Duration {
	return now.Sub(h.CreatedAtLocal)
}
