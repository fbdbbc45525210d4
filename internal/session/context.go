// Package session holds the field worker's session context and turns changes
// to it into discrete lifecycle events.
//
// Components never read shift or login flags from shared globals. They take
// a Reader and subscribe to the Store for boundary events.
package session

import "time"

// Context is the session state the heartbeat path consumes.
type Context struct {
	ActorID       string `json:"actor_id"`
	DisplayName   string `json:"display_name"`
	LoggedIn      bool   `json:"logged_in"`
	OnShift       bool   `json:"on_shift"`
	Activity      string `json:"activity,omitempty"`
	SiteID        string `json:"site_id,omitempty"`
	ViaWarehouse  bool   `json:"via_warehouse,omitempty"`
	WarehouseName string `json:"warehouse_name,omitempty"`
	HomeLocation  string `json:"home_location,omitempty"`
}

// Active reports whether the session should be producing heartbeats.
func (c Context) Active() bool {
	return c.LoggedIn && c.OnShift
}

func (c Context) assignmentDiffers(o Context) bool {
	return c.DisplayName != o.DisplayName ||
		c.Activity != o.Activity ||
		c.SiteID != o.SiteID ||
		c.ViaWarehouse != o.ViaWarehouse ||
		c.WarehouseName != o.WarehouseName ||
		c.HomeLocation != o.HomeLocation
}

// Reader gives read-only access to the current session.
type Reader interface {
	Current() Context
}

// EventKind names a session lifecycle boundary.
type EventKind string

const (
	EventLogin         EventKind = "login"
	EventLogout        EventKind = "logout"
	EventShiftStart    EventKind = "shift-start"
	EventShiftEnd      EventKind = "shift-end"
	EventContextUpdate EventKind = "context-update"
	// EventRelaunchRequested is raised when the user reopens the sampling path
	// from the foreground UI while already on shift.
	EventRelaunchRequested EventKind = "relaunch-requested"
)

// Event is one lifecycle transition with the session before and after it.
type Event struct {
	Kind     EventKind
	Previous Context
	Current  Context
	At       time.Time
}
