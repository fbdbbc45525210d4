package models

import "time"

// AlertKind identifies what the user is asked to do.
type AlertKind string

const (
	// AlertRelaunchSampling asks the user to reopen the sampling path after staleness.
	AlertRelaunchSampling AlertKind = "relaunch-sampling"
	// AlertRegrantCapability asks the user to re-grant background execution.
	AlertRegrantCapability AlertKind = "regrant-capability"
)

// Alert is a user-facing notification raised by the agent.
type Alert struct {
	Kind     AlertKind `json:"kind"`
	ActorID  string    `json:"actor_id"`
	Title    string    `json:"title"`
	Message  string    `json:"message"`
	RaisedAt time.Time `json:"raised_at"`
}
