package constants

import "time"

const (
	// DefaultSyncInterval is the steady cadence of the periodic sync.
	DefaultSyncInterval = 15 * time.Minute

	// DefaultSyncBatchLimit bounds the rows pulled per sync attempt.
	DefaultSyncBatchLimit = 100

	DefaultRetryBaseDelay = 30 * time.Second
	DefaultRetryMaxDelay  = 5 * time.Hour

	// DefaultConstraintPoll is how often pending work re-checks network availability.
	DefaultConstraintPoll = 30 * time.Second

	// DefaultRemoteUTCOffset is the fixed offset every outgoing timestamp is rendered in.
	DefaultRemoteUTCOffset = 3 * time.Hour

	DefaultRemoteTimeout = 20 * time.Second
	DefaultRemoteTable   = "field_heartbeats"
	DefaultConflictKey   = "username"

	// DefaultBoundaryRounds caps how many batches a session-boundary sync drains.
	DefaultBoundaryRounds = 10
)

// Unique work names used by the sync scheduler.
const (
	WorkPeriodicSync  = "heartbeat-periodic-sync"
	WorkImmediateSync = "heartbeat-immediate-sync"
)
