// Package buffer is the durable local staging area for heartbeats.
//
// The buffer is an append-only event log: every sample or state transition
// is a new row. Rows leave the buffer only after the remote endpoint has
// acknowledged them. The single newest row is retained after pruning so the
// watchdog and the heartbeat builder always have a freshness anchor and a
// last-known position to carry forward.
package buffer

import (
	"context"
	"errors"
	"time"

	"github.com/meerabeer/nfo-agent/internal/constants"
	"github.com/meerabeer/nfo-agent/internal/models"
)

// ErrNotFound is returned by Amend when the target row no longer exists.
var ErrNotFound = errors.New("heartbeat not found")

// Buffer is the local heartbeat store shared by the sampler, sync and watchdog paths.
type Buffer interface {
	// Append inserts a new row and returns its local id.
	Append(ctx context.Context, h models.Heartbeat) (int64, error)
	// Unsynced returns up to limit unsynced rows, oldest first.
	Unsynced(ctx context.Context, limit int) ([]models.Heartbeat, error)
	// MarkSynced flags the given rows as delivered.
	MarkSynced(ctx context.Context, ids []int64) error
	// Prune deletes delivered rows and reports how many were removed.
	Prune(ctx context.Context) (int64, error)
	// MostRecent returns the newest row, or nil when the buffer is empty.
	MostRecent(ctx context.Context) (*models.Heartbeat, error)
	// Amend applies a targeted correction to an existing row.
	Amend(ctx context.Context, id int64, patch Patch) error
	// Stats summarizes the buffer contents.
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// Patch lists the columns Amend may rewrite. Nil fields are left untouched.
type Patch struct {
	Status           *constants.HeartbeatStatus
	LastActiveSource *constants.ActiveSource
	LastPing         *time.Time
	Synced           *bool
}

// IsEmpty reports whether the patch would change nothing.
func (p Patch) IsEmpty() bool {
	return p.Status == nil && p.LastActiveSource == nil && p.LastPing == nil && p.Synced == nil
}

// Stats is a point-in-time summary of the buffer.
type Stats struct {
	Total          int64      `json:"total"`
	Unsynced       int64      `json:"unsynced"`
	OldestUnsynced *time.Time `json:"oldest_unsynced,omitempty"`
	Newest         *time.Time `json:"newest,omitempty"`
}
