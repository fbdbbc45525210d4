package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/meerabeer/nfo-agent/internal/builder"
	"github.com/meerabeer/nfo-agent/internal/connectivity"
	"github.com/meerabeer/nfo-agent/internal/constants"
	"github.com/meerabeer/nfo-agent/internal/session"
)

// BoundaryResult reports the outcome of a session boundary.
type BoundaryResult struct {
	HeartbeatID int64
	// Delivered is false when rows are still queued. That is not a failure:
	// the steady sync cadence delivers them later.
	Delivered bool
	Pending   int64
}

// SessionBoundaryService writes the final heartbeat of a shift or login
// session and tries to deliver the queue before the device goes quiet.
type SessionBoundaryService struct {
	builder    HeartbeatBuilder
	buffer     Appender
	flusher    Flusher
	network    connectivity.Monitor
	batchLimit int
	rounds     int
	logger     zerolog.Logger
}

// NewSessionBoundaryService creates a SessionBoundaryService.
func NewSessionBoundaryService(hb HeartbeatBuilder, buf Appender, flusher Flusher, network connectivity.Monitor,
	batchLimit int, logger zerolog.Logger) *SessionBoundaryService {
	if batchLimit <= 0 {
		batchLimit = constants.DefaultSyncBatchLimit
	}
	return &SessionBoundaryService{
		builder:    hb,
		buffer:     buf,
		flusher:    flusher,
		network:    network,
		batchLimit: batchLimit,
		rounds:     constants.DefaultBoundaryRounds,
		logger:     logger,
	}
}

// Finalize appends the closing heartbeat for ev and attempts a synchronous
// sync of everything queued.
func (b *SessionBoundaryService) Finalize(ctx context.Context, ev session.Event) (BoundaryResult, error) {
	var res BoundaryResult

	hb := b.builder.Build(ctx, builder.Input{
		Session: ev.Current,
		Source:  constants.SourceManualToggle,
	})
	id, err := b.buffer.Append(ctx, hb)
	if err != nil {
		return res, fmt.Errorf("failed to buffer final heartbeat: %w", err)
	}
	res.HeartbeatID = id

	if b.network.Available(ctx) {
		for round := 0; round < b.rounds; round++ {
			flushed, err := b.flusher.Flush(ctx, b.batchLimit)
			if err != nil {
				b.logger.Warn().Err(err).Int("round", round+1).Msg("Boundary sync failed, leaving rows queued")
				break
			}
			if flushed.Pulled < b.batchLimit {
				break
			}
		}
	} else {
		b.logger.Info().Msg("Network unavailable at session boundary, leaving rows queued")
	}

	pending, err := b.flusher.Pending(ctx)
	if err != nil {
		b.logger.Warn().Err(err).Msg("Failed to count pending heartbeats")
		pending = -1
	}
	res.Pending = pending
	res.Delivered = pending == 0

	b.logger.Info().
		Str("event", string(ev.Kind)).
		Str("actor_id", hb.ActorID).
		Int64("local_id", id).
		Bool("delivered", res.Delivered).
		Int64("pending", res.Pending).
		Msg("Session boundary finalized")
	return res, nil
}
