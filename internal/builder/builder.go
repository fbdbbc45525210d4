// Package builder turns position samples and session context into heartbeats.
package builder

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/meerabeer/nfo-agent/internal/clock"
	"github.com/meerabeer/nfo-agent/internal/constants"
	"github.com/meerabeer/nfo-agent/internal/models"
	"github.com/meerabeer/nfo-agent/internal/session"
	"github.com/meerabeer/nfo-agent/internal/utils"
	"github.com/meerabeer/nfo-agent/pkg/location"
)

// TemplateSource supplies the newest buffered heartbeat for carry-forward.
type TemplateSource interface {
	MostRecent(ctx context.Context) (*models.Heartbeat, error)
}

// Input is everything a single heartbeat is built from.
type Input struct {
	// Sample is the position fix, or nil when none is available.
	Sample  *location.Sample
	Session session.Context
	Source  constants.ActiveSource
	// Status overrides the status derived from the session when set.
	Status constants.HeartbeatStatus
}

// Builder assembles heartbeats.
type Builder struct {
	template TemplateSource
	clock    clock.Clock
	logger   zerolog.Logger
}

// New creates a Builder.
func New(template TemplateSource, clk clock.Clock, logger zerolog.Logger) *Builder {
	return &Builder{
		template: template,
		clock:    clk,
		logger:   logger,
	}
}

// Build returns a new, unsynced heartbeat. Without a sample the last known
// position of the same actor is carried forward, as is the home location
// when the session does not provide one.
func (b *Builder) Build(ctx context.Context, in Input) models.Heartbeat {
	now := b.clock.Now()
	sess := in.Session

	actorID := sess.ActorID
	if actorID == "" {
		// Unattributed heartbeats are kept visible rather than dropped.
		b.logger.Warn().
			Str("source", string(in.Source)).
			Str("sentinel", constants.SentinelActorID).
			Msg("Session has no actor identity, using sentinel actor")
		actorID = constants.SentinelActorID
	}

	status := in.Status
	if status == "" {
		status = constants.StatusOffShift
		if sess.OnShift {
			status = constants.StatusOnShift
		}
	}

	hb := models.Heartbeat{
		ActorID:          actorID,
		DisplayName:      sess.DisplayName,
		OnShift:          sess.OnShift,
		LoggedIn:         sess.LoggedIn,
		Status:           status,
		Activity:         utils.NonEmpty(sess.Activity),
		SiteID:           utils.NonEmpty(sess.SiteID),
		WarehouseName:    utils.NonEmpty(sess.WarehouseName),
		HomeLocation:     utils.NonEmpty(sess.HomeLocation),
		UpdatedAt:        now,
		LastPing:         now,
		LastActiveAt:     now,
		LastActiveSource: in.Source,
		CreatedAtLocal:   now,
	}
	if sess.LoggedIn {
		hb.ViaWarehouse = utils.Ptr(sess.ViaWarehouse)
	}

	if in.Sample != nil {
		hb.Lat = utils.Ptr(in.Sample.Latitude)
		hb.Lng = utils.Ptr(in.Sample.Longitude)
		if !in.Sample.Timestamp.IsZero() && !in.Sample.Timestamp.After(now) {
			hb.LastActiveAt = in.Sample.Timestamp
		}
	}

	if in.Sample == nil || hb.HomeLocation == nil {
		b.carryForward(ctx, &hb, in.Sample == nil)
	}
	return hb
}

func (b *Builder) carryForward(ctx context.Context, hb *models.Heartbeat, position bool) {
	prev, err := b.template.MostRecent(ctx)
	if err != nil {
		b.logger.Warn().Err(err).Msg("Failed to read previous heartbeat for carry-forward")
		return
	}
	if prev == nil || prev.ActorID != hb.ActorID {
		return
	}

	if position && prev.HasPosition() {
		hb.Lat = utils.Ptr(*prev.Lat)
		hb.Lng = utils.Ptr(*prev.Lng)
	}
	if hb.HomeLocation == nil && prev.HomeLocation != nil {
		hb.HomeLocation = utils.Ptr(*prev.HomeLocation)
	}
	if hb.DisplayName == "" {
		hb.DisplayName = prev.DisplayName
	}
}
