package services

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meerabeer/nfo-agent/internal/builder"
	"github.com/meerabeer/nfo-agent/internal/clock"
	"github.com/meerabeer/nfo-agent/internal/models"
	"github.com/meerabeer/nfo-agent/internal/session"
	"github.com/meerabeer/nfo-agent/pkg/location"
)

// revocableCapability is granted until revoked.
type revocableCapability struct{ granted chan struct{} }

func (c *revocableCapability) Granted() bool {
	select {
	case <-c.granted:
		return false
	default:
		return true
	}
}

func (c *revocableCapability) Request(context.Context, string, string) error { return nil }

type staticReader struct{ ctx session.Context }

func (r staticReader) Current() session.Context { return r.ctx }

type passBuilder struct{}

func (passBuilder) Build(_ context.Context, in builder.Input) models.Heartbeat {
	return models.Heartbeat{ActorID: in.Session.ActorID, Status: in.Status}
}

type discardAppender struct{}

func (discardAppender) Append(context.Context, models.Heartbeat) (int64, error) { return 1, nil }

type fixedProvider struct{}

func (fixedProvider) GetLocation(context.Context) (location.Sample, error) {
	return location.Sample{Latitude: 24.7, Longitude: 46.7}, nil
}

func TestSamplerLoop_RevocationReleasesContext(t *testing.T) {
	capab := &revocableCapability{granted: make(chan struct{})}
	clk := clock.NewManual(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	s := NewSamplerService(20*time.Second, fixedProvider{}, passBuilder{}, discardAppender{},
		staticReader{ctx: session.Context{ActorID: "A", LoggedIn: true, OnShift: true}}, capab, clk, zerolog.Nop())

	require.NoError(t, s.Start())
	s.mu.Lock()
	loopCtx := s.ctx
	s.mu.Unlock()

	require.Eventually(t, func() bool { return clk.ActiveTickers() == 1 }, time.Second, time.Millisecond)
	close(capab.granted)
	clk.Advance(20 * time.Second)

	require.Eventually(t, func() bool { return !s.Running() }, time.Second, time.Millisecond)
	assert.ErrorIs(t, loopCtx.Err(), context.Canceled)
	assert.ErrorIs(t, s.Stop(), ErrNotRunning)
}
