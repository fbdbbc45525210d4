// Package capability models the host's background execution permission.
//
// The agent can hold the capability only after a user-initiated foreground
// action. Once revoked it can only ask the user for it again; there is no
// silent reacquire.
package capability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/meerabeer/nfo-agent/internal/models"
	"github.com/meerabeer/nfo-agent/pkg/notify"
)

// BackgroundCapability is the read and request side used by services.
type BackgroundCapability interface {
	Granted() bool
	Request(ctx context.Context, actorID, reason string) error
}

// Capability tracks whether background sampling is currently permitted.
type Capability struct {
	mu        sync.RWMutex
	granted   bool
	grantedAt time.Time
	notifier  notify.Notifier
	logger    zerolog.Logger
}

// New returns a Capability in the revoked state.
func New(notifier notify.Notifier, logger zerolog.Logger) *Capability {
	return &Capability{notifier: notifier, logger: logger}
}

// Grant records a user-initiated grant, such as a shift start from the UI.
func (c *Capability) Grant() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.granted {
		c.logger.Info().Msg("Background capability granted")
	}
	c.granted = true
	c.grantedAt = time.Now()
}

// Revoke drops the capability, for example at shift end or after a reboot.
func (c *Capability) Revoke() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.granted {
		c.logger.Info().Msg("Background capability revoked")
	}
	c.granted = false
}

// Granted implements BackgroundCapability.
func (c *Capability) Granted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.granted
}

// Request asks the user to re-grant the capability through a visible alert.
func (c *Capability) Request(ctx context.Context, actorID, reason string) error {
	alert := models.Alert{
		Kind:     models.AlertRegrantCapability,
		ActorID:  actorID,
		Title:    "Location tracking paused",
		Message:  reason,
		RaisedAt: time.Now(),
	}
	if err := c.notifier.Notify(ctx, alert); err != nil {
		return fmt.Errorf("failed to request background capability: %w", err)
	}
	return nil
}
