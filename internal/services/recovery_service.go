package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/host"

	"github.com/meerabeer/nfo-agent/internal/builder"
	"github.com/meerabeer/nfo-agent/internal/clock"
	"github.com/meerabeer/nfo-agent/internal/constants"
	"github.com/meerabeer/nfo-agent/internal/models"
	"github.com/meerabeer/nfo-agent/internal/session"
	"github.com/meerabeer/nfo-agent/pkg/capability"
)

// RecoveryOutcome tells the caller what to do after startup recovery.
type RecoveryOutcome string

const (
	// RecoveryNotNeeded: the session was not on shift.
	RecoveryNotNeeded RecoveryOutcome = "not-needed"
	// RecoveryContinue: same boot, only the process restarted mid-shift.
	RecoveryContinue RecoveryOutcome = "continue"
	// RecoveryResumeAllowed: the device rebooted mid-shift and the platform
	// still allows resuming background sampling without the user.
	RecoveryResumeAllowed RecoveryOutcome = "resume-allowed"
	// RecoveryAwaitingUser: the device rebooted mid-shift and sampling can
	// only resume after the user re-grants the capability.
	RecoveryAwaitingUser RecoveryOutcome = "awaiting-user"
)

// BootStateStore holds the persisted session and the last handled boot.
type BootStateStore interface {
	LoadSession() (session.Context, error)
	LoadBootMarker() (models.BootMarker, error)
	SaveBootMarker(marker models.BootMarker) error
}

// ResumePolicy decides whether sampling may resume silently after a reboot.
type ResumePolicy interface {
	SilentResumeAllowed() bool
}

// RecoveryService handles the first start after a device reboot.
type RecoveryService struct {
	store      BootStateStore
	policy     ResumePolicy
	builder    HeartbeatBuilder
	buffer     Appender
	flusher    FlushRequester
	capability capability.BackgroundCapability
	clock      clock.Clock
	bootTime   func(ctx context.Context) (uint64, error)
	logger     zerolog.Logger
}

// NewRecoveryService creates a RecoveryService using the host boot time.
func NewRecoveryService(store BootStateStore, policy ResumePolicy, hb HeartbeatBuilder, buf Appender,
	flusher FlushRequester, capab capability.BackgroundCapability, clk clock.Clock, logger zerolog.Logger) *RecoveryService {
	return &RecoveryService{
		store:      store,
		policy:     policy,
		builder:    hb,
		buffer:     buf,
		flusher:    flusher,
		capability: capab,
		clock:      clk,
		bootTime:   host.BootTimeWithContext,
		logger:     logger,
	}
}

// WithBootTime overrides the boot time source.
func (r *RecoveryService) WithBootTime(fn func(ctx context.Context) (uint64, error)) *RecoveryService {
	r.bootTime = fn
	return r
}

// Run evaluates the current boot once. On a restricted platform it buffers
// a reboot-waiting heartbeat, requests delivery and asks the user to
// re-grant the capability. It never starts sampling.
func (r *RecoveryService) Run(ctx context.Context) (RecoveryOutcome, error) {
	boot, err := r.bootTime(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read boot time: %w", err)
	}
	marker, err := r.store.LoadBootMarker()
	if err != nil {
		return "", fmt.Errorf("failed to load boot marker: %w", err)
	}
	sess, err := r.store.LoadSession()
	if err != nil {
		return "", fmt.Errorf("failed to load persisted session: %w", err)
	}

	logger := r.logger.With().Uint64("boot_time", boot).Str("actor_id", sess.ActorID).Logger()

	if marker.BootTime == boot {
		if sess.Active() {
			logger.Info().Msg("Process restarted mid-shift, continuing")
			return RecoveryContinue, nil
		}
		return RecoveryNotNeeded, nil
	}

	outcome := RecoveryNotNeeded
	switch {
	case !sess.Active():
	case r.policy.SilentResumeAllowed():
		outcome = RecoveryResumeAllowed
	default:
		if err := r.markRebootWaiting(ctx, sess); err != nil {
			return "", err
		}
		outcome = RecoveryAwaitingUser
	}

	if err := r.store.SaveBootMarker(models.BootMarker{BootTime: boot, HandledAt: r.clock.Now()}); err != nil {
		logger.Error().Err(err).Msg("Failed to save boot marker")
	}
	logger.Info().Str("outcome", string(outcome)).Msg("Boot recovery evaluated")
	return outcome, nil
}

func (r *RecoveryService) markRebootWaiting(ctx context.Context, sess session.Context) error {
	hb := r.builder.Build(ctx, builder.Input{
		Session: sess,
		Source:  constants.SourceBootRecovery,
		Status:  constants.StatusRebootWaiting,
	})
	if _, err := r.buffer.Append(ctx, hb); err != nil {
		return fmt.Errorf("failed to buffer reboot-waiting heartbeat: %w", err)
	}

	if err := r.flusher.RequestFlush("boot-recovery"); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to request immediate flush")
	}
	if err := r.capability.Request(ctx, hb.ActorID,
		"The device restarted during your shift. Open the app to resume location tracking."); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to ask the user to re-grant background execution")
	}
	return nil
}
