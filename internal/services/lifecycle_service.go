package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/meerabeer/nfo-agent/internal/builder"
	"github.com/meerabeer/nfo-agent/internal/constants"
	"github.com/meerabeer/nfo-agent/internal/session"
	"github.com/meerabeer/nfo-agent/internal/utils"
)

// SamplerController is the lifecycle side of the sampler.
type SamplerController interface {
	Start() error
	Stop() error
	Running() bool
}

// WatchdogController is the lifecycle side of the watchdog.
type WatchdogController interface {
	Arm()
	Disarm()
}

// BoundaryFinalizer closes a shift or login session.
type BoundaryFinalizer interface {
	Finalize(ctx context.Context, ev session.Event) (BoundaryResult, error)
}

// Recoverer evaluates the current boot at startup.
type Recoverer interface {
	Run(ctx context.Context) (RecoveryOutcome, error)
}

// CapabilityHolder grants and revokes background execution.
type CapabilityHolder interface {
	Grant()
	Revoke()
}

// Subscriber delivers session events.
type Subscriber interface {
	Subscribe(l session.Listener)
}

// LifecycleServiceDeps groups the collaborators driven by session events.
type LifecycleServiceDeps struct {
	Events     Subscriber
	Session    session.Reader
	Sampler    SamplerController
	Watchdog   WatchdogController
	Boundary   BoundaryFinalizer
	Flusher    FlushRequester
	Builder    HeartbeatBuilder
	Buffer     Appender
	Capability CapabilityHolder
	Recovery   Recoverer
}

// LifecycleService reacts to session events: it starts and stops sampling,
// arms and disarms the watchdog and closes sessions. Events are handled in
// order on a single worker so the session watcher is never blocked.
type LifecycleService struct {
	deps         LifecycleServiceDeps
	eventTimeout time.Duration
	logger       zerolog.Logger

	pool       *utils.WorkerPool
	ctx        context.Context
	cancel     context.CancelFunc
	mu         sync.Mutex
	running    bool
	subscribed bool
}

// NewLifecycleService creates a LifecycleService.
func NewLifecycleService(deps LifecycleServiceDeps, logger zerolog.Logger) *LifecycleService {
	return &LifecycleService{
		deps:         deps,
		eventTimeout: 2 * time.Minute,
		logger:       logger,
	}
}

// Start subscribes to session events and runs boot recovery.
func (l *LifecycleService) Start() error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return ErrAlreadyRunning
	}
	l.ctx, l.cancel = context.WithCancel(context.Background())
	l.pool = utils.NewWorkerPool(1, 64)
	l.running = true
	if !l.subscribed {
		l.deps.Events.Subscribe(l.enqueue)
		l.subscribed = true
	}
	l.mu.Unlock()

	l.recover()
	l.logger.Info().Msg("Lifecycle service started")
	return nil
}

// Stop stops sampling and drains queued events.
func (l *LifecycleService) Stop() error {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return ErrNotRunning
	}
	l.running = false
	pool := l.pool
	l.mu.Unlock()

	pool.Shutdown()
	l.cancel()
	l.stopSampling()

	l.logger.Info().Msg("Lifecycle service stopped")
	return nil
}

func (l *LifecycleService) enqueue(ev session.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running {
		l.logger.Debug().Str("event", string(ev.Kind)).Msg("Lifecycle service not running, dropping event")
		return
	}
	l.pool.Submit(func() { l.Handle(ev) })
}

// Handle applies one session event. It is exported for synchronous use.
func (l *LifecycleService) Handle(ev session.Event) {
	ctx := context.Background()
	if l.ctx != nil {
		ctx = l.ctx
	}
	ctx, cancel := context.WithTimeout(ctx, l.eventTimeout)
	defer cancel()

	logger := l.logger.With().Str("event", string(ev.Kind)).Str("actor_id", ev.Current.ActorID).Logger()

	switch ev.Kind {
	case session.EventShiftStart, session.EventRelaunchRequested:
		// Both come from a foreground user action, the only way to obtain the capability.
		l.deps.Capability.Grant()
		l.appendToggle(ctx, ev.Current)
		l.resume(logger)
		l.requestFlush(string(ev.Kind))

	case session.EventShiftEnd, session.EventLogout:
		l.stopSampling()
		l.deps.Watchdog.Disarm()
		l.deps.Capability.Revoke()
		if ev.Kind == session.EventShiftEnd && l.logoutFollows(ev) {
			logger.Debug().Msg("Shift closed by logout, finalizing on the logout event")
			return
		}
		if _, err := l.deps.Boundary.Finalize(ctx, ev); err != nil {
			logger.Error().Err(err).Msg("Failed to finalize session boundary")
		}

	case session.EventContextUpdate:
		if ev.Current.Active() {
			l.appendToggle(ctx, ev.Current)
			l.requestFlush(string(ev.Kind))
		}

	case session.EventLogin:
		logger.Debug().Msg("Actor logged in")
	}
}

// logoutFollows reports whether the actor of a shift-end is no longer
// logged in. The store emits a logout for that actor after the shift-end,
// and that logout carries the final state.
func (l *LifecycleService) logoutFollows(ev session.Event) bool {
	cur := l.deps.Session.Current()
	return !cur.LoggedIn || cur.ActorID != ev.Current.ActorID
}

// recover applies the boot recovery outcome.
func (l *LifecycleService) recover() {
	if l.deps.Recovery == nil {
		return
	}
	outcome, err := l.deps.Recovery.Run(l.ctx)
	if err != nil {
		l.logger.Error().Err(err).Msg("Boot recovery failed")
		return
	}

	switch outcome {
	case RecoveryContinue, RecoveryResumeAllowed:
		if !l.deps.Session.Current().Active() {
			return
		}
		l.deps.Capability.Grant()
		l.resume(l.logger)
	case RecoveryAwaitingUser:
		l.logger.Warn().Msg("Sampling paused until the user re-grants background execution")
	}
}

func (l *LifecycleService) resume(logger zerolog.Logger) {
	if !l.deps.Sampler.Running() {
		if err := l.deps.Sampler.Start(); err != nil && !errors.Is(err, ErrAlreadyRunning) {
			logger.Error().Err(err).Msg("Failed to start sampler")
		}
	}
	l.deps.Watchdog.Arm()
}

func (l *LifecycleService) stopSampling() {
	if !l.deps.Sampler.Running() {
		return
	}
	if err := l.deps.Sampler.Stop(); err != nil && !errors.Is(err, ErrNotRunning) {
		l.logger.Error().Err(err).Msg("Failed to stop sampler")
	}
}

func (l *LifecycleService) appendToggle(ctx context.Context, sess session.Context) {
	hb := l.deps.Builder.Build(ctx, builder.Input{Session: sess, Source: constants.SourceManualToggle})
	if _, err := l.deps.Buffer.Append(ctx, hb); err != nil {
		l.logger.Error().Err(err).Msg("Failed to buffer manual-toggle heartbeat")
	}
}

func (l *LifecycleService) requestFlush(reason string) {
	if err := l.deps.Flusher.RequestFlush(reason); err != nil {
		l.logger.Warn().Err(err).Str("reason", reason).Msg("Failed to request immediate flush")
	}
}
