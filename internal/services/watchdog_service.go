package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/meerabeer/nfo-agent/internal/buffer"
	"github.com/meerabeer/nfo-agent/internal/clock"
	"github.com/meerabeer/nfo-agent/internal/constants"
	"github.com/meerabeer/nfo-agent/internal/models"
	"github.com/meerabeer/nfo-agent/internal/session"
	"github.com/meerabeer/nfo-agent/internal/utils"
	"github.com/meerabeer/nfo-agent/pkg/notify"
)

// WatchdogStore persists the watchdog record.
type WatchdogStore interface {
	LoadState() (models.WatchdogState, error)
	SaveState(state models.WatchdogState) error
}

// WatchdogConfig tunes the health watchdog.
type WatchdogConfig struct {
	Interval       time.Duration
	StaleAfter     time.Duration
	NotifyCooldown time.Duration
}

// WatchdogService detects stalled telemetry while a shift is active. It
// marks the newest heartbeat as silent, asks for a flush and, on the
// transition into an unhealthy state, asks the user to relaunch sampling.
// It never restarts sampling itself.
type WatchdogService struct {
	cfg      WatchdogConfig
	buffer   buffer.Buffer
	flusher  FlushRequester
	notifier notify.Notifier
	store    WatchdogStore
	session  session.Reader
	clock    clock.Clock
	logger   zerolog.Logger

	mu         sync.Mutex
	state      models.WatchdogState
	armed      bool
	generation uint64
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewWatchdogService creates a WatchdogService.
func NewWatchdogService(cfg WatchdogConfig, buf buffer.Buffer, flusher FlushRequester, notifier notify.Notifier,
	store WatchdogStore, sess session.Reader, clk clock.Clock, logger zerolog.Logger) *WatchdogService {
	if cfg.Interval <= 0 {
		cfg.Interval = constants.DefaultWatchdogInterval
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = constants.DefaultStaleAfter
	}
	if cfg.NotifyCooldown <= 0 {
		cfg.NotifyCooldown = constants.DefaultNotifyCooldown
	}
	return &WatchdogService{
		cfg:      cfg,
		buffer:   buf,
		flusher:  flusher,
		notifier: notifier,
		store:    store,
		session:  sess,
		clock:    clk,
		logger:   logger,
		state:    models.WatchdogState{State: constants.WatchdogDormant},
	}
}

// Start loads the persisted record. The watchdog stays unarmed until Arm.
func (w *WatchdogService) Start() error {
	state, err := w.store.LoadState()
	if err != nil {
		w.logger.Warn().Err(err).Msg("Failed to load watchdog state, starting dormant")
		state = models.WatchdogState{State: constants.WatchdogDormant}
	}

	w.mu.Lock()
	w.state = state
	w.mu.Unlock()

	w.logger.Info().Str("state", string(state.State)).Msg("Watchdog service started")
	return nil
}

// Stop halts the ticker without recording a state change, so a restart
// mid-shift keeps the last verdict.
func (w *WatchdogService) Stop() error {
	w.halt()
	w.logger.Info().Msg("Watchdog service stopped")
	return nil
}

// Arm starts periodic checks. Arming an armed watchdog is a no-op.
func (w *WatchdogService) Arm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.armed {
		return
	}

	w.armed = true
	w.generation++
	gen := w.generation
	if w.state.State == constants.WatchdogDormant || w.state.State == "" {
		w.state.State = constants.WatchdogHealthy
		w.persistLocked()
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	ticker := w.clock.NewTicker(w.cfg.Interval)

	w.wg.Add(1)
	go w.loop(ctx, gen, ticker)

	w.logger.Info().Dur("interval", w.cfg.Interval).Dur("stale_after", w.cfg.StaleAfter).Msg("Watchdog armed")
}

// Disarm stops checks and records Dormant. A tick already in progress is
// discarded without persisting its verdict.
func (w *WatchdogService) Disarm() {
	w.mu.Lock()
	wasArmed := w.armed
	cancel := w.stopLocked()
	w.state.State = constants.WatchdogDormant
	w.state.LastCheck = w.clock.Now()
	w.persistLocked()
	w.mu.Unlock()

	w.wait(cancel)
	if wasArmed {
		w.logger.Info().Msg("Watchdog disarmed")
	}
}

// State returns the current record.
func (w *WatchdogService) State() models.WatchdogState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Armed reports whether periodic checks are running.
func (w *WatchdogService) Armed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.armed
}

// Check runs one evaluation. It returns Dormant without doing anything when
// the watchdog is not armed.
func (w *WatchdogService) Check(ctx context.Context) (constants.WatchdogState, error) {
	w.mu.Lock()
	if !w.armed {
		w.mu.Unlock()
		return constants.WatchdogDormant, nil
	}
	gen := w.generation
	w.mu.Unlock()

	return w.check(ctx, gen)
}

func (w *WatchdogService) halt() {
	w.mu.Lock()
	cancel := w.stopLocked()
	w.mu.Unlock()
	w.wait(cancel)
}

// stopLocked disarms and invalidates any tick in progress. w.mu must be held.
func (w *WatchdogService) stopLocked() context.CancelFunc {
	w.armed = false
	w.generation++
	cancel := w.cancel
	w.cancel = nil
	return cancel
}

func (w *WatchdogService) wait(cancel context.CancelFunc) {
	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
}

func (w *WatchdogService) loop(ctx context.Context, gen uint64, ticker clock.Ticker) {
	defer w.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			w.tick(ctx, gen)
		}
	}
}

// tick runs a check and swallows every fault so the ticker survives.
func (w *WatchdogService) tick(ctx context.Context, gen uint64) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error().Interface("panic", r).Msg("Recovered from panic in watchdog check")
		}
	}()

	if _, err := w.check(ctx, gen); err != nil {
		w.logger.Error().Err(err).Msg("Watchdog check failed")
	}
}

func (w *WatchdogService) current(gen uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.armed && w.generation == gen
}

func (w *WatchdogService) check(ctx context.Context, gen uint64) (constants.WatchdogState, error) {
	now := w.clock.Now()

	latest, err := w.buffer.MostRecent(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read newest heartbeat: %w", err)
	}

	verdict := constants.WatchdogHealthy
	switch {
	case latest == nil:
		verdict = constants.WatchdogUnknown
	case latest.Age(now) >= w.cfg.StaleAfter:
		verdict = constants.WatchdogUnhealthy
	}

	notifiedAt := time.Time{}
	if verdict != constants.WatchdogHealthy {
		if !w.current(gen) {
			return constants.WatchdogDormant, nil
		}
		notifiedAt = w.remediate(ctx, now, latest)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !notifiedAt.IsZero() {
		// The user has been alerted even if the watchdog was disarmed
		// meanwhile; the cooldown must see it.
		w.state.LastNotification = notifiedAt
	}
	if !w.armed || w.generation != gen {
		if !notifiedAt.IsZero() {
			w.persistLocked()
		}
		return constants.WatchdogDormant, nil
	}
	w.state.State = verdict
	w.state.LastCheck = now
	w.persistLocked()

	ev := w.logger.Debug()
	if verdict != constants.WatchdogHealthy {
		ev = w.logger.Warn()
	}
	ev.Str("state", string(verdict)).Msg("Watchdog check completed")
	return verdict, nil
}

// remediate returns the notification time when the user was alerted.
func (w *WatchdogService) remediate(ctx context.Context, now time.Time, latest *models.Heartbeat) time.Time {
	actorID := w.session.Current().ActorID
	if latest != nil {
		err := w.buffer.Amend(ctx, latest.LocalID, buffer.Patch{
			Status:           utils.Ptr(constants.StatusDeviceSilent),
			LastActiveSource: utils.Ptr(constants.SourceWatchdog),
			Synced:           utils.Ptr(false),
		})
		if err != nil {
			w.logger.Error().Err(err).Int64("local_id", latest.LocalID).Msg("Failed to mark heartbeat silent")
		}
		actorID = utils.Coalesce(actorID, latest.ActorID)
	}

	if err := w.flusher.RequestFlush("watchdog"); err != nil {
		w.logger.Warn().Err(err).Msg("Failed to request immediate flush")
	}

	w.mu.Lock()
	prev := w.state
	w.mu.Unlock()

	if prev.State.IsAlarming() {
		return time.Time{}
	}
	if !prev.LastNotification.IsZero() && now.Sub(prev.LastNotification) <= w.cfg.NotifyCooldown {
		w.logger.Debug().Time("last_notification", prev.LastNotification).Msg("Notification suppressed by cooldown")
		return time.Time{}
	}

	alert := models.Alert{
		Kind:     models.AlertRelaunchSampling,
		ActorID:  actorID,
		Title:    "Location updates stopped",
		Message:  "Your location has not been reported for a while. Open the app to resume tracking.",
		RaisedAt: now,
	}
	if err := w.notifier.Notify(ctx, alert); err != nil {
		w.logger.Error().Err(err).Msg("Failed to notify user about stale heartbeats")
		return time.Time{}
	}
	return now
}

func (w *WatchdogService) persistLocked() {
	if err := w.store.SaveState(w.state); err != nil {
		w.logger.Error().Err(err).Msg("Failed to persist watchdog state")
	}
}
