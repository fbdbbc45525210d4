package services

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"

	"github.com/meerabeer/nfo-agent/internal/clock"
	"github.com/meerabeer/nfo-agent/internal/connectivity"
	"github.com/meerabeer/nfo-agent/internal/constants"
	"github.com/meerabeer/nfo-agent/internal/session"
)

// Flusher performs one bounded sync attempt.
type Flusher interface {
	Flush(ctx context.Context, limit int) (FlushResult, error)
	Pending(ctx context.Context) (int64, error)
}

// FlushRequester accepts one-shot sync requests.
type FlushRequester interface {
	RequestFlush(reason string) error
}

// SchedulerConfig tunes the sync cadence and retry policy.
type SchedulerConfig struct {
	Interval       time.Duration
	BatchLimit     int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	ConstraintPoll time.Duration
}

func (c *SchedulerConfig) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = constants.DefaultSyncInterval
	}
	if c.BatchLimit <= 0 {
		c.BatchLimit = constants.DefaultSyncBatchLimit
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = constants.DefaultRetryBaseDelay
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = constants.DefaultRetryMaxDelay
	}
	if c.ConstraintPoll <= 0 {
		c.ConstraintPoll = constants.DefaultConstraintPoll
	}
}

type workItem struct {
	name   string
	reason string
	ctx    context.Context
	cancel context.CancelFunc
}

// SyncScheduler runs the steady sync cadence and one-shot flushes. Work is
// registered by name: the periodic job keeps an existing registration, an
// immediate flush replaces (and cancels) a pending one.
type SyncScheduler struct {
	cfg     SchedulerConfig
	flusher Flusher
	network connectivity.Monitor
	session session.Reader
	clock   clock.Clock
	logger  zerolog.Logger

	work cmap.ConcurrentMap[string, *workItem]

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewSyncScheduler creates a SyncScheduler.
func NewSyncScheduler(cfg SchedulerConfig, flusher Flusher, network connectivity.Monitor,
	sess session.Reader, clk clock.Clock, logger zerolog.Logger) *SyncScheduler {
	cfg.applyDefaults()
	return &SyncScheduler{
		cfg:     cfg,
		flusher: flusher,
		network: network,
		session: sess,
		clock:   clk,
		logger:  logger,
		work:    cmap.New[*workItem](),
	}
}

// Start enables scheduling and registers the periodic job.
func (s *SyncScheduler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn().Msg("Sync scheduler is already running")
		return ErrAlreadyRunning
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.running = true
	s.mu.Unlock()

	if _, err := s.EnsurePeriodic(); err != nil {
		return err
	}

	s.logger.Info().
		Dur("interval", s.cfg.Interval).
		Int("batch_limit", s.cfg.BatchLimit).
		Msg("Sync scheduler started")
	return nil
}

// Stop cancels all registered work and waits for it to finish.
func (s *SyncScheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.work.Clear()
	s.logger.Info().Msg("Sync scheduler stopped")
	return nil
}

// EnsurePeriodic registers the steady job unless it already exists. It
// reports whether a new registration was made.
func (s *SyncScheduler) EnsurePeriodic() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return false, ErrNotRunning
	}

	item := s.newItem(constants.WorkPeriodicSync, "periodic")
	if !s.work.SetIfAbsent(item.name, item) {
		item.cancel()
		return false, nil
	}
	s.launch(item, s.runPeriodic)
	return true, nil
}

// RequestFlush implements FlushRequester. A pending immediate flush is
// cancelled and replaced.
func (s *SyncScheduler) RequestFlush(reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return ErrNotRunning
	}

	item := s.newItem(constants.WorkImmediateSync, reason)
	s.work.Upsert(item.name, item, func(exist bool, old, next *workItem) *workItem {
		if exist {
			old.cancel()
		}
		return next
	})
	s.launch(item, func(ctx context.Context) {
		s.runOnce(ctx, item.name, reason)
	})
	return nil
}

// Scheduled returns the names of registered work.
func (s *SyncScheduler) Scheduled() []string {
	return s.work.Keys()
}

func (s *SyncScheduler) newItem(name, reason string) *workItem {
	ctx, cancel := context.WithCancel(s.ctx)
	return &workItem{name: name, reason: reason, ctx: ctx, cancel: cancel}
}

func (s *SyncScheduler) launch(item *workItem, run func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer item.cancel()
		defer s.work.RemoveCb(item.name, func(_ string, v *workItem, exists bool) bool {
			return exists && v == item
		})
		run(item.ctx)
	}()
}

func (s *SyncScheduler) runPeriodic(ctx context.Context) {
	ticker := s.clock.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.runOnce(ctx, constants.WorkPeriodicSync, "periodic")
		}
	}
}

// runOnce waits for the network, then flushes, retrying with backoff until
// the flush succeeds or ctx is cancelled.
func (s *SyncScheduler) runOnce(ctx context.Context, name, reason string) {
	logger := s.logger.With().Str("work", name).Str("reason", reason).Logger()

	for attempt := 0; ; attempt++ {
		if !s.awaitNetwork(ctx) {
			logger.Debug().Msg("Sync work cancelled while waiting for network")
			return
		}
		if !s.shouldRun(ctx) {
			logger.Debug().Msg("No active session and nothing pending, skipping sync")
			return
		}

		res, err := s.flusher.Flush(ctx, s.cfg.BatchLimit)
		if err == nil {
			logger.Debug().Int("pulled", res.Pulled).Int("attempt", attempt+1).Msg("Sync work completed")
			return
		}
		if ctx.Err() != nil {
			return
		}

		delay := s.backoff(attempt)
		logger.Warn().Err(err).Int("attempt", attempt+1).Dur("retry_in", delay).Msg("Sync attempt failed")
		if !s.sleep(ctx, delay) {
			return
		}
	}
}

// shouldRun gates work on an active session. Rows left over from a finished
// shift are still drained.
func (s *SyncScheduler) shouldRun(ctx context.Context) bool {
	if s.session.Current().Active() {
		return true
	}
	pending, err := s.flusher.Pending(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to count pending heartbeats")
		return false
	}
	return pending > 0
}

func (s *SyncScheduler) awaitNetwork(ctx context.Context) bool {
	for {
		if ctx.Err() != nil {
			return false
		}
		if s.network.Available(ctx) {
			return true
		}
		if !s.sleep(ctx, s.cfg.ConstraintPoll) {
			return false
		}
	}
}

// backoff doubles the base delay per attempt up to the cap, with ±25% jitter.
func (s *SyncScheduler) backoff(attempt int) time.Duration {
	delay := s.cfg.RetryMaxDelay
	if attempt < 32 {
		if d := s.cfg.RetryBaseDelay << uint(attempt); d > 0 && d < delay {
			delay = d
		}
	}
	jittered := time.Duration(float64(delay) * (0.75 + rand.Float64()*0.5))
	return min(jittered, s.cfg.RetryMaxDelay)
}

func (s *SyncScheduler) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
