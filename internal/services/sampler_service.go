package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/meerabeer/nfo-agent/internal/builder"
	"github.com/meerabeer/nfo-agent/internal/clock"
	"github.com/meerabeer/nfo-agent/internal/constants"
	"github.com/meerabeer/nfo-agent/internal/models"
	"github.com/meerabeer/nfo-agent/internal/session"
	"github.com/meerabeer/nfo-agent/pkg/capability"
	"github.com/meerabeer/nfo-agent/pkg/location"
)

// HeartbeatBuilder builds heartbeats from samples and session context.
type HeartbeatBuilder interface {
	Build(ctx context.Context, in builder.Input) models.Heartbeat
}

// Appender stores new heartbeats.
type Appender interface {
	Append(ctx context.Context, h models.Heartbeat) (int64, error)
}

// SamplerService samples the device position on a fixed interval while the
// session is on shift and appends a heartbeat for every sample.
type SamplerService struct {
	interval   time.Duration
	provider   location.Provider
	builder    HeartbeatBuilder
	buffer     Appender
	session    session.Reader
	capability capability.BackgroundCapability
	clock      clock.Clock
	logger     zerolog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewSamplerService creates a SamplerService.
func NewSamplerService(interval time.Duration, provider location.Provider, hb HeartbeatBuilder, buf Appender,
	sess session.Reader, capab capability.BackgroundCapability, clk clock.Clock, logger zerolog.Logger) *SamplerService {
	if interval <= 0 {
		interval = constants.DefaultSamplerInterval
	}
	return &SamplerService{
		interval:   interval,
		provider:   provider,
		builder:    hb,
		buffer:     buf,
		session:    sess,
		capability: capab,
		clock:      clk,
		logger:     logger,
	}
}

// Start begins sampling. The first sample is taken immediately.
func (s *SamplerService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}
	if !s.capability.Granted() {
		return ErrCapabilityNotGranted
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.running = true

	s.wg.Add(1)
	go s.loop(s.ctx)

	s.logger.Info().Dur("interval", s.interval).Msg("Sampler started")
	return nil
}

// Stop halts sampling.
func (s *SamplerService) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.logger.Info().Msg("Sampler stopped")
	return nil
}

// Running reports whether the sampling loop is active.
func (s *SamplerService) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *SamplerService) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.SampleOnce(ctx); errors.Is(err, ErrCapabilityNotGranted) {
			s.logger.Warn().Msg("Background capability revoked, sampling stopped until the user restarts it")
			s.mu.Lock()
			if s.ctx == ctx {
				s.running = false
				s.cancel()
			}
			s.mu.Unlock()
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}
	}
}

// SampleOnce takes one sample and appends the resulting heartbeat. It returns
// the new row id, or 0 when nothing was appended. Storage faults are logged
// and skipped.
func (s *SamplerService) SampleOnce(ctx context.Context) (int64, error) {
	sess := s.session.Current()
	if !sess.Active() {
		return 0, nil
	}

	in := builder.Input{Session: sess, Source: constants.SourceSampler}
	var sampleErr error
	if !s.capability.Granted() {
		in.Status = constants.StatusErrorPermission
		sampleErr = ErrCapabilityNotGranted
	} else {
		sampleCtx, cancel := context.WithTimeout(ctx, s.interval)
		sample, err := s.provider.GetLocation(sampleCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			s.logger.Warn().Err(err).Msg("Failed to obtain position sample")
			in.Status = constants.StatusErrorLocation
		} else {
			in.Sample = &sample
		}
	}

	hb := s.builder.Build(ctx, in)
	id, err := s.buffer.Append(ctx, hb)
	if err != nil {
		s.logger.Error().Err(err).Str("actor_id", hb.ActorID).Msg("Failed to buffer heartbeat, skipping sample")
		return 0, sampleErr
	}

	s.logger.Debug().
		Int64("local_id", id).
		Str("status", string(hb.Status)).
		Bool("has_position", hb.HasPosition()).
		Msg("Heartbeat buffered")
	return id, sampleErr
}
