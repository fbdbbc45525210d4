package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/meerabeer/nfo-agent/internal/buffer"
	"github.com/meerabeer/nfo-agent/internal/builder"
	"github.com/meerabeer/nfo-agent/internal/clock"
	"github.com/meerabeer/nfo-agent/internal/connectivity"
	"github.com/meerabeer/nfo-agent/internal/registry"
	"github.com/meerabeer/nfo-agent/internal/service_registry"
	"github.com/meerabeer/nfo-agent/internal/services"
	"github.com/meerabeer/nfo-agent/internal/session"
	"github.com/meerabeer/nfo-agent/internal/state_managers"
	"github.com/meerabeer/nfo-agent/internal/utils"
	"github.com/meerabeer/nfo-agent/pkg/capability"
	"github.com/meerabeer/nfo-agent/pkg/file"
	"github.com/meerabeer/nfo-agent/pkg/httpclient"
	"github.com/meerabeer/nfo-agent/pkg/identity"
	"github.com/meerabeer/nfo-agent/pkg/location"
	"github.com/meerabeer/nfo-agent/pkg/mqtt"
	"github.com/meerabeer/nfo-agent/pkg/notify"
)

// agent holds every component of a running agent.
type agent struct {
	config   *utils.Config
	logger   zerolog.Logger
	buffer   *buffer.SQLiteBuffer
	engine   *services.SyncEngine
	store    *session.Store
	mqtt     *mqtt.MqttService
	registry *service_registry.ServiceRegistry
}

// disabledWatchdog stands in when the watchdog is switched off.
type disabledWatchdog struct{}

func (disabledWatchdog) Arm()    {}
func (disabledWatchdog) Disarm() {}

// openDelivery opens the buffer and the sync engine, the parts shared by every command.
func openDelivery(ctx context.Context, config *utils.Config, logger zerolog.Logger) (*buffer.SQLiteBuffer, *services.SyncEngine, error) {
	buf, err := buffer.Open(ctx, config.Buffer.Path, logger.With().Str("component", "buffer").Logger())
	if err != nil {
		return nil, nil, err
	}

	client, err := httpclient.New(config.Remote.Timeout)
	if err != nil {
		_ = buf.Close()
		return nil, nil, err
	}

	engine, err := services.NewSyncEngine(services.SyncEngineConfig{
		BaseURL:     config.Remote.BaseURL,
		Table:       config.Remote.Table,
		ConflictKey: config.Remote.ConflictKey,
		APIKey:      config.Remote.APIKey,
		UTCOffset:   config.Remote.UTCOffset,
	}, buf, client, logger.With().Str("component", "sync").Logger())
	if err != nil {
		_ = buf.Close()
		return nil, nil, err
	}
	return buf, engine, nil
}

// newAgent wires every component and registers the long-running services.
func newAgent(ctx context.Context, config *utils.Config, fileClient file.FileOperations, logger zerolog.Logger) (*agent, error) {
	a := &agent{config: config, logger: logger}

	var err error
	a.buffer, a.engine, err = openDelivery(ctx, config, logger)
	if err != nil {
		return nil, err
	}

	actor := identity.NewActorIdentity(config.Identity.File, fileClient)
	if err := actor.Load(); err != nil {
		logger.Warn().Err(err).Msg("No provisioned identity, relying on the session file")
	}

	sessionState := state_managers.NewSessionStateManager(config.Session.StateFile, fileClient, logger)
	initial, err := sessionState.LoadSession()
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to load persisted session, starting logged out")
		initial = session.Context{}
	}
	a.store = session.NewStore(initial, sessionState, logger.With().Str("component", "session").Logger())
	fileSource := session.NewFileSource(config.Session.File, a.store, fileClient, actor, logger.With().Str("component", "session").Logger())

	notifiers := notify.Multi{notify.NewLogNotifier(logger)}
	if config.MQTT.Enabled {
		a.mqtt = mqtt.NewMqttService(fileClient, logger.With().Str("component", "mqtt").Logger())
		if err := a.mqtt.Initialize(config.MQTT.Broker, config.MQTT.ClientID, config.MQTT.CACertificate, config.MQTT.Timeout); err != nil {
			a.close()
			return nil, fmt.Errorf("failed to initialize MQTT connection: %w", err)
		}
		notifiers = append(notifiers, notify.NewMQTTNotifier(a.mqtt, config.MQTT.AlertTopic, byte(*config.MQTT.QOS), config.MQTT.Timeout))
	}

	capab := capability.New(notifiers, logger.With().Str("component", "capability").Logger())
	policy, err := capability.NewPolicy(cmp.Or(config.Capability.PlatformVersion, config.Capability.RestrictedFrom), config.Capability.RestrictedFrom)
	if err != nil {
		a.close()
		return nil, err
	}

	var provider location.Provider
	if config.Sampler.SensorBased {
		provider = location.NewDeviceSensorProvider(config.Sampler.GPSDevicePort, config.Sampler.GPSDeviceBaudRate)
	} else {
		provider, err = location.NewGoogleGeolocationProvider(config.Sampler.MapsAPIKey, config.Sampler.ModemIndex)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to create Google Geolocation provider: %w", err)
		}
	}

	clk := clock.Real()
	network := connectivity.NewInterfaceMonitor(logger.With().Str("component", "connectivity").Logger())
	hb := builder.New(a.buffer, clk, logger.With().Str("component", "builder").Logger())

	scheduler := services.NewSyncScheduler(services.SchedulerConfig{
		Interval:       config.Sync.Interval,
		BatchLimit:     config.Sync.BatchLimit,
		RetryBaseDelay: config.Sync.RetryBaseDelay,
		RetryMaxDelay:  config.Sync.RetryMaxDelay,
		ConstraintPoll: config.Sync.ConstraintPoll,
	}, a.engine, network, a.store, clk, logger.With().Str("component", "scheduler").Logger())

	var watchdog *services.WatchdogService
	var watchdogCtl services.WatchdogController = disabledWatchdog{}
	if *config.Watchdog.Enabled {
		watchdog = services.NewWatchdogService(services.WatchdogConfig{
			Interval:       config.Watchdog.Interval,
			StaleAfter:     config.Watchdog.StaleAfter,
			NotifyCooldown: config.Watchdog.NotifyCooldown,
		}, a.buffer, scheduler, notifiers,
			state_managers.NewWatchdogStateManager(config.Watchdog.StateFile, fileClient, logger),
			a.store, clk, logger.With().Str("component", "watchdog").Logger())
		watchdogCtl = watchdog
	}

	sampler := services.NewSamplerService(config.Sampler.Interval, provider, hb, a.buffer, a.store, capab, clk,
		logger.With().Str("component", "sampler").Logger())
	boundary := services.NewSessionBoundaryService(hb, a.buffer, a.engine, network, config.Sync.BatchLimit,
		logger.With().Str("component", "boundary").Logger())
	recovery := services.NewRecoveryService(sessionState, policy, hb, a.buffer, scheduler, capab, clk,
		logger.With().Str("component", "recovery").Logger())

	lifecycle := services.NewLifecycleService(services.LifecycleServiceDeps{
		Events:     a.store,
		Session:    a.store,
		Sampler:    sampler,
		Watchdog:   watchdogCtl,
		Boundary:   boundary,
		Flusher:    scheduler,
		Builder:    hb,
		Buffer:     a.buffer,
		Capability: capab,
		Recovery:   recovery,
	}, logger.With().Str("component", "lifecycle").Logger())

	// Lifecycle subscribes before the session file is first read so no event is lost.
	servicesInOrder := []struct {
		name    string
		enabled bool
		service registry.Service
	}{
		{name: "scheduler", enabled: *config.Sync.Enabled, service: scheduler},
		{name: "watchdog", enabled: watchdog != nil, service: watchdog},
		{name: "lifecycle", enabled: true, service: lifecycle},
		{name: "session", enabled: true, service: fileSource},
	}

	a.registry = service_registry.NewServiceRegistry(logger)
	for _, svc := range servicesInOrder {
		if svc.enabled {
			a.registry.RegisterService(svc.name, svc.service)
		}
	}
	logger.Info().
		Strs("services", a.registry.Names()).
		Str("platform", policy.Platform()).
		Bool("silent_resume", policy.SilentResumeAllowed()).
		Msg("Agent wired")
	return a, nil
}

// close releases what newAgent opened.
func (a *agent) close() error {
	var errs []error
	if a.mqtt != nil {
		a.mqtt.Disconnect(250)
	}
	if a.buffer != nil {
		errs = append(errs, a.buffer.Close())
	}
	return errors.Join(errs...)
}
