package utils

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/meerabeer/nfo-agent/internal/constants"
	"github.com/meerabeer/nfo-agent/pkg/file"
)

// Config represents the structure of the configuration file.
type Config struct {
	Logging struct {
		Level      string `yaml:"level"`        // zerolog level name
		Format     string `yaml:"format"`       // "json" or "console"
		File       string `yaml:"file"`         // Optional log file, rotated by size
		MaxSizeMB  int    `yaml:"max_size_mb"`  // Rotation size for the log file
		MaxBackups int    `yaml:"max_backups"`  // Rotated files to keep
		MaxAgeDays int    `yaml:"max_age_days"` // Days to keep rotated files
	} `yaml:"logging"`

	MQTT struct {
		Enabled       bool          `yaml:"enabled"`        // Publish user alerts over MQTT
		Broker        string        `yaml:"broker"`         // MQTT broker address
		ClientID      string        `yaml:"client_id"`      // MQTT client ID prefix
		CACertificate string        `yaml:"ca_certificate"` // Optional CA certificate for TLS
		AlertTopic    string        `yaml:"alert_topic"`    // Topic user alerts are published on
		QOS           *int          `yaml:"qos"`            // QoS for alert messages, 1 when unset
		Timeout       time.Duration `yaml:"timeout"`        // Publish acknowledgement timeout
	} `yaml:"mqtt"`

	Identity struct {
		File string `yaml:"file"` // Provisioned actor identity (JSON)
	} `yaml:"identity"`

	Buffer struct {
		Path string `yaml:"path"` // SQLite database holding buffered heartbeats
	} `yaml:"buffer"`

	Remote struct {
		BaseURL     string        `yaml:"base_url"`     // REST endpoint root
		Table       string        `yaml:"table"`        // Latest-state table name
		ConflictKey string        `yaml:"conflict_key"` // Upsert conflict column
		APIKey      string        `yaml:"api_key"`      // Sent as apikey and bearer token
		Timeout     time.Duration `yaml:"timeout"`      // Per-request timeout
		UTCOffset   time.Duration `yaml:"utc_offset"`   // Fixed offset for outgoing timestamps
	} `yaml:"remote"`

	Sync struct {
		Enabled        *bool         `yaml:"enabled"`          // Enable the periodic/immediate sync paths, true when unset
		Interval       time.Duration `yaml:"interval"`         // Steady cadence
		BatchLimit     int           `yaml:"batch_limit"`      // Rows per attempt
		RetryBaseDelay time.Duration `yaml:"retry_base_delay"` // First retry delay
		RetryMaxDelay  time.Duration `yaml:"retry_max_delay"`  // Retry delay cap
		ConstraintPoll time.Duration `yaml:"constraint_poll"`  // Network precondition re-check interval
	} `yaml:"sync"`

	Watchdog struct {
		Enabled        *bool         `yaml:"enabled"`         // Enable the health watchdog, true when unset
		Interval       time.Duration `yaml:"interval"`        // Check interval while armed
		StaleAfter     time.Duration `yaml:"stale_after"`     // Age at which a heartbeat is stale
		NotifyCooldown time.Duration `yaml:"notify_cooldown"` // Minimum gap between user alerts
		StateFile      string        `yaml:"state_file"`      // Persisted watchdog state
	} `yaml:"watchdog"`

	Sampler struct {
		Interval          time.Duration `yaml:"interval"`        // Interval between position samples
		SensorBased       bool          `yaml:"sensor_based"`    // Read a serial GPS instead of network geolocation
		MapsAPIKey        string        `yaml:"maps_api_key"`    // Google Maps geolocation API key
		GPSDevicePort     string        `yaml:"gps_device_port"` // Serial port of the GPS receiver
		GPSDeviceBaudRate int           `yaml:"gps_baud_rate"`   // Baud rate of the GPS receiver
		ModemIndex        int           `yaml:"modem_index"`     // ModemManager index for cell tower lookup
	} `yaml:"sampler"`

	Session struct {
		File      string `yaml:"file"`       // Session file written by the host UI
		StateFile string `yaml:"state_file"` // Last applied session and boot marker
	} `yaml:"session"`

	Capability struct {
		PlatformVersion string `yaml:"platform_version"` // Host platform version
		RestrictedFrom  string `yaml:"restricted_from"`  // First version forbidding silent resume
	} `yaml:"capability"`
}

// LoadConfig loads the YAML configuration from the specified file and applies defaults.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	var config Config
	if err := fileClient.ReadYamlFile(filename, &config); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", filename, err)
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", filename, err)
	}
	return &config, nil
}

// ApplyDefaults fills every unset value with its documented default.
func (c *Config) ApplyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = 10
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = 3
	}
	if c.Logging.MaxAgeDays == 0 {
		c.Logging.MaxAgeDays = 14
	}

	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "nfo-agent"
	}
	if c.MQTT.AlertTopic == "" {
		c.MQTT.AlertTopic = "nfo/alerts"
	}
	if c.MQTT.QOS == nil {
		c.MQTT.QOS = Ptr(1)
	}
	if c.MQTT.Timeout == 0 {
		c.MQTT.Timeout = 10 * time.Second
	}

	if c.Buffer.Path == "" {
		c.Buffer.Path = "data/heartbeats.db"
	}

	if c.Remote.Table == "" {
		c.Remote.Table = constants.DefaultRemoteTable
	}
	if c.Remote.ConflictKey == "" {
		c.Remote.ConflictKey = constants.DefaultConflictKey
	}
	if c.Remote.Timeout == 0 {
		c.Remote.Timeout = constants.DefaultRemoteTimeout
	}
	if c.Remote.UTCOffset == 0 {
		c.Remote.UTCOffset = constants.DefaultRemoteUTCOffset
	}

	if c.Sync.Enabled == nil {
		c.Sync.Enabled = Ptr(true)
	}
	if c.Sync.Interval == 0 {
		c.Sync.Interval = constants.DefaultSyncInterval
	}
	if c.Sync.BatchLimit == 0 {
		c.Sync.BatchLimit = constants.DefaultSyncBatchLimit
	}
	if c.Sync.RetryBaseDelay == 0 {
		c.Sync.RetryBaseDelay = constants.DefaultRetryBaseDelay
	}
	if c.Sync.RetryMaxDelay == 0 {
		c.Sync.RetryMaxDelay = constants.DefaultRetryMaxDelay
	}
	if c.Sync.ConstraintPoll == 0 {
		c.Sync.ConstraintPoll = constants.DefaultConstraintPoll
	}

	if c.Watchdog.Enabled == nil {
		c.Watchdog.Enabled = Ptr(true)
	}
	if c.Watchdog.Interval == 0 {
		c.Watchdog.Interval = constants.DefaultWatchdogInterval
	}
	if c.Watchdog.StaleAfter == 0 {
		c.Watchdog.StaleAfter = constants.DefaultStaleAfter
	}
	if c.Watchdog.NotifyCooldown == 0 {
		c.Watchdog.NotifyCooldown = constants.DefaultNotifyCooldown
	}
	if c.Watchdog.StateFile == "" {
		c.Watchdog.StateFile = "data/watchdog.json"
	}

	if c.Sampler.Interval == 0 {
		c.Sampler.Interval = constants.DefaultSamplerInterval
	}
	if c.Sampler.GPSDeviceBaudRate == 0 {
		c.Sampler.GPSDeviceBaudRate = 9600
	}

	if c.Session.File == "" {
		c.Session.File = "data/session.json"
	}
	if c.Session.StateFile == "" {
		c.Session.StateFile = "data/session-state.json"
	}

	if c.Capability.RestrictedFrom == "" {
		c.Capability.RestrictedFrom = constants.DefaultRestrictedPlatform
	}
}

// Validate rejects configurations the agent cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Remote.BaseURL == "" {
		errs = append(errs, errors.New("remote.base_url is required"))
	} else if u, err := url.Parse(c.Remote.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("remote.base_url %q is not an absolute URL", c.Remote.BaseURL))
	}
	if c.Sync.BatchLimit < 0 {
		errs = append(errs, errors.New("sync.batch_limit must be positive"))
	}
	if c.Sync.RetryMaxDelay < c.Sync.RetryBaseDelay {
		errs = append(errs, errors.New("sync.retry_max_delay must not be below sync.retry_base_delay"))
	}
	if c.Watchdog.StaleAfter < c.Watchdog.Interval {
		errs = append(errs, errors.New("watchdog.stale_after must be at least watchdog.interval"))
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt.broker is required when mqtt is enabled"))
	}
	if c.MQTT.QOS != nil && (*c.MQTT.QOS < 0 || *c.MQTT.QOS > 2) {
		errs = append(errs, fmt.Errorf("mqtt.qos %d out of range", *c.MQTT.QOS))
	}
	if c.Sampler.SensorBased && c.Sampler.GPSDevicePort == "" {
		errs = append(errs, errors.New("sampler.gps_device_port is required for sensor based sampling"))
	}
	if !c.Sampler.SensorBased && c.Sampler.MapsAPIKey == "" {
		errs = append(errs, errors.New("sampler.maps_api_key is required for network geolocation"))
	}

	return errors.Join(errs...)
}
