package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/meerabeer/nfo-agent/pkg/file"
)

// MQTTClient defines the subset of the paho client the agent uses.
type MQTTClient interface {
	Connect() mqtt.Token
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MqttService owns the broker connection used for outbound alerts.
type MqttService struct {
	client     MQTTClient
	fileClient file.FileOperations
	logger     zerolog.Logger
}

// NewMqttService creates a new MqttService instance.
func NewMqttService(fileClient file.FileOperations, logger zerolog.Logger) *MqttService {
	return &MqttService{
		fileClient: fileClient,
		logger:     logger,
	}
}

// NewMqttServiceWithClient wraps an already constructed client.
func NewMqttServiceWithClient(client MQTTClient, logger zerolog.Logger) *MqttService {
	return &MqttService{client: client, logger: logger}
}

// Initialize configures the client and connects. When caCertPath is set the
// broker certificate is verified against it.
func (s *MqttService) Initialize(broker, clientIDPrefix, caCertPath string, timeout time.Duration) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	// Devices share a prefix; the suffix keeps concurrent sessions from kicking each other.
	opts.SetClientID(fmt.Sprintf("%s-%s", clientIDPrefix, uuid.NewString()[:8]))
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(timeout)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.logger.Warn().Err(err).Msg("MQTT connection lost")
	})

	if caCertPath != "" {
		caCert, err := s.fileClient.ReadFileRaw(caCertPath)
		if err != nil {
			return fmt.Errorf("failed to read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return errors.New("failed to append CA certificate")
		}
		opts.SetTLSConfig(&tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12})
	}

	s.client = mqtt.NewClient(opts)

	token := s.client.Connect()
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("timed out connecting to MQTT broker %s", broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker %s: %w", broker, err)
	}

	s.logger.Info().Str("broker", broker).Msg("Connected to MQTT broker")
	return nil
}

// Publish sends payload and waits up to timeout for the broker acknowledgement.
func (s *MqttService) Publish(topic string, qos byte, payload []byte, timeout time.Duration) error {
	if s.client == nil {
		return errors.New("mqtt client is not initialized")
	}
	token := s.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("timed out publishing to %s", topic)
	}
	return token.Error()
}

// Connected reports whether the client currently holds a broker connection.
func (s *MqttService) Connected() bool {
	return s.client != nil && s.client.IsConnected()
}

// Disconnect gracefully disconnects the MQTT client.
func (s *MqttService) Disconnect(quiesce uint) {
	if s.client != nil {
		s.client.Disconnect(quiesce)
	}
}
