// Package notify delivers user-facing alerts raised by the watchdog and the
// capability layer.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/meerabeer/nfo-agent/internal/models"
)

// Notifier delivers a single alert to the user.
type Notifier interface {
	Notify(ctx context.Context, alert models.Alert) error
}

// LogNotifier writes alerts to the agent log. It is always part of the chain
// so alerts are visible even without a broker.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(_ context.Context, alert models.Alert) error {
	n.logger.Warn().
		Str("kind", string(alert.Kind)).
		Str("actor_id", alert.ActorID).
		Str("title", alert.Title).
		Time("raised_at", alert.RaisedAt).
		Msg(alert.Message)
	return nil
}

// Publisher is the broker side of MQTTNotifier.
type Publisher interface {
	Publish(topic string, qos byte, payload []byte, timeout time.Duration) error
}

// MQTTNotifier publishes alerts as JSON to a per-actor topic.
type MQTTNotifier struct {
	publisher Publisher
	topic     string
	qos       byte
	timeout   time.Duration
}

// NewMQTTNotifier creates an MQTTNotifier. The actor id is appended to topic.
func NewMQTTNotifier(publisher Publisher, topic string, qos byte, timeout time.Duration) *MQTTNotifier {
	return &MQTTNotifier{
		publisher: publisher,
		topic:     topic,
		qos:       qos,
		timeout:   timeout,
	}
}

// Notify implements Notifier.
func (n *MQTTNotifier) Notify(ctx context.Context, alert models.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}

	timeout := n.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	topic := n.topic
	if alert.ActorID != "" {
		topic = fmt.Sprintf("%s/%s", n.topic, alert.ActorID)
	}
	if err := n.publisher.Publish(topic, n.qos, payload, timeout); err != nil {
		return fmt.Errorf("failed to publish alert to %s: %w", topic, err)
	}
	return nil
}

// Multi fans an alert out to several notifiers. It fails only when every
// notifier fails.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, alert models.Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	if len(m) > 0 && len(errs) == len(m) {
		return errors.Join(errs...)
	}
	return nil
}
