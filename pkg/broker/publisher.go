package broker

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ErrPublishTimeout is returned when the broker did not confirm a publish in time.
var ErrPublishTimeout = errors.New("publish not confirmed before timeout")

// IPublisher publishes to an explicit topic with explicit QoS.
type IPublisher interface {
	PublishToQos(topic string, qos byte, retained bool, payload interface{}) error
}

// Publisher publishes on a shared MQTT client and never waits longer than timeout.
type Publisher struct {
	client  mqtt.Client
	timeout time.Duration
	logger  *slog.Logger
}

var _ IPublisher = (*Publisher)(nil)

func NewPublisher(client mqtt.Client, timeout time.Duration, logger *slog.Logger) *Publisher {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{client: client, timeout: timeout, logger: logger}
}

// PublishToQos accepts string or []byte payloads.
func (p *Publisher) PublishToQos(topic string, qos byte, retained bool, payload interface{}) error {
	switch payload.(type) {
	case string, []byte:
	default:
		return fmt.Errorf("invalid message format %T, expected string or []byte", payload)
	}

	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("topic %s: %w", topic, ErrPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish message on %s: %w", topic, err)
	}

	p.logger.Debug("broker: published", "topic", topic, "qos", qos)
	return nil
}
