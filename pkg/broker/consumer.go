package broker

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Handler processes one message received on a subscription.
type Handler func(topic string, message mqtt.Message) error

// IConsumer subscribes and dispatches messages until the context ends.
type IConsumer interface {
	ConsumeMessage(ctx context.Context)
	SetHandler(handler Handler)
}

// Consumer holds the client and topic filters for subscribing.
type Consumer struct {
	client  mqtt.Client
	handler Handler
	topics  []string
	logger  *slog.Logger

	mu     sync.Mutex
	active bool
}

var _ IConsumer = (*Consumer)(nil)

// NewConsumer creates a Consumer for one or more topic filters on the shared client.
func NewConsumer(client mqtt.Client, handler Handler, logger *slog.Logger, topics ...string) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		client:  client,
		topics:  topics,
		handler: handler,
		logger:  logger,
	}
}

func (c *Consumer) SetHandler(handler Handler) {
	c.handler = handler
}

// qosFor: telemetry, commands and device config are at-least-once.
func qosFor(topic string) byte {
	t := strings.TrimSpace(topic)
	if strings.HasSuffix(t, "/telemetry") ||
		strings.HasSuffix(t, "/cmd") ||
		strings.HasSuffix(t, "/cfg") {
		return 1
	}
	return 0
}

// ConsumeMessage subscribes to every topic and blocks until ctx is cancelled.
func (c *Consumer) ConsumeMessage(ctx context.Context) {
	c.mu.Lock()
	c.active = true
	c.mu.Unlock()
	c.subscribe(c.client)

	<-ctx.Done()

	c.mu.Lock()
	c.active = false
	c.mu.Unlock()
	// On context cancel: unsubscribe from all
	if len(c.topics) > 0 {
		c.client.Unsubscribe(c.topics...).Wait()
	}
}

// OnConnect subscribes again after a reconnection. It does nothing unless
// ConsumeMessage is running. Register it on Config.Hooks.
func (c *Consumer) OnConnect(client mqtt.Client) {
	c.mu.Lock()
	active := c.active
	c.mu.Unlock()
	if !active {
		return
	}
	c.logger.Info("broker: resubscribing after connect", "topics", c.topics)
	c.subscribe(client)
}

func (c *Consumer) subscribe(client mqtt.Client) {
	for _, topic := range c.topics {
		topic := topic
		token := client.Subscribe(topic, qosFor(topic), func(_ mqtt.Client, msg mqtt.Message) {
			if c.handler == nil {
				c.logger.Warn("broker: no handler set", "topic", topic)
				return
			}
			if err := c.handler(topic, msg); err != nil {
				c.logger.Warn("broker: error handling message", "topic", msg.Topic(), "error", err)
			}
		})
		if token.Wait() && token.Error() != nil {
			c.logger.Error("broker: subscribe failed", "topic", topic, "error", token.Error())
			continue
		}
		c.logger.Info("broker: subscribed", "topic", topic, "qos", qosFor(topic))
	}
}

// TopicFor fills "{zone}" in a topic template.
func TopicFor(tmpl, zoneID string) string {
	return strings.ReplaceAll(tmpl, "{zone}", zoneID)
}
