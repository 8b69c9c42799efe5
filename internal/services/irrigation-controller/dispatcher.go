package irrigation_controller

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/LeonardoBeccarini/zone_irrigation/internal/model/entities"
	"github.com/LeonardoBeccarini/zone_irrigation/internal/model/messages"
	"github.com/LeonardoBeccarini/zone_irrigation/pkg/broker"
)

// Sampling period bounds accepted by devices, in milliseconds.
const (
	MinSampleMS = 500
	MaxSampleMS = 10000
)

// CommandPublisher is the broker surface the dispatcher needs.
type CommandPublisher interface {
	PublishToQos(topic string, qos byte, retained bool, payload interface{}) error
}

// DispatcherConfig holds the topic templates; {zone} is replaced by the zone id.
type DispatcherConfig struct {
	CmdTopicTemplate string
	CfgTopicTemplate string
	// BreakerTimeout is how long the breaker stays open before probing again.
	BreakerTimeout time.Duration
}

// Dispatcher publishes actuation and sampling commands for zones.
type Dispatcher struct {
	pub     CommandPublisher
	cfg     DispatcherConfig
	cb      *gobreaker.CircuitBreaker
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time
}

func NewDispatcher(pub CommandPublisher, cfg DispatcherConfig, metrics *Metrics, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CmdTopicTemplate == "" {
		cfg.CmdTopicTemplate = "chrab/{zone}/cmd"
	}
	if cfg.CfgTopicTemplate == "" {
		cfg.CfgTopicTemplate = "chrab/{zone}/cfg"
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 10 * time.Second
	}
	d := &Dispatcher{pub: pub, cfg: cfg, metrics: metrics, logger: logger, now: time.Now}
	d.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "mqtt-publish",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("dispatcher: breaker state change", "name", name, "from", from.String(), "to", to.String())
			metrics.BreakerState(name, int(to))
		},
	})
	return d
}

// Issue publishes the command for z and records it. The zone's actuator
// state becomes state whether or not the broker confirmed delivery; on a
// failed publish the returned error wraps ErrDeliveryUncertain.
// Callers hold the zone lock.
func (d *Dispatcher) Issue(z *Zone, state entities.ActuatorState, source, strategy string, dryness float64, score *float64) (messages.CommandEvent, error) {
	evt := messages.CommandEvent{
		ZoneID:    z.ID(),
		State:     state,
		Order:     state.Order(),
		Source:    source,
		Strategy:  strategy,
		Dryness:   dryness,
		Timestamp: d.now().UTC(),
	}
	if score != nil {
		s := *score
		evt.Score = &s
	}

	topic := broker.TopicFor(d.cfg.CmdTopicTemplate, z.ID())
	err := d.publish(topic, strconv.Itoa(evt.Order))
	evt.Delivered = err == nil

	z.SetActuatorState(state)
	z.recordCommand(evt)
	d.metrics.command(source, string(state), evt.Delivered)

	if err != nil {
		d.logger.Warn("dispatcher: command not confirmed", "zone", z.ID(), "state", state, "source", source, "error", err)
		return evt, fmt.Errorf("%w: zone %s: %v", ErrDeliveryUncertain, z.ID(), err)
	}
	d.logger.Info("dispatcher: command sent", "zone", z.ID(), "state", state, "source", source, "strategy", strategy)
	return evt, nil
}

// ConfigureSampling asks the zone device to change its sampling period.
// ms is clamped to [MinSampleMS, MaxSampleMS]; the applied value is returned.
func (d *Dispatcher) ConfigureSampling(zoneID string, ms int) (int, error) {
	if zoneID == "" {
		return 0, fmt.Errorf("%w: empty zone id", ErrInvalidParameter)
	}
	ms = min(max(ms, MinSampleMS), MaxSampleMS)
	raw, err := messages.SampleConfig{SampleMS: ms}.Encode()
	if err != nil {
		return ms, err
	}
	topic := broker.TopicFor(d.cfg.CfgTopicTemplate, zoneID)
	if err := d.publish(topic, raw); err != nil {
		return ms, fmt.Errorf("%w: zone %s: %v", ErrDeliveryUncertain, zoneID, err)
	}
	d.logger.Info("dispatcher: sampling period sent", "zone", zoneID, "sample_ms", ms)
	return ms, nil
}

// BreakerState reports the publish breaker state.
func (d *Dispatcher) BreakerState() gobreaker.State { return d.cb.State() }

func (d *Dispatcher) publish(topic string, payload interface{}) error {
	if d.pub == nil {
		return errors.New("no publisher configured")
	}
	_, err := d.cb.Execute(func() (interface{}, error) {
		return nil, d.pub.PublishToQos(topic, 1, false, payload)
	})
	return err
}
