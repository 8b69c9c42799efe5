package sensor_simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/LeonardoBeccarini/zone_irrigation/internal/model"
	"github.com/LeonardoBeccarini/zone_irrigation/internal/model/messages"
	controller "github.com/LeonardoBeccarini/zone_irrigation/internal/services/irrigation-controller"
	"github.com/LeonardoBeccarini/zone_irrigation/pkg/broker"
	"github.com/LeonardoBeccarini/zone_irrigation/pkg/dedup"
)

// Topics used by one simulated zone device.
type Topics struct {
	Telemetry string // es. "chrab/{zone}/telemetry"
	Cmd       string
	Cfg       string
}

func DefaultTopics() Topics {
	return Topics{
		Telemetry: "chrab/{zone}/telemetry",
		Cmd:       "chrab/{zone}/cmd",
		Cfg:       "chrab/{zone}/cfg",
	}
}

// SensorSimulator plays the role of a zone device: it publishes telemetry
// every interval, follows pump commands and accepts a new sampling period.
type SensorSimulator struct {
	mu        sync.Mutex
	zoneID    string
	pump      model.ActuatorState
	interval  time.Duration
	reset     chan struct{}
	topics    Topics
	generator *DataGenerator
	publisher broker.IPublisher
	consumer  broker.IConsumer
	deduper   *dedup.Deduper
	logger    *slog.Logger
	now       func() time.Time
}

func NewSensorSimulator(consumer broker.IConsumer, publisher broker.IPublisher, gen *DataGenerator,
	zoneID string, topics Topics, interval time.Duration, logger *slog.Logger) *SensorSimulator {
	if logger == nil {
		logger = slog.Default()
	}
	return &SensorSimulator{
		zoneID:    zoneID,
		pump:      model.StateOff,
		interval:  clampInterval(interval),
		reset:     make(chan struct{}, 1),
		topics:    topics,
		generator: gen,
		publisher: publisher,
		consumer:  consumer,
		deduper:   dedup.New(2*time.Minute, 10000), // TTL e cap
		logger:    logger,
		now:       time.Now,
	}
}

// CmdTopic and CfgTopic are the filters the simulator consumes.
func (s *SensorSimulator) CmdTopic() string { return broker.TopicFor(s.topics.Cmd, s.zoneID) }
func (s *SensorSimulator) CfgTopic() string { return broker.TopicFor(s.topics.Cfg, s.zoneID) }

func clampInterval(d time.Duration) time.Duration {
	ms := int(d / time.Millisecond)
	ms = min(max(ms, controller.MinSampleMS), controller.MaxSampleMS)
	return time.Duration(ms) * time.Millisecond
}

// Start avvia il consumo di comandi/config e pubblica la telemetria finché
// ctx non viene cancellato.
func (s *SensorSimulator) Start(ctx context.Context) {
	if s.consumer != nil {
		s.consumer.SetHandler(s.handleMessage)
		go s.consumer.ConsumeMessage(ctx)
	}

	timer := time.NewTimer(s.Interval())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.reset:
			// nuovo SAMPLE_MS: riparte subito col nuovo periodo
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(s.Interval())
		case <-timer.C:
			if err := s.PublishOnce(); err != nil {
				s.logger.Warn("simulator: publish failed", "zone", s.zoneID, "error", err)
			}
			timer.Reset(s.Interval())
		}
	}
}

// PublishOnce generates and publishes one telemetry report.
func (s *SensorSimulator) PublishOnce() error {
	t := s.generator.Next(s.zoneID, s.Pump(), s.now())
	t.MsgID = uuid.NewString()
	payload, err := json.Marshal(t)
	if err != nil {
		return err
	}
	s.logger.Debug("simulator: telemetry", "zone", s.zoneID, "moist", t.Moist, "pump", t.LastPump)
	return s.publisher.PublishToQos(broker.TopicFor(s.topics.Telemetry, s.zoneID), 1, false, payload)
}

func (s *SensorSimulator) Pump() model.ActuatorState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pump
}

func (s *SensorSimulator) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

func (s *SensorSimulator) handleMessage(_ string, msg mqtt.Message) error {
	// redelivery QoS1: stesso message id
	if msg.Duplicate() && !s.deduper.ShouldProcess(fmt.Sprintf("%s|%d", msg.Topic(), msg.MessageID())) {
		return nil
	}
	switch msg.Topic() {
	case s.CmdTopic():
		return s.applyCommand(msg.Payload())
	case s.CfgTopic():
		return s.applyConfig(msg.Payload())
	}
	return nil
}

func (s *SensorSimulator) applyCommand(payload []byte) error {
	order, err := strconv.Atoi(strings.TrimSpace(string(payload)))
	if err != nil || (order != 0 && order != 1) {
		return fmt.Errorf("invalid pump command %q", payload)
	}
	state := model.StateOff
	if order == 1 {
		state = model.StateOn
	}
	s.mu.Lock()
	prev := s.pump
	s.pump = state
	s.mu.Unlock()
	if prev != state {
		s.logger.Info("simulator: pump changed", "zone", s.zoneID, "from", prev, "to", state)
	}
	return nil
}

func (s *SensorSimulator) applyConfig(payload []byte) error {
	var cfg messages.SampleConfig
	if err := json.Unmarshal(payload, &cfg); err != nil {
		return fmt.Errorf("invalid sampling config: %w", err)
	}
	if cfg.SampleMS <= 0 {
		return fmt.Errorf("invalid SAMPLE_MS %d", cfg.SampleMS)
	}
	d := clampInterval(time.Duration(cfg.SampleMS) * time.Millisecond)
	s.mu.Lock()
	s.interval = d
	s.mu.Unlock()
	select {
	case s.reset <- struct{}{}:
	default:
	}
	s.logger.Info("simulator: sampling period changed", "zone", s.zoneID, "interval", d)
	return nil
}
