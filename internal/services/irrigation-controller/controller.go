package irrigation_controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/LeonardoBeccarini/zone_irrigation/internal/model/entities"
	"github.com/LeonardoBeccarini/zone_irrigation/internal/model/messages"
	"github.com/LeonardoBeccarini/zone_irrigation/pkg/broker"
	"github.com/LeonardoBeccarini/zone_irrigation/pkg/dedup"
)

// Sink receives one snapshot per processed reading, after the zone lock is
// released. Implementations must not block for long.
type Sink interface {
	Record(snap messages.ZoneSnapshot)
}

// Options configures a Controller. Zero values pick the defaults.
type Options struct {
	DefaultZone     string
	HistoryCapacity int
	Params          entities.ControlParams
	Strategy        Strategy
	Publisher       CommandPublisher
	Dispatch        DispatcherConfig
	Sink            Sink
	Deduper         *dedup.Deduper
	Registerer      prometheus.Registerer
	Logger          *slog.Logger
}

// Status is the engine summary served by the ping endpoint.
type Status struct {
	Zones     []string                 `json:"zones"`
	Modes     map[string]entities.Mode `json:"modes"`
	Params    entities.ControlParams   `json:"params"`
	Strategy  string                   `json:"strategy"`
	Observers int                      `json:"observers"`
}

// Controller runs the ingestion pipeline and serves the engine API.
type Controller struct {
	consumer   broker.IConsumer
	decoder    *Decoder
	store      *ZoneStore
	params     *Params
	strategy   Strategy
	dispatcher *Dispatcher
	bcast      *Broadcaster
	sink       Sink
	deduper    *dedup.Deduper
	metrics    *Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// NewController wires the engine. consumer may be nil when readings are fed
// through Ingest directly.
func NewController(consumer broker.IConsumer, opts Options) (*Controller, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.DefaultZone == "" {
		opts.DefaultZone = "area-tn-001"
	}
	p := opts.Params
	if p == (entities.ControlParams{}) {
		p = entities.DefaultControlParams()
	}
	if !p.Valid() {
		logger.Warn("controller: on threshold not above off threshold", "on", p.OnThreshold, "off", p.OffThreshold)
	}
	if opts.Strategy == nil {
		opts.Strategy = NewHysteresisStrategy(logger)
	}

	metrics := NewMetrics(opts.Registerer)
	params := NewParams(p)
	c := &Controller{
		consumer:   consumer,
		decoder:    NewDecoder(opts.DefaultZone),
		store:      NewZoneStore(opts.HistoryCapacity, params.DefaultMode),
		params:     params,
		strategy:   opts.Strategy,
		dispatcher: NewDispatcher(opts.Publisher, opts.Dispatch, metrics, logger),
		bcast:      NewBroadcaster(metrics, logger),
		sink:       opts.Sink,
		deduper:    opts.Deduper,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
	if consumer != nil {
		consumer.SetHandler(c.handleTelemetry)
	}
	return c, nil
}

// Start consumes telemetry until ctx is cancelled.
func (c *Controller) Start(ctx context.Context) {
	if c.consumer != nil {
		go c.consumer.ConsumeMessage(ctx)
	}
	<-ctx.Done()
}

func (c *Controller) handleTelemetry(_ string, msg mqtt.Message) error {
	// per-message failures are logged inside Ingest; nothing to retry
	_, _ = c.Ingest(msg.Topic(), msg.Payload())
	return nil
}

// Ingest processes one telemetry message: store, decide, maybe command,
// broadcast, all under the zone lock, then hands the snapshot to the sink.
// A non-nil error together with a valid snapshot means the reading was
// stored but the command could not be confirmed.
func (c *Controller) Ingest(topic string, payload []byte) (messages.ZoneSnapshot, error) {
	r, err := c.decoder.Decode(topic, payload)
	if err != nil {
		c.metrics.reading("malformed")
		c.logger.Warn("controller: bad payload", "topic", topic, "error", err)
		return messages.ZoneSnapshot{}, err
	}
	if r.MsgID != "" && !c.deduper.ShouldProcess(r.ZoneID+"|"+r.MsgID) {
		c.metrics.reading("duplicate")
		c.logger.Debug("controller: duplicate dropped", "zone", r.ZoneID, "msg_id", r.MsgID)
		return messages.ZoneSnapshot{}, ErrDuplicate
	}

	var (
		snap     messages.ZoneSnapshot
		issueErr error
	)
	c.store.Update(r.ZoneID, func(z *Zone) {
		params := c.params.Snapshot()
		prevActuator, prevMode := z.UpsertReading(r)
		d := c.strategy.Decide(DecisionInput{
			Reading:  r,
			Actuator: prevActuator,
			Mode:     prevMode,
			Params:   params,
		})
		z.recordScore(d.Score)
		if d.Issue {
			_, issueErr = c.dispatcher.Issue(z, d.Command, messages.SourceAuto, c.strategy.Name(), r.Dryness, d.Score)
		}
		snap = c.decorate(z.Snapshot(), params)
		c.bcast.Publish(snap)
	})

	c.metrics.reading("ok")
	c.logger.Debug("controller: reading processed",
		"zone", r.ZoneID, "dryness", r.Dryness, "pump", snap.Actuator, "mode", snap.Mode)
	if c.sink != nil {
		c.sink.Record(snap)
	}
	return snap, issueErr
}

func (c *Controller) decorate(snap messages.ZoneSnapshot, p entities.ControlParams) messages.ZoneSnapshot {
	snap.AutoEnabled = p.AutoEnabled
	snap.Thresholds = messages.Thresholds{On: p.OnThreshold, Off: p.OffThreshold}
	snap.Timestamp = c.now().UTC()
	return snap
}

// refresh snapshots and broadcasts z after an API write.
func (c *Controller) refresh(z *Zone) messages.ZoneSnapshot {
	snap := c.decorate(z.Snapshot(), c.params.Snapshot())
	c.bcast.Publish(snap)
	return snap
}

func (c *Controller) broadcastAll() {
	for _, id := range c.store.ListZones() {
		c.store.Update(id, func(z *Zone) { c.refresh(z) })
	}
}

func validZone(zoneID string) error {
	if zoneID == "" {
		return fmt.Errorf("%w: empty zone id", ErrInvalidParameter)
	}
	return nil
}

// QueryLatest returns the current snapshot. A zone never heard from yields
// a snapshot with HasData() == false.
func (c *Controller) QueryLatest(zoneID string) (messages.ZoneSnapshot, error) {
	if err := validZone(zoneID); err != nil {
		return messages.ZoneSnapshot{}, err
	}
	var snap messages.ZoneSnapshot
	c.store.Update(zoneID, func(z *Zone) {
		snap = c.decorate(z.Snapshot(), c.params.Snapshot())
	})
	return snap, nil
}

// QueryHistory returns the readings received within the last window,
// oldest first. A non-positive window returns the whole retained history.
func (c *Controller) QueryHistory(zoneID string, window time.Duration) ([]messages.Reading, error) {
	if err := validZone(zoneID); err != nil {
		return nil, err
	}
	var since time.Time
	if window > 0 {
		since = c.now().UTC().Add(-window)
	}
	return c.store.History(zoneID, since), nil
}

// IssueManualCommand sets the pump regardless of mode and dryness.
// order must be 0 or 1.
func (c *Controller) IssueManualCommand(zoneID string, order int) (messages.CommandEvent, error) {
	if err := validZone(zoneID); err != nil {
		return messages.CommandEvent{}, err
	}
	if order != 0 && order != 1 {
		return messages.CommandEvent{}, fmt.Errorf("%w: order must be 0 or 1, got %d", ErrInvalidParameter, order)
	}
	var (
		evt messages.CommandEvent
		err error
	)
	c.store.Update(zoneID, func(z *Zone) {
		var dryness float64
		if z.latest != nil {
			dryness = z.latest.Dryness
		}
		evt, err = c.dispatcher.Issue(z, entities.StateFromOrder(order), messages.SourceManual, "", dryness, nil)
		c.refresh(z)
	})
	return evt, err
}

// SetAutoEnabled flips the global auto flag and rebroadcasts every zone.
func (c *Controller) SetAutoEnabled(enabled bool) entities.ControlParams {
	p := c.params.SetAutoEnabled(enabled)
	c.logger.Info("controller: auto control changed", "enabled", enabled)
	c.broadcastAll()
	return p
}

// SetMode changes one zone's mode.
func (c *Controller) SetMode(zoneID string, mode entities.Mode) (messages.ZoneSnapshot, error) {
	if err := validZone(zoneID); err != nil {
		return messages.ZoneSnapshot{}, err
	}
	if mode != entities.ModeAuto && mode != entities.ModeManual {
		return messages.ZoneSnapshot{}, fmt.Errorf("%w: %w", ErrInvalidParameter, entities.ErrInvalidMode)
	}
	var snap messages.ZoneSnapshot
	c.store.Update(zoneID, func(z *Zone) {
		z.SetMode(mode)
		snap = c.refresh(z)
	})
	c.logger.Info("controller: mode changed", "zone", zoneID, "mode", mode)
	return snap, nil
}

// SetThresholds replaces both thresholds; on must be above off.
func (c *Controller) SetThresholds(on, off float64) (entities.ControlParams, error) {
	p, err := c.params.SetThresholds(on, off)
	if err != nil {
		return p, err
	}
	c.logger.Info("controller: thresholds changed", "on", on, "off", off)
	c.broadcastAll()
	return p, nil
}

// SubscribeLive registers obs for zoneID. When the zone already has data
// the current snapshot is delivered first, before any later update.
func (c *Controller) SubscribeLive(zoneID string, obs Observer) (Handle, error) {
	if err := validZone(zoneID); err != nil {
		return Handle{}, err
	}
	var (
		h   Handle
		err error
	)
	c.store.Update(zoneID, func(z *Zone) {
		h = c.bcast.Subscribe(zoneID, obs)
		if z.latest == nil {
			return
		}
		if derr := obs.Deliver(c.decorate(z.Snapshot(), c.params.Snapshot())); derr != nil {
			c.bcast.Unsubscribe(h)
			err = derr
		}
	})
	return h, err
}

// Unsubscribe cancels a live subscription.
func (c *Controller) Unsubscribe(h Handle) bool {
	return c.bcast.Unsubscribe(h)
}

// ConfigureSampling asks the zone device for a new sampling period.
func (c *Controller) ConfigureSampling(zoneID string, ms int) (int, error) {
	return c.dispatcher.ConfigureSampling(zoneID, ms)
}

// Params returns the control parameters in effect.
func (c *Controller) Params() entities.ControlParams {
	return c.params.Snapshot()
}

func (c *Controller) Status() Status {
	ids := c.store.ListZones()
	modes := make(map[string]entities.Mode, len(ids))
	for _, id := range ids {
		c.store.Update(id, func(z *Zone) { modes[id] = z.Mode() })
	}
	return Status{
		Zones:     ids,
		Modes:     modes,
		Params:    c.params.Snapshot(),
		Strategy:  c.strategy.Name(),
		Observers: c.bcast.Total(),
	}
}

// IsDeliveryUncertain reports whether err only signals an unconfirmed command.
func IsDeliveryUncertain(err error) bool {
	return errors.Is(err, ErrDeliveryUncertain)
}
