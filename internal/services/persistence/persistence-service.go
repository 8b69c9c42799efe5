package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/LeonardoBeccarini/zone_irrigation/internal/model/messages"
)

// Configurazione Influx
type InfluxConfig struct {
	URL             string
	Token           string
	Org             string
	Bucket          string
	MeasurementMode string // "single" | "per-zone"
	MeasurementName string // es. "zone_telemetry"
	BatchSize       uint
	FlushInterval   time.Duration
}

// Enabled reports whether the config is complete enough to connect.
func (c InfluxConfig) Enabled() bool {
	return c.URL != "" && c.Token != "" && c.Org != "" && c.Bucket != ""
}

// Service writes one point per processed reading and answers history
// queries from the stored series.
type Service struct {
	client      influxdb2.Client
	writeAPI    api.WriteAPI
	queryAPI    api.QueryAPI
	writer      *Writer
	bucket      string
	measurement string
	perZone     bool
	logger      *slog.Logger
}

func NewService(cfg InfluxConfig, logger *slog.Logger) (*Service, error) {
	if !cfg.Enabled() {
		return nil, errors.New("influx config incomplete")
	}
	opts := influxdb2.DefaultOptions()
	if cfg.BatchSize > 0 {
		opts.SetBatchSize(cfg.BatchSize)
	}
	if cfg.FlushInterval > 0 {
		opts.SetFlushInterval(uint(cfg.FlushInterval.Milliseconds()))
	}
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)
	s := newService(client.WriteAPI(cfg.Org, cfg.Bucket), client.QueryAPI(cfg.Org), cfg, logger)
	s.client = client
	return s, nil
}

func newService(w api.WriteAPI, q api.QueryAPI, cfg InfluxConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	name := cfg.MeasurementName
	if name == "" {
		name = "zone_telemetry"
	}
	return &Service{
		writeAPI:    w,
		queryAPI:    q,
		writer:      NewWriter(w, logger),
		bucket:      cfg.Bucket,
		measurement: name,
		perZone:     cfg.MeasurementMode == "per-zone",
		logger:      logger,
	}
}

func (s *Service) measurementFor(zoneID string) string {
	m := s.measurement
	if s.perZone {
		m = m + "_" + zoneID // es. zone_telemetry_<area>
	}
	return sanitizeMeasurement(m)
}

// Record queues the snapshot's reading; the write API batches and flushes
// in the background, so this never blocks on the network.
func (s *Service) Record(snap messages.ZoneSnapshot) {
	p := SnapshotToPoint(s.measurementFor(snap.ZoneID), snap)
	if p == nil {
		return
	}
	s.writeAPI.WritePoint(p)
	s.writer.MarkIngest(snap.ZoneID)
}

// QueryHistory reads the zone's readings within window, oldest first.
func (s *Service) QueryHistory(ctx context.Context, zoneID string, window time.Duration) ([]messages.Reading, error) {
	minutes := int(math.Ceil(window.Minutes()))
	if minutes < 1 {
		minutes = 1
	}
	res, err := s.queryAPI.Query(ctx, buildFlux(s.bucket, s.measurementFor(zoneID), zoneID, minutes))
	if err != nil {
		return nil, fmt.Errorf("influx query: %w", err)
	}
	defer res.Close()

	out := make([]messages.Reading, 0, 64)
	for res.Next() {
		out = append(out, recordToReading(res.Record()))
	}
	if err := res.Err(); err != nil {
		return out, fmt.Errorf("influx iterate: %w", err)
	}
	return out, nil
}

// LastErrorAge is the time since the last asynchronous write failure.
func (s *Service) LastErrorAge() time.Duration { return s.writer.LastErrorAge() }

// Written returns the number of points queued for zoneID.
func (s *Service) Written(zoneID string) int64 { return s.writer.Count(zoneID) }

// Close flushes pending points and closes the client.
func (s *Service) Close() {
	s.writeAPI.Flush()
	if s.client != nil {
		s.client.Close()
	}
	s.logger.Info("persistence: influx client closed")
}
