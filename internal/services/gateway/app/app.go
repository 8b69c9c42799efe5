package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sony/gobreaker"

	"github.com/LeonardoBeccarini/zone_irrigation/internal/model/entities"
	"github.com/LeonardoBeccarini/zone_irrigation/internal/model/messages"
	controller "github.com/LeonardoBeccarini/zone_irrigation/internal/services/irrigation-controller"
)

// ZoneAPI is the engine surface the gateway serves.
type ZoneAPI interface {
	QueryLatest(zoneID string) (messages.ZoneSnapshot, error)
	QueryHistory(zoneID string, window time.Duration) ([]messages.Reading, error)
	IssueManualCommand(zoneID string, order int) (messages.CommandEvent, error)
	SetAutoEnabled(enabled bool) entities.ControlParams
	SetMode(zoneID string, mode entities.Mode) (messages.ZoneSnapshot, error)
	SetThresholds(on, off float64) (entities.ControlParams, error)
	ConfigureSampling(zoneID string, ms int) (int, error)
	SubscribeLive(zoneID string, obs controller.Observer) (controller.Handle, error)
	Unsubscribe(h controller.Handle) bool
	Status() controller.Status
}

// HistorySource serves history from durable storage.
type HistorySource interface {
	QueryHistory(ctx context.Context, zoneID string, window time.Duration) ([]messages.Reading, error)
}

// BrokerStatus is satisfied by mqtt.Client.
type BrokerStatus interface {
	IsConnectionOpen() bool
}

// SinkStatus reports how long ago the persistence sink last failed.
type SinkStatus interface {
	LastErrorAge() time.Duration
}

type Config struct {
	DefaultZone string
	BrokerAddr  string
	HTTPTimeout time.Duration

	BreakerFailures int
	BreakerOpenFor  time.Duration

	WSBuffer       int
	WSWriteTimeout time.Duration
	WSPingInterval time.Duration

	// optional collaborators; nil disables the feature
	Broker  BrokerStatus
	History HistorySource
	Sink    SinkStatus
	Metrics http.Handler

	Logger *slog.Logger
}

type Gateway struct {
	cfg       Config
	api       ZoneAPI
	historyCB *gobreaker.CircuitBreaker
	upgrader  websocket.Upgrader
	logger    *slog.Logger
}

func NewGateway(api ZoneAPI, cfg Config) *Gateway {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DefaultZone == "" {
		cfg.DefaultZone = "area-tn-001"
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 5 * time.Second
	}
	if cfg.BreakerFailures < 1 {
		cfg.BreakerFailures = 3
	}
	if cfg.BreakerOpenFor <= 0 {
		cfg.BreakerOpenFor = 30 * time.Second
	}
	if cfg.WSBuffer <= 0 {
		cfg.WSBuffer = 32
	}
	if cfg.WSWriteTimeout <= 0 {
		cfg.WSWriteTimeout = 10 * time.Second
	}
	if cfg.WSPingInterval <= 0 {
		cfg.WSPingInterval = 30 * time.Second
	}

	logger := cfg.Logger
	return &Gateway{
		cfg: cfg,
		api: api,
		historyCB: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "influx-history",
			Timeout: cfg.BreakerOpenFor,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= uint32(cfg.BreakerFailures)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("gateway: breaker state change", "name", name, "from", from.String(), "to", to.String())
			},
		}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// mobile app and dashboard connect from other origins
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Routes returns the HTTP handler with every endpoint registered.
func (g *Gateway) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/ping", g.HandlePing)
	mux.HandleFunc("GET /api/latest", g.HandleLatest)
	mux.HandleFunc("GET /api/history", g.HandleHistory)
	mux.HandleFunc("POST /api/cmd", g.HandleCommand)
	mux.HandleFunc("POST /api/auto", g.HandleAuto)
	mux.HandleFunc("POST /api/set-thresholds", g.HandleThresholds)
	mux.HandleFunc("POST /api/set-mode", g.HandleMode)
	mux.HandleFunc("POST /api/set-sample-ms", g.HandleSampleMS)
	mux.HandleFunc("GET /ws/telemetry", g.HandleTelemetryWS)

	mux.Handle("GET /healthz", NewHealthHandler(g.cfg.Broker, g.cfg.Sink))
	mux.Handle("GET /readyz", NewReadyHandler(g.cfg.Broker, g.cfg.Sink, 2*time.Second))
	if g.cfg.Metrics != nil {
		mux.Handle("GET /metrics", g.cfg.Metrics)
	}
	return mux
}
