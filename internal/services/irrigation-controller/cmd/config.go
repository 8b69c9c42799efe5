package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/LeonardoBeccarini/zone_irrigation/internal/services/persistence"
	"github.com/LeonardoBeccarini/zone_irrigation/pkg/broker"
)

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return def
}

// envDuration accepts Go durations ("1m30s") or plain milliseconds.
func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return def
}

// Config holds everything main needs to wire the service.
type Config struct {
	Broker           broker.Config
	TelemetryTopic   string
	CmdTopicTemplate string
	CfgTopicTemplate string
	PublishTimeout   time.Duration
	BreakerTimeout   time.Duration
	DefaultZone      string
	OnThreshold      float64
	OffThreshold     float64
	AutoEnabled      bool
	HistoryCapacity  int
	Strategy         string
	ModelPath        string
	PumpThreshold    float64
	DedupTTL         time.Duration
	DedupMax         int
	HTTPPort         int
	GRPCPort         int
	MaxIrrigation    time.Duration
	Influx           persistence.InfluxConfig
	LogFormat        string
	LogLevel         string
}

// overlay is the optional YAML file named by CONFIG_FILE. Set keys win
// over the environment.
type overlay struct {
	ThirstOn      *float64 `yaml:"thirst_on"`
	ThirstOff     *float64 `yaml:"thirst_off"`
	AutoEnabled   *bool    `yaml:"auto_enabled"`
	Strategy      *string  `yaml:"strategy"`
	ModelPath     *string  `yaml:"model_path"`
	PumpThreshold *float64 `yaml:"pump_threshold"`
}

func loadConfig() (Config, error) {
	cfg := Config{
		Broker: broker.Config{
			Host:               env("MQTT_HOST", "localhost"),
			Port:               envInt("MQTT_PORT", 1883),
			User:               env("MQTT_USER", ""),
			Password:           env("MQTT_PASSWORD", ""),
			ClientID:           env("MQTT_CLIENT_ID", fmt.Sprintf("zone-irrigation-%s", env("HOSTNAME", "local"))),
			ConnectRetries:     envInt("MQTT_CONNECT_RETRIES", 5),
			ConcurrentHandlers: envBool("MQTT_CONCURRENT_HANDLERS", true),
		},
		TelemetryTopic:   env("TELEMETRY_SUB_TOPIC", "chrab/+/telemetry"),
		CmdTopicTemplate: env("CMD_TOPIC_TEMPLATE", "chrab/{zone}/cmd"),
		CfgTopicTemplate: env("CFG_TOPIC_TEMPLATE", "chrab/{zone}/cfg"),
		PublishTimeout:   envDuration("PUBLISH_TIMEOUT_MS", 2*time.Second),
		BreakerTimeout:   envDuration("PUBLISH_BREAKER_OPEN", 10*time.Second),
		DefaultZone:      env("AREA_ID", "area-tn-001"),
		OnThreshold:      envFloat("THIRST_ON", 70),
		OffThreshold:     envFloat("THIRST_OFF", 30),
		AutoEnabled:      envBool("AUTO_ENABLED", true),
		HistoryCapacity:  envInt("HISTORY_CAPACITY", 10000),
		Strategy:         strings.ToLower(env("STRATEGY", "hysteresis")),
		ModelPath:        env("MODEL_PATH", ""),
		PumpThreshold:    envFloat("PUMP_THRESHOLD", 0.5),
		DedupTTL:         envDuration("DEDUP_TTL", 0),
		DedupMax:         envInt("DEDUP_MAX", 10000),
		HTTPPort:         envInt("HTTP_PORT", 8080),
		GRPCPort:         envInt("GRPC_PORT", 50051),
		MaxIrrigation:    envDuration("MAX_IRRIGATION", 2*time.Hour),
		Influx: persistence.InfluxConfig{
			URL:             env("INFLUX_URL", "http://influxdb:8086"),
			Token:           env("INFLUX_TOKEN", ""),
			Org:             env("INFLUX_ORG", "sdcc"),
			Bucket:          env("INFLUX_BUCKET", "irrigation"),
			MeasurementMode: env("INFLUX_MEASUREMENT_MODE", "single"),
			MeasurementName: env("MEASUREMENT", "zone_telemetry"),
			BatchSize:       uint(envInt("INFLUX_BATCH_SIZE", 100)),
			FlushInterval:   envDuration("INFLUX_FLUSH_INTERVAL", time.Second),
		},
		LogFormat: strings.ToLower(env("LOG_FORMAT", "text")),
		LogLevel:  strings.ToLower(env("LOG_LEVEL", "info")),
	}

	if path := env("CONFIG_FILE", ""); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}
	if cfg.Strategy != "hysteresis" && cfg.Strategy != "classifier" {
		return Config{}, fmt.Errorf("unknown STRATEGY %q", cfg.Strategy)
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var o overlay
	if err := yaml.Unmarshal(raw, &o); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	if o.ThirstOn != nil {
		c.OnThreshold = *o.ThirstOn
	}
	if o.ThirstOff != nil {
		c.OffThreshold = *o.ThirstOff
	}
	if o.AutoEnabled != nil {
		c.AutoEnabled = *o.AutoEnabled
	}
	if o.Strategy != nil {
		c.Strategy = strings.ToLower(strings.TrimSpace(*o.Strategy))
	}
	if o.ModelPath != nil {
		c.ModelPath = *o.ModelPath
	}
	if o.PumpThreshold != nil {
		c.PumpThreshold = *o.PumpThreshold
	}
	return nil
}

func newLogger(format, level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
