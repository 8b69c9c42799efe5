package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Broker.Host)
	assert.Equal(t, 1883, cfg.Broker.Port)
	assert.Equal(t, "chrab/+/telemetry", cfg.TelemetryTopic)
	assert.Equal(t, "chrab/{zone}/cmd", cfg.CmdTopicTemplate)
	assert.Equal(t, "area-tn-001", cfg.DefaultZone)
	assert.Equal(t, 70.0, cfg.OnThreshold)
	assert.Equal(t, 30.0, cfg.OffThreshold)
	assert.True(t, cfg.AutoEnabled)
	assert.Equal(t, 10000, cfg.HistoryCapacity)
	assert.Equal(t, "hysteresis", cfg.Strategy)
	assert.Equal(t, 0.5, cfg.PumpThreshold)
	assert.Equal(t, 2*time.Second, cfg.PublishTimeout)
	assert.Zero(t, cfg.DedupTTL)
	assert.False(t, cfg.Influx.Enabled())
}

func TestLoadConfigEnv(t *testing.T) {
	t.Setenv("MQTT_HOST", "broker")
	t.Setenv("MQTT_PORT", "1884")
	t.Setenv("THIRST_ON", "65.5")
	t.Setenv("THIRST_OFF", "20")
	t.Setenv("AUTO_ENABLED", "0")
	t.Setenv("STRATEGY", "Classifier")
	t.Setenv("PUBLISH_TIMEOUT_MS", "750")
	t.Setenv("DEDUP_TTL", "2m")
	t.Setenv("HISTORY_CAPACITY", "not-a-number")
	t.Setenv("INFLUX_TOKEN", "secret")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "broker", cfg.Broker.Host)
	assert.Equal(t, 1884, cfg.Broker.Port)
	assert.Equal(t, "tcp://broker:1884", cfg.Broker.Addr())
	assert.Equal(t, 65.5, cfg.OnThreshold)
	assert.Equal(t, 20.0, cfg.OffThreshold)
	assert.False(t, cfg.AutoEnabled)
	assert.Equal(t, "classifier", cfg.Strategy)
	assert.Equal(t, 750*time.Millisecond, cfg.PublishTimeout)
	assert.Equal(t, 2*time.Minute, cfg.DedupTTL)
	assert.Equal(t, 10000, cfg.HistoryCapacity, "unparsable values keep the default")
	assert.True(t, cfg.Influx.Enabled())
}

func TestLoadConfigUnknownStrategy(t *testing.T) {
	t.Setenv("STRATEGY", "random")
	_, err := loadConfig()
	assert.ErrorContains(t, err, "unknown STRATEGY")
}

func TestConfigFileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "irrigation.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
thirst_on: 80
thirst_off: 40
auto_enabled: false
strategy: classifier
model_path: /models/pump.yaml
`), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("THIRST_ON", "60")
	t.Setenv("PUMP_THRESHOLD", "0.7")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, 80.0, cfg.OnThreshold, "file wins over env")
	assert.Equal(t, 40.0, cfg.OffThreshold)
	assert.False(t, cfg.AutoEnabled)
	assert.Equal(t, "classifier", cfg.Strategy)
	assert.Equal(t, "/models/pump.yaml", cfg.ModelPath)
	assert.Equal(t, 0.7, cfg.PumpThreshold, "keys missing from the file keep the env value")
}

func TestConfigFileErrors(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := loadConfig()
	assert.ErrorContains(t, err, "read config file")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("thirst_on: [1, 2"), 0o600))
	t.Setenv("CONFIG_FILE", path)
	_, err = loadConfig()
	assert.ErrorContains(t, err, "parse config file")
}

func TestEnvDuration(t *testing.T) {
	t.Setenv("X_DUR", "1m30s")
	assert.Equal(t, 90*time.Second, envDuration("X_DUR", 0))
	t.Setenv("X_DUR", "250")
	assert.Equal(t, 250*time.Millisecond, envDuration("X_DUR", 0))
	t.Setenv("X_DUR", "soon")
	assert.Equal(t, time.Second, envDuration("X_DUR", time.Second))
}

func TestBuildStrategy(t *testing.T) {
	logger := newLogger("text", "error")
	assert.Equal(t, "hysteresis", buildStrategy(Config{Strategy: "hysteresis"}, logger).Name())

	s := buildStrategy(Config{Strategy: "classifier", ModelPath: "/does/not/exist.yaml", PumpThreshold: 0.5}, logger)
	assert.Equal(t, "classifier", s.Name())

	path := filepath.Join(t.TempDir(), "model.yaml")
	require.NoError(t, os.WriteFile(path, []byte("weights: [0, 0, 0, 0, 0, 0, 1]\nbias: -0.5\n"), 0o600))
	s = buildStrategy(Config{Strategy: "classifier", ModelPath: path, PumpThreshold: 0.5}, logger)
	assert.Equal(t, "classifier", s.Name())
}
