package irrigation_controller

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/zone_irrigation/internal/model/entities"
	"github.com/LeonardoBeccarini/zone_irrigation/internal/model/messages"
)

func features(temp, rh, level, n, p, k, last float64) []float64 {
	return []float64{temp, rh, level, n, p, k, last}
}

func TestFallbackScorer(t *testing.T) {
	nan := math.NaN()
	tests := []struct {
		name string
		x    []float64
		want float64
	}{
		{"base", features(nan, nan, nan, nan, nan, nan, 0), 0.3},
		{"water", features(20, 80, 10, 0, 0, 0, 0), 0.6},
		{"water pump dry air", features(20, 40, 12, 0, 0, 0, 1), 0.9},
		{"pump only", features(20, 70, 2, 0, 0, 0, 1), 0.5},
		{"dry air only", features(20, 59.9, 0, 0, 0, 0, 0), 0.4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := FallbackScorer{}.PredictProba(tt.x)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, p, 1e-9)
		})
	}

	_, err := FallbackScorer{}.PredictProba([]float64{1})
	assert.Error(t, err)
}

func TestLoadLogisticModel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.yaml")
	require.NoError(t, os.WriteFile(path, []byte("weights: [0, 0, 0.5, 0, 0, 0, 1]\nbias: -3\n"), 0o644))

	m, err := LoadLogisticModel(path)
	require.NoError(t, err)
	assert.Equal(t, "logistic", m.Name())

	p, err := m.PredictProba(features(0, 0, 6, 0, 0, 0, 0))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p, 1e-9)

	// NaN features contribute nothing
	p, err = m.PredictProba(features(math.NaN(), 0, 6, 0, 0, 0, 0))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p, 1e-9)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("weights: [1, 2]\n"), 0o644))
	_, err = LoadLogisticModel(bad)
	assert.Error(t, err)

	_, err = LoadLogisticModel(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestClassifierStrategyFallback(t *testing.T) {
	s := NewClassifierStrategy(nil, 0.5, nil)
	assert.Equal(t, "no model (fallback)", s.ModelInfo())

	in := DecisionInput{
		Reading:  messages.Reading{ZoneID: "z1", Aux: map[string]any{"water_level": 15.0, "rh": "40"}},
		Actuator: entities.StateOff,
		Mode:     entities.ModeAuto,
		Params:   entities.DefaultControlParams(),
	}
	d := s.Decide(in)
	require.NotNil(t, d.Score)
	assert.InDelta(t, 0.7, *d.Score, 1e-9)
	assert.True(t, d.Issue)
	assert.Equal(t, entities.StateOn, d.Command)

	// already on: no command, score still reported
	in.Actuator = entities.StateOn
	d = s.Decide(in)
	assert.False(t, d.Issue)
	require.NotNil(t, d.Score)
	// last_pump follows the current state when the device did not report
	assert.InDelta(t, 0.9, *d.Score, 1e-9)
}

func TestClassifierStrategyGating(t *testing.T) {
	s := NewClassifierStrategy(nil, 0.5, nil)
	in := DecisionInput{
		Reading:  messages.Reading{Aux: map[string]any{"water_level": 15.0}},
		Actuator: entities.StateOff,
		Mode:     entities.ModeManual,
		Params:   entities.DefaultControlParams(),
	}
	assert.False(t, s.Decide(in).Issue)

	in.Mode = entities.ModeAuto
	in.Params.AutoEnabled = false
	assert.False(t, s.Decide(in).Issue)
}

func TestClassifierStrategyTurnsOff(t *testing.T) {
	s := NewClassifierStrategy(nil, 0.5, nil)
	d := s.Decide(DecisionInput{
		Reading:  messages.Reading{Reported: entities.StateOff, Aux: map[string]any{"rh": 90.0}},
		Actuator: entities.StateOn,
		Mode:     entities.ModeAuto,
		Params:   entities.DefaultControlParams(),
	})
	assert.True(t, d.Issue)
	assert.Equal(t, entities.StateOff, d.Command)
	assert.InDelta(t, 0.3, *d.Score, 1e-9)
}

type brokenModel struct{}

func (brokenModel) Name() string                              { return "broken" }
func (brokenModel) PredictProba(_ []float64) (float64, error) { return math.NaN(), nil }

func TestClassifierStrategyModelFailureUsesFallback(t *testing.T) {
	s := NewClassifierStrategy(brokenModel{}, 0.5, nil)
	assert.Equal(t, "loaded broken", s.ModelInfo())
	d := s.Decide(DecisionInput{Actuator: entities.StateOff, Mode: entities.ModeAuto, Params: entities.DefaultControlParams()})
	require.NotNil(t, d.Score)
	assert.InDelta(t, 0.3, *d.Score, 1e-9)
}
