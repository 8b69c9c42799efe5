package irrigation_controller

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/LeonardoBeccarini/zone_irrigation/internal/model/entities"
)

// FeatureNames is the feature vector order fed to classifiers.
var FeatureNames = []string{"temp_c", "rh", "water_level", "N", "P", "K", "last_pump"}

// Classifier returns p(pump on) for one feature vector. Missing features are NaN.
type Classifier interface {
	Name() string
	PredictProba(features []float64) (float64, error)
}

// FallbackScorer is the rule used when no trained model is available.
// Its weights are placeholders, not a tuned policy.
type FallbackScorer struct{}

func (FallbackScorer) Name() string { return "fallback" }

func (FallbackScorer) PredictProba(x []float64) (float64, error) {
	if len(x) != len(FeatureNames) {
		return 0, fmt.Errorf("fallback: want %d features, got %d", len(FeatureNames), len(x))
	}
	rh, level, last := x[1], x[2], x[6]
	score := 0.3
	if level >= 10 {
		score += 0.3
	}
	if last >= 0.5 {
		score += 0.2
	}
	if rh < 60 {
		score += 0.1
	}
	return math.Min(math.Max(score, 0.01), 0.99), nil
}

// LogisticModel is a linear model squashed through the logistic function.
// Missing (NaN) features contribute nothing.
type LogisticModel struct {
	Weights []float64 `yaml:"weights"`
	Bias    float64   `yaml:"bias"`
}

func (m *LogisticModel) Name() string { return "logistic" }

func (m *LogisticModel) PredictProba(x []float64) (float64, error) {
	if len(x) != len(m.Weights) {
		return 0, fmt.Errorf("logistic: want %d features, got %d", len(m.Weights), len(x))
	}
	z := m.Bias
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		z += m.Weights[i] * v
	}
	return 1 / (1 + math.Exp(-z)), nil
}

// LoadLogisticModel reads weights (in FeatureNames order) and bias from YAML.
func LoadLogisticModel(path string) (*LogisticModel, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	var m LogisticModel
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse model %s: %w", path, err)
	}
	if len(m.Weights) != len(FeatureNames) {
		return nil, fmt.Errorf("model %s: want %d weights, got %d", path, len(FeatureNames), len(m.Weights))
	}
	return &m, nil
}

// ClassifierStrategy turns a probability into a desired pump state and
// commands only when that differs from the current one.
type ClassifierStrategy struct {
	model     Classifier
	fallback  Classifier
	threshold float64
	logger    *slog.Logger
}

// NewClassifierStrategy uses model when non-nil, the fallback scorer otherwise.
func NewClassifierStrategy(model Classifier, threshold float64, logger *slog.Logger) *ClassifierStrategy {
	if logger == nil {
		logger = slog.Default()
	}
	if threshold <= 0 || threshold > 1 {
		threshold = 0.5
	}
	return &ClassifierStrategy{model: model, fallback: FallbackScorer{}, threshold: threshold, logger: logger}
}

func (c *ClassifierStrategy) Name() string { return "classifier" }

// ModelInfo describes the active model.
func (c *ClassifierStrategy) ModelInfo() string {
	if c.model == nil {
		return "no model (" + c.fallback.Name() + ")"
	}
	return "loaded " + c.model.Name()
}

func (c *ClassifierStrategy) Decide(in DecisionInput) Decision {
	x := c.features(in)
	p, err := c.predict(x)
	if err != nil {
		c.logger.Warn("controller: classifier failed, no decision", "zone", in.Reading.ZoneID, "error", err)
		return Decision{}
	}
	d := Decision{Score: &p}
	if !in.Params.AutoEnabled || in.Mode != entities.ModeAuto {
		return d
	}
	want := entities.StateOff
	if p >= c.threshold {
		want = entities.StateOn
	}
	if want != in.Actuator {
		d.Command, d.Issue = want, true
	}
	return d
}

func (c *ClassifierStrategy) predict(x []float64) (float64, error) {
	if c.model != nil {
		p, err := c.model.PredictProba(x)
		if err == nil && !math.IsNaN(p) {
			return p, nil
		}
		if err == nil {
			err = errors.New("model returned NaN")
		}
		c.logger.Warn("controller: model prediction failed, using fallback", "model", c.model.Name(), "error", err)
	}
	return c.fallback.PredictProba(x)
}

// features builds the vector from the reading's auxiliary fields; last_pump
// is the device report when present, else the pre-update pump state.
func (c *ClassifierStrategy) features(in DecisionInput) []float64 {
	x := make([]float64, len(FeatureNames))
	for i, name := range FeatureNames[:len(FeatureNames)-1] {
		x[i] = math.NaN()
		if v, ok := in.Reading.Aux[name]; ok {
			if f, ok := parseNumber(v); ok {
				x[i] = f
			}
		}
	}
	last := in.Actuator
	if in.Reading.HasReport() {
		last = in.Reading.Reported
	}
	x[len(x)-1] = float64(last.Order())
	return x
}
