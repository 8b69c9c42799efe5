package irrigation_controller

import (
	"log/slog"
	"sync"

	"github.com/LeonardoBeccarini/zone_irrigation/internal/model/entities"
	"github.com/LeonardoBeccarini/zone_irrigation/internal/model/messages"
)

// DecisionInput is what a strategy sees for one reading: the reading, the
// pump state and mode from before the reading was stored, and a params copy.
type DecisionInput struct {
	Reading  messages.Reading
	Actuator entities.ActuatorState
	Mode     entities.Mode
	Params   entities.ControlParams
}

// Decision is a strategy's verdict. Issue is false when no command is due.
type Decision struct {
	Command entities.ActuatorState
	Issue   bool
	Score   *float64 // classifier probability, nil for hysteresis
}

// Strategy decides whether a reading warrants an actuation command.
type Strategy interface {
	Name() string
	Decide(in DecisionInput) Decision
}

// Decide is the hysteresis rule. The pump only flips when dryness crosses
// the far threshold; the band off <= dryness <= on never yields a command.
func Decide(dryness float64, current entities.ActuatorState, mode entities.Mode, on, off float64, autoEnabled bool) (entities.ActuatorState, bool) {
	if !autoEnabled || mode != entities.ModeAuto {
		return "", false
	}
	switch {
	case dryness < off && current == entities.StateOn:
		return entities.StateOff, true
	case dryness > on && current == entities.StateOff:
		return entities.StateOn, true
	}
	return "", false
}

// HysteresisStrategy applies Decide to the reading's dryness.
type HysteresisStrategy struct {
	logger *slog.Logger

	mu     sync.Mutex
	warned entities.ControlParams
}

func NewHysteresisStrategy(logger *slog.Logger) *HysteresisStrategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &HysteresisStrategy{logger: logger}
}

func (h *HysteresisStrategy) Name() string { return "hysteresis" }

func (h *HysteresisStrategy) Decide(in DecisionInput) Decision {
	p := in.Params
	if !p.Valid() {
		h.warnInverted(p)
	}
	cmd, ok := Decide(in.Reading.Dryness, in.Actuator, in.Mode, p.OnThreshold, p.OffThreshold, p.AutoEnabled)
	return Decision{Command: cmd, Issue: ok}
}

// warnInverted logs once per distinct inverted threshold pair; the rule
// is still evaluated as configured.
func (h *HysteresisStrategy) warnInverted(p entities.ControlParams) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.warned == p {
		return
	}
	h.warned = p
	h.logger.Warn("controller: on threshold not above off threshold, evaluating as configured",
		"on", p.OnThreshold, "off", p.OffThreshold)
}
