// Package entities internal/model/entities/policy.go
package entities

// ControlParams holds the process-wide dryness thresholds and auto flags.
// Thresholds are shared by every zone; mode is per zone.
type ControlParams struct {
	OnThreshold  float64 `json:"on" yaml:"on"`   // dryness above this turns the pump on
	OffThreshold float64 `json:"off" yaml:"off"` // dryness below this turns the pump off
	AutoEnabled  bool    `json:"auto" yaml:"auto"`
	DefaultMode  Mode    `json:"default_mode" yaml:"default_mode"` // captured by zones at creation
}

// DefaultControlParams returns the 70/30 hysteresis with auto mode on.
func DefaultControlParams() ControlParams {
	return ControlParams{
		OnThreshold:  70,
		OffThreshold: 30,
		AutoEnabled:  true,
		DefaultMode:  ModeAuto,
	}
}

// Valid reports whether the on threshold is above the off threshold.
func (p ControlParams) Valid() bool {
	return p.OnThreshold > p.OffThreshold
}
