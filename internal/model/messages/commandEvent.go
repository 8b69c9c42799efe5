package messages

import (
	"time"

	"github.com/LeonardoBeccarini/zone_irrigation/internal/model/entities"
)

// Command sources.
const (
	SourceAuto   = "auto"
	SourceManual = "manual"
)

// CommandEvent records WHAT was commanded on a zone and WHY.
type CommandEvent struct {
	ZoneID    string                 `json:"area_id"`
	State     entities.ActuatorState `json:"state"`
	Order     int                    `json:"order"`
	Source    string                 `json:"source"`             // auto | manual
	Strategy  string                 `json:"strategy,omitempty"` // hysteresis | classifier
	Dryness   float64                `json:"dryness"`
	Score     *float64               `json:"pred_prob,omitempty"`
	Delivered bool                   `json:"delivered"`
	Timestamp time.Time              `json:"timestamp"`
}
