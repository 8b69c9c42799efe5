package messages

import (
	"time"

	"github.com/LeonardoBeccarini/zone_irrigation/internal/model/entities"
)

// Thresholds mirrors the dryness thresholds in effect when a snapshot was taken.
type Thresholds struct {
	On  float64 `json:"on"`
	Off float64 `json:"off"`
}

// ZoneSnapshot is the observable state of a zone at a point in time.
type ZoneSnapshot struct {
	ZoneID      string                 `json:"area_id"`
	Latest      *Reading               `json:"latest"`
	Actuator    entities.ActuatorState `json:"pump"`
	Mode        entities.Mode          `json:"mode"`
	AutoEnabled bool                   `json:"auto"`
	Thresholds  Thresholds             `json:"thr"`
	LastCommand *CommandEvent          `json:"last_command,omitempty"`
	Score       *float64               `json:"pred_prob,omitempty"`
	HistoryLen  int                    `json:"history_len"`
	Timestamp   time.Time              `json:"ts"`
}

// HasData reports whether the zone has received at least one reading.
func (s ZoneSnapshot) HasData() bool {
	return s.Latest != nil
}
