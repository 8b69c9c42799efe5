package messages

import (
	"encoding/json"
	"time"

	"github.com/LeonardoBeccarini/zone_irrigation/internal/model/entities"
)

// Reading is one decoded telemetry message. It is treated as immutable
// once the decoder returns it.
type Reading struct {
	ZoneID   string  `json:"area_id"`
	Moisture float64 `json:"moist"`
	Dryness  float64 `json:"dryness"`

	// Reported is the pump state claimed by the device; empty when absent.
	Reported entities.ActuatorState `json:"-"`

	// MsgID is an optional producer id used to drop redeliveries.
	MsgID string `json:"msg_id,omitempty"`

	// Aux carries every other telemetry field untouched (temp_c, rh, N, ...).
	Aux map[string]any `json:"-"`

	Timestamp time.Time `json:"ts"`
}

// HasReport reports whether the device sent a valid pump state.
func (r Reading) HasReport() bool {
	return r.Reported == entities.StateOn || r.Reported == entities.StateOff
}

// MarshalJSON flattens Aux into the top level so the document looks like
// the telemetry the device sent, plus the derived fields.
func (r Reading) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Aux)+6)
	for k, v := range r.Aux {
		out[k] = v
	}
	out["area_id"] = r.ZoneID
	out["moist"] = r.Moisture
	out["dryness"] = r.Dryness
	out["ts"] = r.Timestamp.UTC().Format(time.RFC3339Nano)
	if r.HasReport() {
		out["last_pump"] = r.Reported.Order()
	}
	if r.MsgID != "" {
		out["msg_id"] = r.MsgID
	}
	return json.Marshal(out)
}

// Clone returns a copy that shares nothing mutable with r.
func (r Reading) Clone() Reading {
	if r.Aux != nil {
		aux := make(map[string]any, len(r.Aux))
		for k, v := range r.Aux {
			aux[k] = v
		}
		r.Aux = aux
	}
	return r
}

// SampleConfig is published on the zone cfg topic to change the device
// sampling period.
type SampleConfig struct {
	SampleMS int `json:"SAMPLE_MS"`
}

// Encode returns the wire form of the config message.
func (c SampleConfig) Encode() ([]byte, error) {
	return json.Marshal(c)
}
