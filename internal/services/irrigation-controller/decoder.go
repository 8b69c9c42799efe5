package irrigation_controller

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/LeonardoBeccarini/zone_irrigation/internal/model/entities"
	"github.com/LeonardoBeccarini/zone_irrigation/internal/model/messages"
)

// Telemetry keys with engine meaning; everything else goes to Reading.Aux.
const (
	keyZone     = "area_id"
	keyMoisture = "moist"
	keyPump     = "last_pump"
	keyMsgID    = "msg_id"
	keyTS       = "ts"
)

// Decoder turns raw telemetry into Readings.
type Decoder struct {
	defaultZone string
	now         func() time.Time
}

func NewDecoder(defaultZone string) *Decoder {
	return &Decoder{defaultZone: defaultZone, now: time.Now}
}

// Decode parses one telemetry document. Only a payload that is not a JSON
// object fails; missing or odd fields fall back to defaults.
func (d *Decoder) Decode(_ string, payload []byte) (messages.Reading, error) {
	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return messages.Reading{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if doc == nil {
		return messages.Reading{}, fmt.Errorf("%w: not an object", ErrMalformedPayload)
	}

	r := messages.Reading{
		ZoneID:    d.defaultZone,
		Timestamp: d.now().UTC(),
	}
	if v, ok := doc[keyZone]; ok {
		if id := zoneID(v); id != "" {
			r.ZoneID = id
		}
	}

	// moisture mancante o non numerica -> 0, quindi dryness 100
	r.Moisture = toFloat(doc[keyMoisture])
	r.Dryness = clamp(100-r.Moisture, 0, 100)

	if st, ok := reportedState(doc[keyPump]); ok {
		r.Reported = st
	}
	if s, ok := doc[keyMsgID].(string); ok {
		r.MsgID = strings.TrimSpace(s)
	}

	for k, v := range doc {
		switch k {
		case keyZone, keyMoisture, keyPump, keyMsgID, keyTS:
			continue
		}
		if r.Aux == nil {
			r.Aux = make(map[string]any, len(doc))
		}
		r.Aux[k] = v
	}
	return r, nil
}

func zoneID(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		// 0 conta come id mancante
		if t == 0 {
			return ""
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return ""
}

// toFloat converts JSON numbers and numeric strings; anything else is 0.
func toFloat(v any) float64 {
	f, _ := parseNumber(v)
	return f
}

// parseNumber reports whether v holds a finite number or numeric string.
// Decimal commas are accepted.
func parseNumber(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		p, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(t), ",", "."), 64)
		if err != nil {
			return 0, false
		}
		f = p
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// reportedState accepts exactly 0 or 1 (number, numeric string or bool).
func reportedState(v any) (entities.ActuatorState, bool) {
	var f float64
	switch t := v.(type) {
	case bool:
		if t {
			return entities.StateOn, true
		}
		return entities.StateOff, true
	case float64:
		f = t
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return "", false
		}
		f = p
	default:
		return "", false
	}
	switch f {
	case 0:
		return entities.StateOff, true
	case 1:
		return entities.StateOn, true
	}
	return "", false
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
