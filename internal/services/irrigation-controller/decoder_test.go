package irrigation_controller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/zone_irrigation/internal/model/entities"
)

func newTestDecoder() *Decoder {
	d := NewDecoder("area-tn-001")
	d.now = func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) }
	return d
}

func TestDecodeFullReading(t *testing.T) {
	d := newTestDecoder()
	r, err := d.Decode("chrab/z1/telemetry",
		[]byte(`{"area_id":"z1","moist":20,"temp_c":21.5,"rh":55,"last_pump":1,"msg_id":"m-1","ts":123}`))
	require.NoError(t, err)

	assert.Equal(t, "z1", r.ZoneID)
	assert.Equal(t, 20.0, r.Moisture)
	assert.Equal(t, 80.0, r.Dryness)
	assert.Equal(t, entities.StateOn, r.Reported)
	assert.Equal(t, "m-1", r.MsgID)
	assert.Equal(t, map[string]any{"temp_c": 21.5, "rh": 55.0}, r.Aux)
	assert.Equal(t, time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC), r.Timestamp)
}

func TestDecodeZoneFallback(t *testing.T) {
	d := newTestDecoder()
	cases := map[string]string{
		`{"moist":10}`:                "area-tn-001",
		`{"area_id":"","moist":10}`:   "area-tn-001",
		`{"area_id":"  ","moist":10}`: "area-tn-001",
		`{"area_id":null}`:            "area-tn-001",
		`{"area_id":7}`:               "7",
		`{"area_id":0}`:               "area-tn-001",
		`{"area_id":false}`:           "area-tn-001",
		`{"area_id":" z2 "}`:          "z2",
	}
	for payload, want := range cases {
		r, err := d.Decode("t", []byte(payload))
		require.NoError(t, err, payload)
		assert.Equal(t, want, r.ZoneID, payload)
	}
}

func TestDecodeMoisture(t *testing.T) {
	d := newTestDecoder()
	tests := []struct {
		payload  string
		moisture float64
		dryness  float64
	}{
		{`{}`, 0, 100},
		{`{"moist":"abc"}`, 0, 100},
		{`{"moist":null}`, 0, 100},
		{`{"moist":true}`, 0, 100},
		{`{"moist":"45,5"}`, 45.5, 54.5},
		{`{"moist":" 60 "}`, 60, 40},
		{`{"moist":150}`, 150, 0},
		{`{"moist":-10}`, -10, 100},
		{`{"moist":100}`, 100, 0},
	}
	for _, tt := range tests {
		r, err := d.Decode("t", []byte(tt.payload))
		require.NoError(t, err, tt.payload)
		assert.Equal(t, tt.moisture, r.Moisture, tt.payload)
		assert.InDelta(t, tt.dryness, r.Dryness, 1e-9, tt.payload)
	}
}

func TestDecodeReportedState(t *testing.T) {
	d := newTestDecoder()
	tests := []struct {
		payload string
		want    entities.ActuatorState
	}{
		{`{"last_pump":1}`, entities.StateOn},
		{`{"last_pump":0}`, entities.StateOff},
		{`{"last_pump":"1"}`, entities.StateOn},
		{`{"last_pump":true}`, entities.StateOn},
		{`{"last_pump":false}`, entities.StateOff},
		{`{"last_pump":2}`, ""},
		{`{"last_pump":0.5}`, ""},
		{`{"last_pump":"on"}`, ""},
		{`{"last_pump":null}`, ""},
		{`{}`, ""},
	}
	for _, tt := range tests {
		r, err := d.Decode("t", []byte(tt.payload))
		require.NoError(t, err, tt.payload)
		assert.Equal(t, tt.want, r.Reported, tt.payload)
		assert.Equal(t, tt.want != "", r.HasReport(), tt.payload)
	}
}

func TestDecodeMalformed(t *testing.T) {
	d := newTestDecoder()
	for _, payload := range []string{``, `not json`, `[1,2]`, `"str"`, `42`, `null`, `{"moist":`} {
		_, err := d.Decode("t", []byte(payload))
		assert.ErrorIs(t, err, ErrMalformedPayload, payload)
	}
}
