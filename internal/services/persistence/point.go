package persistence

import (
	"strings"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/LeonardoBeccarini/zone_irrigation/internal/model/messages"
)

// Field keys written by SnapshotToPoint. Aux keys that collide are skipped.
const (
	fieldMoisture = "moist"
	fieldDryness  = "dryness"
	fieldReported = "last_pump"
	fieldPump     = "pump"
	fieldAuto     = "auto"
	fieldScore    = "pred_prob"
	tagZone       = "area_id"
	tagMode       = "mode"
)

var reservedFields = map[string]bool{
	fieldMoisture: true, fieldDryness: true, fieldReported: true,
	fieldPump: true, fieldAuto: true, fieldScore: true,
	tagZone: true, tagMode: true,
}

// SnapshotToPoint normalizza lo snapshot di una zona in un *write.Point.
// Returns nil when the snapshot carries no reading.
func SnapshotToPoint(measurement string, snap messages.ZoneSnapshot) *write.Point {
	if snap.Latest == nil {
		return nil
	}
	r := snap.Latest

	tags := map[string]string{
		tagZone: snap.ZoneID,
		tagMode: string(snap.Mode),
	}
	fields := map[string]interface{}{
		fieldMoisture: r.Moisture,
		fieldDryness:  r.Dryness,
		fieldPump:     int64(snap.Actuator.Order()),
		fieldAuto:     snap.AutoEnabled,
	}
	if r.HasReport() {
		fields[fieldReported] = int64(r.Reported.Order())
	}
	if snap.Score != nil {
		fields[fieldScore] = *snap.Score
	}
	// Influx accetta solo scalari: oggetti e liste annidate vengono scartati
	for k, v := range r.Aux {
		if reservedFields[k] {
			continue
		}
		switch v.(type) {
		case float64, string, bool:
			fields[k] = v
		}
	}
	return influxdb2.NewPoint(measurement, tags, fields, r.Timestamp)
}

func sanitizeMeasurement(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '_', r == ':', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
