package persistence

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/influxdata/influxdb-client-go/v2/api/query"

	"github.com/LeonardoBeccarini/zone_irrigation/internal/model/entities"
	"github.com/LeonardoBeccarini/zone_irrigation/internal/model/messages"
)

// maxHistoryRows matches the in-memory history bound.
const maxHistoryRows = 10000

func buildFlux(bucket, measurement, zoneID string, minutes int) string {
	return fmt.Sprintf(`
from(bucket: %q)
  |> range(start: -%dm)
  |> filter(fn: (r) => r._measurement == %q and r.area_id == %q)
  |> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")
  |> sort(columns: ["_time"])
  |> limit(n: %d)
`, bucket, minutes, measurement, zoneID, maxHistoryRows)
}

// columns Influx adds to every pivoted row, plus the engine-state fields
// that are not part of the original reading.
var nonReadingColumns = map[string]bool{
	"_start": true, "_stop": true, "_time": true, "_measurement": true,
	"result": true, "table": true,
	tagZone: true, tagMode: true, fieldPump: true, fieldAuto: true, fieldScore: true,
}

// recordToReading rebuilds a Reading from one pivoted row.
func recordToReading(rec *query.FluxRecord) messages.Reading {
	r := messages.Reading{Timestamp: rec.Time().UTC()}
	if v, ok := rec.ValueByKey(tagZone).(string); ok {
		r.ZoneID = v
	}
	for k, v := range rec.Values() {
		switch k {
		case fieldMoisture:
			r.Moisture = asFloat(v)
		case fieldDryness:
			r.Dryness = asFloat(v)
		case fieldReported:
			if v != nil {
				r.Reported = entities.StateFromOrder(int(asFloat(v)))
			}
		default:
			if nonReadingColumns[k] || v == nil {
				continue
			}
			if r.Aux == nil {
				r.Aux = make(map[string]any)
			}
			r.Aux[k] = v
		}
	}
	return r
}

func asFloat(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int64:
		return float64(t)
	case uint64:
		return float64(t)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return f
		}
	}
	return 0
}
