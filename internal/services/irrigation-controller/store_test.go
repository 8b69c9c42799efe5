package irrigation_controller

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/zone_irrigation/internal/model/entities"
	"github.com/LeonardoBeccarini/zone_irrigation/internal/model/messages"
)

func reading(zone string, moisture float64, ts time.Time) messages.Reading {
	return messages.Reading{ZoneID: zone, Moisture: moisture, Dryness: clamp(100-moisture, 0, 100), Timestamp: ts}
}

func TestStoreLazyCreation(t *testing.T) {
	s := NewZoneStore(10, func() entities.Mode { return entities.ModeManual })

	snap := s.Get("z1")
	assert.Equal(t, "z1", snap.ZoneID)
	assert.False(t, snap.HasData())
	assert.Equal(t, entities.StateOff, snap.Actuator)
	assert.Equal(t, entities.ModeManual, snap.Mode)
	assert.Equal(t, []string{"z1"}, s.ListZones())
}

func TestStoreDefaultModeCapturedAtCreation(t *testing.T) {
	mode := entities.ModeAuto
	s := NewZoneStore(10, func() entities.Mode { return mode })
	s.Get("a")
	mode = entities.ModeManual
	s.Get("b")

	assert.Equal(t, entities.ModeAuto, s.Get("a").Mode)
	assert.Equal(t, entities.ModeManual, s.Get("b").Mode)
}

func TestStoreUpsertReturnsPreviousState(t *testing.T) {
	s := NewZoneStore(10, nil)
	now := time.Now().UTC()

	prev, mode := s.UpsertReading("z1", reading("z1", 20, now))
	assert.Equal(t, entities.StateOff, prev)
	assert.Equal(t, entities.ModeAuto, mode)

	r := reading("z1", 30, now)
	r.Reported = entities.StateOn
	prev, _ = s.UpsertReading("z1", r)
	assert.Equal(t, entities.StateOff, prev)
	assert.Equal(t, entities.StateOn, s.Get("z1").Actuator)

	// no report: state untouched
	prev, _ = s.UpsertReading("z1", reading("z1", 40, now))
	assert.Equal(t, entities.StateOn, prev)
	assert.Equal(t, entities.StateOn, s.Get("z1").Actuator)
	assert.Equal(t, 40.0, s.Get("z1").Latest.Moisture)
}

func TestStoreHistoryFIFOEviction(t *testing.T) {
	s := NewZoneStore(DefaultHistoryCapacity, nil)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	total := DefaultHistoryCapacity + 25
	for i := 0; i < total; i++ {
		s.UpsertReading("z1", reading("z1", float64(i%100), base.Add(time.Duration(i)*time.Second)))
	}

	h := s.History("z1", time.Time{})
	require.Len(t, h, DefaultHistoryCapacity)
	assert.Equal(t, base.Add(25*time.Second), h[0].Timestamp)
	assert.Equal(t, base.Add(time.Duration(total-1)*time.Second), h[len(h)-1].Timestamp)
	assert.Equal(t, DefaultHistoryCapacity, s.Get("z1").HistoryLen)
}

func TestStoreHistorySince(t *testing.T) {
	s := NewZoneStore(5, nil)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 8; i++ {
		s.UpsertReading("z1", reading("z1", float64(i), base.Add(time.Duration(i)*time.Minute)))
	}

	h := s.History("z1", base.Add(5*time.Minute))
	require.Len(t, h, 3)
	assert.Equal(t, 5.0, h[0].Moisture)
	assert.Equal(t, 7.0, h[2].Moisture)

	assert.Empty(t, s.History("other", time.Time{}))
}

func TestStoreSnapshotIsACopy(t *testing.T) {
	s := NewZoneStore(10, nil)
	r := reading("z1", 10, time.Now())
	r.Aux = map[string]any{"rh": 40.0}
	s.UpsertReading("z1", r)

	r.Aux["rh"] = 99.0
	snap := s.Get("z1")
	assert.Equal(t, 40.0, snap.Latest.Aux["rh"])

	snap.Latest.Aux["rh"] = 1.0
	assert.Equal(t, 40.0, s.Get("z1").Latest.Aux["rh"])
}

func TestStoreConcurrentZones(t *testing.T) {
	s := NewZoneStore(100, nil)
	var wg sync.WaitGroup
	for z := 0; z < 8; z++ {
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(z, i int) {
				defer wg.Done()
				id := fmt.Sprintf("z%d", z)
				s.UpsertReading(id, reading(id, float64(i), time.Now()))
			}(z, i)
		}
	}
	wg.Wait()

	assert.Equal(t, 8, s.Len())
	for _, id := range s.ListZones() {
		assert.Equal(t, 50, s.Get(id).HistoryLen)
	}
}

func TestRingSmallCapacity(t *testing.T) {
	r := newReadingRing(3)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		r.push(reading("z", float64(i), base.Add(time.Duration(i)*time.Second)))
	}
	require.Equal(t, 3, r.len())
	got := r.since(time.Time{})
	assert.Equal(t, []float64{2, 3, 4}, []float64{got[0].Moisture, got[1].Moisture, got[2].Moisture})
}
