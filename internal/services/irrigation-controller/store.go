package irrigation_controller

import (
	"sort"
	"sync"
	"time"

	"github.com/LeonardoBeccarini/zone_irrigation/internal/model/entities"
	"github.com/LeonardoBeccarini/zone_irrigation/internal/model/messages"
)

// DefaultHistoryCapacity is the per-zone history bound.
const DefaultHistoryCapacity = 10000

// Zone is a zone record handed out with its lock held (see ZoneStore.Update).
// It must not be retained after the callback returns.
type Zone struct {
	mu sync.Mutex

	id          string
	latest      *messages.Reading
	history     *readingRing
	actuator    entities.ActuatorState
	mode        entities.Mode
	lastCommand *messages.CommandEvent
	score       *float64
}

func (z *Zone) ID() string                       { return z.id }
func (z *Zone) Actuator() entities.ActuatorState { return z.actuator }
func (z *Zone) Mode() entities.Mode              { return z.mode }

// UpsertReading appends r, makes it the latest, and applies the device
// reported pump state when present. It returns the state and mode from
// before the update.
func (z *Zone) UpsertReading(r messages.Reading) (entities.ActuatorState, entities.Mode) {
	prevActuator, prevMode := z.actuator, z.mode
	owned := r.Clone()
	z.history.push(owned)
	z.latest = &owned
	if owned.HasReport() {
		z.actuator = owned.Reported
	}
	return prevActuator, prevMode
}

func (z *Zone) SetActuatorState(s entities.ActuatorState) { z.actuator = s }
func (z *Zone) SetMode(m entities.Mode)                   { z.mode = m }

func (z *Zone) recordCommand(evt messages.CommandEvent) { z.lastCommand = &evt }

func (z *Zone) recordScore(score *float64) {
	if score != nil {
		s := *score
		z.score = &s
	}
}

// Snapshot copies the zone state. Params-derived fields are filled by the caller.
func (z *Zone) Snapshot() messages.ZoneSnapshot {
	snap := messages.ZoneSnapshot{
		ZoneID:     z.id,
		Actuator:   z.actuator,
		Mode:       z.mode,
		HistoryLen: z.history.len(),
	}
	if z.latest != nil {
		l := z.latest.Clone()
		snap.Latest = &l
	}
	if z.lastCommand != nil {
		c := *z.lastCommand
		snap.LastCommand = &c
	}
	if z.score != nil {
		s := *z.score
		snap.Score = &s
	}
	return snap
}

// ZoneStore keeps one record per zone. Each zone has its own lock; the map
// lock is only held to find or create a record.
type ZoneStore struct {
	mu          sync.RWMutex
	zones       map[string]*Zone
	capacity    int
	defaultMode func() entities.Mode
}

func NewZoneStore(capacity int, defaultMode func() entities.Mode) *ZoneStore {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	if defaultMode == nil {
		defaultMode = func() entities.Mode { return entities.ModeAuto }
	}
	return &ZoneStore{
		zones:       make(map[string]*Zone),
		capacity:    capacity,
		defaultMode: defaultMode,
	}
}

// zone returns the record for id, creating it on first reference with the
// default mode in effect at that moment.
func (s *ZoneStore) zone(id string) *Zone {
	s.mu.RLock()
	z, ok := s.zones[id]
	s.mu.RUnlock()
	if ok {
		return z
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if z, ok = s.zones[id]; ok {
		return z
	}
	z = &Zone{
		id:       id,
		history:  newReadingRing(s.capacity),
		actuator: entities.StateOff,
		mode:     s.defaultMode(),
	}
	s.zones[id] = z
	return z
}

// Update runs fn with the zone lock held. Operations on one zone are
// linearizable; different zones never block each other.
func (s *ZoneStore) Update(id string, fn func(z *Zone)) {
	z := s.zone(id)
	z.mu.Lock()
	defer z.mu.Unlock()
	fn(z)
}

func (s *ZoneStore) Get(id string) messages.ZoneSnapshot {
	var snap messages.ZoneSnapshot
	s.Update(id, func(z *Zone) { snap = z.Snapshot() })
	return snap
}

func (s *ZoneStore) UpsertReading(id string, r messages.Reading) (prev entities.ActuatorState, prevMode entities.Mode) {
	s.Update(id, func(z *Zone) { prev, prevMode = z.UpsertReading(r) })
	return prev, prevMode
}

func (s *ZoneStore) SetMode(id string, m entities.Mode) {
	s.Update(id, func(z *Zone) { z.SetMode(m) })
}

func (s *ZoneStore) SetActuatorState(id string, st entities.ActuatorState) {
	s.Update(id, func(z *Zone) { z.SetActuatorState(st) })
}

// History returns readings received at or after since, oldest first.
func (s *ZoneStore) History(id string, since time.Time) []messages.Reading {
	var out []messages.Reading
	s.Update(id, func(z *Zone) { out = z.history.since(since) })
	return out
}

// ListZones returns known zone ids, sorted.
func (s *ZoneStore) ListZones() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.zones))
	for id := range s.zones {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Len returns the number of zone records.
func (s *ZoneStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.zones)
}
