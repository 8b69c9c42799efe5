package irrigation_controller

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/LeonardoBeccarini/zone_irrigation/internal/model/messages"
)

var (
	// ErrObserverSlow: the observer buffer was full at delivery time.
	ErrObserverSlow = errors.New("observer too slow")
	// ErrObserverClosed: the observer was closed by its owner.
	ErrObserverClosed = errors.New("observer closed")
)

// Observer receives zone snapshots. Deliver must not block; a non-nil
// error unregisters the observer.
type Observer interface {
	Deliver(snap messages.ZoneSnapshot) error
}

// Handle identifies one registration.
type Handle struct {
	ID   uuid.UUID
	Zone string
}

// Broadcaster fans snapshots out to per-zone observer sets.
type Broadcaster struct {
	mu        sync.RWMutex
	observers map[string]map[uuid.UUID]Observer

	metrics *Metrics
	logger  *slog.Logger
}

func NewBroadcaster(metrics *Metrics, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		observers: make(map[string]map[uuid.UUID]Observer),
		metrics:   metrics,
		logger:    logger,
	}
}

func (b *Broadcaster) Subscribe(zoneID string, obs Observer) Handle {
	h := Handle{ID: uuid.New(), Zone: zoneID}
	b.mu.Lock()
	set, ok := b.observers[zoneID]
	if !ok {
		set = make(map[uuid.UUID]Observer)
		b.observers[zoneID] = set
	}
	set[h.ID] = obs
	b.mu.Unlock()
	b.metrics.observerAdded()
	return h
}

// Unsubscribe reports whether h was still registered.
func (b *Broadcaster) Unsubscribe(h Handle) bool {
	return b.remove(h, false)
}

func (b *Broadcaster) remove(h Handle, dropped bool) bool {
	b.mu.Lock()
	set, ok := b.observers[h.Zone]
	if ok {
		_, ok = set[h.ID]
		delete(set, h.ID)
		if len(set) == 0 {
			delete(b.observers, h.Zone)
		}
	}
	b.mu.Unlock()
	if ok {
		b.metrics.observerRemoved(dropped)
	}
	return ok
}

// Publish delivers snap to every observer of its zone. Observers that fail
// are removed; the others are unaffected.
func (b *Broadcaster) Publish(snap messages.ZoneSnapshot) {
	b.mu.RLock()
	set := b.observers[snap.ZoneID]
	targets := make(map[uuid.UUID]Observer, len(set))
	for id, o := range set {
		targets[id] = o
	}
	b.mu.RUnlock()

	for id, o := range targets {
		if err := o.Deliver(snap); err != nil {
			b.logger.Debug("broadcaster: dropping observer", "zone", snap.ZoneID, "observer", id, "error", err)
			b.remove(Handle{ID: id, Zone: snap.ZoneID}, true)
		}
	}
}

// Count returns the number of observers registered for zoneID.
func (b *Broadcaster) Count(zoneID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.observers[zoneID])
}

// Total returns the number of observers across all zones.
func (b *Broadcaster) Total() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, set := range b.observers {
		n += len(set)
	}
	return n
}

// ChanObserver buffers snapshots on a channel for a single consumer.
type ChanObserver struct {
	mu     sync.Mutex
	ch     chan messages.ZoneSnapshot
	closed bool
}

func NewChanObserver(buffer int) *ChanObserver {
	if buffer <= 0 {
		buffer = 16
	}
	return &ChanObserver{ch: make(chan messages.ZoneSnapshot, buffer)}
}

// C is closed after Close or after a delivery found the buffer full.
func (o *ChanObserver) C() <-chan messages.ZoneSnapshot { return o.ch }

func (o *ChanObserver) Deliver(snap messages.ZoneSnapshot) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrObserverClosed
	}
	select {
	case o.ch <- snap:
		return nil
	default:
		// the broadcaster drops us on error; closing tells the reader
		o.closed = true
		close(o.ch)
		return ErrObserverSlow
	}
}

func (o *ChanObserver) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.ch)
	}
}
