package irrigation_controller

import (
	"errors"
	"fmt"
	"sync"

	"github.com/LeonardoBeccarini/zone_irrigation/internal/model/messages"
)

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  string
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (f *fakePublisher) PublishToQos(topic string, qos byte, retained bool, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	var s string
	switch p := payload.(type) {
	case string:
		s = p
	case []byte:
		s = string(p)
	default:
		s = fmt.Sprint(p)
	}
	f.msgs = append(f.msgs, published{topic: topic, qos: qos, retained: retained, payload: s})
	return nil
}

func (f *fakePublisher) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakePublisher) sent() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.msgs...)
}

var errBrokerDown = errors.New("broker down")

// recordingObserver keeps every delivered snapshot, in delivery order.
type recordingObserver struct {
	mu    sync.Mutex
	snaps []messages.ZoneSnapshot
	err   error
	calls int
}

func (o *recordingObserver) Deliver(s messages.ZoneSnapshot) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	if o.err != nil {
		return o.err
	}
	o.snaps = append(o.snaps, s)
	return nil
}

func (o *recordingObserver) received() []messages.ZoneSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]messages.ZoneSnapshot(nil), o.snaps...)
}

func (o *recordingObserver) deliveries() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

type recordingSink struct {
	mu    sync.Mutex
	snaps []messages.ZoneSnapshot
}

func (s *recordingSink) Record(snap messages.ZoneSnapshot) {
	s.mu.Lock()
	s.snaps = append(s.snaps, snap)
	s.mu.Unlock()
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snaps)
}
