package irrigation_controller

import (
	"time"

	"github.com/LeonardoBeccarini/zone_irrigation/internal/model/messages"
)

// readingRing is a fixed-capacity FIFO; pushing onto a full ring drops the
// oldest reading. Not safe for concurrent use; the owning zone's lock guards it.
type readingRing struct {
	buf  []messages.Reading
	head int // next write position once the ring is full
	cap  int
}

func newReadingRing(capacity int) *readingRing {
	if capacity <= 0 {
		capacity = 1
	}
	// grow on demand: most zones never reach capacity
	return &readingRing{cap: capacity}
}

func (r *readingRing) push(rd messages.Reading) {
	if len(r.buf) < r.cap {
		r.buf = append(r.buf, rd)
		return
	}
	r.buf[r.head] = rd
	r.head = (r.head + 1) % r.cap
}

func (r *readingRing) len() int { return len(r.buf) }

// at returns the i-th oldest reading.
func (r *readingRing) at(i int) messages.Reading {
	if len(r.buf) < r.cap {
		return r.buf[i]
	}
	return r.buf[(r.head+i)%r.cap]
}

// since returns copies of readings with Timestamp >= cutoff, oldest first.
// A zero cutoff returns everything.
func (r *readingRing) since(cutoff time.Time) []messages.Reading {
	n := r.len()
	// arrival order is not timestamp order in general; scan everything
	out := make([]messages.Reading, 0, n)
	for i := 0; i < n; i++ {
		rd := r.at(i)
		if cutoff.IsZero() || !rd.Timestamp.Before(cutoff) {
			out = append(out, rd.Clone())
		}
	}
	return out
}
