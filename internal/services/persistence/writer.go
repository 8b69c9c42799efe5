package persistence

import (
	"log/slog"
	"sync"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api"
)

// Writer incapsula la WriteAPI asincrona e traccia l'ultimo errore di
// scrittura per /healthz e /readyz.
type Writer struct {
	api    api.WriteAPI
	logger *slog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	lastErr time.Time
	counts  map[string]int64
}

// NewWriter starts draining the asynchronous error channel of w.
func NewWriter(w api.WriteAPI, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	ww := &Writer{
		api:     w,
		logger:  logger,
		now:     time.Now,
		lastErr: time.Now().Add(-24 * time.Hour), // "lontano nel tempo"
		counts:  make(map[string]int64),
	}
	if errs := w.Errors(); errs != nil {
		go func() {
			for err := range errs {
				if err != nil {
					ww.markError()
					ww.logger.Warn("persistence: influx write error", "error", err)
				}
			}
		}()
	}
	return ww
}

func (w *Writer) markError() {
	w.mu.Lock()
	w.lastErr = w.now()
	w.mu.Unlock()
}

// LastErrorAge returns the time since the last asynchronous write error.
func (w *Writer) LastErrorAge() time.Duration {
	if w == nil {
		return 99999 * time.Hour
	}
	w.mu.RLock()
	t := w.lastErr
	w.mu.RUnlock()
	return w.now().Sub(t)
}

// MarkIngest counts points queued per zone.
func (w *Writer) MarkIngest(zoneID string) {
	if w == nil {
		return
	}
	w.mu.Lock()
	w.counts[zoneID]++
	w.mu.Unlock()
}

func (w *Writer) Count(zoneID string) int64 {
	if w == nil {
		return 0
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.counts[zoneID]
}
