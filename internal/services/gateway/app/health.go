package app

import (
	"encoding/json"
	"net/http"
	"time"
)

// recentWriteError is how long a sink write error keeps /healthz degraded.
const recentWriteError = 30 * time.Second

type healthHandler struct {
	broker BrokerStatus
	sink   SinkStatus
}

func NewHealthHandler(b BrokerStatus, s SinkStatus) http.Handler {
	return &healthHandler{broker: b, sink: s}
}

func (h *healthHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	type status struct {
		Status          string   `json:"status"`
		MQTTConnected   bool     `json:"mqtt_connected"`
		InfluxEnabled   bool     `json:"influx_enabled"`
		LastWriteErrorS *float64 `json:"last_write_error_age_sec,omitempty"`
	}
	st := status{
		MQTTConnected: h.broker != nil && h.broker.IsConnectionOpen(),
		InfluxEnabled: h.sink != nil,
	}
	sinkOK := true
	if h.sink != nil {
		age := h.sink.LastErrorAge()
		secs := age.Seconds()
		st.LastWriteErrorS = &secs
		sinkOK = age > recentWriteError
	}

	// ok se broker connesso e nessun errore recente di scrittura
	switch {
	case st.MQTTConnected && sinkOK:
		st.Status = "ok"
	case st.MQTTConnected || (h.sink != nil && sinkOK):
		st.Status = "degraded"
	default:
		st.Status = "down"
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(st)
}

// readyHandler: 200 solo se tutte le dipendenze sono ok.
type readyHandler struct {
	broker   BrokerStatus
	sink     SinkStatus
	minError time.Duration
}

func NewReadyHandler(b BrokerStatus, s SinkStatus, minOkErrorAge time.Duration) http.Handler {
	return &readyHandler{broker: b, sink: s, minError: minOkErrorAge}
}

func (h *readyHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	ready := h.broker != nil && h.broker.IsConnectionOpen() &&
		(h.sink == nil || h.sink.LastErrorAge() > h.minError)
	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(struct {
		Ready bool `json:"ready"`
	}{Ready: ready})
}
