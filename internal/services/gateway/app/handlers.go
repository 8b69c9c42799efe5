package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/LeonardoBeccarini/zone_irrigation/internal/model/entities"
	"github.com/LeonardoBeccarini/zone_irrigation/internal/model/messages"
	controller "github.com/LeonardoBeccarini/zone_irrigation/internal/services/irrigation-controller"
)

const defaultHistoryMinutes = 60

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (g *Gateway) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, controller.ErrInvalidParameter) || errors.Is(err, entities.ErrInvalidMode) {
		status = http.StatusBadRequest
	} else {
		g.logger.Error("gateway: request failed", "error", err)
	}
	writeJSON(w, status, ErrorResponse{OK: false, Error: err.Error()})
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", controller.ErrInvalidParameter, fmt.Sprintf(format, args...))
}

// zoneParam returns area_id or the default zone when absent.
func (g *Gateway) zoneParam(r *http.Request) string {
	if z := strings.TrimSpace(r.URL.Query().Get("area_id")); z != "" {
		return z
	}
	return g.cfg.DefaultZone
}

func floatParam(r *http.Request, key string) (float64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, invalid("missing %s", key)
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
	if err != nil {
		return 0, invalid("%s is not a number", key)
	}
	return f, nil
}

func intParam(r *http.Request, key string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, invalid("missing %s", key)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalid("%s is not an integer", key)
	}
	return n, nil
}

func (g *Gateway) HandlePing(w http.ResponseWriter, _ *http.Request) {
	st := g.api.Status()
	zones, modes := st.Zones, st.Modes
	if len(zones) == 0 {
		// nessuna zona ancora vista: riporta quella di default
		zones = []string{g.cfg.DefaultZone}
		modes = map[string]entities.Mode{g.cfg.DefaultZone: st.Params.DefaultMode}
	}
	writeJSON(w, http.StatusOK, PingResponse{
		OK:            true,
		MQTT:          g.cfg.BrokerAddr,
		MQTTConnected: g.cfg.Broker != nil && g.cfg.Broker.IsConnectionOpen(),
		Auto:          st.Params.AutoEnabled,
		Thr:           messages.Thresholds{On: st.Params.OnThreshold, Off: st.Params.OffThreshold},
		Zones:         zones,
		Modes:         modes,
		Strategy:      st.Strategy,
		Observers:     st.Observers,
	})
}

func (g *Gateway) HandleLatest(w http.ResponseWriter, r *http.Request) {
	snap, err := g.api.QueryLatest(g.zoneParam(r))
	if err != nil {
		g.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, LatestResponse{OK: snap.HasData(), Data: snap})
}

// HandleHistory serves the in-memory window by default. source=influx (or
// auto) tries the durable store first and falls back to memory.
func (g *Gateway) HandleHistory(w http.ResponseWriter, r *http.Request) {
	zone := g.zoneParam(r)
	minutes := defaultHistoryMinutes
	if r.URL.Query().Has("minutes") {
		n, err := intParam(r, "minutes")
		if err != nil {
			g.writeError(w, err)
			return
		}
		if n <= 0 {
			g.writeError(w, invalid("minutes must be positive"))
			return
		}
		minutes = n
	}
	window := time.Duration(minutes) * time.Minute

	source := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("source")))
	switch source {
	case "", "memory", "influx", "auto":
	default:
		g.writeError(w, invalid("unknown source %q", source))
		return
	}

	if (source == "influx" || source == "auto") && g.cfg.History != nil {
		if rows, err := g.durableHistory(r.Context(), zone, window); err == nil {
			w.Header().Set("X-Data-Source", "influx")
			writeJSON(w, http.StatusOK, HistoryResponse{OK: true, Source: "influx", Data: rows})
			return
		}
	}

	rows, err := g.api.QueryHistory(zone, window)
	if err != nil {
		g.writeError(w, err)
		return
	}
	w.Header().Set("X-Data-Source", "memory")
	writeJSON(w, http.StatusOK, HistoryResponse{OK: true, Source: "memory", Data: rows})
}

func (g *Gateway) durableHistory(ctx context.Context, zone string, window time.Duration) ([]messages.Reading, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.HTTPTimeout)
	defer cancel()
	res, err := g.historyCB.Execute(func() (any, error) {
		return g.cfg.History.QueryHistory(ctx, zone, window)
	})
	if err != nil {
		g.logger.Warn("gateway: durable history unavailable, using memory", "zone", zone, "breaker", g.historyCB.State().String(), "error", err)
		return nil, err
	}
	rows := res.([]messages.Reading)
	if rows == nil {
		rows = []messages.Reading{}
	}
	return rows, nil
}

func (g *Gateway) HandleCommand(w http.ResponseWriter, r *http.Request) {
	zone := g.zoneParam(r)
	order, err := intParam(r, "order")
	if err != nil {
		g.writeError(w, err)
		return
	}
	evt, err := g.api.IssueManualCommand(zone, order)
	if err != nil && !controller.IsDeliveryUncertain(err) {
		g.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CommandResponse{OK: true, ZoneID: zone, Order: evt.Order, Delivered: evt.Delivered})
}

func (g *Gateway) HandleAuto(w http.ResponseWriter, r *http.Request) {
	enabled, err := strconv.ParseBool(strings.TrimSpace(r.URL.Query().Get("enabled")))
	if err != nil {
		g.writeError(w, invalid("enabled must be 0 or 1"))
		return
	}
	p := g.api.SetAutoEnabled(enabled)
	writeJSON(w, http.StatusOK, AutoResponse{OK: true, Auto: p.AutoEnabled})
}

func (g *Gateway) HandleThresholds(w http.ResponseWriter, r *http.Request) {
	on, err := floatParam(r, "thirst_on")
	if err != nil {
		g.writeError(w, err)
		return
	}
	off, err := floatParam(r, "thirst_off")
	if err != nil {
		g.writeError(w, err)
		return
	}
	p, err := g.api.SetThresholds(on, off)
	if err != nil {
		g.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ThresholdsResponse{OK: true, Thr: messages.Thresholds{On: p.OnThreshold, Off: p.OffThreshold}})
}

func (g *Gateway) HandleMode(w http.ResponseWriter, r *http.Request) {
	zone := g.zoneParam(r)
	mode, err := entities.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		g.writeError(w, err)
		return
	}
	snap, err := g.api.SetMode(zone, mode)
	if err != nil {
		g.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ModeResponse{OK: true, ZoneID: zone, Mode: snap.Mode})
}

func (g *Gateway) HandleSampleMS(w http.ResponseWriter, r *http.Request) {
	zone := g.zoneParam(r)
	ms, err := intParam(r, "ms")
	if err != nil {
		g.writeError(w, err)
		return
	}
	applied, err := g.api.ConfigureSampling(zone, ms)
	if err != nil && !controller.IsDeliveryUncertain(err) {
		g.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SampleResponse{OK: true, ZoneID: zone, SampleMS: applied, Delivered: err == nil})
}
