package app

import (
	"github.com/LeonardoBeccarini/zone_irrigation/internal/model/entities"
	"github.com/LeonardoBeccarini/zone_irrigation/internal/model/messages"
)

// ---------- Response payloads ----------

type PingResponse struct {
	OK            bool                     `json:"ok"`
	MQTT          string                   `json:"mqtt"`
	MQTTConnected bool                     `json:"mqtt_connected"`
	Auto          bool                     `json:"auto"`
	Thr           messages.Thresholds      `json:"thr"`
	Zones         []string                 `json:"zones"`
	Modes         map[string]entities.Mode `json:"modes"`
	Strategy      string                   `json:"strategy"`
	Observers     int                      `json:"observers"`
}

// LatestResponse: ok is false when the zone has not reported yet.
type LatestResponse struct {
	OK   bool                  `json:"ok"`
	Data messages.ZoneSnapshot `json:"data"`
}

type HistoryResponse struct {
	OK     bool               `json:"ok"`
	Source string             `json:"source"` // memory | influx
	Data   []messages.Reading `json:"data"`
}

type CommandResponse struct {
	OK        bool   `json:"ok"`
	ZoneID    string `json:"area_id"`
	Order     int    `json:"order"`
	Delivered bool   `json:"delivered"`
}

type AutoResponse struct {
	OK   bool `json:"ok"`
	Auto bool `json:"auto"`
}

type ThresholdsResponse struct {
	OK  bool                `json:"ok"`
	Thr messages.Thresholds `json:"thr"`
}

type ModeResponse struct {
	OK     bool          `json:"ok"`
	ZoneID string        `json:"area_id"`
	Mode   entities.Mode `json:"mode"`
}

type SampleResponse struct {
	OK        bool   `json:"ok"`
	ZoneID    string `json:"area_id"`
	SampleMS  int    `json:"sample_ms"`
	Delivered bool   `json:"delivered"`
}

type ErrorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}
