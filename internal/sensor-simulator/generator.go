package sensor_simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/LeonardoBeccarini/zone_irrigation/internal/model"
)

// ====== Tunables ======
const (
	// gainPerMin: +0.6 punti di moisture al minuto con la pompa ON.
	gainPerMin = 0.6

	// drainPerMin / refillPerMin: livello del serbatoio in %.
	drainPerMin  = 0.5
	refillPerMin = 0.2

	// defaultSeed: moisture iniziale se SoilGrids non è disponibile.
	defaultSeed = 30.0

	defaultSoilGridsURL = "https://rest.isric.org/soilgrids/v2.0/properties/query"
)

// Telemetry is one device report as published on chrab/{zone}/telemetry.
type Telemetry struct {
	ZoneID     string  `json:"area_id"`
	Moist      float64 `json:"moist"`
	TempC      float64 `json:"temp_c"`
	RH         float64 `json:"rh"`
	WaterLevel float64 `json:"water_level"`
	N          float64 `json:"N"`
	P          float64 `json:"P"`
	K          float64 `json:"K"`
	LastPump   int     `json:"last_pump"`
	MsgID      string  `json:"msg_id,omitempty"`
}

// DataGenerator mantiene lo stato simulato della zona e lo fa evolvere nel
// tempo. timeScale minuti simulati passano per ogni minuto reale.
type DataGenerator struct {
	mu          sync.Mutex
	rnd         *rand.Rand
	seeded      bool
	last        time.Time
	decayPerMin float64
	timeScale   float64

	moist, tempC, rh, water float64
	n, p, k                 float64

	httpClient   *http.Client
	soilGridsURL string
}

func NewDataGenerator(decayPerMin, timeScale float64, seed int64) *DataGenerator {
	if timeScale <= 0 {
		timeScale = 1
	}
	return &DataGenerator{
		rnd:          rand.New(rand.NewSource(seed)),
		decayPerMin:  math.Max(0, decayPerMin),
		timeScale:    timeScale,
		moist:        defaultSeed,
		tempC:        22,
		rh:           60,
		water:        80,
		n:            40,
		p:            25,
		k:            30,
		httpClient:   &http.Client{Timeout: 8 * time.Second},
		soilGridsURL: defaultSoilGridsURL,
	}
}

type soilGridsResponse struct {
	Properties struct {
		Layers []struct {
			Name   string `json:"name"`
			Depths []struct {
				Values map[string]*float64 `json:"values"`
			} `json:"depths"`
		} `json:"layers"`
	} `json:"properties"`
}

var errNoMoisture = errors.New("soilgrids: moisture value not found")

// SeedFromSoilGrids fa una sola fetch all'avvio per la moisture iniziale.
// On failure the default seed stays in place and the error is returned.
func (g *DataGenerator) SeedFromSoilGrids(ctx context.Context, lat, lon float64) error {
	var value float64
	op := func() error {
		v, err := g.fetchSoilMoisture(ctx, lat, lon)
		if err != nil {
			return err
		}
		value = v
		return nil
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.moist = value
	return nil
}

func (g *DataGenerator) fetchSoilMoisture(ctx context.Context, lat, lon float64) (float64, error) {
	url := fmt.Sprintf("%s?lat=%f&lon=%f&property=wv0010", g.soilGridsURL, lat, lon)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, backoff.Permanent(err)
	}
	req.Header.Set("User-Agent", "zone-irrigation-simulator/1.0")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, err
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return 0, fmt.Errorf("soilgrids HTTP %d", resp.StatusCode)
	default:
		// non-retryable
		return 0, backoff.Permanent(fmt.Errorf("soilgrids HTTP %d: %s", resp.StatusCode, string(body)))
	}

	var parsed soilGridsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, backoff.Permanent(fmt.Errorf("soilgrids: %w", err))
	}
	for _, l := range parsed.Properties.Layers {
		for _, d := range l.Depths {
			for _, k := range []string{"Q0.5", "mean", "Q0.95", "Q0.05"} {
				if v := d.Values[k]; v != nil {
					return wvToPercent(*v), nil
				}
			}
		}
	}
	return 0, backoff.Permanent(errNoMoisture)
}

// wvToPercent converte i valori "wv****" (millesimi di m3/m3) in percentuale.
func wvToPercent(x float64) float64 {
	if x > 1.5 {
		x = x / 1000.0
	}
	return clamp(x*100, 0, 100)
}

// Next advances the simulation to now and returns the resulting report.
func (g *DataGenerator) Next(zoneID string, pump model.ActuatorState, now time.Time) Telemetry {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.seeded {
		g.last = now
		g.seeded = true
	}
	dtMin := now.Sub(g.last).Minutes() * g.timeScale
	if dtMin < 0 {
		dtMin = 0
	}
	g.last = now

	switch {
	case pump == model.StateOn && g.water > 0:
		g.moist = clamp(g.moist+gainPerMin*dtMin, 0, 100)
		g.water = clamp(g.water-drainPerMin*dtMin, 0, 100)
	default:
		g.moist = clamp(g.moist-g.decayPerMin*dtMin, 0, 100)
		g.water = clamp(g.water+refillPerMin*dtMin, 0, 100)
	}

	g.tempC = clamp(g.tempC+g.rnd.NormFloat64()*0.2, -5, 45)
	g.rh = clamp(g.rh+g.rnd.NormFloat64()*0.5, 10, 100)
	g.n = clamp(g.n+g.rnd.NormFloat64()*0.3, 0, 140)
	g.p = clamp(g.p+g.rnd.NormFloat64()*0.3, 0, 145)
	g.k = clamp(g.k+g.rnd.NormFloat64()*0.3, 0, 205)

	last := 0
	if pump == model.StateOn {
		last = 1
	}
	return Telemetry{
		ZoneID:     zoneID,
		Moist:      round1(g.moist),
		TempC:      round1(g.tempC),
		RH:         round1(g.rh),
		WaterLevel: round1(g.water),
		N:          round1(g.n),
		P:          round1(g.p),
		K:          round1(g.k),
		LastPump:   last,
	}
}

// Moisture returns the current simulated moisture in percent.
func (g *DataGenerator) Moisture() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.moist
}

// ===== Helpers =====

func clamp(x, lo, hi float64) float64 {
	return math.Min(math.Max(x, lo), hi)
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}
