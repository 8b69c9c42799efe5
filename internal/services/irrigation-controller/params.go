package irrigation_controller

import (
	"fmt"
	"math"
	"sync"

	"github.com/LeonardoBeccarini/zone_irrigation/internal/model/entities"
)

// Params guards the process-wide control parameters. Readers get a copy;
// every write goes through Update.
type Params struct {
	mu sync.RWMutex
	p  entities.ControlParams
}

func NewParams(p entities.ControlParams) *Params {
	if p.DefaultMode == "" {
		p.DefaultMode = entities.ModeFor(p.AutoEnabled)
	}
	return &Params{p: p}
}

// Snapshot returns a consistent copy.
func (c *Params) Snapshot() entities.ControlParams {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.p
}

// DefaultMode is read once by the store when it creates a zone.
func (c *Params) DefaultMode() entities.Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.p.DefaultMode
}

// Update applies fn to a copy and stores the result atomically.
func (c *Params) Update(fn func(p *entities.ControlParams)) entities.ControlParams {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.p
	fn(&next)
	c.p = next
	return next
}

// SetThresholds requires 0 <= off < on <= 100.
func (c *Params) SetThresholds(on, off float64) (entities.ControlParams, error) {
	if math.IsNaN(on) || math.IsNaN(off) || on < 0 || on > 100 || off < 0 || off > 100 {
		return c.Snapshot(), fmt.Errorf("%w: thresholds must be within [0,100] (on=%v off=%v)", ErrInvalidParameter, on, off)
	}
	if on <= off {
		return c.Snapshot(), fmt.Errorf("%w: on threshold %v must be above off threshold %v", ErrInvalidParameter, on, off)
	}
	return c.Update(func(p *entities.ControlParams) {
		p.OnThreshold, p.OffThreshold = on, off
	}), nil
}

// SetAutoEnabled toggles automatic control globally. New zones follow the
// flag as well; existing zones keep the mode they were created with.
func (c *Params) SetAutoEnabled(enabled bool) entities.ControlParams {
	return c.Update(func(p *entities.ControlParams) {
		p.AutoEnabled = enabled
		p.DefaultMode = entities.ModeFor(enabled)
	})
}
