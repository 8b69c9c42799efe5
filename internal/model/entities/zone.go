package entities

import (
	"errors"
	"fmt"
	"strings"
)

// ActuatorState indicates whether the zone pump/valve is on or off.
type ActuatorState string

const (
	StateOff ActuatorState = "off"
	StateOn  ActuatorState = "on"
)

// Order is the wire value of the state: 1 for on, 0 for off.
func (s ActuatorState) Order() int {
	if s == StateOn {
		return 1
	}
	return 0
}

// StateFromOrder maps exactly 1 to on; anything else is off.
func StateFromOrder(order int) ActuatorState {
	if order == 1 {
		return StateOn
	}
	return StateOff
}

// Mode is the per-zone control mode.
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeManual Mode = "manual"
)

var ErrInvalidMode = errors.New("invalid mode")

// ParseMode accepts "auto" or "manual", case-insensitive.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeAuto:
		return ModeAuto, nil
	case ModeManual:
		return ModeManual, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// ModeFor returns the default mode implied by the global auto flag.
func ModeFor(autoEnabled bool) Mode {
	if autoEnabled {
		return ModeAuto
	}
	return ModeManual
}
