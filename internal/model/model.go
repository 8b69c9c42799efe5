package model

import (
	"github.com/LeonardoBeccarini/zone_irrigation/internal/model/entities"
	"github.com/LeonardoBeccarini/zone_irrigation/internal/model/messages"
)

// Alias per esporre tipi comuni ai servizi

type (
	Reading       = messages.Reading
	ZoneSnapshot  = messages.ZoneSnapshot
	CommandEvent  = messages.CommandEvent
	ActuatorState = entities.ActuatorState
	Mode          = entities.Mode
	ControlParams = entities.ControlParams
)

const (
	StateOn    = entities.StateOn
	StateOff   = entities.StateOff
	ModeAuto   = entities.ModeAuto
	ModeManual = entities.ModeManual
)
