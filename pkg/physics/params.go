// pkg/physics/params.go
package physics

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidParameters is returned when flight parameters would break the integrator.
var ErrInvalidParameters = errors.New("invalid flight parameters")

// FrameTimeMs is the reference frame duration that one tick unit represents.
const FrameTimeMs = 16.67

// MaxTickUnits caps the normalized time step so one slow frame cannot inject a huge step.
const MaxTickUnits = 2.0

// FlightParameters describe how a ship responds to control intents.
// All rates are expressed per tick unit (one 60 Hz frame).
type FlightParameters struct {
	MaxThrust          float64 `json:"maxThrust" yaml:"maxThrust"`
	MaxSpeed           float64 `json:"maxSpeed" yaml:"maxSpeed"`
	PitchSpeed         float64 `json:"pitchSpeed" yaml:"pitchSpeed"`
	RollSpeed          float64 `json:"rollSpeed" yaml:"rollSpeed"`
	YawSpeed           float64 `json:"yawSpeed" yaml:"yawSpeed"`
	ThrustAcceleration float64 `json:"thrustAcceleration" yaml:"thrustAcceleration"`
	Drag               float64 `json:"drag" yaml:"drag"`
	AngularDrag        float64 `json:"angularDrag" yaml:"angularDrag"`
	LateralDrag        float64 `json:"lateralDrag" yaml:"lateralDrag"`
	Mass               float64 `json:"mass" yaml:"mass"`
	RotationalInertia  float64 `json:"rotationalInertia" yaml:"rotationalInertia"`
	// MaxAngularSpeed bounds the angular velocity magnitude. Zero disables the bound.
	MaxAngularSpeed float64 `json:"maxAngularSpeed" yaml:"maxAngularSpeed"`
}

// DefaultParameters returns the tuning used by fighters.
func DefaultParameters() FlightParameters {
	return FlightParameters{
		MaxThrust:          0.002,
		MaxSpeed:           0.5,
		PitchSpeed:         0.0003,
		RollSpeed:          0.0005,
		YawSpeed:           0.0003,
		ThrustAcceleration: 0.05,
		Drag:               0.98,
		AngularDrag:        0.96,
		LateralDrag:        1.0,
		Mass:               1.0,
		RotationalInertia:  1.0,
		MaxAngularSpeed:    0.015,
	}
}

// Validate checks the parameters and returns an error wrapping ErrInvalidParameters
// describing the first violation found.
func (p FlightParameters) Validate() error {
	positive := []struct {
		name  string
		value float64
	}{
		{"mass", p.Mass},
		{"rotationalInertia", p.RotationalInertia},
	}
	for _, f := range positive {
		if !(f.value > 0) || math.IsInf(f.value, 0) {
			return fmt.Errorf("%w: %s must be positive and finite, got %v", ErrInvalidParameters, f.name, f.value)
		}
	}

	unit := []struct {
		name  string
		value float64
	}{
		{"drag", p.Drag},
		{"angularDrag", p.AngularDrag},
		{"lateralDrag", p.LateralDrag},
	}
	for _, f := range unit {
		if !(f.value > 0 && f.value <= 1) {
			return fmt.Errorf("%w: %s must be in (0, 1], got %v", ErrInvalidParameters, f.name, f.value)
		}
	}

	nonNegative := []struct {
		name  string
		value float64
	}{
		{"maxThrust", p.MaxThrust},
		{"maxSpeed", p.MaxSpeed},
		{"pitchSpeed", p.PitchSpeed},
		{"rollSpeed", p.RollSpeed},
		{"yawSpeed", p.YawSpeed},
		{"thrustAcceleration", p.ThrustAcceleration},
		{"maxAngularSpeed", p.MaxAngularSpeed},
	}
	for _, f := range nonNegative {
		if !(f.value >= 0) || math.IsInf(f.value, 0) {
			return fmt.Errorf("%w: %s must be non-negative and finite, got %v", ErrInvalidParameters, f.name, f.value)
		}
	}

	return nil
}

// Profile names understood by ProfileParameters.
const (
	ProfileDefault = "default"
	ProfileAgile   = "agile"
	ProfileWeighty = "weighty"
)

// ProfileParameters returns a named tuning. Unknown names report false.
func ProfileParameters(name string) (FlightParameters, bool) {
	p := DefaultParameters()
	switch name {
	case ProfileDefault, "":
		return p, true
	case ProfileAgile:
		p.PitchSpeed = 0.001
		p.YawSpeed = 0.001
		p.RollSpeed = 0.0015
		p.AngularDrag = 0.92
		p.ThrustAcceleration = 0.04
		p.MaxAngularSpeed = 0.02
		return p, true
	case ProfileWeighty:
		p.Mass = 4
		p.RotationalInertia = 3
		p.MaxThrust = 0.006
		p.MaxSpeed = 0.3
		p.Drag = 0.985
		p.AngularDrag = 0.95
		p.LateralDrag = 0.9
		return p, true
	default:
		return FlightParameters{}, false
	}
}
