// Package entity holds flight actors: a physics integrator plus the controller
// currently driving it.
package entity

import (
	"fmt"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/opd-ai/go-flight/pkg/control"
	"github.com/opd-ai/go-flight/pkg/physics"
)

var lastID uint64

// NextID returns a process-unique actor id. Zero is never returned.
func NextID() uint64 {
	return atomic.AddUint64(&lastID, 1)
}

// Telemetry is the per-tick readout of one actor.
type Telemetry struct {
	ActorID         uint64  `json:"actorId"`
	Speed           float64 `json:"speed"`
	MaxSpeed        float64 `json:"maxSpeed"`
	ThrottlePercent float64 `json:"throttlePercent"`
	PitchDeg        float64 `json:"pitchDeg"`
	RollDeg         float64 `json:"rollDeg"`
	YawDeg          float64 `json:"yawDeg"`
}

// Actor owns one flight integrator and at most one controller.
type Actor struct {
	id         uint64
	name       string
	class      ShipClass
	spawn      mgl64.Vec3
	flight     *physics.Integrator
	controller control.Controller
	lastInput  control.ControlInput
}

// NewActor creates an actor at spawn using the tuning of its ship class.
func NewActor(id uint64, name string, class ShipClass, spawn mgl64.Vec3) (*Actor, error) {
	return NewActorWithParameters(id, name, class, spawn, classParameters(class))
}

// NewActorWithParameters creates an actor with explicit flight parameters.
func NewActorWithParameters(id uint64, name string, class ShipClass, spawn mgl64.Vec3, params physics.FlightParameters) (*Actor, error) {
	flight, err := physics.NewIntegrator(params, spawn)
	if err != nil {
		return nil, fmt.Errorf("actor %d: %w", id, err)
	}
	return &Actor{
		id:     id,
		name:   name,
		class:  class,
		spawn:  spawn,
		flight: flight,
	}, nil
}

// ID returns the actor id.
func (a *Actor) ID() uint64 { return a.id }

// Name returns the display name.
func (a *Actor) Name() string { return a.name }

// Class returns the ship class.
func (a *Actor) Class() ShipClass { return a.class }

// SpawnPosition returns where the actor was created.
func (a *Actor) SpawnPosition() mgl64.Vec3 { return a.spawn }

// Position returns the current world position.
func (a *Actor) Position() mgl64.Vec3 { return a.flight.Position() }

// Orientation returns the current body-to-world rotation.
func (a *Actor) Orientation() mgl64.Quat { return a.flight.Orientation() }

// Velocity returns the current world velocity.
func (a *Actor) Velocity() mgl64.Vec3 { return a.flight.Velocity() }

// State returns a copy of the flight state.
func (a *Actor) State() physics.FlightState { return a.flight.State() }

// Params returns the flight parameters.
func (a *Actor) Params() physics.FlightParameters { return a.flight.Params() }

// SetFlightParameters retunes the actor.
func (a *Actor) SetFlightParameters(params physics.FlightParameters) error {
	return a.flight.SetParameters(params)
}

// Teleport moves the actor without touching its velocities.
func (a *Actor) Teleport(position mgl64.Vec3, orientation mgl64.Quat) {
	a.flight.Teleport(position, orientation)
}

// Controller returns the controller driving the actor, or nil.
func (a *Actor) Controller() control.Controller { return a.controller }

// LastInput returns the intent applied on the most recent tick.
func (a *Actor) LastInput() control.ControlInput { return a.lastInput }

// Possess makes c the actor's only controller. A controller already driving
// another actor is detached from it first, and the actor's previous controller
// is released. Both links are in place when Possess returns.
func (a *Actor) Possess(c control.Controller) {
	if c == nil {
		a.Unpossess()
		return
	}
	if a.controller == c && c.Pawn() == control.Pawn(a) {
		return
	}

	if prev, ok := c.Pawn().(*Actor); ok && prev != a && prev.controller == c {
		prev.controller = nil
	}
	c.Unpossess()

	if a.controller != nil {
		a.controller.Unpossess()
	}
	c.Possess(a)
	a.controller = c
}

// Unpossess clears both sides of the controller link.
func (a *Actor) Unpossess() {
	if a.controller == nil {
		return
	}
	c := a.controller
	a.controller = nil
	if c.Pawn() == control.Pawn(a) {
		c.Unpossess()
	}
}

// Tick asks the controller for an intent and advances the integrator. The
// integrator runs even without a controller so drag keeps acting.
func (a *Actor) Tick(deltaTimeMs float64) {
	in := control.NoInput()
	if a.controller != nil {
		in = a.controller.Update(deltaTimeMs)
	}
	a.lastInput = in

	switch in.Kind {
	case control.InputFlight:
		flight := in.Flight
		a.flight.Update(deltaTimeMs, &flight)
	case control.InputDirect:
		flight := in.Direct.ToFlight(a.flight.Orientation())
		a.flight.Update(deltaTimeMs, &flight)
	default:
		a.flight.Update(deltaTimeMs, nil)
	}
}

// Telemetry returns the display readout for the current state.
func (a *Actor) Telemetry() Telemetry {
	pitch, yaw, roll := a.flight.EulerAngles()
	return Telemetry{
		ActorID:         a.id,
		Speed:           a.flight.Speed(),
		MaxSpeed:        a.flight.Params().MaxSpeed,
		ThrottlePercent: a.flight.ThrottlePercent(),
		PitchDeg:        mgl64.RadToDeg(pitch),
		RollDeg:         mgl64.RadToDeg(roll),
		YawDeg:          mgl64.RadToDeg(yaw),
	}
}

// Forward returns the nose direction.
func (a *Actor) Forward() mgl64.Vec3 { return a.flight.Forward() }

// Up returns the canopy direction.
func (a *Actor) Up() mgl64.Vec3 { return a.flight.Up() }
