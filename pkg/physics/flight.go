// pkg/physics/flight.go
package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Brake damping factors applied per tick unit while the brake is held.
const (
	brakeVelocityFactor = 0.95
	brakeThrustFactor   = 0.9
)

// FlightState is the full kinematic state of one ship.
type FlightState struct {
	Position    mgl64.Vec3
	Orientation mgl64.Quat
	Velocity    mgl64.Vec3
	// AngularVelocity holds body-space pitch, yaw and roll rates in radians per tick unit.
	AngularVelocity mgl64.Vec3
	CurrentThrust   float64
}

// FlightInput is a set of optional control intents. A nil axis leaves that axis untouched.
type FlightInput struct {
	Thrust *float64 `json:"thrust,omitempty"`
	Pitch  *float64 `json:"pitch,omitempty"`
	Roll   *float64 `json:"roll,omitempty"`
	Yaw    *float64 `json:"yaw,omitempty"`
	Brake  bool     `json:"brake,omitempty"`
}

// Axis returns a pointer to v for use in FlightInput literals.
func Axis(v float64) *float64 {
	return &v
}

// Integrator advances a FlightState from control intents.
// It is the only writer of its state.
type Integrator struct {
	params FlightParameters
	state  FlightState
}

// NewIntegrator creates an integrator at position with identity orientation and zero velocity.
func NewIntegrator(params FlightParameters, position mgl64.Vec3) (*Integrator, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Integrator{
		params: params,
		state: FlightState{
			Position:    position,
			Orientation: mgl64.QuatIdent(),
		},
	}, nil
}

// Update advances the state by deltaTimeMs milliseconds. Input may be nil.
func (ig *Integrator) Update(deltaTimeMs float64, input *FlightInput) {
	dt := math.Min(deltaTimeMs/FrameTimeMs, MaxTickUnits)
	if !(dt > 0) {
		return
	}
	if input == nil {
		input = &FlightInput{}
	}

	ig.applyThrust(input, dt)
	ig.applyAngular(input, dt)
	if input.Brake {
		ig.state.Velocity = ig.state.Velocity.Mul(math.Pow(brakeVelocityFactor, dt))
		ig.state.CurrentThrust *= math.Pow(brakeThrustFactor, dt)
	}
	ig.applyDrag(dt)

	forward := ig.state.Orientation.Rotate(BodyForward)
	ig.state.Velocity = ig.state.Velocity.Add(forward.Mul(ig.state.CurrentThrust / ig.params.Mass * dt))
	ig.state.Velocity = ClampLength(ig.state.Velocity, ig.params.MaxSpeed)

	ig.integrateOrientation(dt)
	ig.state.Position = ig.state.Position.Add(ig.state.Velocity.Mul(dt))
}

// applyThrust moves the current thrust exponentially toward the requested level.
func (ig *Integrator) applyThrust(input *FlightInput, dt float64) {
	if input.Thrust == nil || math.IsNaN(*input.Thrust) {
		return
	}
	target := Clamp(*input.Thrust, 0, 1) * ig.params.MaxThrust
	alpha := math.Min(ig.params.ThrustAcceleration*dt, 1)
	ig.state.CurrentThrust += (target - ig.state.CurrentThrust) * alpha
	ig.state.CurrentThrust = Clamp(ig.state.CurrentThrust, 0, ig.params.MaxThrust)
}

// applyAngular decays the carried angular velocity, then adds this tick's impulses.
func (ig *Integrator) applyAngular(input *FlightInput, dt float64) {
	av := ig.state.AngularVelocity.Mul(math.Pow(ig.params.AngularDrag, dt))

	axes := []struct {
		value *float64
		speed float64
		index int
	}{
		{input.Pitch, ig.params.PitchSpeed, 0},
		{input.Yaw, ig.params.YawSpeed, 1},
		{input.Roll, ig.params.RollSpeed, 2},
	}
	for _, a := range axes {
		if a.value == nil || math.IsNaN(*a.value) {
			continue
		}
		av[a.index] += ClampAxis(*a.value) * a.speed / ig.params.RotationalInertia * dt
	}

	if ig.params.MaxAngularSpeed > 0 {
		av = ClampLength(av, ig.params.MaxAngularSpeed)
	}
	ig.state.AngularVelocity = av
}

// applyDrag decays velocity, with optional extra decay on the sideways component.
func (ig *Integrator) applyDrag(dt float64) {
	v := ig.state.Velocity.Mul(math.Pow(ig.params.Drag, dt))
	if ig.params.LateralDrag < 1 {
		forward := ig.state.Orientation.Rotate(BodyForward)
		along := forward.Mul(v.Dot(forward))
		lateral := v.Sub(along).Mul(math.Pow(ig.params.LateralDrag, dt))
		v = along.Add(lateral)
	}
	ig.state.Velocity = v
}

// integrateOrientation composes this tick's body rotation into the orientation.
func (ig *Integrator) integrateOrientation(dt float64) {
	av := ig.state.AngularVelocity
	rv := mgl64.Vec3{-av[0], av[1], -av[2]}.Mul(dt)
	if delta, ok := RotationFromVector(rv); ok {
		ig.state.Orientation = ig.state.Orientation.Mul(delta)
	}
	ig.state.Orientation = ig.state.Orientation.Normalize()
}

// State returns a copy of the current state.
func (ig *Integrator) State() FlightState {
	return ig.state
}

// Params returns the parameters in effect.
func (ig *Integrator) Params() FlightParameters {
	return ig.params
}

// SetParameters swaps the tuning. The current state is kept but re-clamped to the new limits.
func (ig *Integrator) SetParameters(params FlightParameters) error {
	if err := params.Validate(); err != nil {
		return err
	}
	ig.params = params
	ig.state.CurrentThrust = Clamp(ig.state.CurrentThrust, 0, params.MaxThrust)
	ig.state.Velocity = ClampLength(ig.state.Velocity, params.MaxSpeed)
	return nil
}

// Reset puts the ship at rest at position with identity orientation.
func (ig *Integrator) Reset(position mgl64.Vec3) {
	ig.state = FlightState{
		Position:    position,
		Orientation: mgl64.QuatIdent(),
	}
}

// Teleport overwrites position and orientation, leaving velocities untouched.
// Non-finite values are ignored.
func (ig *Integrator) Teleport(position mgl64.Vec3, orientation mgl64.Quat) {
	if IsFinite(position) {
		ig.state.Position = position
	}
	if IsFinite(orientation.V) && !math.IsNaN(orientation.W) && orientation.Len() > rotationEpsilon {
		ig.state.Orientation = orientation.Normalize()
	}
}

// Position returns the world position.
func (ig *Integrator) Position() mgl64.Vec3 { return ig.state.Position }

// Orientation returns the body-to-world rotation.
func (ig *Integrator) Orientation() mgl64.Quat { return ig.state.Orientation }

// Velocity returns the world velocity in units per tick.
func (ig *Integrator) Velocity() mgl64.Vec3 { return ig.state.Velocity }

// Speed returns the velocity magnitude.
func (ig *Integrator) Speed() float64 { return ig.state.Velocity.Len() }

// CurrentThrust returns the smoothed thrust level.
func (ig *Integrator) CurrentThrust() float64 { return ig.state.CurrentThrust }

// ThrottlePercent returns the current thrust as a percentage of maximum thrust.
func (ig *Integrator) ThrottlePercent() float64 {
	if ig.params.MaxThrust == 0 {
		return 0
	}
	return ig.state.CurrentThrust / ig.params.MaxThrust * 100
}

// Forward returns the world-space nose direction.
func (ig *Integrator) Forward() mgl64.Vec3 { return ig.state.Orientation.Rotate(BodyForward) }

// Right returns the world-space right wing direction.
func (ig *Integrator) Right() mgl64.Vec3 { return ig.state.Orientation.Rotate(BodyRight) }

// Up returns the world-space canopy direction.
func (ig *Integrator) Up() mgl64.Vec3 { return ig.state.Orientation.Rotate(BodyUp) }

// EulerAngles returns pitch, yaw and roll in radians.
func (ig *Integrator) EulerAngles() (pitch, yaw, roll float64) {
	return EulerFromOrientation(ig.state.Orientation)
}
