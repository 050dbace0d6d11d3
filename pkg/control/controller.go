// Package control turns human input, AI behavior and network messages into
// control intents for flight actors.
package control

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/opd-ai/go-flight/pkg/physics"
)

// InputKind tags the variant held by a ControlInput.
type InputKind int

const (
	// InputNone means the controller had nothing to say this tick.
	InputNone InputKind = iota
	// InputFlight carries per-axis flight intents.
	InputFlight
	// InputDirect carries a simple movement vector and optional rotation.
	InputDirect
)

// String returns the wire name of the kind.
func (k InputKind) String() string {
	switch k {
	case InputFlight:
		return "flight"
	case InputDirect:
		return "direct"
	default:
		return "none"
	}
}

// DirectMovement is the simple fallback intent. Vector is a desired movement
// direction in world space and Rotation holds optional pitch, yaw and roll rates.
type DirectMovement struct {
	Vector   mgl64.Vec3  `json:"vector"`
	Rotation *mgl64.Vec3 `json:"rotation,omitempty"`
}

// ControlInput is what a controller produces each tick.
type ControlInput struct {
	Kind   InputKind           `json:"kind"`
	Flight physics.FlightInput `json:"flight"`
	Direct DirectMovement      `json:"direct"`
}

// NoInput returns the empty intent.
func NoInput() ControlInput {
	return ControlInput{Kind: InputNone}
}

// FlightIntent wraps a flight input.
func FlightIntent(in physics.FlightInput) ControlInput {
	return ControlInput{Kind: InputFlight, Flight: in}
}

// DirectIntent wraps a direct movement input.
func DirectIntent(vector mgl64.Vec3, rotation *mgl64.Vec3) ControlInput {
	return ControlInput{Kind: InputDirect, Direct: DirectMovement{Vector: vector, Rotation: rotation}}
}

// Pawn is the controller's non-owning view of the actor it drives.
type Pawn interface {
	ID() uint64
	Position() mgl64.Vec3
	Orientation() mgl64.Quat
	SpawnPosition() mgl64.Vec3
}

// Resolver looks up live actors by id. Controllers resolve targets every tick
// so a removed actor is never dereferenced.
type Resolver interface {
	Resolve(id uint64) (Pawn, bool)
}

// Controller produces control intents for at most one pawn.
//
// Possess and Unpossess only maintain the controller's side of the link.
// Actors call them while (re)possessing, so application code should go through
// the actor instead.
type Controller interface {
	Update(deltaTimeMs float64) ControlInput
	Possess(p Pawn)
	Unpossess()
	Pawn() Pawn
}

// BaseController keeps the back-reference shared by every controller variant.
type BaseController struct {
	pawn Pawn
}

// Possess records the pawn this controller drives.
func (b *BaseController) Possess(p Pawn) {
	b.pawn = p
}

// Unpossess clears the back-reference.
func (b *BaseController) Unpossess() {
	b.pawn = nil
}

// Pawn returns the possessed pawn or nil.
func (b *BaseController) Pawn() Pawn {
	return b.pawn
}

// tickUnits converts elapsed milliseconds into capped 60 Hz tick units.
func tickUnits(deltaTimeMs float64) float64 {
	dt := math.Min(deltaTimeMs/physics.FrameTimeMs, physics.MaxTickUnits)
	if !(dt > 0) {
		return 0
	}
	return dt
}

// ToFlight translates a direct movement intent for a ship with the given orientation.
// The forward component of the movement vector becomes thrust and the rotation
// rates become axis inputs.
func (d DirectMovement) ToFlight(orientation mgl64.Quat) physics.FlightInput {
	in := physics.FlightInput{}
	if physics.IsFinite(d.Vector) {
		forward := orientation.Rotate(physics.BodyForward)
		in.Thrust = physics.Axis(physics.Clamp(d.Vector.Dot(forward), 0, 1))
	}
	if d.Rotation != nil && physics.IsFinite(*d.Rotation) {
		r := *d.Rotation
		in.Pitch = physics.Axis(physics.ClampAxis(r[0]))
		in.Yaw = physics.Axis(physics.ClampAxis(r[1]))
		in.Roll = physics.Axis(physics.ClampAxis(r[2]))
	}
	return in
}
