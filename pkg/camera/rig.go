// Package camera implements a two-mode camera rig that either orbits a flight
// actor under user control or chases a pivot fixed in the actor's local frame.
package camera

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/opd-ai/go-flight/pkg/physics"
	"github.com/opd-ai/go-flight/pkg/scene"
)

// FrameResolver supplies the current renderable transform of an actor.
// The handle changes whenever the renderable is replaced.
type FrameResolver interface {
	Frame(actorID uint64) (scene.Frame, scene.Handle, bool)
}

// Orbit places the free camera on a sphere around its look target.
// Alpha is the azimuth and Beta the polar angle from world up, both in radians.
type Orbit struct {
	Distance float64 `json:"distance" yaml:"distance"`
	Alpha    float64 `json:"alpha" yaml:"alpha"`
	Beta     float64 `json:"beta" yaml:"beta"`
}

// Offset returns the eye position relative to the look target.
func (o Orbit) Offset() mgl64.Vec3 {
	sinBeta := math.Sin(o.Beta)
	return mgl64.Vec3{
		o.Distance * math.Cos(o.Alpha) * sinBeta,
		o.Distance * math.Cos(o.Beta),
		o.Distance * math.Sin(o.Alpha) * sinBeta,
	}
}

// Config tunes the rig.
type Config struct {
	InitialMode Mode     `json:"initialMode" yaml:"initialMode"`
	Strategy    Strategy `json:"strategy" yaml:"strategy"`

	// PivotOffset is the chase point in the target's local frame.
	PivotOffset [3]float64 `json:"pivotOffset" yaml:"pivotOffset"`

	// Lerp strategy: fraction of the gap closed per tick unit.
	SmoothingFactor float64 `json:"smoothingFactor" yaml:"smoothingFactor"`
	// Spring strategy.
	Stiffness float64 `json:"stiffness" yaml:"stiffness"`
	Damping   float64 `json:"damping" yaml:"damping"`

	// FreeSmoothing is the fraction of the gap the free look target closes per tick. 1 tracks directly.
	FreeSmoothing float64 `json:"freeSmoothing" yaml:"freeSmoothing"`

	Orbit       Orbit   `json:"orbit" yaml:"orbit"`
	MinDistance float64 `json:"minDistance" yaml:"minDistance"`
	MaxDistance float64 `json:"maxDistance" yaml:"maxDistance"`
	MinBeta     float64 `json:"minBeta" yaml:"minBeta"`
	MaxBeta     float64 `json:"maxBeta" yaml:"maxBeta"`
}

// DefaultConfig returns a chase camera behind and above the ship.
func DefaultConfig() Config {
	return Config{
		InitialMode:     Free,
		Strategy:        Spring,
		PivotOffset:     [3]float64{0, 5, -10},
		SmoothingFactor: 0.1,
		Stiffness:       0.15,
		Damping:         0.8,
		FreeSmoothing:   0.1,
		Orbit:           Orbit{Distance: 15, Alpha: math.Pi / 2, Beta: math.Pi / 4},
		MinDistance:     2,
		MaxDistance:     500,
		MinBeta:         0.01,
		MaxBeta:         math.Pi - 0.01,
	}
}

// Rig is the camera state machine. It is updated once per tick after physics.
type Rig struct {
	config   Config
	signal   ModeSignal
	resolver FrameResolver

	mode      Mode
	targetID  uint64
	hasTarget bool

	position mgl64.Vec3
	lookAt   mgl64.Vec3
	up       mgl64.Vec3
	placed   bool

	springVelocity mgl64.Vec3
	orbit          Orbit
	orbitLocked    bool

	attached    scene.Handle
	attachments int
	pivot       mgl64.Vec3
	pivotValid  bool

	onModeChange func(from, to Mode)
}

// NewRig creates a rig in config.InitialMode. A nil signal keeps the rig in its
// initial mode.
func NewRig(config Config, signal ModeSignal, resolver FrameResolver) *Rig {
	r := &Rig{
		config:   config,
		signal:   signal,
		resolver: resolver,
		mode:     config.InitialMode,
		up:       physics.WorldUp,
	}
	r.orbit = r.clampOrbit(config.Orbit)
	r.orbitLocked = r.mode == Follow
	return r
}

// OnModeChange registers fn to run after each mode transition.
func (r *Rig) OnModeChange(fn func(from, to Mode)) {
	r.onModeChange = fn
}

// SetTarget points the rig at an actor. The pivot is attached on the next update.
func (r *Rig) SetTarget(actorID uint64) {
	if r.hasTarget && r.targetID == actorID {
		return
	}
	r.targetID = actorID
	r.hasTarget = true
	r.attached = scene.Handle{}
	r.pivotValid = false
}

// ClearTarget detaches the rig. The camera holds its last pose.
func (r *Rig) ClearTarget() {
	r.hasTarget = false
	r.attached = scene.Handle{}
}

// Target returns the target actor id and whether one is set.
func (r *Rig) Target() (uint64, bool) {
	return r.targetID, r.hasTarget
}

// Mode returns the current mode.
func (r *Rig) Mode() Mode { return r.mode }

// Orbit returns the free-mode orbit parameters.
func (r *Rig) Orbit() Orbit { return r.orbit }

// SpringVelocity returns the follow spring's velocity accumulator.
func (r *Rig) SpringVelocity() mgl64.Vec3 { return r.springVelocity }

// OrbitLocked reports whether user orbit input is currently ignored. A pending
// request for Follow locks the orbit before the next Update applies it.
func (r *Rig) OrbitLocked() bool {
	return r.orbitLocked || (r.signal != nil && r.signal.Mode() == Follow)
}

// Position returns the eye position.
func (r *Rig) Position() mgl64.Vec3 { return r.position }

// LookAt returns the point the camera faces.
func (r *Rig) LookAt() mgl64.Vec3 { return r.lookAt }

// Up returns the camera up vector.
func (r *Rig) Up() mgl64.Vec3 { return r.up }

// Attachment returns the renderable handle the pivot is attached to.
func (r *Rig) Attachment() scene.Handle { return r.attached }

// Attachments counts how many times the pivot has been (re)attached.
func (r *Rig) Attachments() int { return r.attachments }

// Pivot returns the last known pivot world position.
func (r *Rig) Pivot() (mgl64.Vec3, bool) { return r.pivot, r.pivotValid }

// ViewMatrix returns the world-to-view transform.
func (r *Rig) ViewMatrix() mgl64.Mat4 {
	forward := r.lookAt.Sub(r.position)
	if forward.Len() < 1e-9 || forward.Cross(r.up).Len() < 1e-9 {
		return mgl64.Ident4()
	}
	return mgl64.LookAtV(r.position, r.lookAt, r.up)
}

// OrbitBy applies user orbit input. It is ignored while following or while
// Follow is requested.
func (r *Rig) OrbitBy(dAlpha, dBeta, dDistance float64) {
	if r.OrbitLocked() {
		return
	}
	o := r.orbit
	o.Alpha += dAlpha
	o.Beta += dBeta
	o.Distance += dDistance
	r.orbit = r.clampOrbit(o)
}

// SetDistance sets the orbit distance.
func (r *Rig) SetDistance(distance float64) {
	o := r.orbit
	o.Distance = distance
	r.orbit = r.clampOrbit(o)
}

// SetAngles sets the orbit azimuth and polar angle.
func (r *Rig) SetAngles(alpha, beta float64) {
	o := r.orbit
	o.Alpha = alpha
	o.Beta = beta
	r.orbit = r.clampOrbit(o)
}

func (r *Rig) clampOrbit(o Orbit) Orbit {
	if math.IsNaN(o.Distance) || math.IsNaN(o.Alpha) || math.IsNaN(o.Beta) {
		return r.orbit
	}
	o.Distance = physics.Clamp(o.Distance, r.config.MinDistance, r.config.MaxDistance)
	o.Beta = physics.Clamp(o.Beta, r.config.MinBeta, r.config.MaxBeta)
	return o
}

// Update polls the desired mode, then moves the camera for the target's
// transform as of this tick.
func (r *Rig) Update(deltaTimeMs float64) {
	if r.signal != nil {
		if desired := r.signal.Mode(); desired != r.mode {
			r.transition(desired)
		}
	}

	dt := math.Min(deltaTimeMs/physics.FrameTimeMs, physics.MaxTickUnits)
	if !(dt > 0) {
		dt = 0
	}

	frame, handle, ok := r.resolveTarget()
	if r.mode == Follow {
		r.updateFollow(frame, handle, ok, dt)
	} else {
		r.updateFree(frame, ok, dt)
	}
}

func (r *Rig) resolveTarget() (scene.Frame, scene.Handle, bool) {
	if !r.hasTarget || r.resolver == nil {
		return scene.Frame{}, scene.Handle{}, false
	}
	return r.resolver.Frame(r.targetID)
}

func (r *Rig) transition(to Mode) {
	from := r.mode
	r.mode = to
	switch to {
	case Follow:
		r.orbitLocked = true
		// Force a fresh attachment to whatever renderable is current.
		r.attached = scene.Handle{}
	case Free:
		r.orbitLocked = false
		r.springVelocity = mgl64.Vec3{}
		r.attached = scene.Handle{}
	}
	if r.onModeChange != nil {
		r.onModeChange(from, to)
	}
}

func (r *Rig) updateFollow(frame scene.Frame, handle scene.Handle, ok bool, dt float64) {
	if ok {
		if handle != r.attached {
			r.attached = handle
			r.attachments++
		}
		offset := mgl64.Vec3(r.config.PivotOffset)
		r.pivot = frame.Position.Add(frame.Orientation.Rotate(offset))
		r.pivotValid = true
		r.lookAt = frame.Position
		r.up = frame.Orientation.Rotate(physics.BodyUp)
	}
	if !r.pivotValid {
		return
	}
	if !r.placed {
		r.position = r.pivot
		r.placed = true
		return
	}

	switch r.config.Strategy {
	case Lerp:
		factor := 1 - math.Pow(1-physics.Clamp(r.config.SmoothingFactor, 0, 1), dt)
		r.position = r.position.Add(r.pivot.Sub(r.position).Mul(factor))
	default:
		spring := r.pivot.Sub(r.position).Mul(r.config.Stiffness)
		damping := r.springVelocity.Mul(-r.config.Damping)
		r.springVelocity = r.springVelocity.Add(spring.Add(damping).Mul(dt))
		r.position = r.position.Add(r.springVelocity.Mul(dt))
	}
}

func (r *Rig) updateFree(frame scene.Frame, ok bool, dt float64) {
	r.up = physics.WorldUp
	if ok {
		if !r.placed {
			r.lookAt = frame.Position
		} else {
			factor := 1 - math.Pow(1-physics.Clamp(r.config.FreeSmoothing, 0, 1), dt)
			r.lookAt = r.lookAt.Add(frame.Position.Sub(r.lookAt).Mul(factor))
		}
	}
	r.position = r.lookAt.Add(r.orbit.Offset())
	r.placed = true
}
