// pkg/control/ai.go
package control

import (
	"fmt"
	"math"
	"strings"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/opd-ai/go-flight/pkg/physics"
)

// Behavior is the state of the AI controller's state machine.
type Behavior int

const (
	BehaviorIdle Behavior = iota
	BehaviorPatrol
	BehaviorFollow
	BehaviorFlee
)

// String returns the lowercase behavior name.
func (b Behavior) String() string {
	switch b {
	case BehaviorIdle:
		return "idle"
	case BehaviorPatrol:
		return "patrol"
	case BehaviorFollow:
		return "follow"
	case BehaviorFlee:
		return "flee"
	default:
		return "unknown"
	}
}

// ParseBehavior converts a behavior name back into a Behavior.
func ParseBehavior(name string) (Behavior, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "idle", "":
		return BehaviorIdle, nil
	case "patrol":
		return BehaviorPatrol, nil
	case "follow":
		return BehaviorFollow, nil
	case "flee":
		return BehaviorFlee, nil
	default:
		return BehaviorIdle, fmt.Errorf("unknown AI behavior %q", name)
	}
}

// AIConfig tunes the AI behaviors. Distances are world units.
type AIConfig struct {
	PatrolRadius  float64 `json:"patrolRadius" yaml:"patrolRadius"`
	PatrolPoints  int     `json:"patrolPoints" yaml:"patrolPoints"`
	CaptureRadius float64 `json:"captureRadius" yaml:"captureRadius"`
	BaseThrottle  float64 `json:"baseThrottle" yaml:"baseThrottle"`
	IdleThrottle  float64 `json:"idleThrottle" yaml:"idleThrottle"`
	PitchGain     float64 `json:"pitchGain" yaml:"pitchGain"`
	YawGain       float64 `json:"yawGain" yaml:"yawGain"`

	// Follow throttle bands.
	NearDistance float64 `json:"nearDistance" yaml:"nearDistance"`
	FarDistance  float64 `json:"farDistance" yaml:"farDistance"`
	NearThrottle float64 `json:"nearThrottle" yaml:"nearThrottle"`
	MidThrottle  float64 `json:"midThrottle" yaml:"midThrottle"`
	FarThrottle  float64 `json:"farThrottle" yaml:"farThrottle"`

	DangerRadius float64 `json:"dangerRadius" yaml:"dangerRadius"`
	FleeThrottle float64 `json:"fleeThrottle" yaml:"fleeThrottle"`

	// AlignAngle is the half-angle in radians of the cone in which patrol and follow
	// thrust. Outside it the ship brakes and turns in place.
	AlignAngle float64 `json:"alignAngle" yaml:"alignAngle"`
}

// DefaultAIConfig returns the standard tuning.
func DefaultAIConfig() AIConfig {
	return AIConfig{
		PatrolRadius:  15,
		PatrolPoints:  4,
		CaptureRadius: 5,
		BaseThrottle:  0.5,
		IdleThrottle:  0.3,
		PitchGain:     2,
		YawGain:       0.5,
		NearDistance:  5,
		FarDistance:   15,
		NearThrottle:  0.3,
		MidThrottle:   0.5,
		FarThrottle:   0.8,
		DangerRadius:  20,
		FleeThrottle:  1.0,
		AlignAngle:    math.Pi / 6,
	}
}

// AIController drives a pawn through idle, patrol, follow and flee behaviors.
type AIController struct {
	BaseController
	config   AIConfig
	resolver Resolver
	behavior Behavior

	targetID  uint64
	hasTarget bool

	waypoints       []mgl64.Vec3
	customWaypoints bool
	waypointIndex   int
}

// NewAIController creates an idle AI. The resolver is used to find follow and flee targets.
func NewAIController(config AIConfig, resolver Resolver) *AIController {
	return &AIController{config: config, resolver: resolver}
}

// Possess binds the AI to a pawn. Generated patrol routes are rebuilt around the new spawn.
func (c *AIController) Possess(p Pawn) {
	c.BaseController.Possess(p)
	if !c.customWaypoints {
		c.waypoints = nil
	}
	c.waypointIndex = 0
}

// SetBehavior switches state. Entering patrol generates the route if none exists yet.
func (c *AIController) SetBehavior(b Behavior) {
	c.behavior = b
	if b == BehaviorPatrol {
		c.ensureWaypoints()
	}
}

// Behavior returns the current state.
func (c *AIController) Behavior() Behavior {
	return c.behavior
}

// SetTarget sets the actor to follow or flee from.
func (c *AIController) SetTarget(id uint64) {
	c.targetID = id
	c.hasTarget = true
}

// ClearTarget forgets the current target.
func (c *AIController) ClearTarget() {
	c.hasTarget = false
}

// Target returns the target id and whether one is set.
func (c *AIController) Target() (uint64, bool) {
	return c.targetID, c.hasTarget
}

// SetPatrolPoints replaces the generated route with explicit waypoints.
// An empty slice restores the generated circle.
func (c *AIController) SetPatrolPoints(points []mgl64.Vec3) {
	c.waypointIndex = 0
	if len(points) == 0 {
		c.customWaypoints = false
		c.waypoints = nil
		c.ensureWaypoints()
		return
	}
	c.customWaypoints = true
	c.waypoints = append([]mgl64.Vec3(nil), points...)
}

// Waypoints returns a copy of the patrol route.
func (c *AIController) Waypoints() []mgl64.Vec3 {
	return append([]mgl64.Vec3(nil), c.waypoints...)
}

// WaypointIndex returns the index of the waypoint currently being approached.
func (c *AIController) WaypointIndex() int {
	return c.waypointIndex
}

// Update runs one step of the state machine.
func (c *AIController) Update(deltaTimeMs float64) ControlInput {
	if c.Pawn() == nil {
		return NoInput()
	}

	switch c.behavior {
	case BehaviorPatrol:
		return c.updatePatrol()
	case BehaviorFollow:
		return c.updateFollow()
	case BehaviorFlee:
		return c.updateFlee()
	default:
		return c.cruise()
	}
}

// cruise holds a steady low thrust with no rotation.
func (c *AIController) cruise() ControlInput {
	return FlightIntent(physics.FlightInput{
		Thrust: physics.Axis(c.config.IdleThrottle),
		Pitch:  physics.Axis(0),
		Yaw:    physics.Axis(0),
		Roll:   physics.Axis(0),
	})
}

func (c *AIController) ensureWaypoints() {
	if len(c.waypoints) > 0 || c.Pawn() == nil {
		return
	}
	n := c.config.PatrolPoints
	if n < 1 {
		n = 1
	}
	center := c.Pawn().SpawnPosition()
	c.waypoints = make([]mgl64.Vec3, n)
	for i := 0; i < n; i++ {
		angle := 2 * math.Pi * float64(i) / float64(n)
		c.waypoints[i] = center.Add(mgl64.Vec3{
			math.Cos(angle) * c.config.PatrolRadius,
			0,
			math.Sin(angle) * c.config.PatrolRadius,
		})
	}
	c.waypointIndex = 0
}

func (c *AIController) updatePatrol() ControlInput {
	c.ensureWaypoints()
	pos := c.Pawn().Position()

	toWaypoint := c.waypoints[c.waypointIndex].Sub(pos)
	if toWaypoint.Len() < c.config.CaptureRadius {
		c.waypointIndex = (c.waypointIndex + 1) % len(c.waypoints)
		toWaypoint = c.waypoints[c.waypointIndex].Sub(pos)
	}

	in, ok := c.steer(toWaypoint, c.config.BaseThrottle, true)
	if !ok {
		// Sitting exactly on the next waypoint counts as capturing it.
		c.waypointIndex = (c.waypointIndex + 1) % len(c.waypoints)
		return c.cruise()
	}
	return in
}

func (c *AIController) updateFollow() ControlInput {
	target, ok := c.resolveTarget()
	if !ok {
		return c.cruise()
	}
	toTarget := target.Position().Sub(c.Pawn().Position())
	in, ok := c.steer(toTarget, c.followThrottle(toTarget.Len()), true)
	if !ok {
		return c.hold()
	}
	return in
}

// followThrottle picks the throttle band for the distance to the target.
func (c *AIController) followThrottle(distance float64) float64 {
	switch {
	case distance < c.config.NearDistance:
		return c.config.NearThrottle
	case distance > c.config.FarDistance:
		return c.config.FarThrottle
	default:
		return c.config.MidThrottle
	}
}

func (c *AIController) updateFlee() ControlInput {
	threat, ok := c.resolveTarget()
	if !ok {
		return c.cruise()
	}
	away := c.Pawn().Position().Sub(threat.Position())
	if away.Len() >= c.config.DangerRadius {
		return c.cruise()
	}
	in, ok := c.steer(away, c.config.FleeThrottle, false)
	if !ok {
		// Coincident with the threat: any direction is away, keep the nose.
		return FlightIntent(physics.FlightInput{Thrust: physics.Axis(c.config.FleeThrottle)})
	}
	return in
}

// hold brakes in place without rotating.
func (c *AIController) hold() ControlInput {
	return FlightIntent(physics.FlightInput{
		Thrust: physics.Axis(0),
		Pitch:  physics.Axis(0),
		Yaw:    physics.Axis(0),
		Roll:   physics.Axis(0),
		Brake:  true,
	})
}

func (c *AIController) resolveTarget() (Pawn, bool) {
	if !c.hasTarget || c.resolver == nil {
		return nil, false
	}
	p, ok := c.resolver.Resolve(c.targetID)
	if !ok || p == nil {
		return nil, false
	}
	return p, true
}

// steer converts a world-space direction into pitch and yaw inputs in the pawn's
// own frame. With gate set, the ship brakes instead of thrusting until the
// direction is inside the alignment cone. It reports false for a zero-length direction.
func (c *AIController) steer(direction mgl64.Vec3, throttle float64, gate bool) (ControlInput, bool) {
	dir, ok := physics.SafeNormalize(direction)
	if !ok {
		return NoInput(), false
	}
	local := c.Pawn().Orientation().Conjugate().Rotate(dir)

	yaw := math.Atan2(local.X(), local.Z()) * c.config.YawGain
	pitch := math.Asin(physics.ClampAxis(local.Y())) * c.config.PitchGain

	in := physics.FlightInput{
		Thrust: physics.Axis(throttle),
		Pitch:  physics.Axis(physics.ClampAxis(pitch)),
		Yaw:    physics.Axis(physics.ClampAxis(yaw)),
		Roll:   physics.Axis(0),
	}
	if gate && local.Z() < math.Cos(c.config.AlignAngle) {
		in.Thrust = physics.Axis(0)
		in.Brake = true
	}
	return FlightIntent(in), true
}
