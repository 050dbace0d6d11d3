// pkg/control/human.go
package control

import (
	"github.com/opd-ai/go-flight/pkg/input"
	"github.com/opd-ai/go-flight/pkg/physics"
)

// CommandSource is the read side of the input collaborator. It must never block.
type CommandSource interface {
	IsCommandActive(command input.Command) bool
	// MouseDelta returns pointer movement since the previous call and resets it.
	MouseDelta() (dx, dy float64)
}

// HumanConfig tunes the keyboard and mouse mapping.
type HumanConfig struct {
	// ThrottleRate is the throttle change per tick unit while a throttle key is held.
	ThrottleRate     float64 `json:"throttleRate" yaml:"throttleRate"`
	MouseLook        bool    `json:"mouseLook" yaml:"mouseLook"`
	MouseSensitivity float64 `json:"mouseSensitivity" yaml:"mouseSensitivity"`
}

// DefaultHumanConfig returns the keyboard defaults with mouse-look off.
func DefaultHumanConfig() HumanConfig {
	return HumanConfig{
		ThrottleRate:     0.01,
		MouseLook:        false,
		MouseSensitivity: 0.005,
	}
}

// HumanController maps held commands into flight intents.
type HumanController struct {
	BaseController
	source   CommandSource
	config   HumanConfig
	throttle float64
}

// NewHumanController creates a controller reading from source.
func NewHumanController(source CommandSource, config HumanConfig) *HumanController {
	return &HumanController{source: source, config: config}
}

// Update samples held commands. It returns a Flight intent every tick so drag keeps
// acting even when no key is held.
func (h *HumanController) Update(deltaTimeMs float64) ControlInput {
	if h.Pawn() == nil {
		return NoInput()
	}
	dt := tickUnits(deltaTimeMs)

	if h.active(input.Forward) {
		h.throttle += h.config.ThrottleRate * dt
	}
	if h.active(input.Backward) {
		h.throttle -= h.config.ThrottleRate * dt
	}
	h.throttle = physics.Clamp(h.throttle, 0, 1)

	pitch := h.axis(input.PitchUp, input.Up, input.PitchDown, input.Down)
	yaw := h.axis(input.YawRight, input.Right, input.YawLeft, input.Left)
	roll := h.axis(input.RollRight, "", input.RollLeft, "")

	if h.source != nil {
		// Always drain the delta so a stale movement does not fire when mouse-look turns on.
		dx, dy := h.source.MouseDelta()
		if h.config.MouseLook {
			yaw += dx * h.config.MouseSensitivity
			pitch += -dy * h.config.MouseSensitivity
		}
	}

	return FlightIntent(physics.FlightInput{
		Thrust: physics.Axis(h.throttle),
		Pitch:  physics.Axis(physics.ClampAxis(pitch)),
		Yaw:    physics.Axis(physics.ClampAxis(yaw)),
		Roll:   physics.Axis(physics.ClampAxis(roll)),
	})
}

// axis returns +1, -1 or 0 from a positive and negative command pair and their aliases.
func (h *HumanController) axis(pos, posAlias, neg, negAlias input.Command) float64 {
	v := 0.0
	if h.active(pos) || (posAlias != "" && h.active(posAlias)) {
		v++
	}
	if h.active(neg) || (negAlias != "" && h.active(negAlias)) {
		v--
	}
	return v
}

func (h *HumanController) active(c input.Command) bool {
	return h.source != nil && h.source.IsCommandActive(c)
}

// SetThrottle sets the throttle accumulator, clamped to [0, 1].
func (h *HumanController) SetThrottle(throttle float64) {
	h.throttle = physics.Clamp(throttle, 0, 1)
}

// Throttle returns the throttle accumulator.
func (h *HumanController) Throttle() float64 {
	return h.throttle
}

// SetMouseLook enables or disables mouse-look.
func (h *HumanController) SetMouseLook(enabled bool) {
	h.config.MouseLook = enabled
}

// SetSensitivity changes the mouse-look scale.
func (h *HumanController) SetSensitivity(sensitivity float64) {
	h.config.MouseSensitivity = sensitivity
}
