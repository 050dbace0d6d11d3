// pkg/render/engo/scene.go
package engo

import (
	"context"
	"fmt"
	"image/color"

	"github.com/EngoEngine/ecs"
	"github.com/EngoEngine/engo"
	"github.com/EngoEngine/engo/common"

	"github.com/opd-ai/go-flight/pkg/engine"
	"github.com/opd-ai/go-flight/pkg/input"
	"github.com/opd-ai/go-flight/pkg/logging"
)

// DefaultScale is the default number of pixels per world unit.
const DefaultScale = 4

// FlightScene is the engo scene hosting a local simulation.
type FlightScene struct {
	sim        *engine.Simulation
	logger     *logging.Logger
	projection Projection
	keys       []string

	renderer *EngoRenderer
	hud      *HUD
	flight   *FlightSystem
	camera   *CameraSystem
	input    *InputSystem
}

// NewFlightScene creates a scene for sim. Keys bound in bindings are polled
// each frame; a nil table uses input.DefaultBindings.
func NewFlightScene(sim *engine.Simulation, bindings *input.Bindings, logger *logging.Logger) *FlightScene {
	if bindings == nil {
		bindings = input.DefaultBindings()
	}
	if logger == nil {
		logger = logging.NewLogger()
	}
	return &FlightScene{
		sim:        sim,
		logger:     logger.Component("engo"),
		projection: Projection{Scale: DefaultScale},
		keys:       BoundKeys(bindings),
	}
}

// SetScale changes the pixels per world unit. It takes effect on Setup.
func (scene *FlightScene) SetScale(scale float32) {
	if scale > 0 {
		scene.projection.Scale = scale
	}
}

// Type returns the scene type (required by Engo)
func (scene *FlightScene) Type() string {
	return "FlightScene"
}

// Preload is called before the scene starts (required by Engo)
func (scene *FlightScene) Preload() {}

// Setup adds the render system, then input, flight and camera in update order.
func (scene *FlightScene) Setup(u engo.Updater) {
	world, ok := u.(*ecs.World)
	if !ok {
		panic(fmt.Sprintf("flight scene needs an *ecs.World, got %T", u))
	}
	common.SetBackground(color.Black)

	SetupInputBindings(scene.keys)

	scene.renderer = NewEngoRenderer(scene.projection)
	if err := scene.renderer.Initialize(world); err != nil {
		panic("failed to initialize renderer: " + err.Error())
	}
	scene.hud = NewHUD(engo.Point{X: 10, Y: 10})
	scene.hud.Initialize(scene.renderer.renderSystem)

	scene.input = NewInputSystem(scene.sim.Input(), scene.keys, scene.sim.OrbitCamera)
	scene.flight = NewFlightSystem(scene.sim, scene.logger, scene.renderer, scene.hud)
	scene.camera = NewCameraSystem(scene.flight.CameraView, scene.projection)
	if rig := scene.sim.Config().Camera; rig.Orbit.Distance > 0 {
		scene.camera.SetReferenceDistance(rig.Orbit.Distance)
	}

	world.AddSystem(scene.input)
	world.AddSystem(scene.flight)
	world.AddSystem(scene.camera)

	scene.logger.Info(context.Background(), "flight scene ready",
		"actors", scene.sim.ActorCount(), "keys", len(scene.keys), "scale", scene.projection.Scale)
}

// Exit is called when the window closes (required by Engo)
func (scene *FlightScene) Exit() {
	scene.logger.Info(context.Background(), "flight scene exiting", "ticks", scene.sim.TickCount())
}
