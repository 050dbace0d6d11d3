// pkg/render/engo/flight.go
package engo

import (
	"context"
	"sync"

	"github.com/EngoEngine/ecs"

	"github.com/opd-ai/go-flight/pkg/engine"
	"github.com/opd-ai/go-flight/pkg/logging"
	"github.com/opd-ai/go-flight/pkg/render"
)

// maxFrameMs caps one frame's simulated time after a window stall.
const maxFrameMs = 100.0

// FlightSystem advances the simulation once per engo frame and hands the
// resulting snapshot to the renderers.
type FlightSystem struct {
	sim       *engine.Simulation
	renderers []render.Renderer
	logger    *logging.Logger

	mu   sync.RWMutex
	last engine.State
}

// NewFlightSystem creates a system ticking sim. A nil logger logs to stdout.
func NewFlightSystem(sim *engine.Simulation, logger *logging.Logger, renderers ...render.Renderer) *FlightSystem {
	if logger == nil {
		logger = logging.NewLogger()
	}
	return &FlightSystem{
		sim:       sim,
		renderers: renderers,
		logger:    logger.Component("engo"),
		last:      sim.Snapshot(),
	}
}

// Remove satisfies the ecs.System interface
func (fs *FlightSystem) Remove(basic ecs.BasicEntity) {}

// Update ticks the simulation by dt seconds and renders the new state.
func (fs *FlightSystem) Update(dt float32) {
	ms := float64(dt) * 1000
	if ms > maxFrameMs {
		ms = maxFrameMs
	}
	if ms > 0 {
		fs.sim.Tick(ms)
	}

	state := fs.sim.Snapshot()
	fs.mu.Lock()
	fs.last = state
	fs.mu.Unlock()

	for _, r := range fs.renderers {
		if err := r.Render(state); err != nil {
			fs.logger.Error(context.Background(), "render failed", err, "tick", state.Tick)
		}
	}
}

// State returns the snapshot taken on the last update.
func (fs *FlightSystem) State() engine.State {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.last
}

// CameraView returns the rig view from the last snapshot.
func (fs *FlightSystem) CameraView() engine.CameraState {
	return fs.State().Camera
}
