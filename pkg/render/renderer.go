// pkg/render/renderer.go
package render

import (
	"context"

	"github.com/opd-ai/go-flight/pkg/engine"
	"github.com/opd-ai/go-flight/pkg/logging"
)

// Renderer draws one simulation snapshot.
type Renderer interface {
	Render(state engine.State) error
}

// NullRenderer logs each frame at debug level and draws nothing.
type NullRenderer struct {
	logger *logging.Logger
}

// NewNullRenderer creates a NullRenderer. A nil logger logs to stdout.
func NewNullRenderer(logger *logging.Logger) *NullRenderer {
	if logger == nil {
		logger = logging.NewLogger()
	}
	return &NullRenderer{logger: logger.Component("render")}
}

// Render implements Renderer.
func (d *NullRenderer) Render(state engine.State) error {
	ctx := context.Background()
	d.logger.Debug(ctx, "Render called",
		"tick", state.Tick,
		"actors", len(state.Actors),
		"camera_mode", state.Camera.Mode.String(),
		"camera_attachments", state.Camera.Attachments,
	)
	for _, a := range state.Actors {
		d.logger.Debug(ctx, "actor",
			"actor_id", a.ID,
			"name", a.Name,
			"renderable", a.Renderable.String(),
			"asset", a.Asset,
			"placeholder", a.Placeholder,
			"input", a.Input.String(),
			"speed", a.Telemetry.Speed,
		)
	}
	return nil
}
