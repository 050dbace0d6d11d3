// pkg/render/engo/hud.go
package engo

import (
	"image/color"

	"github.com/EngoEngine/ecs"
	"github.com/EngoEngine/engo"
	"github.com/EngoEngine/engo/common"

	"github.com/opd-ai/go-flight/pkg/engine"
	"github.com/opd-ai/go-flight/pkg/entity"
)

// HUD draws throttle and speed gauges for the selected actor in screen space.
type HUD struct {
	origin    engo.Point
	barWidth  float32
	barHeight float32
	spacing   float32

	throttle *sprite
	speed    *sprite
	frames   []*sprite

	last entity.Telemetry
}

// NewHUD creates a HUD whose gauges start at origin.
func NewHUD(origin engo.Point) *HUD {
	return &HUD{
		origin:    origin,
		barWidth:  160,
		barHeight: 8,
		spacing:   6,
	}
}

// Initialize adds the gauge sprites to rs.
func (hud *HUD) Initialize(rs spriteSystem) {
	gauges := []struct {
		fill  **sprite
		color color.Color
	}{
		{&hud.throttle, color.RGBA{255, 160, 0, 255}},
		{&hud.speed, color.RGBA{0, 200, 255, 255}},
	}

	for i, g := range gauges {
		y := hud.origin.Y + float32(i)*(hud.barHeight+hud.spacing)

		frame := hud.newRect(common.Rectangle{BorderWidth: 1, BorderColor: color.White}, color.Transparent)
		frame.space = common.SpaceComponent{
			Position: engo.Point{X: hud.origin.X, Y: y},
			Width:    hud.barWidth,
			Height:   hud.barHeight,
		}
		hud.frames = append(hud.frames, frame)
		rs.Add(&frame.basic, &frame.render, &frame.space)

		fill := hud.newRect(common.Rectangle{}, g.color)
		fill.space = common.SpaceComponent{
			Position: engo.Point{X: hud.origin.X, Y: y},
			Height:   hud.barHeight,
		}
		*g.fill = fill
		rs.Add(&fill.basic, &fill.render, &fill.space)
	}
}

func (hud *HUD) newRect(shape common.Rectangle, c color.Color) *sprite {
	s := &sprite{
		basic:  ecs.NewBasic(),
		render: common.RenderComponent{Drawable: shape, Color: c},
	}
	s.render.SetShader(common.HUDShader)
	return s
}

// Render implements render.Renderer
func (hud *HUD) Render(state engine.State) error {
	for _, a := range state.Actors {
		if a.Selected {
			hud.last = a.Telemetry
			break
		}
	}
	throttle, speed := hud.gaugeWidths(hud.last)
	if hud.throttle != nil {
		hud.throttle.space.Width = throttle
	}
	if hud.speed != nil {
		hud.speed.space.Width = speed
	}
	return nil
}

// gaugeWidths converts telemetry to filled bar widths in pixels.
func (hud *HUD) gaugeWidths(t entity.Telemetry) (throttle, speed float32) {
	throttle = hud.barWidth * float32(fraction(t.ThrottlePercent, 100))
	speed = hud.barWidth * float32(fraction(t.Speed, t.MaxSpeed))
	return throttle, speed
}

// Telemetry returns the telemetry shown on the last render.
func (hud *HUD) Telemetry() entity.Telemetry {
	return hud.last
}

func fraction(v, max float64) float64 {
	if max <= 0 || v <= 0 {
		return 0
	}
	if v >= max {
		return 1
	}
	return v / max
}
