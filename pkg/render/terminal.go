// pkg/render/terminal.go
package render

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/opd-ai/go-flight/pkg/engine"
	"github.com/opd-ai/go-flight/pkg/entity"
)

// TerminalRenderer draws a top-down ASCII view of the XZ plane centred on
// the selected actor, followed by its telemetry.
type TerminalRenderer struct {
	out    io.Writer
	width  int
	height int
	buffer [][]rune
	scale  float64
	center mgl64.Vec3
	ansi   bool
}

// NewTerminalRenderer creates a renderer whose cells each cover scale world units.
func NewTerminalRenderer(out io.Writer, width, height int, scale float64) *TerminalRenderer {
	buffer := make([][]rune, height)
	for i := range buffer {
		buffer[i] = make([]rune, width)
	}
	if scale <= 0 {
		scale = 1
	}

	return &TerminalRenderer{
		out:    out,
		width:  width,
		height: height,
		buffer: buffer,
		scale:  scale,
	}
}

// SetANSI enables clearing the terminal before each frame.
func (r *TerminalRenderer) SetANSI(enabled bool) {
	r.ansi = enabled
}

// worldToScreen projects onto the XZ plane. Forward (+Z) is up the screen.
func (r *TerminalRenderer) worldToScreen(pos mgl64.Vec3) (int, int, bool) {
	x := int((pos.X()-r.center.X())/r.scale + float64(r.width)/2)
	y := int(-(pos.Z()-r.center.Z())/r.scale + float64(r.height)/2)
	return x, y, x >= 0 && x < r.width && y >= 0 && y < r.height
}

func (r *TerminalRenderer) clear() {
	for y := range r.buffer {
		for x := range r.buffer[y] {
			r.buffer[y][x] = ' '
		}
	}
}

func (r *TerminalRenderer) plot(pos mgl64.Vec3, symbol rune) {
	if x, y, ok := r.worldToScreen(pos); ok {
		r.buffer[y][x] = symbol
	}
}

func classSymbol(class entity.ShipClass) rune {
	switch class {
	case entity.Interceptor:
		return 'i'
	case entity.Capital:
		return 'C'
	default:
		return 'f'
	}
}

// Render implements Renderer.
func (r *TerminalRenderer) Render(state engine.State) error {
	var selected *engine.ActorState
	for i := range state.Actors {
		if state.Actors[i].ID == state.Selected {
			selected = &state.Actors[i]
		}
	}
	if selected != nil {
		r.center = selected.State.Position
	}

	r.clear()
	r.plot(state.Camera.Position, '+')
	for _, a := range state.Actors {
		r.plot(a.State.Position, classSymbol(a.Class))
	}
	// Drawn last so it is never hidden.
	if selected != nil {
		r.plot(selected.State.Position, '@')
	}

	w := bufio.NewWriter(r.out)
	if r.ansi {
		w.WriteString("\033[H\033[2J")
	}
	border := "+" + strings.Repeat("-", r.width) + "+\n"
	w.WriteString(border)
	for y := range r.buffer {
		w.WriteString("|")
		w.WriteString(string(r.buffer[y]))
		w.WriteString("|\n")
	}
	w.WriteString(border)

	fmt.Fprintf(w, "tick %d  camera %s\n", state.Tick, state.Camera.Mode)
	if selected != nil {
		t := selected.Telemetry
		fmt.Fprintf(w, "%s [%s] speed %.1f/%.1f throttle %.0f%% pitch %.1f roll %.1f yaw %.1f\n",
			selected.Name, selected.Class, t.Speed, t.MaxSpeed, t.ThrottlePercent, t.PitchDeg, t.RollDeg, t.YawDeg)
	}
	return w.Flush()
}
