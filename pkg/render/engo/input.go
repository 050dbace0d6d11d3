// pkg/render/engo/input.go
package engo

import (
	"sort"

	"github.com/EngoEngine/ecs"
	"github.com/EngoEngine/engo"

	"github.com/opd-ai/go-flight/pkg/input"
)

// keyCodes maps the key names used in input.Bindings to engo keys.
var keyCodes = map[string]engo.Key{
	"a": engo.KeyA, "b": engo.KeyB, "c": engo.KeyC, "d": engo.KeyD,
	"e": engo.KeyE, "f": engo.KeyF, "g": engo.KeyG, "h": engo.KeyH,
	"i": engo.KeyI, "j": engo.KeyJ, "k": engo.KeyK, "l": engo.KeyL,
	"m": engo.KeyM, "n": engo.KeyN, "o": engo.KeyO, "p": engo.KeyP,
	"q": engo.KeyQ, "r": engo.KeyR, "s": engo.KeyS, "t": engo.KeyT,
	"u": engo.KeyU, "v": engo.KeyV, "w": engo.KeyW, "x": engo.KeyX,
	"y": engo.KeyY, "z": engo.KeyZ,
	"space":      engo.KeySpace,
	"arrowup":    engo.KeyArrowUp,
	"arrowdown":  engo.KeyArrowDown,
	"arrowleft":  engo.KeyArrowLeft,
	"arrowright": engo.KeyArrowRight,
}

// MouseSample is the pointer state read once per frame.
type MouseSample struct {
	X, Y     float32
	ScrollY  float32
	Pressed  bool // orbit button went down this frame
	Released bool // any button went up this frame
}

// InputSystem copies engo key and mouse state into an input.Manager. Keys are
// reported as edges so the manager sees KeyDown once per press. Dragging with
// the right mouse button orbits the camera; plain movement feeds mouse-look.
type InputSystem struct {
	manager *input.Manager
	orbit   func(dAlpha, dBeta, dDistance float64)

	keys  []string
	down  func(key string) bool
	mouse func() MouseSample

	held     map[string]bool
	lastX    float32
	lastY    float32
	tracking bool
	dragging bool

	orbitSensitivity float64
	zoomStep         float64
}

// NewInputSystem creates a system that watches every key in keys. orbit may be nil.
func NewInputSystem(manager *input.Manager, keys []string, orbit func(dAlpha, dBeta, dDistance float64)) *InputSystem {
	watched := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := keyCodes[k]; ok {
			watched = append(watched, k)
		}
	}
	sort.Strings(watched)

	return &InputSystem{
		manager:          manager,
		orbit:            orbit,
		keys:             watched,
		down:             engoButtonDown,
		mouse:            engoMouse,
		held:             make(map[string]bool),
		orbitSensitivity: 0.01,
		zoomStep:         1.0,
	}
}

func engoButtonDown(key string) bool {
	return engo.Input.Button(key).Down()
}

func engoMouse() MouseSample {
	m := engo.Input.Mouse
	return MouseSample{
		X:        m.X,
		Y:        m.Y,
		ScrollY:  m.ScrollY,
		Pressed:  m.Action == engo.Press && m.Button == engo.MouseButtonRight,
		Released: m.Action == engo.Release,
	}
}

// Remove satisfies the ecs.System interface
func (is *InputSystem) Remove(basic ecs.BasicEntity) {}

// Update forwards this frame's key edges and mouse movement.
func (is *InputSystem) Update(dt float32) {
	is.updateKeys()
	is.updateMouse()
}

func (is *InputSystem) updateKeys() {
	for _, key := range is.keys {
		down := is.down(key)
		switch {
		case down && !is.held[key]:
			is.manager.KeyDown(key)
			is.held[key] = true
		case !down && is.held[key]:
			is.manager.KeyUp(key)
			delete(is.held, key)
		}
	}
}

func (is *InputSystem) updateMouse() {
	m := is.mouse()
	if m.Pressed {
		is.dragging = true
	}
	if m.Released {
		is.dragging = false
	}

	if is.tracking {
		dx := float64(m.X - is.lastX)
		dy := float64(m.Y - is.lastY)
		if dx != 0 || dy != 0 {
			if is.dragging {
				is.orbitBy(-dx*is.orbitSensitivity, -dy*is.orbitSensitivity, 0)
			} else {
				is.manager.MouseMove(dx, dy)
			}
		}
	}
	is.lastX, is.lastY = m.X, m.Y
	is.tracking = true

	if m.ScrollY != 0 {
		is.orbitBy(0, 0, -float64(m.ScrollY)*is.zoomStep)
	}
}

func (is *InputSystem) orbitBy(dAlpha, dBeta, dDistance float64) {
	if is.orbit != nil {
		is.orbit(dAlpha, dBeta, dDistance)
	}
}

// Dragging reports whether the orbit button is held.
func (is *InputSystem) Dragging() bool {
	return is.dragging
}

// WatchedKeys returns the keys polled each frame.
func (is *InputSystem) WatchedKeys() []string {
	return append([]string(nil), is.keys...)
}

// BoundKeys lists every key bound to a flight command.
func BoundKeys(bindings *input.Bindings) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, command := range input.AllCommands {
		for _, k := range bindings.KeysFor(command) {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}

// SetupInputBindings registers one engo button per key so InputSystem can
// poll it by name.
func SetupInputBindings(keys []string) {
	for _, k := range keys {
		if code, ok := keyCodes[k]; ok {
			engo.Input.RegisterButton(k, code)
		}
	}
}
