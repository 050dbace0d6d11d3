// Package input maps physical keys onto named flight commands and tracks
// held, just-pressed and mouse state between frames.
package input

import (
	"sort"
	"strings"
	"sync"
)

// Command is a named logical action, decoupled from the key that triggers it.
type Command string

// Flight commands.
const (
	Forward      Command = "forward"
	Backward     Command = "backward"
	PitchUp      Command = "pitchUp"
	PitchDown    Command = "pitchDown"
	YawLeft      Command = "yawLeft"
	YawRight     Command = "yawRight"
	RollLeft     Command = "rollLeft"
	RollRight    Command = "rollRight"
	ToggleCamera Command = "toggleCamera"

	// Aliases kept for arrow-key style bindings.
	Up    Command = "up"
	Down  Command = "down"
	Left  Command = "left"
	Right Command = "right"
)

// AllCommands lists every command the flight controls understand.
var AllCommands = []Command{
	Forward, Backward, PitchUp, PitchDown, YawLeft, YawRight,
	RollLeft, RollRight, ToggleCamera, Up, Down, Left, Right,
}

// Valid reports whether c is a known command.
func (c Command) Valid() bool {
	for _, known := range AllCommands {
		if c == known {
			return true
		}
	}
	return false
}

// Bindings is a rebindable key to command table. Keys are case-insensitive.
type Bindings struct {
	keys map[string]Command
}

// NewBindings creates an empty table.
func NewBindings() *Bindings {
	return &Bindings{keys: make(map[string]Command)}
}

// DefaultBindings returns the left-hand flight layout: X/Z throttle, W/S pitch,
// A/D yaw, Q/E roll, C camera and arrow keys as aliases.
func DefaultBindings() *Bindings {
	b := NewBindings()
	b.Bind("x", Forward)
	b.Bind("z", Backward)
	b.Bind("w", PitchUp)
	b.Bind("s", PitchDown)
	b.Bind("a", YawLeft)
	b.Bind("d", YawRight)
	b.Bind("q", RollRight)
	b.Bind("e", RollLeft)
	b.Bind("c", ToggleCamera)
	b.Bind("arrowup", Up)
	b.Bind("arrowdown", Down)
	b.Bind("arrowleft", Left)
	b.Bind("arrowright", Right)
	return b
}

// Bind maps key to command, replacing any previous binding of that key.
func (b *Bindings) Bind(key string, command Command) {
	b.keys[normalizeKey(key)] = command
}

// Unbind removes the binding for key.
func (b *Bindings) Unbind(key string) {
	delete(b.keys, normalizeKey(key))
}

// Lookup returns the command bound to key.
func (b *Bindings) Lookup(key string) (Command, bool) {
	c, ok := b.keys[normalizeKey(key)]
	return c, ok
}

// KeysFor returns the keys bound to command in sorted order.
func (b *Bindings) KeysFor(command Command) []string {
	var keys []string
	for k, c := range b.keys {
		if c == command {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Clone returns an independent copy of the table.
func (b *Bindings) Clone() *Bindings {
	c := NewBindings()
	for k, v := range b.keys {
		c.keys[k] = v
	}
	return c
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Manager tracks raw key and mouse events and answers command queries.
// Raw events may arrive from a window thread; queries come from the tick.
type Manager struct {
	mu          sync.Mutex
	bindings    *Bindings
	held        map[string]bool
	justPressed map[string]bool
	mouseDX     float64
	mouseDY     float64
	callbacks   map[Command][]func()
}

// NewManager creates a manager using bindings. A nil table uses DefaultBindings.
func NewManager(bindings *Bindings) *Manager {
	if bindings == nil {
		bindings = DefaultBindings()
	}
	return &Manager{
		bindings:    bindings,
		held:        make(map[string]bool),
		justPressed: make(map[string]bool),
		callbacks:   make(map[Command][]func()),
	}
}

// BindKey rebinds key at runtime.
func (m *Manager) BindKey(key string, command Command) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bindings.Bind(key, command)
}

// KeyDown records a key press. Repeated presses while held are not "just pressed".
func (m *Manager) KeyDown(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := normalizeKey(key)
	if !m.held[k] {
		m.justPressed[k] = true
	}
	m.held[k] = true
}

// KeyUp records a key release.
func (m *Manager) KeyUp(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.held, normalizeKey(key))
}

// MouseMove accumulates pointer movement until the next MouseDelta call.
func (m *Manager) MouseMove(dx, dy float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mouseDX += dx
	m.mouseDY += dy
}

// MouseDelta returns the movement accumulated since the last call and resets it.
func (m *Manager) MouseDelta() (dx, dy float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dx, dy = m.mouseDX, m.mouseDY
	m.mouseDX, m.mouseDY = 0, 0
	return dx, dy
}

// IsCommandActive reports whether any key bound to command is held.
func (m *Manager) IsCommandActive(command Command) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.anyBound(command, m.held)
}

// WasCommandJustPressed reports whether a key bound to command went down this frame.
func (m *Manager) WasCommandJustPressed(command Command) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.anyBound(command, m.justPressed)
}

func (m *Manager) anyBound(command Command, keys map[string]bool) bool {
	for k := range keys {
		if c, ok := m.bindings.Lookup(k); ok && c == command {
			return true
		}
	}
	return false
}

// OnCommand registers a callback run by EndFrame while command is held.
func (m *Manager) OnCommand(command Command, callback func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks[command] = append(m.callbacks[command], callback)
}

// EndFrame runs held-command callbacks and clears the just-pressed set.
func (m *Manager) EndFrame() {
	m.mu.Lock()
	var due []func()
	for command, callbacks := range m.callbacks {
		if m.anyBound(command, m.held) {
			due = append(due, callbacks...)
		}
	}
	m.justPressed = make(map[string]bool)
	m.mu.Unlock()

	for _, cb := range due {
		cb()
	}
}
