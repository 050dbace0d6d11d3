// Package scene keeps the renderable stand-ins for actors in a generational arena.
// A handle stays valid until its renderable is replaced or released, so holders
// can detect a swapped asset by comparing handles instead of pointers.
package scene

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
)

// ErrNoRenderable is returned when an actor has no renderable attached.
var ErrNoRenderable = errors.New("no renderable for actor")

// Handle identifies one renderable. The zero Handle is never issued.
type Handle struct {
	Index      uint32
	Generation uint32
}

// Valid reports whether h could refer to a renderable.
func (h Handle) Valid() bool {
	return h.Generation != 0
}

// String formats the handle for logs.
func (h Handle) String() string {
	return fmt.Sprintf("%d#%d", h.Index, h.Generation)
}

// Frame is a renderable's world transform.
type Frame struct {
	Position    mgl64.Vec3
	Orientation mgl64.Quat
}

// Renderable is the visual stand-in for an actor.
type Renderable struct {
	Handle      Handle
	ActorID     uint64
	Asset       string
	Placeholder bool
	Frame       Frame
}

type slot struct {
	generation uint32
	live       bool
	renderable Renderable
}

// Arena stores renderables keyed by actor id.
type Arena struct {
	mu      sync.RWMutex
	slots   []slot
	free    []uint32
	byActor map[uint64]uint32
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{byActor: make(map[uint64]uint32)}
}

// Attach gives actorID a renderable, replacing any existing one.
func (a *Arena) Attach(actorID uint64, asset string, placeholder bool, frame Frame) Handle {
	a.mu.Lock()
	defer a.mu.Unlock()
	if idx, ok := a.byActor[actorID]; ok {
		a.releaseLocked(idx)
	}
	return a.allocateLocked(actorID, asset, placeholder, frame)
}

// Replace swaps the actor's renderable for a loaded asset in one step. The new
// renderable inherits the old frame and always gets a different handle.
func (a *Arena) Replace(actorID uint64, asset string) (Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	idx, ok := a.byActor[actorID]
	if !ok {
		return Handle{}, fmt.Errorf("replace actor %d: %w", actorID, ErrNoRenderable)
	}
	frame := a.slots[idx].renderable.Frame
	a.releaseLocked(idx)
	return a.allocateLocked(actorID, asset, false, frame), nil
}

// Release disposes of the actor's renderable. Releasing twice is a no-op.
func (a *Arena) Release(actorID uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if idx, ok := a.byActor[actorID]; ok {
		a.releaseLocked(idx)
	}
}

// Resolve returns the current handle for an actor.
func (a *Arena) Resolve(actorID uint64) (Handle, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	idx, ok := a.byActor[actorID]
	if !ok {
		return Handle{}, false
	}
	return a.slots[idx].renderable.Handle, true
}

// Get returns the renderable for h if h is still current.
func (a *Arena) Get(h Handle) (Renderable, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if int(h.Index) >= len(a.slots) {
		return Renderable{}, false
	}
	s := a.slots[h.Index]
	if !s.live || s.generation != h.Generation {
		return Renderable{}, false
	}
	return s.renderable, true
}

// Frame returns the actor's current transform and the handle it was read from.
func (a *Arena) Frame(actorID uint64) (Frame, Handle, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	idx, ok := a.byActor[actorID]
	if !ok {
		return Frame{}, Handle{}, false
	}
	r := a.slots[idx].renderable
	return r.Frame, r.Handle, true
}

// Sync copies an actor's transform into its renderable.
func (a *Arena) Sync(actorID uint64, frame Frame) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	idx, ok := a.byActor[actorID]
	if !ok {
		return false
	}
	a.slots[idx].renderable.Frame = frame
	return true
}

// Len returns the number of live renderables.
func (a *Arena) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.byActor)
}

func (a *Arena) allocateLocked(actorID uint64, asset string, placeholder bool, frame Frame) Handle {
	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		a.slots = append(a.slots, slot{})
		idx = uint32(len(a.slots) - 1)
	}

	s := &a.slots[idx]
	s.generation++
	s.live = true
	h := Handle{Index: idx, Generation: s.generation}
	s.renderable = Renderable{
		Handle:      h,
		ActorID:     actorID,
		Asset:       asset,
		Placeholder: placeholder,
		Frame:       frame,
	}
	a.byActor[actorID] = idx
	return h
}

func (a *Arena) releaseLocked(idx uint32) {
	s := &a.slots[idx]
	if !s.live {
		return
	}
	delete(a.byActor, s.renderable.ActorID)
	s.live = false
	s.renderable = Renderable{}
	a.free = append(a.free, idx)
}
