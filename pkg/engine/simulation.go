// pkg/engine/simulation.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/opd-ai/go-flight/pkg/camera"
	"github.com/opd-ai/go-flight/pkg/config"
	"github.com/opd-ai/go-flight/pkg/control"
	"github.com/opd-ai/go-flight/pkg/entity"
	"github.com/opd-ai/go-flight/pkg/event"
	"github.com/opd-ai/go-flight/pkg/input"
	"github.com/opd-ai/go-flight/pkg/logging"
	"github.com/opd-ai/go-flight/pkg/physics"
	"github.com/opd-ai/go-flight/pkg/resource"
	"github.com/opd-ai/go-flight/pkg/scene"
)

// Simulation errors
var (
	ErrActorNotFound  = errors.New("actor not found")
	ErrDuplicateActor = errors.New("actor already exists")
	ErrTooManyActors  = errors.New("actor limit reached")
)

// maxTickDelta caps the wall time fed into one tick by Run.
const maxTickDelta = 100 * time.Millisecond

// AssetSource loads renderable assets off the tick goroutine. Completed loads
// are collected with Drain at the start of a tick.
type AssetSource interface {
	Request(actorID uint64, name string) error
	Drain() []resource.LoadResult
}

// FrameRecorder receives every actor's state once per tick. It must not block.
type FrameRecorder interface {
	RecordFrame(tick uint64, telemetry entity.Telemetry, state physics.FlightState)
}

// ActorState is a copy of one actor taken at the end of a tick. Placeholder
// is true until the actor's model has loaded.
type ActorState struct {
	ID          uint64
	Name        string
	Class       entity.ShipClass
	Controller  string
	State       physics.FlightState
	Telemetry   entity.Telemetry
	Input       control.InputKind
	Renderable  scene.Handle
	Asset       string
	Placeholder bool
	Selected    bool
}

// CameraState is a copy of the camera rig's view. Attachments counts pivot
// attachments, one per follow start or model swap.
type CameraState struct {
	Mode        camera.Mode
	Position    mgl64.Vec3
	LookAt      mgl64.Vec3
	Up          mgl64.Vec3
	Attachments int
}

// State is a snapshot of the simulation for renderers.
type State struct {
	Tick     uint64
	Selected uint64
	Actors   []ActorState
	Camera   CameraState
}

// Simulation owns the actors and runs them with the camera, scene and input
// collaborators in a fixed order each tick.
type Simulation struct {
	config *config.Config
	logger *logging.Logger

	mu       sync.Mutex
	actors   []*entity.Actor
	byID     map[uint64]*entity.Actor
	selected uint64

	arena  *scene.Arena
	modes  *camera.ModeSwitch
	rig    *camera.Rig
	input  *input.Manager
	bus    *event.Bus
	assets AssetSource
	frames FrameRecorder

	onTelemetry func(entity.Telemetry)

	// Events raised while locked are published after the lock is released.
	pending []event.Event

	metrics    *simulationMetrics
	tick       atomic.Uint64
	lastTick   atomic.Int64
	actorCount atomic.Int64
}

// NewSimulation creates an empty simulation. A nil logger logs to stdout.
func NewSimulation(cfg *config.Config, logger *logging.Logger) (*Simulation, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = logging.NewLogger()
	}

	s := &Simulation{
		config: cfg,
		logger: logger.Component("engine"),
		byID:   make(map[uint64]*entity.Actor),
		arena:  scene.NewArena(),
		modes:  camera.NewModeSwitch(cfg.Camera.InitialMode),
		input:  input.NewManager(input.DefaultBindings()),
		bus:    event.NewEventBus(),
	}
	s.rig = camera.NewRig(cfg.Camera, s.modes, s.arena)
	s.rig.OnModeChange(func(from, to camera.Mode) {
		s.pending = append(s.pending, event.NewCameraEvent(s, from.String(), to.String()))
	})

	m, err := newSimulationMetrics(func() int64 { return s.actorCount.Load() })
	if err != nil {
		return nil, fmt.Errorf("simulation metrics: %w", err)
	}
	s.metrics = m
	return s, nil
}

// Input returns the input manager that human controllers read from.
func (s *Simulation) Input() *input.Manager { return s.input }

// Events returns the simulation's event bus.
func (s *Simulation) Events() *event.Bus { return s.bus }

// Arena returns the renderable arena.
func (s *Simulation) Arena() *scene.Arena { return s.arena }

// Modes returns the camera mode switch. It is safe to toggle from any goroutine.
func (s *Simulation) Modes() *camera.ModeSwitch { return s.modes }

// Config returns the configuration the simulation was built with.
func (s *Simulation) Config() *config.Config { return s.config }

// SetAssetSource installs the asset loader. Actors added afterwards request their model.
func (s *Simulation) SetAssetSource(src AssetSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets = src
}

// SetRecorder installs the frame recorder.
func (s *Simulation) SetRecorder(r FrameRecorder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = r
}

// OnTelemetry registers fn to receive the selected actor's telemetry every tick.
// fn runs with the simulation locked and must not call back into it.
func (s *Simulation) OnTelemetry(fn func(entity.Telemetry)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTelemetry = fn
}

// OrbitCamera forwards user orbit input to the camera rig.
func (s *Simulation) OrbitCamera(dAlpha, dBeta, dDistance float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rig.OrbitBy(dAlpha, dBeta, dDistance)
}

// AddActor registers an actor, attaches a placeholder renderable and requests
// the class model when an asset source is installed.
func (s *Simulation) AddActor(actor *entity.Actor) error {
	s.mu.Lock()
	err := s.addActorLocked(actor)
	s.mu.Unlock()
	s.flushEvents()
	return err
}

func (s *Simulation) addActorLocked(actor *entity.Actor) error {
	if actor == nil {
		return fmt.Errorf("add actor: %w", ErrActorNotFound)
	}
	if _, exists := s.byID[actor.ID()]; exists {
		return fmt.Errorf("actor %d: %w", actor.ID(), ErrDuplicateActor)
	}
	if limit := s.config.Simulation.MaxActors; limit > 0 && len(s.actors) >= limit {
		return fmt.Errorf("actor %q: %w", actor.Name(), ErrTooManyActors)
	}

	s.actors = append(s.actors, actor)
	s.byID[actor.ID()] = actor
	s.actorCount.Store(int64(len(s.actors)))

	className := strings.ToLower(actor.Class().String())
	s.arena.Attach(actor.ID(), "placeholder:"+className, true, frameOf(actor))
	if s.assets != nil {
		if model := s.config.Assets.Models[className]; model != "" {
			if err := s.assets.Request(actor.ID(), model); err != nil {
				s.logger.Actor(actor.ID(), actor.Name()).Warn(context.Background(), "asset request rejected",
					"asset", model, "error", err)
			}
		}
	}

	s.pending = append(s.pending, event.NewActorEvent(event.ActorAdded, s, actor.ID(), actor.Name(), actor.Class().String()))
	return nil
}

// RemoveActor unpossesses the actor, clears the camera target if it was
// selected and releases its renderable.
func (s *Simulation) RemoveActor(actorID uint64) error {
	s.mu.Lock()
	err := s.removeActorLocked(actorID)
	s.mu.Unlock()
	s.flushEvents()
	return err
}

func (s *Simulation) removeActorLocked(actorID uint64) error {
	actor, ok := s.byID[actorID]
	if !ok {
		return fmt.Errorf("actor %d: %w", actorID, ErrActorNotFound)
	}

	s.unpossessLocked(actor)
	delete(s.byID, actorID)
	for i, a := range s.actors {
		if a == actor {
			s.actors = append(s.actors[:i], s.actors[i+1:]...)
			break
		}
	}
	s.actorCount.Store(int64(len(s.actors)))

	if s.selected == actorID {
		s.selected = 0
		s.rig.ClearTarget()
	}
	s.arena.Release(actorID)

	s.pending = append(s.pending, event.NewActorEvent(event.ActorRemoved, s, actorID, actor.Name(), actor.Class().String()))
	return nil
}

// SelectActor makes the actor the camera target and the telemetry source.
func (s *Simulation) SelectActor(actorID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[actorID]; !ok {
		return fmt.Errorf("select actor %d: %w", actorID, ErrActorNotFound)
	}
	s.selected = actorID
	s.rig.SetTarget(actorID)
	return nil
}

// Selected returns the selected actor id, or false when none is selected.
func (s *Simulation) Selected() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected, s.selected != 0
}

// Possess hands the actor to c. A controller driving another actor moves over.
func (s *Simulation) Possess(actorID uint64, c control.Controller) error {
	s.mu.Lock()
	err := s.possessLocked(actorID, c)
	s.mu.Unlock()
	s.flushEvents()
	return err
}

func (s *Simulation) possessLocked(actorID uint64, c control.Controller) error {
	actor, ok := s.byID[actorID]
	if !ok {
		return fmt.Errorf("possess actor %d: %w", actorID, ErrActorNotFound)
	}
	if c == nil {
		s.unpossessLocked(actor)
		return nil
	}
	if actor.Controller() == c {
		return nil
	}

	if prev, ok := c.Pawn().(*entity.Actor); ok && prev != actor && prev.Controller() == c {
		s.pending = append(s.pending, event.NewPossessionEvent(event.ControllerUnpossessed, s, prev.ID(), ControllerKind(c)))
	}
	if old := actor.Controller(); old != nil {
		s.pending = append(s.pending, event.NewPossessionEvent(event.ControllerUnpossessed, s, actor.ID(), ControllerKind(old)))
	}
	actor.Possess(c)
	s.pending = append(s.pending, event.NewPossessionEvent(event.ControllerPossessed, s, actor.ID(), ControllerKind(c)))
	return nil
}

// Unpossess detaches the actor's controller. The actor keeps drifting under drag.
func (s *Simulation) Unpossess(actorID uint64) error {
	s.mu.Lock()
	actor, ok := s.byID[actorID]
	if ok {
		s.unpossessLocked(actor)
	}
	s.mu.Unlock()
	s.flushEvents()
	if !ok {
		return fmt.Errorf("unpossess actor %d: %w", actorID, ErrActorNotFound)
	}
	return nil
}

func (s *Simulation) unpossessLocked(actor *entity.Actor) {
	c := actor.Controller()
	if c == nil {
		return
	}
	actor.Unpossess()
	s.pending = append(s.pending, event.NewPossessionEvent(event.ControllerUnpossessed, s, actor.ID(), ControllerKind(c)))
}

// Tick advances the simulation by deltaTimeMs. Completed asset loads are
// applied first, then the camera toggle is read, actors tick in insertion order,
// the scene and camera follow, and finally telemetry and recording run before
// the input frame ends.
func (s *Simulation) Tick(deltaTimeMs float64) {
	start := time.Now()

	s.mu.Lock()
	s.applyLoadedAssets()

	if s.input.WasCommandJustPressed(input.ToggleCamera) {
		s.modes.Toggle()
	}

	for _, actor := range s.actors {
		actor.Tick(deltaTimeMs)
		s.wrapLocked(actor)
	}
	for _, actor := range s.actors {
		s.arena.Sync(actor.ID(), frameOf(actor))
	}

	s.rig.Update(deltaTimeMs)

	tick := s.tick.Add(1)
	if selected, ok := s.byID[s.selected]; ok && s.onTelemetry != nil {
		s.onTelemetry(selected.Telemetry())
	}
	if s.frames != nil {
		for _, actor := range s.actors {
			s.frames.RecordFrame(tick, actor.Telemetry(), actor.State())
		}
	}

	s.input.EndFrame()
	mode := s.rig.Mode()
	s.mu.Unlock()

	s.flushEvents()
	s.lastTick.Store(time.Now().UnixNano())
	s.metrics.recordTick(context.Background(), float64(time.Since(start))/float64(time.Millisecond), mode.String())
}

// applyLoadedAssets swaps placeholders for loaded models. Loads for actors that
// have since been removed are dropped.
func (s *Simulation) applyLoadedAssets() {
	if s.assets == nil {
		return
	}
	ctx := context.Background()
	for _, result := range s.assets.Drain() {
		if _, ok := s.byID[result.ActorID]; !ok {
			continue
		}
		if result.Err != nil {
			s.logger.Warn(ctx, "asset load failed, keeping placeholder",
				"actor_id", result.ActorID, "error", result.Err)
			s.metrics.recordSwap(ctx, false)
			continue
		}
		handle, err := s.arena.Replace(result.ActorID, result.Asset.Name)
		if err != nil {
			s.logger.Warn(ctx, "renderable swap failed", "actor_id", result.ActorID, "error", err)
			s.metrics.recordSwap(ctx, false)
			continue
		}
		s.metrics.recordSwap(ctx, true)
		s.logger.Debug(ctx, "renderable swapped",
			"actor_id", result.ActorID, "asset", result.Asset.Name, "handle", handle.String(),
			"load_ms", result.Duration.Milliseconds())
		s.pending = append(s.pending, event.NewRenderableEvent(s, result.ActorID, result.Asset.Name, handle.String()))
	}
}

func (s *Simulation) flushEvents() {
	s.mu.Lock()
	events := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, e := range events {
		s.bus.Publish(e)
	}
}

// Run ticks at the configured rate until ctx is cancelled. Wall time between
// ticks is capped so a stall cannot produce one huge step.
func (s *Simulation) Run(ctx context.Context) error {
	interval := s.config.Simulation.TickInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info(ctx, "simulation running", "tick_interval", interval.String(), "actors", s.ActorCount(), "renderables", s.arena.Len())

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "simulation stopped", "ticks", s.TickCount())
			return nil
		case now := <-ticker.C:
			delta := now.Sub(last)
			last = now
			if delta > maxTickDelta {
				delta = maxTickDelta
			}
			s.Tick(float64(delta) / float64(time.Millisecond))
		}
	}
}

// TickCount returns the number of completed ticks.
func (s *Simulation) TickCount() uint64 { return s.tick.Load() }

// LastTick returns when the most recent tick finished, or the zero time.
func (s *Simulation) LastTick() time.Time {
	ns := s.lastTick.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// ActorCount returns the number of live actors.
func (s *Simulation) ActorCount() int { return int(s.actorCount.Load()) }

// Actor returns a snapshot of one actor.
func (s *Simulation) Actor(actorID uint64) (ActorState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	actor, ok := s.byID[actorID]
	if !ok {
		return ActorState{}, false
	}
	return s.actorStateLocked(actor), true
}

// ActorID looks up a live actor by name.
func (s *Simulation) ActorID(name string) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, actor := range s.actors {
		if actor.Name() == name {
			return actor.ID(), true
		}
	}
	return 0, false
}

// Snapshot copies the simulation state for rendering.
func (s *Simulation) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := State{
		Tick:     s.tick.Load(),
		Selected: s.selected,
		Actors:   make([]ActorState, 0, len(s.actors)),
		Camera: CameraState{
			Mode:        s.rig.Mode(),
			Position:    s.rig.Position(),
			LookAt:      s.rig.LookAt(),
			Up:          s.rig.Up(),
			Attachments: s.rig.Attachments(),
		},
	}
	for _, actor := range s.actors {
		state.Actors = append(state.Actors, s.actorStateLocked(actor))
	}
	return state
}

// ViewMatrix returns the camera's current view matrix.
func (s *Simulation) ViewMatrix() mgl64.Mat4 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rig.ViewMatrix()
}

func (s *Simulation) actorStateLocked(actor *entity.Actor) ActorState {
	handle, _ := s.arena.Resolve(actor.ID())
	r, _ := s.arena.Get(handle)
	return ActorState{
		ID:          actor.ID(),
		Name:        actor.Name(),
		Class:       actor.Class(),
		Controller:  ControllerKind(actor.Controller()),
		State:       actor.State(),
		Telemetry:   actor.Telemetry(),
		Input:       actor.LastInput().Kind,
		Renderable:  handle,
		Asset:       r.Asset,
		Placeholder: r.Placeholder,
		Selected:    actor.ID() == s.selected,
	}
}

// wrapLocked moves actors that left the world cube to the opposite face,
// keeping their velocity and orientation.
func (s *Simulation) wrapLocked(actor *entity.Actor) {
	size := s.config.Simulation.WorldSize
	if size <= 0 {
		return
	}
	half := size / 2
	pos := actor.Position()
	wrapped := pos
	for i := range wrapped {
		if wrapped[i] < -half || wrapped[i] >= half {
			wrapped[i] = math.Mod(wrapped[i]+half, size)
			if wrapped[i] < 0 {
				wrapped[i] += size
			}
			wrapped[i] -= half
		}
	}
	if wrapped != pos {
		actor.Teleport(wrapped, actor.Orientation())
		s.logger.Debug(context.Background(), "actor wrapped at world edge",
			"actor_id", actor.ID(), "from", pos, "to", wrapped)
	}
}

// ControllerKind names a controller the way actor configs do.
func ControllerKind(c control.Controller) string {
	switch c.(type) {
	case nil:
		return config.ControllerNone
	case *control.HumanController:
		return config.ControllerHuman
	case *control.AIController:
		return config.ControllerAI
	case *control.NetworkController:
		return config.ControllerNetwork
	default:
		return fmt.Sprintf("%T", c)
	}
}

func frameOf(actor *entity.Actor) scene.Frame {
	return scene.Frame{Position: actor.Position(), Orientation: actor.Orientation()}
}

// pawnResolver gives AI controllers access to live actors during a tick. The
// simulation lock is already held when controllers run.
type pawnResolver struct {
	s *Simulation
}

func (r pawnResolver) Resolve(id uint64) (control.Pawn, bool) {
	actor, ok := r.s.byID[id]
	if !ok {
		return nil, false
	}
	return actor, true
}
