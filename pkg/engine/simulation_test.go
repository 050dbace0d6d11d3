// pkg/engine/simulation_test.go
package engine

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/opd-ai/go-flight/pkg/camera"
	"github.com/opd-ai/go-flight/pkg/config"
	"github.com/opd-ai/go-flight/pkg/control"
	"github.com/opd-ai/go-flight/pkg/entity"
	"github.com/opd-ai/go-flight/pkg/event"
	"github.com/opd-ai/go-flight/pkg/logging"
	"github.com/opd-ai/go-flight/pkg/physics"
	"github.com/opd-ai/go-flight/pkg/resource"
)

func newTestSimulation(t *testing.T, cfg *config.Config) *Simulation {
	t.Helper()
	sim, err := NewSimulation(cfg, logging.NewLoggerWithWriter(io.Discard))
	if err != nil {
		t.Fatalf("NewSimulation failed: %v", err)
	}
	return sim
}

func newTestActor(t *testing.T, name string, spawn mgl64.Vec3) *entity.Actor {
	t.Helper()
	actor, err := entity.NewActor(entity.NextID(), name, entity.Fighter, spawn)
	if err != nil {
		t.Fatalf("NewActor failed: %v", err)
	}
	return actor
}

type eventLog struct {
	mu     sync.Mutex
	events []event.Event
}

func (l *eventLog) record(e event.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) types() []event.Type {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]event.Type, len(l.events))
	for i, e := range l.events {
		out[i] = e.GetType()
	}
	return out
}

func subscribeAll(sim *Simulation) *eventLog {
	log := &eventLog{}
	for _, typ := range []event.Type{
		event.ActorAdded, event.ActorRemoved,
		event.ControllerPossessed, event.ControllerUnpossessed,
		event.CameraModeChanged, event.RenderableSwapped,
	} {
		sim.Events().Subscribe(typ, log.record)
	}
	return log
}

type fakeAssets struct {
	mu       sync.Mutex
	requests map[uint64]string
	results  []resource.LoadResult
}

func newFakeAssets() *fakeAssets {
	return &fakeAssets{requests: make(map[uint64]string)}
}

func (f *fakeAssets) Request(actorID uint64, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests[actorID] = name
	return nil
}

func (f *fakeAssets) complete(result resource.LoadResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, result)
}

func (f *fakeAssets) Drain() []resource.LoadResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.results
	f.results = nil
	return out
}

type fakeRecorder struct {
	ticks []uint64
	ids   []uint64
}

func (f *fakeRecorder) RecordFrame(tick uint64, telemetry entity.Telemetry, state physics.FlightState) {
	f.ticks = append(f.ticks, tick)
	f.ids = append(f.ids, telemetry.ActorID)
}

func TestNewSimulation_Defaults(t *testing.T) {
	sim := newTestSimulation(t, nil)

	if sim.ActorCount() != 0 {
		t.Errorf("Expected no actors, got %d", sim.ActorCount())
	}
	if sim.TickCount() != 0 {
		t.Errorf("Expected tick count 0, got %d", sim.TickCount())
	}
	if !sim.LastTick().IsZero() {
		t.Error("Expected zero LastTick before the first tick")
	}
	if sim.Modes().Mode() != camera.Free {
		t.Errorf("Expected Free camera, got %v", sim.Modes().Mode())
	}
	if _, ok := sim.Selected(); ok {
		t.Error("Expected no selected actor")
	}
}

func TestSimulation_AddRemoveActor(t *testing.T) {
	sim := newTestSimulation(t, config.DefaultConfig())
	log := subscribeAll(sim)
	actor := newTestActor(t, "Alpha", mgl64.Vec3{1, 2, 3})

	if err := sim.AddActor(actor); err != nil {
		t.Fatalf("AddActor failed: %v", err)
	}
	if err := sim.AddActor(actor); !errors.Is(err, ErrDuplicateActor) {
		t.Errorf("Expected ErrDuplicateActor, got %v", err)
	}

	handle, ok := sim.Arena().Resolve(actor.ID())
	if !ok {
		t.Fatal("Expected a placeholder renderable")
	}
	r, _ := sim.Arena().Get(handle)
	if !r.Placeholder {
		t.Error("Expected the first renderable to be a placeholder")
	}
	if r.Frame.Position != (mgl64.Vec3{1, 2, 3}) {
		t.Errorf("Expected placeholder at spawn, got %v", r.Frame.Position)
	}

	if err := sim.SelectActor(actor.ID()); err != nil {
		t.Fatalf("SelectActor failed: %v", err)
	}
	if err := sim.Possess(actor.ID(), control.NewHumanController(sim.Input(), control.DefaultHumanConfig())); err != nil {
		t.Fatalf("Possess failed: %v", err)
	}

	if err := sim.RemoveActor(actor.ID()); err != nil {
		t.Fatalf("RemoveActor failed: %v", err)
	}
	if _, ok := sim.Selected(); ok {
		t.Error("Expected selection to clear with the removed actor")
	}
	if _, ok := sim.Arena().Resolve(actor.ID()); ok {
		t.Error("Expected renderable to be released")
	}
	if actor.Controller() != nil {
		t.Error("Expected removed actor to be unpossessed")
	}
	if err := sim.RemoveActor(actor.ID()); !errors.Is(err, ErrActorNotFound) {
		t.Errorf("Expected ErrActorNotFound, got %v", err)
	}

	expected := []event.Type{event.ActorAdded, event.ControllerPossessed, event.ControllerUnpossessed, event.ActorRemoved}
	got := log.types()
	if len(got) != len(expected) {
		t.Fatalf("Expected events %v, got %v", expected, got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("Event %d: expected %s, got %s", i, expected[i], got[i])
		}
	}
}

func TestSimulation_TooManyActors(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Simulation.MaxActors = 1
	sim := newTestSimulation(t, cfg)

	if err := sim.AddActor(newTestActor(t, "One", mgl64.Vec3{})); err != nil {
		t.Fatalf("AddActor failed: %v", err)
	}
	if err := sim.AddActor(newTestActor(t, "Two", mgl64.Vec3{})); !errors.Is(err, ErrTooManyActors) {
		t.Errorf("Expected ErrTooManyActors, got %v", err)
	}
}

func TestSimulation_UnknownActor(t *testing.T) {
	sim := newTestSimulation(t, nil)

	tests := []struct {
		name string
		call func() error
	}{
		{"select", func() error { return sim.SelectActor(99) }},
		{"possess", func() error { return sim.Possess(99, control.NewNetworkController()) }},
		{"unpossess", func() error { return sim.Unpossess(99) }},
		{"remove", func() error { return sim.RemoveActor(99) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, ErrActorNotFound) {
				t.Errorf("Expected ErrActorNotFound, got %v", err)
			}
		})
	}
}

func TestSimulation_PossessMovesController(t *testing.T) {
	sim := newTestSimulation(t, nil)
	a := newTestActor(t, "A", mgl64.Vec3{})
	b := newTestActor(t, "B", mgl64.Vec3{10, 0, 0})
	for _, actor := range []*entity.Actor{a, b} {
		if err := sim.AddActor(actor); err != nil {
			t.Fatalf("AddActor failed: %v", err)
		}
	}
	log := subscribeAll(sim)

	c := control.NewHumanController(sim.Input(), control.DefaultHumanConfig())
	if err := sim.Possess(a.ID(), c); err != nil {
		t.Fatalf("Possess failed: %v", err)
	}
	if err := sim.Possess(b.ID(), c); err != nil {
		t.Fatalf("Possess failed: %v", err)
	}

	stateA, _ := sim.Actor(a.ID())
	stateB, _ := sim.Actor(b.ID())
	if stateA.Controller != config.ControllerNone {
		t.Errorf("Expected A to be uncontrolled, got %s", stateA.Controller)
	}
	if stateB.Controller != config.ControllerHuman {
		t.Errorf("Expected B to be human controlled, got %s", stateB.Controller)
	}
	if c.Pawn() != control.Pawn(b) {
		t.Error("Expected controller to drive B")
	}

	expected := []event.Type{event.ControllerPossessed, event.ControllerUnpossessed, event.ControllerPossessed}
	got := log.types()
	if len(got) != len(expected) {
		t.Fatalf("Expected events %v, got %v", expected, got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("Event %d: expected %s, got %s", i, expected[i], got[i])
		}
	}

	if err := sim.Unpossess(b.ID()); err != nil {
		t.Fatalf("Unpossess failed: %v", err)
	}
	if c.Pawn() != nil {
		t.Error("Expected controller to be released")
	}
}

func TestSimulation_PopulateDefaults(t *testing.T) {
	cfg := config.DefaultConfig()
	sim := newTestSimulation(t, cfg)

	remotes, err := sim.Populate(cfg.Actors)
	if err != nil {
		t.Fatalf("Populate failed: %v", err)
	}
	if len(remotes) != 0 {
		t.Errorf("Expected no network controllers, got %d", len(remotes))
	}
	if sim.ActorCount() != 3 {
		t.Fatalf("Expected 3 actors, got %d", sim.ActorCount())
	}

	playerID, ok := sim.ActorID("Player")
	if !ok {
		t.Fatal("Expected Player actor")
	}
	if selected, _ := sim.Selected(); selected != playerID {
		t.Errorf("Expected Player selected, got %d", selected)
	}

	kinds := map[string]string{
		"Player": config.ControllerHuman,
		"Wing-1": config.ControllerAI,
		"Wing-2": config.ControllerAI,
	}
	classes := map[string]entity.ShipClass{
		"Player": entity.Fighter,
		"Wing-1": entity.Interceptor,
		"Wing-2": entity.Capital,
	}
	for _, actor := range sim.Snapshot().Actors {
		if actor.Controller != kinds[actor.Name] {
			t.Errorf("%s: expected %s controller, got %s", actor.Name, kinds[actor.Name], actor.Controller)
		}
		if actor.Class != classes[actor.Name] {
			t.Errorf("%s: expected class %v, got %v", actor.Name, classes[actor.Name], actor.Class)
		}
	}
}

func TestSimulation_PopulateNetworkAndErrors(t *testing.T) {
	tests := []struct {
		name    string
		actors  []config.ActorConfig
		remotes int
		wantErr bool
	}{
		{
			name:    "network actor",
			actors:  []config.ActorConfig{{Name: "Remote", Class: "fighter", Controller: config.ControllerNetwork}},
			remotes: 1,
		},
		{
			name:    "uncontrolled actor",
			actors:  []config.ActorConfig{{Name: "Hulk", Class: "capital", Controller: config.ControllerNone}},
			remotes: 0,
		},
		{
			name:    "unknown controller",
			actors:  []config.ActorConfig{{Name: "Odd", Controller: "telepathy"}},
			wantErr: true,
		},
		{
			name:    "unknown profile",
			actors:  []config.ActorConfig{{Name: "Odd", Profile: "warp", Controller: config.ControllerNone}},
			wantErr: true,
		},
		{
			name:    "unknown target",
			actors:  []config.ActorConfig{{Name: "Wing", Controller: config.ControllerAI, Behavior: "follow", Target: "Ghost"}},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := newTestSimulation(t, config.DefaultConfig())
			remotes, err := sim.Populate(tt.actors)
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Populate failed: %v", err)
			}
			if len(remotes) != tt.remotes {
				t.Errorf("Expected %d network controllers, got %d", tt.remotes, len(remotes))
			}
			if _, ok := sim.Selected(); !ok {
				t.Error("Expected the first actor to be selected")
			}
		})
	}
}

func TestSimulation_TickHumanThrottle(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Actors = cfg.Actors[:1]
	sim := newTestSimulation(t, cfg)
	if _, err := sim.Populate(cfg.Actors); err != nil {
		t.Fatalf("Populate failed: %v", err)
	}
	id, _ := sim.ActorID("Player")

	sim.Input().KeyDown("x")
	for i := 0; i < 60; i++ {
		sim.Tick(physics.FrameTimeMs)
	}

	state, _ := sim.Actor(id)
	if !(state.State.Position.Z() > 0) {
		t.Errorf("Expected forward motion along +Z, got %v", state.State.Position)
	}
	if state.Telemetry.ThrottlePercent <= 0 {
		t.Errorf("Expected throttle above zero, got %f", state.Telemetry.ThrottlePercent)
	}

	frame, _, ok := sim.Arena().Frame(id)
	if !ok {
		t.Fatal("Expected renderable frame")
	}
	if frame.Position != state.State.Position {
		t.Errorf("Expected scene synced to %v, got %v", state.State.Position, frame.Position)
	}
	if sim.TickCount() != 60 {
		t.Errorf("Expected 60 ticks, got %d", sim.TickCount())
	}
	if sim.LastTick().IsZero() {
		t.Error("Expected LastTick to be set")
	}
}

func TestSimulation_ToggleCameraOnJustPress(t *testing.T) {
	cfg := config.DefaultConfig()
	sim := newTestSimulation(t, cfg)
	if _, err := sim.Populate(cfg.Actors); err != nil {
		t.Fatalf("Populate failed: %v", err)
	}
	log := subscribeAll(sim)

	sim.Input().KeyDown("c")
	sim.Tick(physics.FrameTimeMs)
	if mode := sim.Snapshot().Camera.Mode; mode != camera.Follow {
		t.Fatalf("Expected Follow after toggle, got %v", mode)
	}

	// Holding the key must not toggle again.
	sim.Tick(physics.FrameTimeMs)
	if mode := sim.Snapshot().Camera.Mode; mode != camera.Follow {
		t.Errorf("Expected Follow while held, got %v", mode)
	}

	sim.Input().KeyUp("c")
	sim.Input().KeyDown("c")
	sim.Tick(physics.FrameTimeMs)
	if mode := sim.Snapshot().Camera.Mode; mode != camera.Free {
		t.Errorf("Expected Free after second press, got %v", mode)
	}

	changes := 0
	for _, typ := range log.types() {
		if typ == event.CameraModeChanged {
			changes++
		}
	}
	if changes != 2 {
		t.Errorf("Expected 2 camera mode events, got %d", changes)
	}
}

func TestSimulation_AssetSwap(t *testing.T) {
	cfg := config.DefaultConfig()
	sim := newTestSimulation(t, cfg)
	assets := newFakeAssets()
	sim.SetAssetSource(assets)

	actor := newTestActor(t, "Alpha", mgl64.Vec3{})
	gone := newTestActor(t, "Gone", mgl64.Vec3{})
	for _, a := range []*entity.Actor{actor, gone} {
		if err := sim.AddActor(a); err != nil {
			t.Fatalf("AddActor failed: %v", err)
		}
	}
	if assets.requests[actor.ID()] != "fighter.glb" {
		t.Errorf("Expected fighter.glb request, got %q", assets.requests[actor.ID()])
	}
	if err := sim.RemoveActor(gone.ID()); err != nil {
		t.Fatalf("RemoveActor failed: %v", err)
	}
	log := subscribeAll(sim)

	before, _ := sim.Arena().Resolve(actor.ID())

	assets.complete(resource.LoadResult{ActorID: actor.ID(), Err: errors.New("corrupt")})
	sim.Tick(physics.FrameTimeMs)
	after, _ := sim.Arena().Resolve(actor.ID())
	if after != before {
		t.Errorf("Expected failed load to keep placeholder %v, got %v", before, after)
	}

	assets.complete(resource.LoadResult{ActorID: gone.ID(), Asset: resource.Asset{Name: "fighter.glb"}})
	assets.complete(resource.LoadResult{ActorID: actor.ID(), Asset: resource.Asset{Name: "fighter.glb"}})
	sim.Tick(physics.FrameTimeMs)

	swapped, _ := sim.Arena().Resolve(actor.ID())
	if swapped == before {
		t.Error("Expected a new handle after the swap")
	}
	r, ok := sim.Arena().Get(swapped)
	if !ok || r.Placeholder || r.Asset != "fighter.glb" {
		t.Errorf("Expected loaded fighter.glb renderable, got %+v", r)
	}
	if _, ok := sim.Arena().Resolve(gone.ID()); ok {
		t.Error("Expected no renderable for removed actor")
	}

	swaps := 0
	for _, typ := range log.types() {
		if typ == event.RenderableSwapped {
			swaps++
		}
	}
	if swaps != 1 {
		t.Errorf("Expected 1 swap event, got %d", swaps)
	}
}

func TestSimulation_TelemetryAndRecorder(t *testing.T) {
	cfg := config.DefaultConfig()
	sim := newTestSimulation(t, cfg)
	if _, err := sim.Populate(cfg.Actors); err != nil {
		t.Fatalf("Populate failed: %v", err)
	}
	playerID, _ := sim.ActorID("Player")

	var telemetry []entity.Telemetry
	sim.OnTelemetry(func(tm entity.Telemetry) { telemetry = append(telemetry, tm) })
	rec := &fakeRecorder{}
	sim.SetRecorder(rec)

	sim.Tick(physics.FrameTimeMs)
	sim.Tick(physics.FrameTimeMs)

	if len(telemetry) != 2 {
		t.Fatalf("Expected 2 telemetry callbacks, got %d", len(telemetry))
	}
	if telemetry[0].ActorID != playerID {
		t.Errorf("Expected telemetry for Player, got actor %d", telemetry[0].ActorID)
	}
	if len(rec.ticks) != 6 {
		t.Fatalf("Expected 6 recorded frames, got %d", len(rec.ticks))
	}
	if rec.ticks[0] != 1 || rec.ticks[5] != 2 {
		t.Errorf("Expected frames for ticks 1 and 2, got %v", rec.ticks)
	}
	if rec.ids[0] != playerID {
		t.Errorf("Expected actors recorded in insertion order, got %v", rec.ids)
	}
}

func TestSimulation_AIFollowsPlayer(t *testing.T) {
	cfg := config.DefaultConfig()
	sim := newTestSimulation(t, cfg)
	if _, err := sim.Populate(cfg.Actors); err != nil {
		t.Fatalf("Populate failed: %v", err)
	}
	wingID, _ := sim.ActorID("Wing-1")
	playerID, _ := sim.ActorID("Player")

	start, _ := sim.Actor(wingID)
	player, _ := sim.Actor(playerID)
	startGap := player.State.Position.Sub(start.State.Position).Len()

	minGap := startGap
	for i := 0; i < 600; i++ {
		sim.Tick(physics.FrameTimeMs)
		wing, _ := sim.Actor(wingID)
		player, _ := sim.Actor(playerID)
		if gap := player.State.Position.Sub(wing.State.Position).Len(); gap < minGap {
			minGap = gap
		}
	}
	if !(minGap < startGap/2) {
		t.Errorf("Expected wingman to close on Player: start %f, closest %f", startGap, minGap)
	}

	// Removing the target must not break the follower.
	if err := sim.RemoveActor(playerID); err != nil {
		t.Fatalf("RemoveActor failed: %v", err)
	}
	sim.Tick(physics.FrameTimeMs)
	wing, _ := sim.Actor(wingID)
	if !physics.IsFinite(wing.State.Position) {
		t.Errorf("Expected finite position, got %v", wing.State.Position)
	}
}

func TestSimulation_Run(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Simulation.TickRate = 200
	sim := newTestSimulation(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	if err := sim.Run(ctx); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if sim.TickCount() == 0 {
		t.Error("Expected at least one tick")
	}
}

func TestSimulation_WrapsAtWorldEdge(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Simulation.WorldSize = 1000
	sim := newTestSimulation(t, cfg)

	actor := newTestActor(t, "Drifter", mgl64.Vec3{499.5, 0, 600})
	if err := sim.AddActor(actor); err != nil {
		t.Fatalf("AddActor failed: %v", err)
	}
	if err := sim.Possess(actor.ID(), control.NewAIController(control.DefaultAIConfig(), nil)); err != nil {
		t.Fatalf("Possess failed: %v", err)
	}
	sim.Tick(physics.FrameTimeMs)

	state, ok := sim.Actor(actor.ID())
	if !ok {
		t.Fatal("Expected the actor to survive the wrap")
	}
	pos := state.State.Position
	if pos.X() != 499.5 {
		t.Errorf("Expected x inside the world to stay 499.5, got %f", pos.X())
	}
	if pos.Z() < -400 || pos.Z() > -399 {
		t.Errorf("Expected z wrapped to the far face near -400, got %f", pos.Z())
	}
	if state.State.Velocity.Z() <= 0 {
		t.Errorf("Expected the cruise velocity kept through the wrap, got %v", state.State.Velocity)
	}
	if state.State.Orientation != mgl64.QuatIdent() {
		t.Errorf("Expected orientation kept, got %v", state.State.Orientation)
	}
	if frame, _, _ := sim.Arena().Frame(actor.ID()); frame.Position != pos {
		t.Errorf("Expected the renderable synced to %v, got %v", pos, frame.Position)
	}
}

func TestSimulation_SnapshotCarriesInputAndRenderable(t *testing.T) {
	sim := newTestSimulation(t, config.DefaultConfig())
	actor := newTestActor(t, "Leader", mgl64.Vec3{})
	if err := sim.AddActor(actor); err != nil {
		t.Fatalf("AddActor failed: %v", err)
	}
	sim.Tick(physics.FrameTimeMs)

	state, _ := sim.Actor(actor.ID())
	if state.Input != control.InputNone {
		t.Errorf("Expected no input without a controller, got %v", state.Input)
	}
	if !state.Placeholder || state.Asset != "placeholder:fighter" {
		t.Errorf("Expected the fighter placeholder, got %q (placeholder=%v)", state.Asset, state.Placeholder)
	}

	if err := sim.Possess(actor.ID(), control.NewAIController(control.DefaultAIConfig(), nil)); err != nil {
		t.Fatalf("Possess failed: %v", err)
	}
	sim.Tick(physics.FrameTimeMs)
	if state, _ := sim.Actor(actor.ID()); state.Input != control.InputFlight {
		t.Errorf("Expected a flight intent from the AI, got %v", state.Input)
	}
}
