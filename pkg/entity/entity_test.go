package entity

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/opd-ai/go-flight/pkg/control"
	"github.com/opd-ai/go-flight/pkg/physics"
)

// scriptedController returns a fixed intent and counts updates.
type scriptedController struct {
	control.BaseController
	input   control.ControlInput
	updates int
}

func (s *scriptedController) Update(deltaTimeMs float64) control.ControlInput {
	if s.Pawn() == nil {
		return control.NoInput()
	}
	s.updates++
	return s.input
}

func newTestActor(t *testing.T, id uint64) *Actor {
	t.Helper()
	a, err := NewActor(id, "test", Fighter, mgl64.Vec3{})
	if err != nil {
		t.Fatalf("NewActor failed: %v", err)
	}
	return a
}

func TestNewActorWithParameters_Invalid(t *testing.T) {
	params := physics.DefaultParameters()
	params.RotationalInertia = 0

	_, err := NewActorWithParameters(7, "bad", Fighter, mgl64.Vec3{}, params)
	if !errors.Is(err, physics.ErrInvalidParameters) {
		t.Errorf("Expected ErrInvalidParameters, got %v", err)
	}
}

func TestNextID_Unique(t *testing.T) {
	seen := make(map[uint64]bool)
	for i := 0; i < 100; i++ {
		id := NextID()
		if id == 0 || seen[id] {
			t.Fatalf("Expected unique non-zero id, got %d", id)
		}
		seen[id] = true
	}
}

func TestActor_PossessLinksBothSides(t *testing.T) {
	a := newTestActor(t, 1)
	c := &scriptedController{}

	a.Possess(c)
	if a.Controller() != control.Controller(c) {
		t.Error("Expected actor to reference controller")
	}
	if c.Pawn() != control.Pawn(a) {
		t.Error("Expected controller to reference actor")
	}

	a.Unpossess()
	if a.Controller() != nil {
		t.Error("Expected actor link cleared")
	}
	if c.Pawn() != nil {
		t.Error("Expected controller link cleared")
	}
}

func TestActor_RepossessReplacesController(t *testing.T) {
	a := newTestActor(t, 1)
	first := &scriptedController{}
	second := &scriptedController{}

	a.Possess(first)
	a.Possess(second)

	if a.Controller() != control.Controller(second) {
		t.Error("Expected second controller to drive the actor")
	}
	if first.Pawn() != nil {
		t.Error("Expected first controller to be released")
	}

	a.Tick(physics.FrameTimeMs)
	if first.updates != 0 || second.updates != 1 {
		t.Errorf("Expected only the new controller to run, got %d and %d updates", first.updates, second.updates)
	}
}

func TestActor_ControllerMovesBetweenActors(t *testing.T) {
	a := newTestActor(t, 1)
	b := newTestActor(t, 2)
	c := &scriptedController{}

	a.Possess(c)
	b.Possess(c)

	if a.Controller() != nil {
		t.Error("Expected first actor to lose the controller")
	}
	if b.Controller() != control.Controller(c) || c.Pawn() != control.Pawn(b) {
		t.Error("Expected controller linked to the second actor")
	}

	a.Possess(c)
	if b.Controller() != nil || a.Controller() != control.Controller(c) {
		t.Error("Expected controller to move back to the first actor")
	}
}

func TestActor_PossessNilUnpossesses(t *testing.T) {
	a := newTestActor(t, 1)
	c := &scriptedController{}
	a.Possess(c)
	a.Possess(nil)

	if a.Controller() != nil || c.Pawn() != nil {
		t.Error("Expected Possess(nil) to clear both links")
	}
}

func TestActor_TickWithoutControllerAppliesDrag(t *testing.T) {
	a := newTestActor(t, 1)
	c := &scriptedController{input: control.FlightIntent(physics.FlightInput{Thrust: physics.Axis(1)})}
	a.Possess(c)
	for i := 0; i < 60; i++ {
		a.Tick(physics.FrameTimeMs)
	}
	c.input = control.FlightIntent(physics.FlightInput{Thrust: physics.Axis(0)})
	for i := 0; i < 200; i++ {
		a.Tick(physics.FrameTimeMs)
	}
	a.Unpossess()
	coasting := a.Velocity().Len()
	start := a.Position()

	for i := 0; i < 100; i++ {
		a.Tick(physics.FrameTimeMs)
	}
	if kind := a.LastInput().Kind; kind != control.InputNone {
		t.Errorf("Expected no input without controller, got %v", kind)
	}
	if a.Position() == start {
		t.Error("Expected the actor to keep coasting")
	}
	if a.Velocity().Len() >= coasting*0.2 {
		t.Errorf("Expected drag to bleed speed below %g, got %g", coasting*0.2, a.Velocity().Len())
	}
}

func TestActor_DirectMovement(t *testing.T) {
	a := newTestActor(t, 1)
	rotation := mgl64.Vec3{0, 1, 0}
	c := &scriptedController{input: control.DirectIntent(mgl64.Vec3{0, 0, 1}, &rotation)}
	a.Possess(c)

	for i := 0; i < 30; i++ {
		a.Tick(physics.FrameTimeMs)
	}
	state := a.State()
	if state.CurrentThrust <= 0 {
		t.Error("Expected forward movement vector to produce thrust")
	}
	if state.AngularVelocity[1] <= 0 {
		t.Errorf("Expected yaw rotation, got %v", state.AngularVelocity)
	}
}

func TestActor_Telemetry(t *testing.T) {
	a := newTestActor(t, 9)
	a.Teleport(mgl64.Vec3{}, mgl64.QuatRotate(-math.Pi/6, physics.BodyRight))
	c := &scriptedController{input: control.FlightIntent(physics.FlightInput{Thrust: physics.Axis(1)})}
	a.Possess(c)
	for i := 0; i < 300; i++ {
		a.Tick(physics.FrameTimeMs)
	}

	tel := a.Telemetry()
	if tel.ActorID != 9 {
		t.Errorf("Expected actor id 9, got %d", tel.ActorID)
	}
	if math.Abs(tel.PitchDeg-30) > 1e-6 {
		t.Errorf("Expected pitch 30 degrees, got %f", tel.PitchDeg)
	}
	if math.Abs(tel.ThrottlePercent-100) > 0.1 {
		t.Errorf("Expected throttle near 100%%, got %f", tel.ThrottlePercent)
	}
	if tel.MaxSpeed != a.Params().MaxSpeed {
		t.Errorf("Expected max speed %f, got %f", a.Params().MaxSpeed, tel.MaxSpeed)
	}
	if tel.Speed <= 0 || tel.Speed > tel.MaxSpeed {
		t.Errorf("Expected speed in (0, %f], got %f", tel.MaxSpeed, tel.Speed)
	}
}
