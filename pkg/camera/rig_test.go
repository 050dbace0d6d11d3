package camera

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/opd-ai/go-flight/pkg/physics"
	"github.com/opd-ai/go-flight/pkg/scene"
)

const tick = physics.FrameTimeMs

func newTestRig(t *testing.T, config Config, mode Mode) (*Rig, *ModeSwitch, *scene.Arena) {
	t.Helper()
	arena := scene.NewArena()
	arena.Attach(1, "placeholder", true, scene.Frame{Orientation: mgl64.QuatIdent()})
	sw := NewModeSwitch(mode)
	config.InitialMode = mode
	rig := NewRig(config, sw, arena)
	rig.SetTarget(1)
	return rig, sw, arena
}

func TestModeSwitch_Toggle(t *testing.T) {
	sw := NewModeSwitch(Free)
	if got := sw.Toggle(); got != Follow {
		t.Errorf("Expected Follow, got %v", got)
	}
	if got := sw.Toggle(); got != Free {
		t.Errorf("Expected Free, got %v", got)
	}
	sw.Set(Follow)
	if sw.Mode() != Follow {
		t.Errorf("Expected Follow after Set, got %v", sw.Mode())
	}
}

func TestParseModeAndStrategy(t *testing.T) {
	if m, err := ParseMode("Follow"); err != nil || m != Follow {
		t.Errorf("Expected Follow, got %v (%v)", m, err)
	}
	if _, err := ParseMode("cinematic"); err == nil {
		t.Error("Expected error for unknown mode")
	}
	if s, err := ParseStrategy("lerp"); err != nil || s != Lerp {
		t.Errorf("Expected Lerp, got %v (%v)", s, err)
	}

	var s Strategy
	if err := s.UnmarshalText([]byte("spring")); err != nil || s != Spring {
		t.Errorf("Expected Spring from text, got %v (%v)", s, err)
	}
	text, _ := Lerp.MarshalText()
	if string(text) != "lerp" {
		t.Errorf("Expected 'lerp', got %q", text)
	}
}

func TestRig_FreeFollowFreePreservesOrbit(t *testing.T) {
	rig, sw, arena := newTestRig(t, DefaultConfig(), Free)
	rig.OrbitBy(0.3, 0.2, 7)
	before := rig.Orbit()

	for i := 0; i < 10; i++ {
		rig.Update(tick)
	}

	sw.Set(Follow)
	for i := 0; i < 60; i++ {
		arena.Sync(1, scene.Frame{Position: mgl64.Vec3{0, 0, float64(i)}, Orientation: mgl64.QuatIdent()})
		rig.OrbitBy(1, 1, 50)
		rig.Update(tick)
	}
	if rig.SpringVelocity() == (mgl64.Vec3{}) {
		t.Fatal("Expected the spring to be moving while following a moving target")
	}

	sw.Set(Free)
	rig.Update(tick)

	after := rig.Orbit()
	if math.Float64bits(after.Distance) != math.Float64bits(before.Distance) ||
		math.Float64bits(after.Alpha) != math.Float64bits(before.Alpha) ||
		math.Float64bits(after.Beta) != math.Float64bits(before.Beta) {
		t.Errorf("Expected orbit %+v unchanged, got %+v", before, after)
	}
	if rig.SpringVelocity() != (mgl64.Vec3{}) {
		t.Errorf("Expected zero spring velocity in Free, got %v", rig.SpringVelocity())
	}
	if rig.OrbitLocked() {
		t.Error("Expected orbit control unlocked in Free")
	}
}

func TestRig_OrbitInputIgnoredOnceFollowRequested(t *testing.T) {
	rig, sw, _ := newTestRig(t, DefaultConfig(), Free)
	before := rig.Orbit()

	sw.Set(Follow)
	if !rig.OrbitLocked() {
		t.Error("Expected orbit control locked as soon as Follow is requested")
	}
	rig.OrbitBy(1, 1, 50)
	rig.Update(tick)
	sw.Set(Free)
	rig.Update(tick)

	if rig.Orbit() != before {
		t.Errorf("Expected orbit %+v unchanged, got %+v", before, rig.Orbit())
	}

	rig.OrbitBy(0, 0, 1)
	if rig.Orbit().Distance != before.Distance+1 {
		t.Errorf("Expected orbit input applied in Free, got %+v", rig.Orbit())
	}
}

func TestRig_ModeIsLevelTriggered(t *testing.T) {
	rig, sw, _ := newTestRig(t, DefaultConfig(), Free)
	var transitions []Mode
	rig.OnModeChange(func(from, to Mode) { transitions = append(transitions, to) })

	sw.Set(Follow)
	rig.Update(tick)
	rig.Update(tick)
	sw.Toggle()
	sw.Toggle()
	rig.Update(tick)

	if len(transitions) != 1 || transitions[0] != Follow {
		t.Errorf("Expected a single transition to Follow, got %v", transitions)
	}
	if rig.Mode() != Follow {
		t.Errorf("Expected Follow, got %v", rig.Mode())
	}
}

func TestRig_FollowTracksLocalPivot(t *testing.T) {
	strategies := []Strategy{Spring, Lerp}
	for _, strategy := range strategies {
		t.Run(strategy.String(), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Strategy = strategy
			rig, _, arena := newTestRig(t, cfg, Follow)
			rig.Update(tick)

			// Target yawed 90 degrees right: its "behind" is world -X.
			ori := mgl64.QuatRotate(math.Pi/2, physics.BodyUp)
			pos := mgl64.Vec3{100, 20, -40}
			arena.Sync(1, scene.Frame{Position: pos, Orientation: ori})

			for i := 0; i < 600; i++ {
				rig.Update(tick)
				if rig.LookAt() != pos {
					t.Fatalf("Tick %d: expected look-at %v, got %v", i, pos, rig.LookAt())
				}
			}

			expected := pos.Add(mgl64.Vec3{-10, 5, 0})
			if rig.Position().Sub(expected).Len() > 1e-3 {
				t.Errorf("Expected camera at pivot %v, got %v", expected, rig.Position())
			}
		})
	}
}

func TestRig_FollowUsesTargetUp(t *testing.T) {
	rig, _, arena := newTestRig(t, DefaultConfig(), Follow)
	banked := mgl64.QuatRotate(-math.Pi/4, physics.BodyForward)
	arena.Sync(1, scene.Frame{Orientation: banked})
	rig.Update(tick)

	expected := banked.Rotate(physics.BodyUp)
	if rig.Up().Sub(expected).Len() > 1e-12 {
		t.Errorf("Expected up %v, got %v", expected, rig.Up())
	}
}

func TestRig_FollowSpringStableAtMaxStep(t *testing.T) {
	rig, _, arena := newTestRig(t, DefaultConfig(), Follow)
	rig.Update(tick)
	arena.Sync(1, scene.Frame{Position: mgl64.Vec3{0, 0, 500}, Orientation: mgl64.QuatIdent()})

	for i := 0; i < 400; i++ {
		rig.Update(tick * 5)
		if !physics.IsFinite(rig.Position()) || rig.Position().Len() > 2000 {
			t.Fatalf("Tick %d: spring diverged to %v", i, rig.Position())
		}
	}
	pivot, _ := rig.Pivot()
	if rig.Position().Sub(pivot).Len() > 1e-3 {
		t.Errorf("Expected spring to settle at %v, got %v", pivot, rig.Position())
	}
}

func TestRig_ReattachesOnRenderableSwap(t *testing.T) {
	rig, _, arena := newTestRig(t, DefaultConfig(), Follow)
	rig.Update(tick)
	first := rig.Attachment()
	if rig.Attachments() != 1 {
		t.Fatalf("Expected one attachment, got %d", rig.Attachments())
	}

	h, err := arena.Replace(1, "fighter.glb")
	if err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	rig.Update(tick)

	if rig.Attachment() != h || rig.Attachment() == first {
		t.Errorf("Expected attachment %v after swap, got %v", h, rig.Attachment())
	}
	if rig.Attachments() != 2 {
		t.Errorf("Expected a second attachment, got %d", rig.Attachments())
	}

	rig.Update(tick)
	if rig.Attachments() != 2 {
		t.Errorf("Expected no reattachment without a swap, got %d", rig.Attachments())
	}
}

func TestRig_MissingRenderableHoldsPivot(t *testing.T) {
	rig, _, arena := newTestRig(t, DefaultConfig(), Follow)
	arena.Sync(1, scene.Frame{Position: mgl64.Vec3{5, 0, 0}, Orientation: mgl64.QuatIdent()})
	for i := 0; i < 10; i++ {
		rig.Update(tick)
	}
	held, _ := rig.Pivot()

	arena.Release(1)
	for i := 0; i < 300; i++ {
		rig.Update(tick)
	}

	pivot, ok := rig.Pivot()
	if !ok || pivot != held {
		t.Errorf("Expected pivot held at %v, got %v (ok=%v)", held, pivot, ok)
	}
	if rig.Position().Sub(held).Len() > 1e-3 {
		t.Errorf("Expected camera to settle on the held pivot, got %v", rig.Position())
	}
}

func TestRig_FreeOrbitPlacement(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FreeSmoothing = 1
	rig, _, arena := newTestRig(t, cfg, Free)
	target := mgl64.Vec3{1, 2, 3}
	arena.Sync(1, scene.Frame{Position: target, Orientation: mgl64.QuatRotate(1, physics.BodyForward)})
	rig.SetAngles(0, math.Pi/2)
	rig.SetDistance(10)
	rig.Update(tick)

	expected := target.Add(mgl64.Vec3{10, 0, 0})
	if rig.Position().Sub(expected).Len() > 1e-9 {
		t.Errorf("Expected eye at %v, got %v", expected, rig.Position())
	}
	if rig.Up() != physics.WorldUp {
		t.Errorf("Expected world up in Free, got %v", rig.Up())
	}
	if rig.LookAt() != target {
		t.Errorf("Expected look-at %v, got %v", target, rig.LookAt())
	}
}

func TestRig_OrbitClamps(t *testing.T) {
	rig, _, _ := newTestRig(t, DefaultConfig(), Free)
	rig.OrbitBy(0, 10, 0)
	if rig.Orbit().Beta != DefaultConfig().MaxBeta {
		t.Errorf("Expected beta clamped to %f, got %f", DefaultConfig().MaxBeta, rig.Orbit().Beta)
	}
	rig.SetDistance(-5)
	if rig.Orbit().Distance != DefaultConfig().MinDistance {
		t.Errorf("Expected distance clamped to %f, got %f", DefaultConfig().MinDistance, rig.Orbit().Distance)
	}
	before := rig.Orbit()
	rig.OrbitBy(math.NaN(), 0, 0)
	if rig.Orbit() != before {
		t.Errorf("Expected NaN input ignored, got %+v", rig.Orbit())
	}
}

func TestRig_ViewMatrix(t *testing.T) {
	rig, _, arena := newTestRig(t, DefaultConfig(), Follow)
	arena.Sync(1, scene.Frame{Position: mgl64.Vec3{0, 0, 10}, Orientation: mgl64.QuatIdent()})
	rig.Update(tick)

	view := rig.ViewMatrix()
	eye := view.Mul4x1(rig.Position().Vec4(1))
	if eye.Vec3().Len() > 1e-9 {
		t.Errorf("Expected the eye at the view origin, got %v", eye)
	}
	target := view.Mul4x1(rig.LookAt().Vec4(1))
	if target.Z() >= 0 {
		t.Errorf("Expected the target in front of the camera (negative Z), got %v", target)
	}
}

func TestRig_ClearTarget(t *testing.T) {
	rig, _, _ := newTestRig(t, DefaultConfig(), Follow)
	rig.Update(tick)
	pos := rig.Position()

	rig.ClearTarget()
	rig.Update(tick)
	if _, ok := rig.Target(); ok {
		t.Error("Expected no target")
	}
	if rig.Position().Sub(pos).Len() > 1e-9 {
		t.Errorf("Expected camera to hold its pose, moved to %v", rig.Position())
	}
}
