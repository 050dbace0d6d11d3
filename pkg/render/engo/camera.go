// pkg/render/engo/camera.go
package engo

import (
	"math"

	"github.com/EngoEngine/ecs"
	"github.com/EngoEngine/engo"
	"github.com/EngoEngine/engo/common"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/opd-ai/go-flight/pkg/engine"
)

// Projection maps the world XZ plane onto engo's 2D world. Forward (+Z) is up
// the screen and engo's Y axis grows downwards.
type Projection struct {
	// Scale is pixels per world unit.
	Scale float32
}

// WorldToScreen drops altitude and scales into engo coordinates.
func (p Projection) WorldToScreen(pos mgl64.Vec3) engo.Point {
	return engo.Point{
		X: float32(pos.X()) * p.Scale,
		Y: -float32(pos.Z()) * p.Scale,
	}
}

// ScreenToWorld is the inverse of WorldToScreen on the Y=0 plane.
func (p Projection) ScreenToWorld(pt engo.Point) mgl64.Vec3 {
	return mgl64.Vec3{float64(pt.X / p.Scale), 0, float64(-pt.Y / p.Scale)}
}

// Heading returns the clockwise screen rotation in degrees for an orientation,
// so a nose-up sprite points along the body's forward axis.
func Heading(orientation mgl64.Quat) float32 {
	forward := orientation.Rotate(mgl64.Vec3{0, 0, 1})
	if math.Abs(forward.X()) < 1e-9 && math.Abs(forward.Z()) < 1e-9 {
		return 0
	}
	deg := mgl64.RadToDeg(math.Atan2(forward.X(), forward.Z()))
	if deg < 0 {
		deg += 360
	}
	return float32(deg)
}

// CameraSystem points engo's camera at the rig's look-at point and turns the
// rig's distance into zoom.
type CameraSystem struct {
	view       func() engine.CameraState
	projection Projection
	dispatch   func(engo.Message)

	// Rig distance that maps to zoom 1.
	referenceDistance float64
	minZoom           float32
	maxZoom           float32

	center engo.Point
	zoom   float32
}

// NewCameraSystem creates a camera system reading the rig view from view.
func NewCameraSystem(view func() engine.CameraState, projection Projection) *CameraSystem {
	return &CameraSystem{
		view:              view,
		projection:        projection,
		dispatch:          dispatchToMailbox,
		referenceDistance: 10,
		minZoom:           0.25,
		maxZoom:           4.0,
		zoom:              1.0,
	}
}

func dispatchToMailbox(msg engo.Message) {
	if engo.Mailbox != nil {
		engo.Mailbox.Dispatch(msg)
	}
}

// Remove satisfies the ecs.System interface
func (cs *CameraSystem) Remove(basic ecs.BasicEntity) {}

// Update moves engo's camera to the current rig view.
func (cs *CameraSystem) Update(dt float32) {
	if cs.view == nil {
		return
	}
	view := cs.view()
	cs.center = cs.projection.WorldToScreen(view.LookAt)
	cs.zoom = cs.zoomFor(view.Position.Sub(view.LookAt).Len())

	cs.dispatch(common.CameraMessage{Axis: common.XAxis, Value: cs.center.X})
	cs.dispatch(common.CameraMessage{Axis: common.YAxis, Value: cs.center.Y})
	cs.dispatch(common.CameraMessage{Axis: common.ZAxis, Value: cs.zoom})
}

// zoomFor converts a rig distance into engo's camera Z. Larger is further out.
func (cs *CameraSystem) zoomFor(distance float64) float32 {
	if cs.referenceDistance <= 0 || distance <= 0 {
		return cs.clampZoom(1)
	}
	return cs.clampZoom(float32(distance / cs.referenceDistance))
}

// clampZoom ensures zoom is within valid bounds
func (cs *CameraSystem) clampZoom(zoom float32) float32 {
	if zoom < cs.minZoom {
		return cs.minZoom
	}
	if zoom > cs.maxZoom {
		return cs.maxZoom
	}
	return zoom
}

// SetReferenceDistance sets the rig distance shown at zoom 1.
func (cs *CameraSystem) SetReferenceDistance(distance float64) {
	cs.referenceDistance = distance
}

// SetZoomLimits sets the minimum and maximum zoom levels
func (cs *CameraSystem) SetZoomLimits(min, max float32) {
	cs.minZoom = min
	cs.maxZoom = max
	cs.zoom = cs.clampZoom(cs.zoom)
}

// ZoomLimits returns the current zoom limits
func (cs *CameraSystem) ZoomLimits() (float32, float32) {
	return cs.minZoom, cs.maxZoom
}

// Zoom returns the zoom applied on the last update.
func (cs *CameraSystem) Zoom() float32 {
	return cs.zoom
}

// Center returns the engo point the camera was last centred on.
func (cs *CameraSystem) Center() engo.Point {
	return cs.center
}
