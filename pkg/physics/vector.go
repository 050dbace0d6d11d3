// pkg/physics/vector.go
package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Body-space axes. The body frame is right-handed with +Z pointing out of the nose.
var (
	BodyRight   = mgl64.Vec3{1, 0, 0}
	BodyUp      = mgl64.Vec3{0, 1, 0}
	BodyForward = mgl64.Vec3{0, 0, 1}

	// WorldUp is the fixed up direction used by the free camera.
	WorldUp = mgl64.Vec3{0, 1, 0}
)

// rotationEpsilon is the smallest incremental rotation angle that is applied.
// Smaller rotation vectors are skipped instead of normalized.
const rotationEpsilon = 1e-9

// Clamp limits value to the closed range [min, max]. NaN maps to min.
func Clamp(value, min, max float64) float64 {
	if math.IsNaN(value) {
		return min
	}
	return mgl64.Clamp(value, min, max)
}

// ClampAxis limits an axis input to [-1, 1].
func ClampAxis(value float64) float64 {
	return Clamp(value, -1, 1)
}

// ClampLength rescales v so its length does not exceed max.
func ClampLength(v mgl64.Vec3, max float64) mgl64.Vec3 {
	length := v.Len()
	if length <= max || length == 0 {
		return v
	}
	return v.Mul(max / length)
}

// IsFinite reports whether every component of v is a finite number.
func IsFinite(v mgl64.Vec3) bool {
	for _, c := range v {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// SafeNormalize returns the unit vector of v, or false when v is too short to normalize.
func SafeNormalize(v mgl64.Vec3) (mgl64.Vec3, bool) {
	length := v.Len()
	if length < rotationEpsilon || math.IsNaN(length) {
		return mgl64.Vec3{}, false
	}
	return v.Mul(1 / length), true
}

// RotationFromVector builds the quaternion that rotates by |rv| radians about rv.
// It reports false for rotation vectors below the skip threshold.
func RotationFromVector(rv mgl64.Vec3) (mgl64.Quat, bool) {
	axis, ok := SafeNormalize(rv)
	if !ok {
		return mgl64.QuatIdent(), false
	}
	return mgl64.QuatRotate(rv.Len(), axis), true
}

// AxesOf returns the world-space right, up and forward axes of an orientation.
func AxesOf(q mgl64.Quat) (right, up, forward mgl64.Vec3) {
	return q.Rotate(BodyRight), q.Rotate(BodyUp), q.Rotate(BodyForward)
}

// EulerFromOrientation extracts pitch, yaw and roll in radians for display.
// Pitch is the nose elevation, yaw the heading about world up measured from +Z toward +X,
// and roll the bank angle with positive values banking right.
func EulerFromOrientation(q mgl64.Quat) (pitch, yaw, roll float64) {
	right, up, forward := AxesOf(q)
	pitch = math.Asin(Clamp(forward.Y(), -1, 1))
	yaw = math.Atan2(forward.X(), forward.Z())
	roll = math.Atan2(-right.Y(), up.Y())
	return pitch, yaw, roll
}
