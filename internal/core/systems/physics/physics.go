package physics

import "math"

// Vec3 is an immutable 3D vector value.
type Vec3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

var (
	Zero    = Vec3{}
	Forward = Vec3{X: 1}
	Right   = Vec3{Y: 1}
	Up      = Vec3{Z: 1}
)

func NewVec3(x, y, z float64) Vec3 { return Vec3{X: x, Y: y, Z: z} }

func (v Vec3) Components() (x, y, z float64) { return v.X, v.Y, v.Z }

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

func (v Vec3) Mul(k float64) Vec3 { return Vec3{v.X * k, v.Y * k, v.Z * k} }

func (v Vec3) Neg() Vec3 { return Vec3{-v.X, -v.Y, -v.Z} }

func (v Vec3) Dot(o Vec3) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		X: v.Y*o.Z - v.Z*o.Y,
		Y: v.Z*o.X - v.X*o.Z,
		Z: v.X*o.Y - v.Y*o.X,
	}
}

// LengthSquared avoids the square root when only comparisons are needed.
func (v Vec3) LengthSquared() float64 { return v.Dot(v) }

// Length returns the Euclidean norm.
func (v Vec3) Length() float64 { return math.Sqrt(v.Dot(v)) }

// IsFinite reports whether no component is NaN or infinite.
func (v Vec3) IsFinite() bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) &&
		!math.IsNaN(v.Y) && !math.IsInf(v.Y, 0) &&
		!math.IsNaN(v.Z) && !math.IsInf(v.Z, 0)
}

// IsNearlyZero reports whether the vector length is within tol of zero,
// relative to scale.
func (v Vec3) IsNearlyZero(tol Tolerance, scale float64) bool {
	return tol.IsZero(v.Length(), scale)
}

// Normalize returns the unit vector and true, or the zero vector and false
// when v is too short to carry a direction.
func (v Vec3) Normalize(tol Tolerance, scale float64) (Vec3, bool) {
	length := v.Length()
	if tol.IsZero(length, scale) {
		return Vec3{}, false
	}
	return v.Mul(1 / length), true
}

// DirectionAndLength splits v into a unit direction and its length.
// A vector too short to normalize yields the zero direction and zero length.
func (v Vec3) DirectionAndLength(tol Tolerance) (Vec3, float64) {
	length := v.Length()
	if tol.IsZero(length, 0) {
		return Vec3{}, 0
	}
	return v.Mul(1 / length), length
}

// Distance computes Euclidean distance between two points.
func Distance(a, b Vec3) float64 { return b.Sub(a).Length() }

// RotateAngleAxis rotates v by angleDeg degrees about the unit vector axis
// using Rodrigues' rotation formula.
func (v Vec3) RotateAngleAxis(angleDeg float64, axis Vec3) Vec3 {
	sin, cos := math.Sincos(angleDeg * math.Pi / 180)
	return v.Mul(cos).
		Add(axis.Cross(v).Mul(sin)).
		Add(axis.Mul(axis.Dot(v) * (1 - cos)))
}

// AnyOrthogonal returns a unit vector perpendicular to v. The zero vector
// gets Right.
func (v Vec3) AnyOrthogonal() Vec3 {
	ax, ay, az := math.Abs(v.X), math.Abs(v.Y), math.Abs(v.Z)
	var other Vec3
	switch {
	case ax <= ay && ax <= az:
		other = Forward
	case ay <= az:
		other = Right
	default:
		other = Up
	}
	axis := v.Cross(other)
	length := axis.Length()
	if length == 0 {
		return Right
	}
	return axis.Mul(1 / length)
}
