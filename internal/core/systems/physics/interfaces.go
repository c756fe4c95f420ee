package physics

// Lightweight vector abstractions shared by the ballistics solver and its callers.
// Engine-side types only need to expose their components to be accepted.

// Vector3 represents anything that can report 3D components.
type Vector3 interface {
	Components() (x, y, z float64)
}

// FromVector copies any Vector3 into a Vec3 value.
func FromVector(v Vector3) Vec3 {
	if v == nil {
		return Vec3{}
	}
	x, y, z := v.Components()
	return Vec3{X: x, Y: y, Z: z}
}
