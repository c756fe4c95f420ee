package ballistics

import (
	"math"

	"github.com/zeusync/ballistics/internal/core/systems/physics"
)

// solvePlanar solves in the plane spanned by frontAxis (perpendicular to
// gravity, pointing at the target) and gravityAxis (along gravity).
//
// With launch velocity (x, y) in that basis and x²+y² = speed², requiring the
// path to cross the target reduces to a quadratic in x²:
//
//	x² = (speed² + dy·g ± sqrt(deltaA)) · dx² / (2·d²)
//	deltaA = speed⁴ + 2·dy·g·speed² − dx²·g²
//
// and the larger root (the flatter arc) is taken.
func (s Solver) solvePlanar(relativeTarget, frontAxis, gravityAxis physics.Vec3, gravity, speed float64) Result {
	tol := s.Tolerance.OrDefault()

	distanceX := frontAxis.Dot(relativeTarget)
	distanceY := gravityAxis.Dot(relativeTarget)
	distance := relativeTarget.Length()
	speedSquared := speed * speed

	deltaA := -distanceX*distanceX*gravity*gravity + 2*distanceY*gravity*speedSquared + speedSquared*speedSquared

	// Out of range targets still get a direction toward the closest approach
	// so shooters can fire at something they cannot reach.
	alteredSqrtDeltaA := 0.0
	if deltaA >= 0 {
		alteredSqrtDeltaA = math.Sqrt(deltaA)
	}

	deltaB := distanceY*gravity + speedSquared + alteredSqrtDeltaA

	var x, y float64
	if deltaB > 0 {
		x = math.Sqrt(deltaB) * distanceX / distance * math.Sqrt2 / 2
		y = distanceY*x/distanceX - 0.5*distanceX*gravity/x
	} else {
		x = 0
		y = -speed
	}

	direction, ok := gravityAxis.Mul(y).Add(frontAxis.Mul(x)).Normalize(tol, speed)
	if !ok || !direction.IsFinite() {
		direction = DefaultDirection
	}

	// x shrinks with distanceX/distance near the gravity line, so compare the
	// in-plane launch speed x·distance/distanceX instead of x itself
	if deltaA < 0 || deltaB < 0 || tol.IsZero(x*distance/distanceX, speed) {
		return miss(direction, OutcomeUnreachable)
	}

	return hit(direction, distanceX/x, OutcomeGeneral)
}
