package ballistics

import (
	"math"

	"github.com/zeusync/ballistics/internal/core/systems/physics"
)

// DefaultDirection is returned when no aiming direction can be derived.
var DefaultDirection = physics.Forward

// Solver computes launch directions for constant-speed projectiles under
// uniform gravity. The zero value uses physics.DefaultTolerance.
// Solver is a value type with no mutable state and is safe for concurrent use.
type Solver struct {
	Tolerance physics.Tolerance
}

func NewSolver(tol physics.Tolerance) Solver {
	return Solver{Tolerance: tol.OrDefault()}
}

// CalculateProjectileDirection solves with the default tolerance.
func CalculateProjectileDirection(target, origin, gravity physics.Vec3, speed float64) Result {
	return Solver{}.Solve(Query{Target: target, Origin: origin, Gravity: gravity, Speed: speed})
}

// Solve classifies the query geometry and dispatches to the matching case.
func (s Solver) Solve(q Query) Result {
	tol := s.Tolerance.OrDefault()
	speed := math.Abs(q.Speed)

	// only the offset matters; translating both points must not change the result
	relativeTarget := q.Target.Sub(q.Origin)
	if relativeTarget.IsNearlyZero(tol, 0) {
		return hit(DefaultDirection, 0, OutcomeTrivialHit)
	}

	if tol.IsZero(speed, 0) {
		return miss(DefaultDirection, OutcomeNoSpeed)
	}

	if q.Gravity.IsNearlyZero(tol, 0) {
		direction, distance := relativeTarget.DirectionAndLength(tol)
		return hit(direction, distance/speed, OutcomeInertial)
	}

	gravityAxis, gravityMagnitude := q.Gravity.DirectionAndLength(tol)

	// component of relativeTarget perpendicular to gravity, scaled by |g|^2
	frontAxis, ok := q.Gravity.Cross(relativeTarget.Cross(q.Gravity)).
		Normalize(tol, gravityMagnitude*gravityMagnitude*relativeTarget.Length())
	if !ok {
		offset := relativeTarget.Dot(gravityAxis)
		c := solveCollinear(offset, gravityMagnitude, speed)
		if !c.willHit {
			return miss(gravityAxis.Mul(c.factor), OutcomeUnreachable)
		}
		return hit(gravityAxis.Mul(c.factor), c.time, OutcomeCollinear)
	}

	return s.solvePlanar(relativeTarget, frontAxis, gravityAxis, gravityMagnitude, speed)
}
