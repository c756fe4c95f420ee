package ballistics

import "math"

type collinearSolution struct {
	factor  float64
	willHit bool
	time    float64
}

// solveCollinear handles targets on the gravity line through the origin.
// offset is the signed distance along the gravity direction; gravity > 0.
func solveCollinear(offset, gravity, speed float64) collinearSolution {
	if offset >= 0 {
		// launched with gravity, always arrives
		t := (-speed + math.Sqrt(speed*speed+2*gravity*offset)) / gravity
		return collinearSolution{factor: 1, willHit: true, time: t}
	}

	discriminant := speed*speed + 2*gravity*offset
	if discriminant < 0 {
		return collinearSolution{factor: -1, willHit: false, time: Unreachable}
	}

	sqrtDiscriminant := math.Sqrt(discriminant)
	t := (speed - sqrtDiscriminant) / gravity
	if speed-sqrtDiscriminant < 0 {
		t = (speed + sqrtDiscriminant) / gravity
	}
	return collinearSolution{factor: -1, willHit: true, time: t}
}
