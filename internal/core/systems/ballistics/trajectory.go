package ballistics

import "github.com/zeusync/ballistics/internal/core/systems/physics"

// Trajectory is a drag-free flight path under constant acceleration.
type Trajectory struct {
	Origin   physics.Vec3
	Velocity physics.Vec3
	Gravity  physics.Vec3
}

// PositionAt evaluates the closed-form position after t seconds.
func (tr Trajectory) PositionAt(t float64) physics.Vec3 {
	return tr.Origin.
		Add(tr.Velocity.Mul(t)).
		Add(tr.Gravity.Mul(0.5 * t * t))
}

// VelocityAt returns the velocity after t seconds.
func (tr Trajectory) VelocityAt(t float64) physics.Vec3 {
	return tr.Velocity.Add(tr.Gravity.Mul(t))
}

// Integrate steps the path numerically with velocity Verlet and returns the
// final position. Non-positive steps fall back to a single step.
func (tr Trajectory) Integrate(duration float64, steps int) physics.Vec3 {
	if steps <= 0 {
		steps = 1
	}
	dt := duration / float64(steps)
	pos, vel := tr.Origin, tr.Velocity
	for range steps {
		pos = pos.Add(vel.Mul(dt)).Add(tr.Gravity.Mul(0.5 * dt * dt))
		vel = vel.Add(tr.Gravity.Mul(dt))
	}
	return pos
}

// MissDistance is how far the path passes from target at time t.
func (tr Trajectory) MissDistance(target physics.Vec3, t float64) float64 {
	return physics.Distance(tr.PositionAt(t), target)
}
