package ballistics

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/ballistics/internal/core/systems/physics"
)

var earthGravity = physics.NewVec3(0, 0, -9.8)

func requireConsistent(t *testing.T, r Result) {
	t.Helper()
	require.True(t, r.Direction.IsFinite(), "direction must be finite: %+v", r)
	if r.WillHit {
		require.False(t, math.IsInf(r.Time, 0), "hit with sentinel time: %+v", r)
		require.GreaterOrEqual(t, r.Time, 0.0)
		require.InDelta(t, 1, r.Direction.Length(), 1e-9, "direction must be unit: %+v", r)
	} else {
		require.True(t, math.IsInf(r.Time, 1), "miss without sentinel time: %+v", r)
	}
}

func requireLands(t *testing.T, q Query, r Result) {
	t.Helper()
	require.True(t, r.WillHit)
	tr := r.Trajectory(q.Origin, q.Gravity, q.Speed)
	distance := physics.Distance(q.Origin, q.Target)
	limit := 1e-5 * math.Max(1, distance)

	closed := tr.PositionAt(r.Time)
	require.InDelta(t, 0, physics.Distance(closed, q.Target), limit, "closed form missed: %+v -> %+v", q, r)

	integrated := tr.Integrate(r.Time, 1000)
	require.InDelta(t, 0, physics.Distance(integrated, q.Target), limit, "integration missed: %+v -> %+v", q, r)
}

func TestCoincidentPoints(t *testing.T) {
	p := physics.NewVec3(12, -4, 7)
	for _, tc := range []struct {
		name    string
		gravity physics.Vec3
		speed   float64
	}{
		{"earth gravity", earthGravity, 30},
		{"no gravity", physics.Zero, 30},
		{"no speed", earthGravity, 0},
		{"negative speed", physics.NewVec3(1, 2, 3), -5},
	} {
		t.Run(tc.name, func(t *testing.T) {
			r := CalculateProjectileDirection(p, p, tc.gravity, tc.speed)
			requireConsistent(t, r)
			assert.True(t, r.WillHit)
			assert.Equal(t, 0.0, r.Time)
			assert.Equal(t, DefaultDirection, r.Direction)
			assert.Equal(t, OutcomeTrivialHit, r.Outcome)
		})
	}
}

func TestZeroSpeed(t *testing.T) {
	r := CalculateProjectileDirection(physics.NewVec3(5, 0, 0), physics.Zero, earthGravity, 0)
	requireConsistent(t, r)
	assert.False(t, r.WillHit)
	assert.True(t, math.IsInf(r.Time, 1))
	assert.Equal(t, DefaultDirection, r.Direction)
	assert.Equal(t, OutcomeNoSpeed, r.Outcome)
}

func TestInertialFlight(t *testing.T) {
	origin := physics.NewVec3(1, 2, 3)
	r := CalculateProjectileDirection(origin.Add(physics.NewVec3(30, 0, 0)), origin, physics.Zero, 10)
	requireConsistent(t, r)
	assert.True(t, r.WillHit)
	assert.InDelta(t, 3.0, r.Time, 1e-12)
	assert.InDelta(t, 1, r.Direction.X, 1e-12)
	assert.InDelta(t, 0, r.Direction.Y, 1e-12)
	assert.InDelta(t, 0, r.Direction.Z, 1e-12)
	assert.Equal(t, OutcomeInertial, r.Outcome)
}

func TestNegativeSpeedMatchesPositive(t *testing.T) {
	target := physics.NewVec3(40, 10, 5)
	pos := CalculateProjectileDirection(target, physics.Zero, earthGravity, 35)
	neg := CalculateProjectileDirection(target, physics.Zero, earthGravity, -35)
	assert.Equal(t, pos, neg)
}

func TestCollinearWithGravity(t *testing.T) {
	gravity := physics.NewVec3(0, 0, -10)

	t.Run("reachable along gravity", func(t *testing.T) {
		q := Query{Target: physics.NewVec3(0, 0, -50), Gravity: gravity, Speed: 20}
		r := Solver{}.Solve(q)
		requireConsistent(t, r)
		assert.True(t, r.WillHit)
		assert.InDelta(t, (-20+math.Sqrt(1400))/10, r.Time, 1e-9)
		assert.InDelta(t, 1.7417, r.Time, 1e-4)
		assert.InDelta(t, -1, r.Direction.Z, 1e-12)
		assert.Equal(t, OutcomeCollinear, r.Outcome)
		requireLands(t, q, r)
	})

	t.Run("unreachable against gravity", func(t *testing.T) {
		q := Query{Target: physics.NewVec3(0, 0, 50), Gravity: gravity, Speed: 20}
		r := Solver{}.Solve(q)
		requireConsistent(t, r)
		assert.False(t, r.WillHit)
		assert.True(t, math.IsInf(r.Time, 1))
		assert.InDelta(t, 1, r.Direction.Z, 1e-12)
		assert.Equal(t, OutcomeUnreachable, r.Outcome)
	})

	t.Run("reachable against gravity takes the first crossing", func(t *testing.T) {
		q := Query{Target: physics.NewVec3(0, 0, 10), Gravity: gravity, Speed: 20}
		r := Solver{}.Solve(q)
		requireConsistent(t, r)
		assert.True(t, r.WillHit)
		assert.InDelta(t, (20-math.Sqrt(200))/10, r.Time, 1e-9)
		assert.InDelta(t, 1, r.Direction.Z, 1e-12)
		requireLands(t, q, r)
	})

	t.Run("offset from origin", func(t *testing.T) {
		origin := physics.NewVec3(100, -20, 30)
		q := Query{Target: origin.Add(physics.NewVec3(0, 0, -50)), Origin: origin, Gravity: gravity, Speed: 20}
		r := Solver{}.Solve(q)
		assert.Equal(t, OutcomeCollinear, r.Outcome)
		requireLands(t, q, r)
	})
}

func TestSolveCollinear(t *testing.T) {
	tests := []struct {
		name    string
		offset  float64
		gravity float64
		speed   float64
		factor  float64
		willHit bool
		time    float64
	}{
		{"with gravity", 50, 10, 20, 1, true, (-20 + math.Sqrt(1400)) / 10},
		{"with gravity from rest", 20, 10, 0, 1, true, 2},
		{"at apex", -20, 10, 20, -1, true, 2},
		{"below apex", -15, 10, 20, -1, true, (20 - math.Sqrt(100)) / 10},
		{"above apex", -50, 10, 20, -1, false, Unreachable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := solveCollinear(tc.offset, tc.gravity, tc.speed)
			assert.Equal(t, tc.factor, got.factor)
			assert.Equal(t, tc.willHit, got.willHit)
			if tc.willHit {
				assert.InDelta(t, tc.time, got.time, 1e-12)
			} else {
				assert.True(t, math.IsInf(got.time, 1))
			}
		})
	}
}

func TestGeneralCase(t *testing.T) {
	q := Query{Target: physics.NewVec3(100, 0, 0), Gravity: earthGravity, Speed: 50}
	r := Solver{}.Solve(q)
	requireConsistent(t, r)
	require.True(t, r.WillHit)
	assert.Equal(t, OutcomeGeneral, r.Outcome)
	// flat arc: aims slightly up, no sideways component
	assert.Greater(t, r.Direction.Z, 0.0)
	assert.Greater(t, r.Direction.X, 0.9)
	assert.InDelta(t, 0, r.Direction.Y, 1e-12)
	requireLands(t, q, r)
}

func TestGeneralCaseAnyGravityDirection(t *testing.T) {
	q := Query{
		Target:  physics.NewVec3(-30, 25, 12),
		Origin:  physics.NewVec3(4, -6, 1),
		Gravity: physics.NewVec3(3, -4, 2),
		Speed:   40,
	}
	r := Solver{}.Solve(q)
	requireConsistent(t, r)
	assert.Equal(t, OutcomeGeneral, r.Outcome)
	requireLands(t, q, r)
}

func TestOutOfRangeStillAims(t *testing.T) {
	q := Query{Target: physics.NewVec3(1000, 0, 0), Gravity: earthGravity, Speed: 10}
	r := Solver{}.Solve(q)
	requireConsistent(t, r)
	assert.False(t, r.WillHit)
	assert.Equal(t, OutcomeUnreachable, r.Outcome)
	// still points toward the target side and upward
	assert.Greater(t, r.Direction.X, 0.0)
	assert.Greater(t, r.Direction.Z, 0.0)
	assert.InDelta(t, 1, r.Direction.Length(), 1e-9)
}

func TestHighTargetFallsBackToStraightUp(t *testing.T) {
	q := Query{Target: physics.NewVec3(1, 0, 100), Gravity: physics.NewVec3(0, 0, -10), Speed: 10}
	r := Solver{}.Solve(q)
	requireConsistent(t, r)
	assert.False(t, r.WillHit)
	assert.InDelta(t, 1, r.Direction.Z, 1e-12)
}

func TestCustomTolerance(t *testing.T) {
	loose := NewSolver(physics.Tolerance{Absolute: 0.5})
	r := loose.Solve(Query{Target: physics.NewVec3(0.2, 0, 0), Gravity: earthGravity, Speed: 10})
	assert.Equal(t, OutcomeTrivialHit, r.Outcome)

	r = Solver{}.Solve(Query{Target: physics.NewVec3(0.2, 0, 0), Gravity: earthGravity, Speed: 10})
	assert.Equal(t, OutcomeGeneral, r.Outcome)
}

func TestTranslationDoesNotChangeResult(t *testing.T) {
	gravity := physics.NewVec3(0, 0, -10)
	for _, tc := range []struct {
		name   string
		offset physics.Vec3
		speed  float64
	}{
		{"unreachable above", physics.NewVec3(0, 0, 8), 1},
		{"reachable above", physics.NewVec3(0, 0, 8), 20},
		{"general", physics.NewVec3(30, -12, 5), 25},
		{"out of range", physics.NewVec3(500, 0, 0), 10},
		{"inertial", physics.NewVec3(3, 4, 0), 5},
	} {
		t.Run(tc.name, func(t *testing.T) {
			g := gravity
			if tc.name == "inertial" {
				g = physics.Zero
			}
			near := Solver{}.Solve(Query{Target: tc.offset, Gravity: g, Speed: tc.speed})
			for _, shift := range []physics.Vec3{
				physics.NewVec3(1e7, 0, 0),
				physics.NewVec3(-4096, 1e6, 2048),
			} {
				far := Solver{}.Solve(Query{
					Target:  shift.Add(tc.offset),
					Origin:  shift,
					Gravity: g,
					Speed:   tc.speed,
				})
				assert.Equal(t, near.Outcome, far.Outcome)
				assert.Equal(t, near.WillHit, far.WillHit)
				assert.InDelta(t, 0, physics.Distance(near.Direction, far.Direction), 1e-9)
				if near.WillHit {
					assert.InDelta(t, near.Time, far.Time, 1e-9)
				} else {
					assert.True(t, math.IsInf(far.Time, 1))
				}
			}
		})
	}

	r := Solver{}.Solve(Query{
		Target:  physics.NewVec3(1e7, 0, 8),
		Origin:  physics.NewVec3(1e7, 0, 0),
		Gravity: gravity,
		Speed:   1,
	})
	assert.False(t, r.WillHit)
	assert.Equal(t, OutcomeUnreachable, r.Outcome)
}

func TestNearGravityLineMatchesCollinear(t *testing.T) {
	gravity := physics.NewVec3(0, 0, -10)
	vertical := Solver{}.Solve(Query{Target: physics.NewVec3(0, 0, 19.9), Gravity: gravity, Speed: 20})
	require.True(t, vertical.WillHit)
	require.Equal(t, OutcomeCollinear, vertical.Outcome)
	require.InDelta(t, (20-math.Sqrt(2))/10, vertical.Time, 1e-9)

	for _, lean := range []float64{1.5e-6, 1e-5, 1e-4, 1e-3} {
		q := Query{Target: physics.NewVec3(19.9*lean, 0, 19.9), Gravity: gravity, Speed: 20}
		r := Solver{}.Solve(q)
		requireConsistent(t, r)
		require.True(t, r.WillHit, "lean %g: %+v", lean, r)
		assert.Equal(t, OutcomeGeneral, r.Outcome)
		assert.InDelta(t, vertical.Time, r.Time, 1e-3, "lean %g", lean)
		requireLands(t, q, r)
	}
}

func TestRandomQueriesHoldInvariants(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	uniform := func(lo, hi float64) float64 { return lo + (hi-lo)*rng.Float64() }
	randomVec := func(scale float64) physics.Vec3 {
		return physics.NewVec3(uniform(-scale, scale), uniform(-scale, scale), uniform(-scale, scale))
	}

	hits := 0
	for i := 0; i < 5000; i++ {
		q := Query{
			Target:  randomVec(100),
			Origin:  randomVec(100),
			Gravity: randomVec(15),
			Speed:   uniform(-80, 80),
		}
		if i%10 == 0 {
			q.Gravity = physics.Zero
		}
		if i%17 == 0 {
			// put the target on the gravity line
			q.Target = q.Origin.Add(q.Gravity.Mul(uniform(-3, 3)))
		}

		r := Solver{}.Solve(q)
		requireConsistent(t, r)
		if r.WillHit {
			hits++
			requireLands(t, q, r)
		}
	}
	assert.Greater(t, hits, 1000)
}

func BenchmarkSolve(b *testing.B) {
	q := Query{Target: physics.NewVec3(80, 25, 10), Gravity: earthGravity, Speed: 45}
	s := Solver{}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = s.Solve(q)
	}
}
