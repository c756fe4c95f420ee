package ballistics

import (
	"math"
	"math/rand/v2"
	"sync"

	"github.com/zeusync/ballistics/internal/core/systems/physics"
)

// DefaultScatterAttempts caps axis resampling. Each draw is rejected with
// vanishing probability, so the cap is only reached with a broken source.
const DefaultScatterAttempts = 64

// Scatter rotates directions by a fixed angle about a random axis
// perpendicular to them, producing a uniformly distributed azimuth on the
// cone around the input. The random source is injected and guarded by a
// mutex so one Scatter may be shared between goroutines.
type Scatter struct {
	mu          sync.Mutex
	rng         *rand.Rand
	tolerance   physics.Tolerance
	maxAttempts int
}

type ScatterOption func(*Scatter)

func WithScatterTolerance(tol physics.Tolerance) ScatterOption {
	return func(s *Scatter) { s.tolerance = tol.OrDefault() }
}

func WithMaxAttempts(n int) ScatterOption {
	return func(s *Scatter) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func NewScatter(src rand.Source, opts ...ScatterOption) *Scatter {
	s := &Scatter{
		rng:         rand.New(src),
		tolerance:   physics.DefaultTolerance,
		maxAttempts: DefaultScatterAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewSeededScatter is shorthand for a PCG source with the given seed.
func NewSeededScatter(seed uint64, opts ...ScatterOption) *Scatter {
	return NewScatter(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15), opts...)
}

// RotateTowardsRandomDirection returns origin rotated by angleDeg degrees.
// The result has the same length as origin. A near-zero origin is returned
// unchanged.
func (s *Scatter) RotateTowardsRandomDirection(origin physics.Vec3, angleDeg float64) physics.Vec3 {
	axis, ok := s.RotationAxis(origin)
	if !ok {
		return origin
	}
	return origin.RotateAngleAxis(angleDeg, axis)
}

// RotationAxis samples a unit axis orthogonal to origin. It reports false
// only when origin itself is too short to have orthogonal directions.
func (s *Scatter) RotationAxis(origin physics.Vec3) (physics.Vec3, bool) {
	length := origin.Length()
	if s.tolerance.IsZero(length, 0) {
		return physics.Vec3{}, false
	}

	for range s.maxAttempts {
		// cross with a unit sample has length |origin|·sin(angle between them)
		axis, ok := origin.Cross(s.randomUnitVector()).Normalize(s.tolerance, length)
		if ok {
			return axis, true
		}
	}
	return origin.AnyOrthogonal(), true
}

// randomUnitVector draws uniformly from the unit sphere.
func (s *Scatter) randomUnitVector() physics.Vec3 {
	s.mu.Lock()
	z := 2*s.rng.Float64() - 1
	phi := 2 * math.Pi * s.rng.Float64()
	s.mu.Unlock()

	r := math.Sqrt(1 - z*z)
	sin, cos := math.Sincos(phi)
	return physics.Vec3{X: r * cos, Y: r * sin, Z: z}
}
