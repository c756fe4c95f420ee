package physics

import "math"

// Tolerance is the single near-zero policy used by vector and solver code.
// A magnitude x counts as zero when |x| <= Absolute + Relative*|scale|.
type Tolerance struct {
	Absolute float64 `json:"absolute" yaml:"absolute"`
	Relative float64 `json:"relative" yaml:"relative"`
}

// DefaultTolerance matches the precision the solver is tested against.
var DefaultTolerance = Tolerance{Absolute: 1e-8, Relative: 1e-6}

func (t Tolerance) IsZero(x, scale float64) bool {
	return math.Abs(x) <= t.Absolute+t.Relative*math.Abs(scale)
}

// Equal compares two scalars under the same policy, scaled by the larger one.
func (t Tolerance) Equal(a, b float64) bool {
	return t.IsZero(a-b, math.Max(math.Abs(a), math.Abs(b)))
}

// OrDefault replaces an unset tolerance with DefaultTolerance.
func (t Tolerance) OrDefault() Tolerance {
	if t.Absolute <= 0 && t.Relative <= 0 {
		return DefaultTolerance
	}
	return t
}
