package ballistics

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/zeusync/ballistics/internal/core/systems/physics"
)

// Unreachable is the time reported when no launch reaches the target.
var Unreachable = math.Inf(1)

// Outcome classifies how a query was resolved.
type Outcome uint8

const (
	OutcomeUnknown Outcome = iota
	// OutcomeTrivialHit: origin and target coincide.
	OutcomeTrivialHit
	// OutcomeNoSpeed: distinct points and no launch speed.
	OutcomeNoSpeed
	// OutcomeUnreachable: speed or geometry cannot reach the target.
	OutcomeUnreachable
	// OutcomeInertial: no gravity, straight line flight.
	OutcomeInertial
	// OutcomeCollinear: target lies on the gravity line through origin.
	OutcomeCollinear
	// OutcomeGeneral: closed-form solution in the launch plane.
	OutcomeGeneral
)

var outcomeNames = map[Outcome]string{
	OutcomeUnknown:     "unknown",
	OutcomeTrivialHit:  "trivial_hit",
	OutcomeNoSpeed:     "no_speed",
	OutcomeUnreachable: "unreachable",
	OutcomeInertial:    "inertial",
	OutcomeCollinear:   "collinear",
	OutcomeGeneral:     "general",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("outcome(%d)", uint8(o))
}

func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (o *Outcome) UnmarshalText(text []byte) error {
	for k, name := range outcomeNames {
		if name == string(text) {
			*o = k
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", text)
}

// Query is a single ballistic aiming problem.
type Query struct {
	Target  physics.Vec3 `json:"target"`
	Origin  physics.Vec3 `json:"origin"`
	Gravity physics.Vec3 `json:"gravity"`
	Speed   float64      `json:"speed"`
}

// Result is the answer to a Query. Direction is unit length whenever WillHit
// is true; Time is Unreachable exactly when WillHit is false.
type Result struct {
	Direction physics.Vec3
	WillHit   bool
	Time      float64
	Outcome   Outcome
}

func hit(direction physics.Vec3, t float64, outcome Outcome) Result {
	return Result{Direction: direction, WillHit: true, Time: t, Outcome: outcome}
}

func miss(direction physics.Vec3, outcome Outcome) Result {
	return Result{Direction: direction, WillHit: false, Time: Unreachable, Outcome: outcome}
}

// Trajectory builds the flight path this result describes for a launch
// from origin at speed under gravity.
func (r Result) Trajectory(origin, gravity physics.Vec3, speed float64) Trajectory {
	return Trajectory{
		Origin:   origin,
		Velocity: r.Direction.Mul(math.Abs(speed)),
		Gravity:  gravity,
	}
}

type resultJSON struct {
	Direction physics.Vec3 `json:"direction"`
	WillHit   bool         `json:"will_hit"`
	Time      *float64     `json:"time"`
	Outcome   Outcome      `json:"outcome"`
}

// MarshalJSON writes the unreachable sentinel as null since JSON has no infinity.
func (r Result) MarshalJSON() ([]byte, error) {
	out := resultJSON{Direction: r.Direction, WillHit: r.WillHit, Outcome: r.Outcome}
	if r.WillHit {
		t := r.Time
		out.Time = &t
	}
	return json.Marshal(out)
}

func (r *Result) UnmarshalJSON(data []byte) error {
	var in resultJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	r.Direction = in.Direction
	r.WillHit = in.WillHit
	r.Outcome = in.Outcome
	r.Time = Unreachable
	if in.Time != nil {
		r.Time = *in.Time
	}
	return nil
}
