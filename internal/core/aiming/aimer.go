package aiming

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/zeusync/ballistics/internal/core/observability/log"
	"github.com/zeusync/ballistics/internal/core/systems/ballistics"
	"github.com/zeusync/ballistics/internal/core/systems/physics"
	"github.com/zeusync/ballistics/pkg/concurrent"
)

var (
	ErrInvalidRequest = errors.New("invalid aim request")
	ErrEmptyBatch     = errors.New("empty aim batch")
)

// Request asks for a launch direction. Spread, in degrees, perturbs the
// solved direction the way a bow or gun scatters its shots.
type Request struct {
	ID      string       `json:"id,omitempty"`
	Target  physics.Vec3 `json:"target"`
	Origin  physics.Vec3 `json:"origin"`
	Gravity physics.Vec3 `json:"gravity"`
	Speed   float64      `json:"speed"`
	Spread  float64      `json:"spread,omitempty"`
	Verify  bool         `json:"verify,omitempty"`
}

func (r Request) Query() ballistics.Query {
	return ballistics.Query{Target: r.Target, Origin: r.Origin, Gravity: r.Gravity, Speed: r.Speed}
}

func (r Request) Validate() error {
	for name, v := range map[string]physics.Vec3{"target": r.Target, "origin": r.Origin, "gravity": r.Gravity} {
		if !v.IsFinite() {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidRequest, name)
		}
	}
	if math.IsNaN(r.Speed) || math.IsInf(r.Speed, 0) {
		return fmt.Errorf("%w: speed is not finite", ErrInvalidRequest)
	}
	if math.IsNaN(r.Spread) || math.IsInf(r.Spread, 0) {
		return fmt.Errorf("%w: spread is not finite", ErrInvalidRequest)
	}
	return nil
}

// Response carries the solver result and the direction to actually launch
// along once spread is applied.
type Response struct {
	ID           string            `json:"id"`
	Result       ballistics.Result `json:"result"`
	Aim          physics.Vec3      `json:"aim"`
	MissDistance *float64          `json:"miss_distance,omitempty"`
}

type Options struct {
	Solver  ballistics.Solver
	Scatter *ballistics.Scatter
	// Cache is optional; nil disables memoization.
	Cache   *Cache
	Workers int
	Logger  log.Log
}

// Aimer is the entry point used by game logic and the network server.
// It is safe for concurrent use.
type Aimer struct {
	solver  ballistics.Solver
	scatter *ballistics.Scatter
	cache   *Cache
	workers int
	logger  log.Log
}

func NewAimer(opts Options) *Aimer {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	scatter := opts.Scatter
	if scatter == nil {
		scatter = ballistics.NewSeededScatter(0)
	}
	return &Aimer{
		solver:  opts.Solver,
		scatter: scatter,
		cache:   opts.Cache,
		workers: opts.Workers,
		logger:  logger.With(log.String("component", "aimer")),
	}
}

// Solve runs the solver, consulting the cache first.
func (a *Aimer) Solve(q ballistics.Query) ballistics.Result {
	if a.cache != nil {
		if r, ok := a.cache.Get(q); ok {
			return r
		}
	}
	r := a.solver.Solve(q)
	if a.cache != nil {
		a.cache.Put(q, r)
	}
	return r
}

// Aim solves a single request. Only malformed input is an error; an
// unreachable target is reported through the result.
func (a *Aimer) Aim(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if err := req.Validate(); err != nil {
		return Response{ID: req.ID}, err
	}

	q := req.Query()
	result := a.Solve(q)

	aim := result.Direction
	if req.Spread != 0 {
		aim = a.scatter.RotateTowardsRandomDirection(aim, req.Spread)
	}

	resp := Response{ID: req.ID, Result: result, Aim: aim}
	if req.Verify && result.WillHit {
		miss := result.Trajectory(q.Origin, q.Gravity, q.Speed).MissDistance(q.Target, result.Time)
		resp.MissDistance = &miss
	}

	if !result.WillHit {
		a.logger.WithContext(log.ContextWithRequestID(ctx, req.ID)).Debug("Target unreachable",
			log.Stringer("outcome", result.Outcome),
			log.Float64("speed", q.Speed),
			log.Float64("distance", physics.Distance(q.Origin, q.Target)))
	}

	return resp, nil
}

// AimBatch solves requests in parallel and returns responses in input order.
func (a *Aimer) AimBatch(ctx context.Context, reqs []Request) ([]Response, error) {
	if len(reqs) == 0 {
		return nil, ErrEmptyBatch
	}
	return concurrent.Map(ctx, reqs, a.workers, a.Aim)
}

// Scatter exposes the spread rotator on its own.
func (a *Aimer) Scatter(origin physics.Vec3, angleDeg float64) physics.Vec3 {
	return a.scatter.RotateTowardsRandomDirection(origin, angleDeg)
}

// CacheStats reports cache counters, or zero values when caching is off.
func (a *Aimer) CacheStats() CacheStats {
	if a.cache == nil {
		return CacheStats{}
	}
	return a.cache.Stats()
}
