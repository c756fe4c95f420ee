package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/ballistics/internal/config"
	"github.com/zeusync/ballistics/internal/core/aiming"
	"github.com/zeusync/ballistics/internal/core/observability/log"
	"github.com/zeusync/ballistics/internal/core/systems/ballistics"
	"github.com/zeusync/ballistics/internal/server"
)

var ProviderSet = wire.NewSet(
	ProvideLogger,
	wire.Bind(new(log.Log), new(*log.Logger)),
	ProvideSolver,
	ProvideScatter,
	ProvideCache,
	ProvideAimer,
	ProvideServer,
)

func ProvideLogger(cfg *config.Config) *log.Logger {
	return log.New(cfg.Level())
}

func ProvideSolver(cfg *config.Config) ballistics.Solver {
	return ballistics.NewSolver(cfg.Solver.Tolerance())
}

func ProvideScatter(cfg *config.Config) *ballistics.Scatter {
	return ballistics.NewSeededScatter(cfg.Scatter.EffectiveSeed(),
		ballistics.WithScatterTolerance(cfg.Solver.Tolerance()),
		ballistics.WithMaxAttempts(cfg.Scatter.MaxAttempts))
}

// ProvideCache returns nil when caching is disabled.
func ProvideCache(cfg *config.Config) *aiming.Cache {
	if !cfg.Cache.Enabled {
		return nil
	}
	return aiming.NewCache(cfg.Cache.Shards, cfg.Cache.CapacityPerShard)
}

func ProvideAimer(cfg *config.Config, solver ballistics.Solver, scatter *ballistics.Scatter, cache *aiming.Cache, logger log.Log) *aiming.Aimer {
	logger.Info("Aimer configured",
		log.Bool("cache_enabled", cache != nil),
		log.Int("workers", cfg.Batch.Workers),
		log.Int("scatter_max_attempts", cfg.Scatter.MaxAttempts))
	return aiming.NewAimer(aiming.Options{
		Solver:  solver,
		Scatter: scatter,
		Cache:   cache,
		Workers: cfg.Batch.Workers,
		Logger:  logger,
	})
}

func ProvideServer(cfg *config.Config, aimer *aiming.Aimer, logger log.Log) *server.Server {
	return server.NewServer(cfg.Server, aimer, logger)
}
